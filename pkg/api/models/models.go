// Package models defines API request/response data structures.
package models

import "time"

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,email,max=254" example:"ada@example.com"`
	Password string `json:"password" validate:"required,maxbytes=72" example:"correct horse battery staple"`
}

// TokenResponse carries a freshly issued access token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type" example:"bearer"`
}

// ResumeModeResponse reports the caller's resume mode.
type ResumeModeResponse struct {
	UserID     int64  `json:"user_id"`
	ResumeMode string `json:"resume_mode" example:"summary"`
}

// ResumeModeUpdateRequest changes the caller's resume mode.
type ResumeModeUpdateRequest struct {
	ResumeMode string `json:"resume_mode" example:"chat"`
}

// ResumeModeUpdateResponse confirms a resume mode change.
type ResumeModeUpdateResponse struct {
	Message    string `json:"message" example:"Resume mode updated"`
	ResumeMode string `json:"resume_mode" example:"chat"`
}

// ProjectCreateRequest creates a project.
type ProjectCreateRequest struct {
	Name string `json:"name" validate:"required,max=200" example:"thesis"`
}

// ConversationCreateRequest stores a conversation in a project.
type ConversationCreateRequest struct {
	ProjectID  int64  `json:"project_id" validate:"required,gt=0" example:"1"`
	RawContent string `json:"raw_content" validate:"required" example:"User: how do I cache this?\nAssistant: ..."`
}

// ConversationListItem is one row of the conversation listing.
type ConversationListItem struct {
	ID               int64      `json:"id"`
	ProjectID        int64      `json:"project_id"`
	CreatedAt        time.Time  `json:"created_at"`
	HasSummary       bool       `json:"has_summary"`
	SummaryUpdatedAt *time.Time `json:"summary_updated_at"`
}

// SummaryUpdateRequest creates or replaces a conversation summary.
type SummaryUpdateRequest struct {
	Content string `json:"content" validate:"required" example:"Decided on an LRU in front of redis."`
}

// MemoryContextRequest asks for ranked context. Query is checked by the
// engine so that whitespace-only input gets its dedicated error.
type MemoryContextRequest struct {
	ProjectID int64  `json:"project_id" validate:"required,gt=0" example:"1"`
	Query     string `json:"query" example:"redis cache"`
}

// StatusResponse is returned by /status.
type StatusResponse struct {
	Status    string `json:"status" example:"ok"`
	Version   string `json:"version" example:"v0.3.1"`
	Commit    string `json:"commit,omitempty"`
	Storage   string `json:"storage" example:"sqlite"`
	Uptime    string `json:"uptime" example:"3h12m5s"`
	GoVersion string `json:"go_version" example:"go1.24.0"`
}
