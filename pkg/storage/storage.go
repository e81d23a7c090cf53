// Package storage provides persistent storage for users, projects,
// conversations and their summaries.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultResumeMode is assigned to newly registered users.
const DefaultResumeMode = "summary"

// Storage defines the interface for persistent storage operations.
//
// Every read of project or conversation data is scoped by the owning user.
// A record owned by someone else is reported exactly like a missing one.
type Storage interface {
	// User operations
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateResumeMode(ctx context.Context, userID int64, mode string) error

	// Project operations
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, projectID, userID int64) (*Project, error)
	ListProjects(ctx context.Context, userID int64) ([]*Project, error)
	DeleteProject(ctx context.Context, projectID, userID int64) error

	// Conversation operations
	SaveConversation(ctx context.Context, c *Conversation) error
	GetConversation(ctx context.Context, conversationID, userID int64) (*Conversation, error)
	ListConversations(ctx context.Context, userID int64) ([]*ConversationOverview, error)
	RecentConversations(ctx context.Context, projectID, userID int64, limit int) ([]*ConversationRecord, error)
	LatestConversation(ctx context.Context, userID int64) (*ConversationRecord, error)
	ListUnsummarized(ctx context.Context, limit int) ([]*Conversation, error)

	// Summary operations
	UpsertSummary(ctx context.Context, conversationID int64, content string, at time.Time) (*Summary, error)
	ListSummaries(ctx context.Context, userID int64) ([]*Summary, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// User is a registered account.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	ResumeMode   string    `json:"resume_mode"`
	CreatedAt    time.Time `json:"created_at"`
}

// Project groups a user's conversations.
type Project struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is a stored raw exchange. It is never modified after
// creation; it only disappears when its project is deleted.
type Conversation struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	ProjectID  int64     `json:"project_id"`
	RawContent string    `json:"raw_content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Summary is the optional condensed text of one conversation. It is
// overwritten in place on every upsert.
type Summary struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Content        string    `json:"content"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ConversationRecord pairs a conversation with its summary, if any.
type ConversationRecord struct {
	Conversation
	Summary *Summary `json:"summary,omitempty"`
}

// ConversationOverview is a listing row for a user's conversations.
type ConversationOverview struct {
	Conversation
	HasSummary       bool       `json:"has_summary"`
	SummaryUpdatedAt *time.Time `json:"summary_updated_at"`
}

// Overview derives the listing row for a record.
func (r *ConversationRecord) Overview() *ConversationOverview {
	o := &ConversationOverview{Conversation: r.Conversation}
	if r.Summary != nil {
		at := r.Summary.UpdatedAt
		o.HasSummary = true
		o.SummaryUpdatedAt = &at
	}
	return o
}

// NotFoundError indicates that the requested entity was not found.
type NotFoundError struct {
	EntityType string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.EntityType, e.ID)
}

// DuplicateKeyError indicates that an entity with the given unique key already exists.
type DuplicateKeyError struct {
	EntityType string
	Key        string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.EntityType, e.Key)
}

// StorageUnavailableError indicates that the storage backend is unavailable.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Cause }

// SerializationError indicates a failure in data serialization/deserialization.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }

// NewNotFound builds a NotFoundError for a numeric id.
func NewNotFound(entity string, id int64) *NotFoundError {
	return &NotFoundError{EntityType: entity, ID: fmt.Sprintf("%d", id)}
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsDuplicateKey reports whether err is, or wraps, a DuplicateKeyError.
func IsDuplicateKey(err error) bool {
	var dk *DuplicateKeyError
	return errors.As(err, &dk)
}

// IsUnavailable reports whether err is, or wraps, a StorageUnavailableError.
func IsUnavailable(err error) bool {
	var su *StorageUnavailableError
	return errors.As(err, &su)
}

// Timestamp normalizes t to the precision every backend persists: UTC,
// millisecond resolution. A zero t means now.
func Timestamp(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Truncate(time.Millisecond)
}
