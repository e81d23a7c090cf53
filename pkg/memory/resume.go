package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vedmemory/ved/pkg/storage"
)

// Resume modes.
const (
	ResumeLatest = "latest"
	ResumeAll    = "all"
	ResumeFull   = "full"
)

// ResumeSource is the storage subset the Resumer reads.
type ResumeSource interface {
	LatestConversation(ctx context.Context, userID int64) (*storage.ConversationRecord, error)
	ListSummaries(ctx context.Context, userID int64) ([]*storage.Summary, error)
}

// ResumeContext is the payload returned for a resume request. Fields that
// do not apply to the mode are omitted.
type ResumeContext struct {
	Mode           string     `json:"mode"`
	ConversationID int64      `json:"conversation_id,omitempty"`
	RawContent     *string    `json:"raw_content,omitempty"`
	Summary        *string    `json:"summary"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
	Count          *int       `json:"count,omitempty"`
}

// Resumer builds the context a client needs to pick up where the user left off.
type Resumer struct {
	source ResumeSource
}

// NewResumer creates a Resumer.
func NewResumer(source ResumeSource) *Resumer {
	return &Resumer{source: source}
}

// Context returns resume context for mode. An empty mode means latest.
func (r *Resumer) Context(ctx context.Context, userID int64, mode string) (*ResumeContext, error) {
	if mode == "" {
		mode = ResumeLatest
	}
	if mode != ResumeLatest && mode != ResumeAll && mode != ResumeFull {
		return nil, ErrInvalidMode
	}

	latest, err := r.source.LatestConversation(ctx, userID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, ErrNoConversations
		}
		return nil, fmt.Errorf("memory: latest conversation: %w", err)
	}

	rc := &ResumeContext{Mode: mode}
	switch mode {
	case ResumeLatest:
		rc.ConversationID = latest.ID
		if latest.Summary != nil {
			content, at := latest.Summary.Content, latest.Summary.UpdatedAt
			rc.Summary = &content
			rc.UpdatedAt = &at
		}

	case ResumeAll:
		summaries, err := r.source.ListSummaries(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("memory: list summaries: %w", err)
		}
		parts := make([]string, len(summaries))
		for i, s := range summaries {
			parts[i] = s.Content
		}
		merged := strings.Join(parts, "\n\n")
		count := len(summaries)
		rc.Summary = &merged
		rc.Count = &count

	case ResumeFull:
		raw := latest.RawContent
		rc.ConversationID = latest.ID
		rc.RawContent = &raw
		if latest.Summary != nil {
			content := latest.Summary.Content
			rc.Summary = &content
		}
	}
	return rc, nil
}
