package memory

import "time"

// Result is the ranked context returned for one query.
type Result struct {
	ProjectID     int64          `json:"project_id"`
	Query         string         `json:"query"`
	TotalScanned  int            `json:"total_scanned"`
	ContextBlocks []ContextBlock `json:"context_blocks"`
}

// ContextBlock is one scored conversation.
type ContextBlock struct {
	ConversationID int64     `json:"conversation_id"`
	Score          float64   `json:"score"`
	RawContent     string    `json:"raw_content"`
	Summary        *string   `json:"summary"`
	CreatedAt      time.Time `json:"created_at"`
}

type candidate struct {
	block   ContextBlock
	keyword int
}
