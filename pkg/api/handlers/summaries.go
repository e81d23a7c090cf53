package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vedmemory/ved/pkg/api/models"
	"github.com/vedmemory/ved/pkg/api/response"
	"github.com/vedmemory/ved/pkg/logger"
	"github.com/vedmemory/ved/pkg/storage"
)

// SummaryStore is the storage subset used by SummaryHandler.
type SummaryStore interface {
	GetConversation(ctx context.Context, conversationID, userID int64) (*storage.Conversation, error)
	UpsertSummary(ctx context.Context, conversationID int64, content string, at time.Time) (*storage.Summary, error)
}

// SummaryHandler handles summary endpoints.
type SummaryHandler struct {
	store     SummaryStore
	hooks     Hooks
	logger    logger.Logger
	validator *validator.Validate
	now       func() time.Time
}

// NewSummaryHandler creates a new summary handler.
func NewSummaryHandler(store SummaryStore, hooks Hooks, log logger.Logger) *SummaryHandler {
	return &SummaryHandler{
		store:     store,
		hooks:     hooks.withDefaults(),
		logger:    logger.Component(log, "summaries"),
		validator: newValidator(),
		now:       time.Now,
	}
}

// UpsertSummary handles POST /api/v1/summaries/{conversationID}
// @Summary Create or replace a summary
// @Tags summaries
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param conversationID path int true "Conversation ID"
// @Param summary body models.SummaryUpdateRequest true "Summary text"
// @Success 200 {object} storage.Summary "Stored summary"
// @Failure 400 {object} response.ErrorResponse "Validation error"
// @Failure 404 {object} response.ErrorResponse "Conversation not found"
// @Router /api/v1/summaries/{conversationID} [post]
func (h *SummaryHandler) UpsertSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	conversationID, ok := parseID(r, "conversationID")
	if !ok {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid conversation ID", getRequestID(ctx))
		return
	}

	var req models.SummaryUpdateRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	conv, err := h.store.GetConversation(ctx, conversationID, u.ID)
	if err != nil {
		if !storage.IsNotFound(err) {
			h.logger.ErrorContext(ctx, "Failed to load conversation", "conversation_id", conversationID, "error", err)
		}
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	summary, err := h.store.UpsertSummary(ctx, conv.ID, req.Content, h.now())
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to upsert summary", "conversation_id", conv.ID, "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	h.hooks.invalidate(ctx, h.logger, conv.ProjectID)
	h.hooks.Events.SummaryUpdated(u.ID, conv.ProjectID, conv.ID)
	response.JSON(w, http.StatusOK, summary)
}
