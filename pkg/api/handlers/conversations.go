package handlers

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/vedmemory/ved/pkg/api/models"
	"github.com/vedmemory/ved/pkg/api/response"
	"github.com/vedmemory/ved/pkg/logger"
	"github.com/vedmemory/ved/pkg/storage"
)

// ConversationStore is the storage subset used by ConversationHandler.
type ConversationStore interface {
	SaveConversation(ctx context.Context, c *storage.Conversation) error
	ListConversations(ctx context.Context, userID int64) ([]*storage.ConversationOverview, error)
}

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	store     ConversationStore
	hooks     Hooks
	logger    logger.Logger
	validator *validator.Validate
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(store ConversationStore, hooks Hooks, log logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		store:     store,
		hooks:     hooks.withDefaults(),
		logger:    logger.Component(log, "conversations"),
		validator: newValidator(),
	}
}

// SaveConversation handles POST /api/v1/conversations
// @Summary Save a conversation
// @Description Store a raw conversation in one of the caller's projects
// @Tags conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param conversation body models.ConversationCreateRequest true "Conversation"
// @Success 201 {object} storage.Conversation "Conversation stored"
// @Failure 400 {object} response.ErrorResponse "Validation error"
// @Failure 404 {object} response.ErrorResponse "Project not found"
// @Router /api/v1/conversations [post]
func (h *ConversationHandler) SaveConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.ConversationCreateRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	c := &storage.Conversation{
		UserID:     u.ID,
		ProjectID:  req.ProjectID,
		RawContent: req.RawContent,
	}
	if err := h.store.SaveConversation(ctx, c); err != nil {
		if !storage.IsNotFound(err) {
			h.logger.ErrorContext(ctx, "Failed to save conversation", "project_id", req.ProjectID, "error", err)
		}
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	h.hooks.invalidate(ctx, h.logger, c.ProjectID)
	h.hooks.Events.ConversationSaved(u.ID, c.ProjectID, c.ID)
	h.logger.DebugContext(ctx, "Conversation saved", "conversation_id", c.ID, "project_id", c.ProjectID)
	response.JSON(w, http.StatusCreated, c)
}

// ListConversations handles GET /api/v1/conversations
// @Summary List conversations
// @Tags conversations
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.ConversationListItem "Conversations, newest first"
// @Failure 401 {object} response.ErrorResponse "Not authenticated"
// @Router /api/v1/conversations [get]
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	overviews, err := h.store.ListConversations(ctx, u.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to list conversations", "user_id", u.ID, "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	items := make([]models.ConversationListItem, 0, len(overviews))
	for _, o := range overviews {
		items = append(items, models.ConversationListItem{
			ID:               o.ID,
			ProjectID:        o.ProjectID,
			CreatedAt:        o.CreatedAt,
			HasSummary:       o.HasSummary,
			SummaryUpdatedAt: o.SummaryUpdatedAt,
		})
	}
	response.JSON(w, http.StatusOK, items)
}
