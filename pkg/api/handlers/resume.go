package handlers

import (
	"context"
	"net/http"

	"github.com/vedmemory/ved/pkg/api/response"
	"github.com/vedmemory/ved/pkg/logger"
	"github.com/vedmemory/ved/pkg/memory"
)

// ResumeProvider builds resume context. *memory.Resumer implements it.
type ResumeProvider interface {
	Context(ctx context.Context, userID int64, mode string) (*memory.ResumeContext, error)
}

// ResumeHandler serves resume context.
type ResumeHandler struct {
	resumer ResumeProvider
	logger  logger.Logger
}

// NewResumeHandler creates a new resume handler.
func NewResumeHandler(resumer ResumeProvider, log logger.Logger) *ResumeHandler {
	return &ResumeHandler{resumer: resumer, logger: logger.Component(log, "resume")}
}

// Context handles GET /api/v1/resume/context
// @Summary Get resume context
// @Description Summary context for picking up where the user left off
// @Tags resume
// @Produce json
// @Security BearerAuth
// @Param mode query string false "latest, all or full" default(latest)
// @Success 200 {object} memory.ResumeContext "Resume context"
// @Failure 400 {object} response.ErrorResponse "Invalid mode"
// @Failure 404 {object} response.ErrorResponse "No conversations found"
// @Router /api/v1/resume/context [get]
func (h *ResumeHandler) Context(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	rc, err := h.resumer.Context(ctx, u.ID, r.URL.Query().Get("mode"))
	if err != nil {
		if !memory.IsClientError(err) {
			h.logger.ErrorContext(ctx, "Failed to build resume context", "user_id", u.ID, "error", err)
		}
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, rc)
}
