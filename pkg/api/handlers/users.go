package handlers

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/vedmemory/ved/pkg/api/models"
	"github.com/vedmemory/ved/pkg/api/response"
	"github.com/vedmemory/ved/pkg/logger"
)

// Resume modes a user may choose between.
var validResumeModes = map[string]bool{
	"chat":   true,
	"resume": true,
}

// ResumeModeStore persists the user's resume mode.
type ResumeModeStore interface {
	UpdateResumeMode(ctx context.Context, userID int64, mode string) error
}

// UserHandler handles per-user settings.
type UserHandler struct {
	store     ResumeModeStore
	logger    logger.Logger
	validator *validator.Validate
}

// NewUserHandler creates a new user handler.
func NewUserHandler(store ResumeModeStore, log logger.Logger) *UserHandler {
	return &UserHandler{store: store, logger: logger.Component(log, "users"), validator: newValidator()}
}

// GetResumeMode handles GET /api/v1/users/resume-mode
// @Summary Get resume mode
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.ResumeModeResponse "Current resume mode"
// @Failure 401 {object} response.ErrorResponse "Not authenticated"
// @Router /api/v1/users/resume-mode [get]
func (h *UserHandler) GetResumeMode(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	response.JSON(w, http.StatusOK, models.ResumeModeResponse{UserID: u.ID, ResumeMode: u.ResumeMode})
}

// UpdateResumeMode handles PATCH /api/v1/users/resume-mode
// @Summary Change resume mode
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param mode body models.ResumeModeUpdateRequest true "New resume mode (chat or resume)"
// @Success 200 {object} models.ResumeModeUpdateResponse "Resume mode updated"
// @Failure 400 {object} response.ErrorResponse "Invalid resume mode"
// @Failure 401 {object} response.ErrorResponse "Not authenticated"
// @Router /api/v1/users/resume-mode [patch]
func (h *UserHandler) UpdateResumeMode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.ResumeModeUpdateRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}
	if !validResumeModes[req.ResumeMode] {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid resume mode", getRequestID(ctx))
		return
	}

	if err := h.store.UpdateResumeMode(ctx, u.ID, req.ResumeMode); err != nil {
		h.logger.ErrorContext(ctx, "Failed to update resume mode", "user_id", u.ID, "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, models.ResumeModeUpdateResponse{
		Message:    "Resume mode updated",
		ResumeMode: req.ResumeMode,
	})
}
