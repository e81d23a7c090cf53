package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/vedmemory/ved/pkg/api/models"
	"github.com/vedmemory/ved/pkg/api/response"
	"github.com/vedmemory/ved/pkg/logger"
	"github.com/vedmemory/ved/pkg/memory"
)

// MemoryHandler serves ranked memory context.
type MemoryHandler struct {
	retriever memory.Retriever
	logger    logger.Logger
	validator *validator.Validate
}

// NewMemoryHandler creates a new memory handler.
func NewMemoryHandler(retriever memory.Retriever, log logger.Logger) *MemoryHandler {
	return &MemoryHandler{
		retriever: retriever,
		logger:    logger.Component(log, "memory"),
		validator: newValidator(),
	}
}

// Context handles POST /api/v1/memory/context
// @Summary Retrieve memory context
// @Description Rank the most recent conversations of a project against a query
// @Tags memory
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.MemoryContextRequest true "Project and query"
// @Success 200 {object} memory.Result "Ranked context blocks"
// @Failure 400 {object} response.ErrorResponse "Query cannot be empty"
// @Failure 404 {object} response.ErrorResponse "Project not found"
// @Router /api/v1/memory/context [post]
func (h *MemoryHandler) Context(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.MemoryContextRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	result, err := h.retriever.Retrieve(ctx, req.ProjectID, req.Query, u.ID)
	if err != nil {
		if !memory.IsClientError(err) {
			h.logger.ErrorContext(ctx, "Retrieval failed", "project_id", req.ProjectID, "error", err)
		}
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, result)
}
