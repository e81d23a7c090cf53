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

// ProjectStore is the storage subset used by ProjectHandler.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *storage.Project) error
	ListProjects(ctx context.Context, userID int64) ([]*storage.Project, error)
	DeleteProject(ctx context.Context, projectID, userID int64) error
}

// ProjectHandler handles project endpoints.
type ProjectHandler struct {
	store     ProjectStore
	hooks     Hooks
	logger    logger.Logger
	validator *validator.Validate
}

// NewProjectHandler creates a new project handler.
func NewProjectHandler(store ProjectStore, hooks Hooks, log logger.Logger) *ProjectHandler {
	return &ProjectHandler{
		store:     store,
		hooks:     hooks.withDefaults(),
		logger:    logger.Component(log, "projects"),
		validator: newValidator(),
	}
}

// CreateProject handles POST /api/v1/projects
// @Summary Create a project
// @Tags projects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param project body models.ProjectCreateRequest true "Project name"
// @Success 201 {object} storage.Project "Project created"
// @Failure 400 {object} response.ErrorResponse "Validation error"
// @Failure 401 {object} response.ErrorResponse "Not authenticated"
// @Router /api/v1/projects [post]
func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.ProjectCreateRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	p := &storage.Project{Name: req.Name, UserID: u.ID}
	if err := h.store.CreateProject(ctx, p); err != nil {
		h.logger.ErrorContext(ctx, "Failed to create project", "user_id", u.ID, "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusCreated, p)
}

// ListProjects handles GET /api/v1/projects
// @Summary List projects
// @Tags projects
// @Produce json
// @Security BearerAuth
// @Success 200 {array} storage.Project "Projects, newest first"
// @Failure 401 {object} response.ErrorResponse "Not authenticated"
// @Router /api/v1/projects [get]
func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	projects, err := h.store.ListProjects(ctx, u.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to list projects", "user_id", u.ID, "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}
	if projects == nil {
		projects = []*storage.Project{}
	}
	response.JSON(w, http.StatusOK, projects)
}

// DeleteProject handles DELETE /api/v1/projects/{projectID}
// @Summary Delete a project
// @Description Delete a project together with its conversations and summaries
// @Tags projects
// @Security BearerAuth
// @Param projectID path int true "Project ID"
// @Success 204 "Deleted"
// @Failure 400 {object} response.ErrorResponse "Invalid project ID"
// @Failure 404 {object} response.ErrorResponse "Project not found"
// @Router /api/v1/projects/{projectID} [delete]
func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	projectID, ok := parseID(r, "projectID")
	if !ok {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid project ID", getRequestID(ctx))
		return
	}

	if err := h.store.DeleteProject(ctx, projectID, u.ID); err != nil {
		if !storage.IsNotFound(err) {
			h.logger.ErrorContext(ctx, "Failed to delete project", "project_id", projectID, "error", err)
		}
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	h.hooks.invalidate(ctx, h.logger, projectID)
	h.hooks.Events.ProjectDeleted(u.ID, projectID)
	h.logger.InfoContext(ctx, "Project deleted", "project_id", projectID, "user_id", u.ID)
	w.WriteHeader(http.StatusNoContent)
}
