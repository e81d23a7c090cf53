package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/vedmemory/ved/pkg/api/models"
	"github.com/vedmemory/ved/pkg/api/response"
	"github.com/vedmemory/ved/pkg/version"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store       Pinger
	storageType string
	started     time.Time
	pingTimeout time.Duration
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(store Pinger, storageType string) *HealthHandler {
	return &HealthHandler{
		store:       store,
		storageType: storageType,
		started:     time.Now(),
		pingTimeout: 2 * time.Second,
	}
}

// Health handles the /health endpoint (liveness probe).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Ready handles the /ready endpoint (readiness probe).
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.pingTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		response.JSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"ready": false,
			"error": err.Error(),
		})
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{
		"ready": true,
	})
}

// Status handles the /status endpoint (detailed status).
// @Summary Service status
// @Tags health
// @Produce json
// @Success 200 {object} models.StatusResponse "Status"
// @Router /status [get]
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	commit := version.Commit()
	if commit == "unknown" {
		commit = ""
	}
	response.JSON(w, http.StatusOK, models.StatusResponse{
		Status:    "ok",
		Version:   version.Version,
		Commit:    commit,
		Storage:   h.storageType,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		GoVersion: version.GoVersion,
	})
}
