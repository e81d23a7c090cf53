// Package api provides HTTP API server components.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/vedmemory/ved/config"
	"github.com/vedmemory/ved/pkg/api/handlers"
	"github.com/vedmemory/ved/pkg/api/middleware"
	"github.com/vedmemory/ved/pkg/api/response"
	"github.com/vedmemory/ved/pkg/logger"

	_ "github.com/vedmemory/ved/docs/swagger" // Import generated docs
)

// Handlers holds all HTTP handlers. Nil handlers leave their routes unmounted.
type Handlers struct {
	Auth          *handlers.AuthHandler
	Users         *handlers.UserHandler
	Projects      *handlers.ProjectHandler
	Conversations *handlers.ConversationHandler
	Summaries     *handlers.SummaryHandler
	Resume        *handlers.ResumeHandler
	Memory        *handlers.MemoryHandler
	Health        *handlers.HealthHandler
	WebSocket     *handlers.WebSocketHandler

	// Authenticator resolves bearer tokens for everything under /api/v1
	// except /auth.
	Authenticator middleware.Authenticator

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder

	// MetricsHandler, when set, is served at the configured metrics path.
	MetricsHandler http.Handler

	// RateLimiter is applied when set.
	RateLimiter *middleware.RateLimiter
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, h *Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing(middleware.DefaultUntracedPaths...))
	}
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	if h.Metrics != nil {
		r.Use(middleware.Metrics(h.Metrics))
	}

	r.Use(middleware.CORS(&cfg.Server.CORS))
	r.Use(middleware.Timeout(cfg.Server.HTTP.RequestTimeout))

	if h.RateLimiter != nil {
		if h.Authenticator != nil {
			r.Use(middleware.Identify(h.Authenticator))
		}
		r.Use(middleware.RateLimit(h.RateLimiter))
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "Not found", middleware.GetRequestID(req.Context()))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, response.ErrCodeMethodNotAllowed, "Method not allowed", middleware.GetRequestID(req.Context()))
	})

	RegisterRoutes(r, h)

	if h.MetricsHandler != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, h.MetricsHandler)
	}

	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		if h.Auth != nil {
			r.Route("/auth", func(r chi.Router) {
				r.Post("/register", h.Auth.Register)
				r.Post("/login", h.Auth.Login)
			})
		}

		if h.Authenticator == nil {
			return
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(h.Authenticator))

			if h.Users != nil {
				r.Get("/users/resume-mode", h.Users.GetResumeMode)
				r.Patch("/users/resume-mode", h.Users.UpdateResumeMode)
			}

			if h.Projects != nil {
				r.Route("/projects", func(r chi.Router) {
					r.Post("/", h.Projects.CreateProject)
					r.Post("/create", h.Projects.CreateProject)
					r.Get("/", h.Projects.ListProjects)
					r.Delete("/{projectID}", h.Projects.DeleteProject)
				})
			}

			if h.Conversations != nil {
				r.Route("/conversations", func(r chi.Router) {
					r.Post("/", h.Conversations.SaveConversation)
					r.Post("/save", h.Conversations.SaveConversation)
					r.Get("/", h.Conversations.ListConversations)
				})
			}

			if h.Summaries != nil {
				r.Post("/summaries/{conversationID}", h.Summaries.UpsertSummary)
			}

			if h.Resume != nil {
				r.Get("/resume/context", h.Resume.Context)
			}

			if h.Memory != nil {
				r.Post("/memory/context", h.Memory.Context)
			}

			if h.WebSocket != nil {
				r.Handle("/ws", h.WebSocket)
			}
		})
	})

	// Health check routes (not versioned)
	if h.Health != nil {
		r.Get("/health", h.Health.Health)
		r.Get("/ready", h.Health.Ready)
		r.Get("/status", h.Health.Status)
	}

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.WrapHandler)
}
