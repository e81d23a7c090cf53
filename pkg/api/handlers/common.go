// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/vedmemory/ved/pkg/api/middleware"
	"github.com/vedmemory/ved/pkg/api/response"
	"github.com/vedmemory/ved/pkg/logger"
	"github.com/vedmemory/ved/pkg/storage"
)

// maxBodyBytes bounds request bodies. Conversations can be long transcripts.
const maxBodyBytes = 8 << 20

// Invalidator drops cached retrieval results of a project.
type Invalidator interface {
	Invalidate(ctx context.Context, projectID int64) error
}

// Publisher announces data changes to live subscribers.
type Publisher interface {
	ConversationSaved(userID, projectID, conversationID int64)
	SummaryUpdated(userID, projectID, conversationID int64)
	ProjectDeleted(userID, projectID int64)
}

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(context.Context, int64) error { return nil }

type nopPublisher struct{}

func (nopPublisher) ConversationSaved(int64, int64, int64) {}
func (nopPublisher) SummaryUpdated(int64, int64, int64)    {}
func (nopPublisher) ProjectDeleted(int64, int64)           {}

// Hooks bundles the side effects run after a write succeeds.
type Hooks struct {
	Cache  Invalidator
	Events Publisher
}

func (h Hooks) withDefaults() Hooks {
	if h.Cache == nil {
		h.Cache = nopInvalidator{}
	}
	if h.Events == nil {
		h.Events = nopPublisher{}
	}
	return h
}

// invalidate is best effort; a stale entry expires with its TTL.
func (h Hooks) invalidate(ctx context.Context, log logger.Logger, projectID int64) {
	if err := h.Cache.Invalidate(ctx, projectID); err != nil {
		log.WarnContext(ctx, "cache invalidation failed", "project_id", projectID, "error", err)
	}
}

func getRequestID(ctx context.Context) string {
	return middleware.GetRequestID(ctx)
}

// currentUser returns the authenticated user or writes a 401.
func currentUser(w http.ResponseWriter, r *http.Request) (*storage.User, bool) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, response.ErrCodeUnauthorized, "Not authenticated", getRequestID(r.Context()))
		return nil, false
	}
	return u, true
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// On failure the 400 response has been written.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) bool {
	requestID := getRequestID(r.Context())

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, response.ErrCodeBadRequest, "Request body too large", requestID)
			return false
		}
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", requestID)
		return false
	}

	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make(map[string]interface{}, len(verrs))
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
			response.ErrorWithDetails(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Validation failed", details, requestID)
			return false
		}
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), requestID)
		return false
	}
	return true
}

// newValidator reports field names by their json tag. It adds maxbytes,
// a length limit in bytes rather than runes.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Param())
		return err == nil && len(fl.Field().String()) <= n
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// parseID reads a positive integer path parameter.
func parseID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
