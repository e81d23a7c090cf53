// Package middleware holds the HTTP middleware chain of the ved API.
package middleware

import (
	"net/http"
	"time"

	"github.com/vedmemory/ved/pkg/logger"
)

// Logger logs one line per request once the handler returns. Server errors
// log at error, client errors at warn and probe endpoints at debug.
func Logger(log logger.Logger) func(http.Handler) http.Handler {
	log = logger.Component(log, "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := wrapWriter(w)
			next.ServeHTTP(sw, r)

			ctx := r.Context()
			status := sw.Status()
			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"size", sw.size,
				"remote_addr", r.RemoteAddr,
				"request_id", GetRequestID(ctx),
			}
			if info := infoFrom(ctx); info != nil && info.userID != 0 {
				args = append(args, "user_id", info.userID)
			}

			switch {
			case status >= http.StatusInternalServerError:
				log.ErrorContext(ctx, "HTTP request", args...)
			case status >= http.StatusBadRequest:
				log.WarnContext(ctx, "HTTP request", args...)
			case isProbe(r.URL.Path):
				log.DebugContext(ctx, "HTTP request", args...)
			default:
				log.InfoContext(ctx, "HTTP request", args...)
			}
		})
	}
}

func isProbe(path string) bool {
	switch path {
	case "/health", "/ready", "/status", "/metrics":
		return true
	}
	return false
}
