package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/vedmemory/ved/pkg/api/response"
	"github.com/vedmemory/ved/pkg/logger"
)

// Recovery turns a handler panic into a 500 envelope. http.ErrAbortHandler
// is re-raised so net/http can drop the connection.
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	log = logger.Component(log, "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				switch p {
				case nil:
					return
				case http.ErrAbortHandler:
					panic(p)
				}

				id := recoveryRequestID(r)
				log.ErrorContext(r.Context(), "handler panic",
					"panic", p,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", id,
					"stack", string(debug.Stack()),
				)
				response.Error(w, http.StatusInternalServerError,
					response.ErrCodeInternalServer, response.MsgInternalServer, id)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// recoveryRequestID prefers the id assigned by RequestID, then the raw
// header, so the envelope matches what the client sent or received.
func recoveryRequestID(r *http.Request) string {
	if id := GetRequestID(r.Context()); id != "" {
		return id
	}
	if id := r.Header.Get(RequestIDHeader); id != "" {
		return id
	}
	return "unknown"
}
