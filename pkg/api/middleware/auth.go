package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/vedmemory/ved/pkg/api/response"
	"github.com/vedmemory/ved/pkg/storage"
)

// Authenticator resolves a bearer token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*storage.User, error)
}

// Auth returns a middleware that requires a valid bearer token and stores
// the resolved user in the request context. Websocket upgrades may pass the
// token as the access_token query parameter since browsers cannot set
// headers on them.
func Auth(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := UserFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				unauthorized(w, r, "Not authenticated")
				return
			}

			u, err := a.Authenticate(r.Context(), token)
			if err != nil {
				if response.HTTPStatusFromError(err) >= http.StatusInternalServerError {
					response.HandleError(w, err, GetRequestID(r.Context()))
					return
				}
				unauthorized(w, r, "Could not validate credentials")
				return
			}

			if info := infoFrom(r.Context()); info != nil {
				info.userID = u.ID
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// Identify resolves a bearer token when one is present and valid, and
// otherwise lets the request through anonymously. It runs ahead of
// RateLimit so that budgets follow users instead of shared addresses; Auth
// downstream reuses the resolved user.
func Identify(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			u, err := a.Authenticate(r.Context(), token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if info := infoFrom(r.Context()); info != nil {
				info.userID = u.ID
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u *storage.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (*storage.User, bool) {
	u, ok := ctx.Value(userKey).(*storage.User)
	return u, ok && u != nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	if isWebSocketUpgrade(r) {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	response.Error(w, http.StatusUnauthorized, response.ErrCodeUnauthorized, msg, GetRequestID(r.Context()))
}
