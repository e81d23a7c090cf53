package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vedmemory/ved/config"
	"github.com/vedmemory/ved/pkg/api/events"
	"github.com/vedmemory/ved/pkg/api/handlers"
	"github.com/vedmemory/ved/pkg/api/middleware"
	"github.com/vedmemory/ved/pkg/api/response"
	"github.com/vedmemory/ved/pkg/auth"
	"github.com/vedmemory/ved/pkg/logger"
	"github.com/vedmemory/ved/pkg/memory"
	"github.com/vedmemory/ved/pkg/storage"
	memstore "github.com/vedmemory/ved/pkg/storage/memory"
)

type testEnv struct {
	cfg    *config.Config
	store  *memstore.MemoryStorage
	issuer *auth.TokenIssuer
	h      *Handlers
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	log := logger.Nop()
	store := memstore.NewMemoryStorage()

	issuer, err := auth.NewTokenIssuer(auth.Config{SecretKey: "test-secret"})
	require.NoError(t, err)
	authn := auth.NewAuthenticator(issuer, store)

	broadcaster := events.NewBroadcaster(nil)
	t.Cleanup(broadcaster.Close)
	hooks := handlers.Hooks{Events: broadcaster}

	h := &Handlers{
		Auth:          handlers.NewAuthHandler(store, authn, issuer, 4, log),
		Users:         handlers.NewUserHandler(store, log),
		Projects:      handlers.NewProjectHandler(store, hooks, log),
		Conversations: handlers.NewConversationHandler(store, hooks, log),
		Summaries:     handlers.NewSummaryHandler(store, hooks, log),
		Resume:        handlers.NewResumeHandler(memory.NewResumer(store), log),
		Memory:        handlers.NewMemoryHandler(memory.NewEngine(store), log),
		Health:        handlers.NewHealthHandler(store, "memory"),
		Authenticator: authn,
	}
	return &testEnv{cfg: cfg, store: store, issuer: issuer, h: h}
}

func (e *testEnv) user(t *testing.T, email string) (*storage.User, string) {
	t.Helper()
	u := &storage.User{Email: email, PasswordHash: "x"}
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	token, err := e.issuer.Issue(email)
	require.NoError(t, err)
	return u, token
}

func do(router http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestNewRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(env.cfg, logger.Nop(), env.h)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantCode   string
	}{
		{"unknown path", http.MethodGet, "/nope", http.StatusNotFound, response.ErrCodeNotFound},
		{"wrong method", http.MethodPut, "/health", http.StatusMethodNotAllowed, response.ErrCodeMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(router, tt.method, tt.path, "", "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body response.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.NotEmpty(t, body.Error.RequestID)
			assert.Equal(t, body.Error.RequestID, rec.Header().Get(middleware.RequestIDHeader))
		})
	}
}

func TestNewRouter_TracingSpanNames(t *testing.T) {
	prev := otel.GetTracerProvider()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})

	env := newTestEnv(t)
	env.cfg.Tracing.Enabled = true
	router := NewRouter(env.cfg, logger.Nop(), env.h)

	tests := []struct {
		method, path string
		wantStatus   int
		wantName     string
	}{
		{http.MethodGet, "/nope/7", http.StatusNotFound, "GET /nope/{id}"},
		{http.MethodDelete, "/api/v1/projects/9", http.StatusUnauthorized, "DELETE /api/v1/projects/{projectID}"},
	}
	for _, tt := range tests {
		if got := do(router, tt.method, tt.path, "", "").Code; got != tt.wantStatus {
			t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, got, tt.wantStatus)
		}
	}

	spans := rec.Ended()
	require.Len(t, spans, len(tests))
	for i, tt := range tests {
		if got := spans[i].Name(); got != tt.wantName {
			t.Errorf("span %d name = %q, want %q", i, got, tt.wantName)
		}
	}
}

func TestRegisterRoutes_HealthEndpoints(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(env.cfg, logger.Nop(), env.h)

	for _, path := range []string{"/health", "/ready", "/status"} {
		if rec := do(router, http.MethodGet, path, "", ""); rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}

	require.NoError(t, env.store.Close())
	if rec := do(router, http.MethodGet, "/ready", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /ready after close status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestRegisterRoutes_RequireToken(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(env.cfg, logger.Nop(), env.h)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/users/resume-mode"},
		{http.MethodPatch, "/api/v1/users/resume-mode"},
		{http.MethodGet, "/api/v1/projects"},
		{http.MethodPost, "/api/v1/projects"},
		{http.MethodDelete, "/api/v1/projects/1"},
		{http.MethodPost, "/api/v1/conversations"},
		{http.MethodGet, "/api/v1/conversations"},
		{http.MethodPost, "/api/v1/summaries/1"},
		{http.MethodGet, "/api/v1/resume/context"},
		{http.MethodPost, "/api/v1/memory/context"},
	}

	for _, rt := range routes {
		if rec := do(router, rt.method, rt.path, "", ""); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token status = %d, want %d", rt.method, rt.path, rec.Code, http.StatusUnauthorized)
		}
		if rec := do(router, rt.method, rt.path, "", "garbage"); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s with bad token status = %d, want %d", rt.method, rt.path, rec.Code, http.StatusUnauthorized)
		}
	}
}

func TestRegisterRoutes_Aliases(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(env.cfg, logger.Nop(), env.h)
	_, token := env.user(t, "ada@example.com")

	rec := do(router, http.MethodPost, "/api/v1/projects/create", `{"name":"thesis"}`, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p storage.Project
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))

	rec = do(router, http.MethodPost, "/api/v1/conversations/save", `{"project_id":`+itoa(p.ID)+`,"raw_content":"hello"}`, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(router, http.MethodGet, "/api/v1/conversations", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&items))
	assert.Len(t, items, 1)
}

func TestRegisterRoutes_WithoutAuthenticator(t *testing.T) {
	env := newTestEnv(t)
	env.h.Authenticator = nil
	router := NewRouter(env.cfg, logger.Nop(), env.h)

	if rec := do(router, http.MethodGet, "/api/v1/projects", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET /api/v1/projects status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if rec := do(router, http.MethodPost, "/api/v1/auth/login", `{"email":"a@b.co","password":"x"}`, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/v1/auth/login status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRegisterRoutes_Swagger(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(env.cfg, logger.Nop(), env.h)

	rec := do(router, http.MethodGet, "/swagger/doc.json", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/v1/memory/context")
}

func TestNewRouter_MetricsHandler(t *testing.T) {
	env := newTestEnv(t)
	env.h.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("metrics"))
	})
	router := NewRouter(env.cfg, logger.Nop(), env.h)

	rec := do(router, http.MethodGet, env.cfg.Metrics.Path, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metrics", rec.Body.String())
}

func TestNewRouter_RateLimit(t *testing.T) {
	env := newTestEnv(t)
	env.h.RateLimiter = middleware.NewRateLimiter(1, 1)
	router := NewRouter(env.cfg, logger.Nop(), env.h)

	first := do(router, http.MethodGet, "/nope", "", "")
	second := do(router, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// Probes are never throttled.
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/health", "", "").Code)
	}
}

func TestNewRouter_RateLimitPerUser(t *testing.T) {
	env := newTestEnv(t)
	env.h.RateLimiter = middleware.NewRateLimiter(1, 1)
	router := NewRouter(env.cfg, logger.Nop(), env.h)
	_, ada := env.user(t, "ada@example.com")
	_, bob := env.user(t, "bob@example.com")

	// httptest requests share one remote address.
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/v1/projects", "", ada).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(router, http.MethodGet, "/api/v1/projects", "", ada).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/v1/projects", "", bob).Code)

	// Anonymous traffic from the same address has its own budget.
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/nope", "", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(router, http.MethodGet, "/nope", "", "").Code)
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
