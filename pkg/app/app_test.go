package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedmemory/ved/config"
	"github.com/vedmemory/ved/pkg/logger"
	"github.com/vedmemory/ved/pkg/memory"
	memstore "github.com/vedmemory/ved/pkg/storage/memory"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Storage.Type = "memory"
	cfg.Auth.SecretKey = "test-secret"
	cfg.Auth.BcryptCost = 4
	cfg.Metrics.Enabled = false
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...Option) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, logger.Nop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

type client struct {
	t     *testing.T
	base  string
	token string
}

func (c *client) do(method, path string, body any) (int, []byte) {
	c.t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.base+path, rdr)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, buf.Bytes()
}

func (c *client) decode(method, path string, body any, wantStatus int, out any) {
	c.t.Helper()
	status, raw := c.do(method, path, body)
	require.Equal(c.t, wantStatus, status, "%s %s: %s", method, path, raw)
	if out != nil {
		require.NoError(c.t, json.Unmarshal(raw, out))
	}
}

func register(t *testing.T, base, email string) *client {
	t.Helper()
	c := &client{t: t, base: base}
	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	c.decode(http.MethodPost, "/api/v1/auth/register", map[string]string{"email": email, "password": "pw"}, http.StatusCreated, &tok)
	require.Equal(t, "bearer", tok.TokenType)
	c.token = tok.AccessToken
	return c
}

func TestApp_EndToEnd(t *testing.T) {
	a := newTestApp(t, testConfig())
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	anon := &client{t: t, base: srv.URL}
	status, _ := anon.do(http.MethodGet, "/api/v1/projects", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	var health map[string]string
	anon.decode(http.MethodGet, "/health", nil, http.StatusOK, &health)
	assert.Equal(t, "ok", health["status"])

	alice := register(t, srv.URL, "alice@example.com")

	var login struct {
		AccessToken string `json:"access_token"`
	}
	anon.decode(http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "alice@example.com", "password": "pw"}, http.StatusOK, &login)
	assert.NotEmpty(t, login.AccessToken)
	alice.token = login.AccessToken

	var project struct {
		ID int64 `json:"id"`
	}
	alice.decode(http.MethodPost, "/api/v1/projects", map[string]string{"name": "thesis"}, http.StatusCreated, &project)
	require.NotZero(t, project.ID)

	var conv struct {
		ID int64 `json:"id"`
	}
	alice.decode(http.MethodPost, "/api/v1/conversations", map[string]any{
		"project_id":  project.ID,
		"raw_content": "We picked Redis for the cache layer",
	}, http.StatusCreated, &conv)
	alice.decode(http.MethodPost, "/api/v1/conversations/save", map[string]any{
		"project_id":  project.ID,
		"raw_content": "lunch plans",
	}, http.StatusCreated, nil)

	var result memory.Result
	alice.decode(http.MethodPost, "/api/v1/memory/context", map[string]any{
		"project_id": project.ID,
		"query":      "  REDIS ",
	}, http.StatusOK, &result)
	assert.Equal(t, "redis", result.Query)
	assert.Equal(t, 2, result.TotalScanned)
	require.Len(t, result.ContextBlocks, 1)
	assert.Equal(t, conv.ID, result.ContextBlocks[0].ConversationID)

	status, _ = alice.do(http.MethodPost, "/api/v1/memory/context", map[string]any{"project_id": project.ID, "query": "   "})
	assert.Equal(t, http.StatusBadRequest, status)

	alice.decode(http.MethodPost, fmt.Sprintf("/api/v1/summaries/%d", conv.ID), map[string]string{"content": "cache decision"}, http.StatusOK, nil)

	var resume memory.ResumeContext
	alice.decode(http.MethodGet, "/api/v1/resume/context?mode=all", nil, http.StatusOK, &resume)
	require.NotNil(t, resume.Summary)
	assert.Equal(t, "cache decision", *resume.Summary)

	// Another user cannot see alice's project.
	bob := register(t, srv.URL, "bob@example.com")
	status, _ = bob.do(http.MethodPost, "/api/v1/memory/context", map[string]any{"project_id": project.ID, "query": "redis"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = alice.do(http.MethodDelete, fmt.Sprintf("/api/v1/projects/%d", project.ID), nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = alice.do(http.MethodPost, "/api/v1/memory/context", map[string]any{"project_id": project.ID, "query": "redis"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestApp_CachedRetrievalSeesNewConversations(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.Type = "memory"
	cfg.Cache.TTL = time.Minute

	a := newTestApp(t, cfg)
	_, ok := a.Retriever().(*memory.CachedRetriever)
	require.True(t, ok, "Retriever() should be cached when cache.enabled is set")

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	alice := register(t, srv.URL, "alice@example.com")
	var project struct {
		ID int64 `json:"id"`
	}
	alice.decode(http.MethodPost, "/api/v1/projects", map[string]string{"name": "p"}, http.StatusCreated, &project)

	query := map[string]any{"project_id": project.ID, "query": "postgres"}
	var before memory.Result
	alice.decode(http.MethodPost, "/api/v1/memory/context", query, http.StatusOK, &before)
	assert.Equal(t, 0, before.TotalScanned)

	alice.decode(http.MethodPost, "/api/v1/conversations", map[string]any{
		"project_id":  project.ID,
		"raw_content": "moving to postgres",
	}, http.StatusCreated, nil)

	var after memory.Result
	alice.decode(http.MethodPost, "/api/v1/memory/context", query, http.StatusOK, &after)
	assert.Equal(t, 1, after.TotalScanned)
	assert.Len(t, after.ContextBlocks, 1)
}

type stubSummarizer struct{}

func (stubSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	return "summary of " + strings.Fields(text)[0], nil
}

func TestApp_SummarizerWritesSummaries(t *testing.T) {
	cfg := testConfig()
	cfg.Summarizer.Enabled = true

	a := newTestApp(t, cfg, WithSummarizerClient(stubSummarizer{}))
	require.NotNil(t, a.Summarizer())

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	alice := register(t, srv.URL, "alice@example.com")
	var project struct {
		ID int64 `json:"id"`
	}
	alice.decode(http.MethodPost, "/api/v1/projects", map[string]string{"name": "p"}, http.StatusCreated, &project)
	alice.decode(http.MethodPost, "/api/v1/conversations", map[string]any{
		"project_id":  project.ID,
		"raw_content": "kafka retention settings",
	}, http.StatusCreated, nil)

	stats, err := a.Summarizer().RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)

	var resume memory.ResumeContext
	alice.decode(http.MethodGet, "/api/v1/resume/context", nil, http.StatusOK, &resume)
	require.NotNil(t, resume.Summary)
	assert.Equal(t, "summary of kafka", *resume.Summary)
}

func TestApp_SummarizerRequiresClient(t *testing.T) {
	cfg := testConfig()
	cfg.Summarizer.Enabled = true
	cfg.Summarizer.APIKey = ""

	_, err := New(context.Background(), cfg, logger.Nop())
	assert.Error(t, err)
}

func TestApp_MetricsRoute(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = true

	a := newTestApp(t, cfg)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, cfg.Metrics.Path, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = 0
	cfg.Server.HTTP.ShutdownTimeout = 5 * time.Second

	a := newTestApp(t, cfg)
	assert.Equal(t, StateIdle, a.State())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return a.State() == StateRunning }, 2*time.Second, 10*time.Millisecond)

	var already *AlreadyRunningError
	assert.True(t, errors.As(a.Run(context.Background()), &already))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	assert.Equal(t, StateStopped, a.State())
	assert.Error(t, a.Store().Ping(context.Background()), "storage should be closed after Run returns")
}

func TestApp_WithStorage(t *testing.T) {
	store := memstore.NewMemoryStorage()
	a := newTestApp(t, testConfig(), WithStorage(store))
	assert.Same(t, store, a.Store())

	require.NoError(t, a.Close(context.Background()))
	assert.Error(t, store.Ping(context.Background()))
	assert.Equal(t, StateStopped, a.State())
}

func TestApp_ApplyHotReload(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimit.Enabled = true
	cfg.Server.RateLimit.RequestsPerSecond = 1
	cfg.Server.RateLimit.Burst = 1
	a := newTestApp(t, cfg)

	next := testConfig()
	next.Log.Level = "debug"
	next.Server.RateLimit.Enabled = true
	next.Server.RateLimit.RequestsPerSecond = 100
	next.Server.RateLimit.Burst = 50
	a.ApplyHotReload(next)

	assert.Equal(t, logger.DebugLevel, a.log.GetLevel())
	for i := 0; i < 10; i++ {
		ok, _ := a.rateLimiter.Allow("client")
		require.True(t, ok, "request %d should be allowed after the limit was raised", i)
	}
	assert.Equal(t, "debug", a.cfg.Log.Level)
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateRunning, "running"},
		{StateStopped, "stopped"},
		{StateError, "error"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestOpenStorage(t *testing.T) {
	ctx := context.Background()

	store, err := OpenStorage(ctx, config.StorageConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "ved.db")}}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Close())

	_, err = OpenStorage(ctx, config.StorageConfig{Type: "mongo"}, logger.Nop())
	var unsupported *UnsupportedBackendError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "storage", unsupported.Kind)
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()

	err := Migrate(ctx, config.StorageConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "ved.db")}}, logger.Nop())
	assert.NoError(t, err)

	err = Migrate(ctx, config.StorageConfig{Type: "memory"}, logger.Nop())
	var unsupported *UnsupportedBackendError
	assert.True(t, errors.As(err, &unsupported))
}

func TestOpenCache(t *testing.T) {
	ctx := context.Background()

	c, err := OpenCache(ctx, config.CacheConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = OpenCache(ctx, config.CacheConfig{Enabled: true, Type: "memory", Size: 8, TTL: time.Minute})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.NoError(t, c.Close())

	_, err = OpenCache(ctx, config.CacheConfig{Enabled: true, Type: "memcached"})
	assert.Error(t, err)
}
