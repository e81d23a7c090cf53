package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observation struct {
	method, route, status string
}

type fakeRecorder struct {
	mu       sync.Mutex
	obs      []observation
	active   int
	peak     int
	ctxValid bool
}

type ctxProbe struct{}

func (f *fakeRecorder) RecordHTTPRequestContext(ctx context.Context, method, route, status string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs = append(f.obs, observation{method, route, status})
	f.ctxValid = ctx.Value(ctxProbe{}) != nil
}

func (f *fakeRecorder) IncActiveConnections() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
}

func (f *fakeRecorder) DecActiveConnections() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active--
}

func TestMetrics_RecordsRoutePattern(t *testing.T) {
	rec := &fakeRecorder{}
	r := chi.NewRouter()
	r.Use(Metrics(rec))
	r.Get("/api/v1/projects/{projectID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects/77", nil)
	req = req.WithContext(context.WithValue(req.Context(), ctxProbe{}, true))
	r.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, rec.obs, 1)
	assert.Equal(t, observation{"GET", "/api/v1/projects/{projectID}", "404"}, rec.obs[0])
	assert.True(t, rec.ctxValid, "recorder should receive the request context")
	assert.Equal(t, 0, rec.active)
	assert.Equal(t, 1, rec.peak)
}

func TestMetrics_UnmatchedPathIsNormalized(t *testing.T) {
	rec := &fakeRecorder{}
	h := Metrics(rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/summaries/42", nil))

	require.Len(t, rec.obs, 1)
	assert.Equal(t, observation{"POST", "/api/v1/summaries/{id}", "200"}, rec.obs[0])
}

func TestMetrics_SkipsMetricsEndpoint(t *testing.T) {
	rec := &fakeRecorder{}
	Metrics(rec)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Empty(t, rec.obs)
	assert.Equal(t, 0, rec.peak)
}

func TestMetrics_PanicCountsAs500(t *testing.T) {
	rec := &fakeRecorder{}
	h := Metrics(rec)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	assert.Panics(t, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	})
	require.Len(t, rec.obs, 1)
	assert.Equal(t, "500", rec.obs[0].status)
	assert.Equal(t, 0, rec.active)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/api/v1/projects", "/api/v1/projects"},
		{"/api/v1/projects/12", "/api/v1/projects/{id}"},
		{"/api/v1/conversations/-3", "/api/v1/conversations/{id}"},
		{"/x/550e8400-e29b-41d4-a716-446655440000/y", "/x/{id}/y"},
		{"/", "/"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.in); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatusWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := wrapWriter(rec)
	if sw.Status() != http.StatusOK {
		t.Errorf("Status() before write = %d, want 200", sw.Status())
	}

	sw.WriteHeader(http.StatusCreated)
	sw.WriteHeader(http.StatusTeapot)
	_, _ = sw.Write([]byte("hello"))

	if sw.Status() != http.StatusCreated {
		t.Errorf("Status() = %d, want %d", sw.Status(), http.StatusCreated)
	}
	if sw.size != 5 {
		t.Errorf("size = %d, want 5", sw.size)
	}
	if wrapWriter(sw) != sw {
		t.Error("wrapWriter() should reuse an existing statusWriter")
	}
	if sw.Unwrap() != rec {
		t.Error("Unwrap() did not return the recorder")
	}
}
