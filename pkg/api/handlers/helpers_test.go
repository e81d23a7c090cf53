package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/vedmemory/ved/pkg/api/middleware"
	"github.com/vedmemory/ved/pkg/api/response"
	"github.com/vedmemory/ved/pkg/storage"
	memstore "github.com/vedmemory/ved/pkg/storage/memory"
)

func newTestUser(t *testing.T, store *memstore.MemoryStorage, email string) *storage.User {
	t.Helper()
	u := &storage.User{Email: email, PasswordHash: "x"}
	if err := store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return u
}

func newTestProject(t *testing.T, store *memstore.MemoryStorage, u *storage.User, name string) *storage.Project {
	t.Helper()
	p := &storage.Project{Name: name, UserID: u.ID}
	if err := store.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	return p
}

func newTestConversation(t *testing.T, store *memstore.MemoryStorage, u *storage.User, p *storage.Project, content string) *storage.Conversation {
	t.Helper()
	c := &storage.Conversation{UserID: u.ID, ProjectID: p.ID, RawContent: content}
	if err := store.SaveConversation(context.Background(), c); err != nil {
		t.Fatalf("SaveConversation() error = %v", err)
	}
	return c
}

// serve calls h as the authenticated user u (nil for anonymous) with the
// given chi URL params.
func serve(h http.HandlerFunc, method, target, body string, u *storage.User, params map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	ctx := req.Context()
	if u != nil {
		ctx = middleware.WithUser(ctx, u)
	}
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}

	rec := httptest.NewRecorder()
	h(rec, req.WithContext(ctx))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) response.ErrorDetail {
	t.Helper()
	var body response.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v (%q)", err, rec.Body.String())
	}
	return body.Error
}

type recordingHooks struct {
	mu          sync.Mutex
	invalidated []int64
	events      []string
}

func (r *recordingHooks) Invalidate(_ context.Context, projectID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated = append(r.invalidated, projectID)
	return nil
}

func (r *recordingHooks) ConversationSaved(int64, int64, int64) { r.record("conversation.saved") }
func (r *recordingHooks) SummaryUpdated(int64, int64, int64)    { r.record("summary.updated") }
func (r *recordingHooks) ProjectDeleted(int64, int64)           { r.record("project.deleted") }

func (r *recordingHooks) record(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingHooks) hooks() Hooks {
	return Hooks{Cache: r, Events: r}
}
