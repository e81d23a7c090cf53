package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/vedmemory/ved/pkg/api/models"
	"github.com/vedmemory/ved/pkg/logger"
	memstore "github.com/vedmemory/ved/pkg/storage/memory"
)

func TestUserHandler_GetResumeMode(t *testing.T) {
	store := memstore.NewMemoryStorage()
	u := newTestUser(t, store, "ada@example.com")
	h := NewUserHandler(store, logger.Nop())

	w := serve(h.GetResumeMode, http.MethodGet, "/api/v1/users/resume-mode", "", u, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GetResumeMode() status = %v, want %v", w.Code, http.StatusOK)
	}
	var got models.ResumeModeResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.UserID != u.ID || got.ResumeMode != "summary" {
		t.Errorf("GetResumeMode() = %+v, want user %d mode summary", got, u.ID)
	}
}

func TestUserHandler_GetResumeModeUnauthenticated(t *testing.T) {
	h := NewUserHandler(memstore.NewMemoryStorage(), logger.Nop())

	w := serve(h.GetResumeMode, http.MethodGet, "/api/v1/users/resume-mode", "", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("GetResumeMode() status = %v, want %v", w.Code, http.StatusUnauthorized)
	}
}

func TestUserHandler_UpdateResumeMode(t *testing.T) {
	tests := []struct {
		name       string
		mode       string
		wantStatus int
	}{
		{"chat", "chat", http.StatusOK},
		{"resume", "resume", http.StatusOK},
		{"summary is not selectable", "summary", http.StatusBadRequest},
		{"empty", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.NewMemoryStorage()
			u := newTestUser(t, store, "ada@example.com")
			h := NewUserHandler(store, logger.Nop())

			body := `{"resume_mode":"` + tt.mode + `"}`
			w := serve(h.UpdateResumeMode, http.MethodPatch, "/api/v1/users/resume-mode", body, u, nil)
			if w.Code != tt.wantStatus {
				t.Fatalf("UpdateResumeMode() status = %v, want %v", w.Code, tt.wantStatus)
			}

			stored, err := store.GetUser(context.Background(), u.ID)
			if err != nil {
				t.Fatalf("GetUser() error = %v", err)
			}
			if tt.wantStatus != http.StatusOK {
				if msg := decodeError(t, w).Message; msg != "Invalid resume mode" {
					t.Errorf("message = %q, want %q", msg, "Invalid resume mode")
				}
				if stored.ResumeMode != "summary" {
					t.Errorf("stored mode = %q, want unchanged", stored.ResumeMode)
				}
				return
			}

			var got models.ResumeModeUpdateResponse
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Message != "Resume mode updated" || got.ResumeMode != tt.mode {
				t.Errorf("UpdateResumeMode() = %+v", got)
			}
			if stored.ResumeMode != tt.mode {
				t.Errorf("stored mode = %q, want %q", stored.ResumeMode, tt.mode)
			}
		})
	}
}
