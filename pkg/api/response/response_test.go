package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vedmemory/ved/pkg/auth"
	"github.com/vedmemory/ved/pkg/memory"
	"github.com/vedmemory/ved/pkg/storage"
)

func TestJSON(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		data       any
		wantStatus int
		wantBody   string
	}{
		{"object", http.StatusOK, map[string]string{"query": "redis"}, http.StatusOK, `{"query":"redis"}` + "\n"},
		{"created", http.StatusCreated, struct {
			ID int64 `json:"id"`
		}{7}, http.StatusCreated, `{"id":7}` + "\n"},
		{"empty list", http.StatusOK, []int{}, http.StatusOK, "[]\n"},
		{"no body", http.StatusNoContent, nil, http.StatusNoContent, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			JSON(w, tt.status, tt.data)

			if w.Code != tt.wantStatus {
				t.Errorf("JSON() status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Body.String(); got != tt.wantBody {
				t.Errorf("JSON() body = %q, want %q", got, tt.wantBody)
			}
			if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
				t.Errorf("Content-Type = %q", got)
			}
			if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
				t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
			}
		})
	}
}

func TestJSON_UnencodableValue(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, map[string]any{"bad": make(chan int)})

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("JSON() status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body is not an error envelope: %v", err)
	}
	if resp.Error.Code != ErrCodeInternalServer {
		t.Errorf("code = %q, want %q", resp.Error.Code, ErrCodeInternalServer)
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusNotFound, ErrCodeNotFound, MsgProjectNotFound, "req-9")

	if w.Code != http.StatusNotFound {
		t.Fatalf("Error() status = %d, want %d", w.Code, http.StatusNotFound)
	}
	want := `{"error":{"code":"NOT_FOUND","message":"Project not found","request_id":"req-9"}}` + "\n"
	if got := w.Body.String(); got != want {
		t.Errorf("Error() body = %s, want %s", got, want)
	}
}

func TestErrorWithDetails(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorWithDetails(w, http.StatusBadRequest, ErrCodeValidationFailed, "Validation failed",
		map[string]interface{}{"email": "must be a valid email"}, "req-3")

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error.Details["email"] != "must be a valid email" {
		t.Errorf("details = %v", resp.Error.Details)
	}
	if resp.Error.RequestID != "req-3" {
		t.Errorf("request_id = %q, want req-3", resp.Error.RequestID)
	}
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{"empty query", memory.ErrEmptyQuery, http.StatusBadRequest, ErrCodeBadRequest, MsgEmptyQuery},
		{"invalid mode", memory.ErrInvalidMode, http.StatusBadRequest, ErrCodeBadRequest, MsgInvalidMode},
		{"project not found", fmt.Errorf("wrapped: %w", memory.ErrProjectNotFound), http.StatusNotFound, ErrCodeNotFound, MsgProjectNotFound},
		{"no conversations", memory.ErrNoConversations, http.StatusNotFound, ErrCodeNotFound, MsgNoConversations},
		{"storage not found", storage.NewNotFound("conversation", 7), http.StatusNotFound, ErrCodeNotFound, "Conversation not found"},
		{"duplicate", &storage.DuplicateKeyError{EntityType: "user", Key: "a@b.c"}, http.StatusConflict, ErrCodeConflict, "User already exists"},
		{"invalid token", auth.ErrInvalidToken, http.StatusUnauthorized, ErrCodeUnauthorized, "Could not validate credentials"},
		{"unavailable", &storage.StorageUnavailableError{Cause: errors.New("dial tcp")}, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Storage unavailable"},
		{"internal", errors.New("pq: relation does not exist"), http.StatusInternalServerError, ErrCodeInternalServer, MsgInternalServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleError(w, tt.err, "req-1")

			if w.Code != tt.wantStatus {
				t.Errorf("HandleError() status = %v, want %v", w.Code, tt.wantStatus)
			}

			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("HandleError() code = %v, want %v", resp.Error.Code, tt.wantCode)
			}
			if resp.Error.Message != tt.wantMessage {
				t.Errorf("HandleError() message = %q, want %q", resp.Error.Message, tt.wantMessage)
			}
			if resp.Error.RequestID != "req-1" {
				t.Errorf("HandleError() requestID = %v, want req-1", resp.Error.RequestID)
			}
		})
	}
}

func TestErrorCodeFromStatus(t *testing.T) {
	for status, want := range map[int]string{
		http.StatusBadRequest:          ErrCodeBadRequest,
		http.StatusUnauthorized:        ErrCodeUnauthorized,
		http.StatusForbidden:           ErrCodeForbidden,
		http.StatusNotFound:            ErrCodeNotFound,
		http.StatusMethodNotAllowed:    ErrCodeMethodNotAllowed,
		http.StatusConflict:            ErrCodeConflict,
		http.StatusTooManyRequests:     ErrCodeRateLimited,
		http.StatusServiceUnavailable:  ErrCodeServiceUnavailable,
		http.StatusGatewayTimeout:      ErrCodeGatewayTimeout,
		http.StatusInternalServerError: ErrCodeInternalServer,
		999:                           ErrCodeInternalServer,
	} {
		if got := ErrorCodeFromStatus(status); got != want {
			t.Errorf("ErrorCodeFromStatus(%d) = %v, want %v", status, got, want)
		}
	}
}
