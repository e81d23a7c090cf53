package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedmemory/ved/pkg/api/models"
	"github.com/vedmemory/ved/pkg/api/response"
	"github.com/vedmemory/ved/pkg/logger"
	"github.com/vedmemory/ved/pkg/storage"
	memstore "github.com/vedmemory/ved/pkg/storage/memory"
)

func TestConversationHandler_Save(t *testing.T) {
	store := memstore.NewMemoryStorage()
	ada := newTestUser(t, store, "ada@example.com")
	p := newTestProject(t, store, ada, "thesis")

	rec := &recordingHooks{}
	h := NewConversationHandler(store, rec.hooks(), logger.Nop())

	body := fmt.Sprintf(`{"project_id":%d,"raw_content":"we picked redis"}`, p.ID)
	w := serve(h.SaveConversation, http.MethodPost, "/api/v1/conversations", body, ada, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var got storage.Conversation
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.NotZero(t, got.ID)
	assert.Equal(t, p.ID, got.ProjectID)
	assert.Equal(t, ada.ID, got.UserID)
	assert.Equal(t, "we picked redis", got.RawContent)
	assert.False(t, got.CreatedAt.IsZero())

	assert.Equal(t, []int64{p.ID}, rec.invalidated)
	assert.Equal(t, []string{"conversation.saved"}, rec.events)
}

func TestConversationHandler_SaveErrors(t *testing.T) {
	store := memstore.NewMemoryStorage()
	ada := newTestUser(t, store, "ada@example.com")
	bob := newTestUser(t, store, "bob@example.com")
	p := newTestProject(t, store, ada, "thesis")

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"someone else's project", fmt.Sprintf(`{"project_id":%d,"raw_content":"x"}`, p.ID), http.StatusNotFound, response.ErrCodeNotFound},
		{"missing project", `{"project_id":999,"raw_content":"x"}`, http.StatusNotFound, response.ErrCodeNotFound},
		{"no project id", `{"raw_content":"x"}`, http.StatusBadRequest, response.ErrCodeValidationFailed},
		{"empty content", fmt.Sprintf(`{"project_id":%d,"raw_content":""}`, p.ID), http.StatusBadRequest, response.ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingHooks{}
			h := NewConversationHandler(store, rec.hooks(), logger.Nop())

			w := serve(h.SaveConversation, http.MethodPost, "/api/v1/conversations", tt.body, bob, nil)
			require.Equal(t, tt.wantStatus, w.Code)
			detail := decodeError(t, w)
			assert.Equal(t, tt.wantCode, detail.Code)
			if tt.wantStatus == http.StatusNotFound {
				assert.Equal(t, response.MsgProjectNotFound, detail.Message)
			}
			assert.Empty(t, rec.events)
		})
	}
}

func TestConversationHandler_List(t *testing.T) {
	store := memstore.NewMemoryStorage()
	ada := newTestUser(t, store, "ada@example.com")
	p := newTestProject(t, store, ada, "thesis")
	first := newTestConversation(t, store, ada, p, "first")
	second := newTestConversation(t, store, ada, p, "second")

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err := store.UpsertSummary(context.Background(), first.ID, "short", at)
	require.NoError(t, err)

	h := NewConversationHandler(store, Hooks{}, logger.Nop())
	w := serve(h.ListConversations, http.MethodGet, "/api/v1/conversations", "", ada, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var items []models.ConversationListItem
	require.NoError(t, json.NewDecoder(w.Body).Decode(&items))
	require.Len(t, items, 2)

	byID := map[int64]models.ConversationListItem{}
	for _, it := range items {
		byID[it.ID] = it
	}
	assert.True(t, byID[first.ID].HasSummary)
	require.NotNil(t, byID[first.ID].SummaryUpdatedAt)
	assert.True(t, at.Equal(*byID[first.ID].SummaryUpdatedAt))
	assert.False(t, byID[second.ID].HasSummary)
	assert.Nil(t, byID[second.ID].SummaryUpdatedAt)
}
