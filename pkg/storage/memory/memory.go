// Package memory provides an in-memory implementation of the storage interface.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vedmemory/ved/pkg/storage"
)

// MemoryStorage implements the Storage interface using in-memory maps.
// Values are copied on the way in and out so callers never share state
// with the store.
type MemoryStorage struct {
	mu            sync.RWMutex
	nextID        map[string]int64
	users         map[int64]*storage.User
	emails        map[string]int64
	projects      map[int64]*storage.Project
	conversations map[int64]*storage.Conversation
	summaries     map[int64]*storage.Summary // conversationID -> summary
	closed        bool
}

// NewMemoryStorage creates a new in-memory storage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		nextID:        make(map[string]int64),
		users:         make(map[int64]*storage.User),
		emails:        make(map[string]int64),
		projects:      make(map[int64]*storage.Project),
		conversations: make(map[int64]*storage.Conversation),
		summaries:     make(map[int64]*storage.Summary),
	}
}

func (m *MemoryStorage) allocID(entity string) int64 {
	m.nextID[entity]++
	return m.nextID[entity]
}

// CreateUser stores a new user, assigning its ID.
func (m *MemoryStorage) CreateUser(ctx context.Context, u *storage.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.emails[u.Email]; exists {
		return &storage.DuplicateKeyError{EntityType: "user", Key: u.Email}
	}

	u.ID = m.allocID("user")
	u.CreatedAt = storage.Timestamp(u.CreatedAt)
	if u.ResumeMode == "" {
		u.ResumeMode = storage.DefaultResumeMode
	}

	copied := *u
	m.users[u.ID] = &copied
	m.emails[u.Email] = u.ID
	return nil
}

// GetUser retrieves a user by ID.
func (m *MemoryStorage) GetUser(ctx context.Context, id int64) (*storage.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, storage.NewNotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

// GetUserByEmail retrieves a user by email.
func (m *MemoryStorage) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emails[email]
	if !ok {
		return nil, &storage.NotFoundError{EntityType: "user", ID: email}
	}
	copied := *m.users[id]
	return &copied, nil
}

// UpdateResumeMode sets a user's preferred resume mode.
func (m *MemoryStorage) UpdateResumeMode(ctx context.Context, userID int64, mode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return storage.NewNotFound("user", userID)
	}
	u.ResumeMode = mode
	return nil
}

// CreateProject stores a new project, assigning its ID.
func (m *MemoryStorage) CreateProject(ctx context.Context, p *storage.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p.ID = m.allocID("project")
	p.CreatedAt = storage.Timestamp(p.CreatedAt)

	copied := *p
	m.projects[p.ID] = &copied
	return nil
}

// ownedProject must be called with the lock held.
func (m *MemoryStorage) ownedProject(projectID, userID int64) (*storage.Project, error) {
	p, ok := m.projects[projectID]
	if !ok || p.UserID != userID {
		return nil, storage.NewNotFound("project", projectID)
	}
	return p, nil
}

// GetProject retrieves a project owned by userID.
func (m *MemoryStorage) GetProject(ctx context.Context, projectID, userID int64) (*storage.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, err := m.ownedProject(projectID, userID)
	if err != nil {
		return nil, err
	}
	copied := *p
	return &copied, nil
}

// ListProjects lists a user's projects, newest first.
func (m *MemoryStorage) ListProjects(ctx context.Context, userID int64) ([]*storage.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*storage.Project
	for _, p := range m.projects {
		if p.UserID == userID {
			copied := *p
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return newerFirst(result[i].CreatedAt, result[i].ID, result[j].CreatedAt, result[j].ID)
	})
	return result, nil
}

// DeleteProject removes a project with its conversations and summaries.
func (m *MemoryStorage) DeleteProject(ctx context.Context, projectID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.ownedProject(projectID, userID); err != nil {
		return err
	}

	for id, c := range m.conversations {
		if c.ProjectID == projectID {
			delete(m.summaries, id)
			delete(m.conversations, id)
		}
	}
	delete(m.projects, projectID)
	return nil
}

// SaveConversation stores a new conversation in a project owned by c.UserID.
func (m *MemoryStorage) SaveConversation(ctx context.Context, c *storage.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.ownedProject(c.ProjectID, c.UserID); err != nil {
		return err
	}

	c.ID = m.allocID("conversation")
	c.CreatedAt = storage.Timestamp(c.CreatedAt)

	copied := *c
	m.conversations[c.ID] = &copied
	return nil
}

// GetConversation retrieves a conversation owned by userID.
func (m *MemoryStorage) GetConversation(ctx context.Context, conversationID, userID int64) (*storage.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[conversationID]
	if !ok || c.UserID != userID {
		return nil, storage.NewNotFound("conversation", conversationID)
	}
	copied := *c
	return &copied, nil
}

// records must be called with the lock held. It returns copies of the
// conversations matching keep, joined with summaries, newest first.
func (m *MemoryStorage) records(keep func(*storage.Conversation) bool) []*storage.ConversationRecord {
	var result []*storage.ConversationRecord
	for id, c := range m.conversations {
		if !keep(c) {
			continue
		}
		rec := &storage.ConversationRecord{Conversation: *c}
		if s, ok := m.summaries[id]; ok {
			sc := *s
			rec.Summary = &sc
		}
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool {
		return newerFirst(result[i].CreatedAt, result[i].ID, result[j].CreatedAt, result[j].ID)
	})
	return result
}

// ListConversations lists a user's conversations with summary status.
func (m *MemoryStorage) ListConversations(ctx context.Context, userID int64) ([]*storage.ConversationOverview, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.records(func(c *storage.Conversation) bool { return c.UserID == userID })
	result := make([]*storage.ConversationOverview, 0, len(recs))
	for _, rec := range recs {
		result = append(result, rec.Overview())
	}
	return result, nil
}

// RecentConversations returns up to limit conversations of the (project,
// user) pair, newest first, each with its summary.
func (m *MemoryStorage) RecentConversations(ctx context.Context, projectID, userID int64, limit int) ([]*storage.ConversationRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.records(func(c *storage.Conversation) bool {
		return c.ProjectID == projectID && c.UserID == userID
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// LatestConversation returns the user's newest conversation.
func (m *MemoryStorage) LatestConversation(ctx context.Context, userID int64) (*storage.ConversationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.records(func(c *storage.Conversation) bool { return c.UserID == userID })
	if len(recs) == 0 {
		return nil, &storage.NotFoundError{EntityType: "conversation", ID: "latest"}
	}
	return recs[0], nil
}

// ListUnsummarized returns up to limit conversations without a summary, oldest first.
func (m *MemoryStorage) ListUnsummarized(ctx context.Context, limit int) ([]*storage.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*storage.Conversation
	for id, c := range m.conversations {
		if _, ok := m.summaries[id]; ok {
			continue
		}
		copied := *c
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return newerFirst(result[j].CreatedAt, result[j].ID, result[i].CreatedAt, result[i].ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// UpsertSummary creates or overwrites the summary of a conversation.
func (m *MemoryStorage) UpsertSummary(ctx context.Context, conversationID int64, content string, at time.Time) (*storage.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[conversationID]; !ok {
		return nil, storage.NewNotFound("conversation", conversationID)
	}

	s, ok := m.summaries[conversationID]
	if !ok {
		s = &storage.Summary{ID: m.allocID("summary"), ConversationID: conversationID}
		m.summaries[conversationID] = s
	}
	s.Content = content
	s.UpdatedAt = storage.Timestamp(at)

	copied := *s
	return &copied, nil
}

// ListSummaries returns the summaries of a user's conversations, newest
// conversation first.
func (m *MemoryStorage) ListSummaries(ctx context.Context, userID int64) ([]*storage.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*storage.Summary
	for _, rec := range m.records(func(c *storage.Conversation) bool { return c.UserID == userID }) {
		if rec.Summary != nil {
			result = append(result, rec.Summary)
		}
	}
	return result, nil
}

// Ping reports whether the store is open.
func (m *MemoryStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return &storage.StorageUnavailableError{Cause: errClosed}
	}
	return nil
}

// Close marks the store closed. Data is kept so tests can inspect it.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func newerFirst(ta time.Time, ida int64, tb time.Time, idb int64) bool {
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return ida > idb
}
