package summarizer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedmemory/ved/pkg/logger"
	"github.com/vedmemory/ved/pkg/storage"
	memstore "github.com/vedmemory/ved/pkg/storage/memory"
)

type fakeClient struct {
	mu     sync.Mutex
	inputs []string
	fail   map[string]bool
}

func (f *fakeClient) Summarize(_ context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, text)
	if f.fail[text] {
		return "", errors.New("model unavailable")
	}
	return "summary of " + text, nil
}

type recorder struct {
	mu          sync.Mutex
	statuses    []string
	runs        int
	invalidated []int64
	published   []int64
}

func (r *recorder) RecordSummary(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recorder) RecordSummarizerRun(time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
}

func (r *recorder) Invalidate(_ context.Context, projectID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated = append(r.invalidated, projectID)
	return nil
}

func (r *recorder) SummaryUpdated(_, _, conversationID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, conversationID)
}

func seed(t *testing.T, contents ...string) (*memstore.MemoryStorage, []*storage.Conversation) {
	t.Helper()
	ctx := context.Background()
	store := memstore.NewMemoryStorage()
	u := &storage.User{Email: "ada@example.com"}
	require.NoError(t, store.CreateUser(ctx, u))
	p := &storage.Project{Name: "p", UserID: u.ID}
	require.NoError(t, store.CreateProject(ctx, p))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var convs []*storage.Conversation
	for i, content := range contents {
		c := &storage.Conversation{
			UserID:     u.ID,
			ProjectID:  p.ID,
			RawContent: content,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.SaveConversation(ctx, c))
		convs = append(convs, c)
	}
	return store, convs
}

func newTestWorker(store Source, client Client, cfg Config, rec *recorder) *Worker {
	return NewWorker(store, client, cfg,
		WithLogger(logger.Nop()),
		WithRecorder(rec),
		WithInvalidator(rec),
		WithPublisher(rec),
	)
}

func TestWorker_RunOnce(t *testing.T) {
	store, convs := seed(t, "alpha", "beta", "gamma")
	client := &fakeClient{}
	rec := &recorder{}
	w := newTestWorker(store, client, Config{BatchSize: 2}, rec)

	stats, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunStats{Processed: 2}, stats)

	// Oldest first.
	assert.Equal(t, []string{"alpha", "beta"}, client.inputs)
	assert.Equal(t, []int64{convs[0].ID, convs[1].ID}, rec.published)
	assert.Equal(t, []int64{convs[0].ProjectID, convs[0].ProjectID}, rec.invalidated)
	assert.Equal(t, []string{StatusOK, StatusOK}, rec.statuses)
	assert.Equal(t, 1, rec.runs)

	remaining, err := store.ListUnsummarized(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, convs[2].ID, remaining[0].ID)

	summaries, err := store.ListSummaries(context.Background(), convs[0].UserID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
}

func TestWorker_RunOnceContinuesPastFailures(t *testing.T) {
	store, convs := seed(t, "alpha", "broken", "gamma")
	client := &fakeClient{fail: map[string]bool{"broken": true}}
	rec := &recorder{}
	w := newTestWorker(store, client, Config{BatchSize: 10}, rec)

	stats, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunStats{Processed: 2, Failed: 1}, stats)
	assert.Equal(t, []string{StatusOK, StatusFailed, StatusOK}, rec.statuses)

	remaining, err := store.ListUnsummarized(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, convs[1].ID, remaining[0].ID)
}

func TestWorker_GivesUpOnRepeatedFailures(t *testing.T) {
	store, convs := seed(t, "poison", "beta", "gamma")
	client := &fakeClient{fail: map[string]bool{"poison": true}}
	w := newTestWorker(store, client, Config{BatchSize: 1, MaxAttempts: 2}, &recorder{})

	want := []RunStats{
		{Failed: 1},
		{Failed: 1},
		{Processed: 1, Skipped: 1},
		{Processed: 1, Skipped: 1},
		{Skipped: 1},
	}
	for i, wantStats := range want {
		stats, err := w.RunOnce(context.Background())
		require.NoError(t, err)
		if stats != wantStats {
			t.Errorf("pass %d: RunOnce() = %+v, want %+v", i+1, stats, wantStats)
		}
	}

	assert.Equal(t, []string{"poison", "poison", "beta", "gamma"}, client.inputs)

	remaining, err := store.ListUnsummarized(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, convs[0].ID, remaining[0].ID)
}

func TestWorker_SuccessClearsFailureCount(t *testing.T) {
	store, _ := seed(t, "flaky")
	client := &fakeClient{fail: map[string]bool{"flaky": true}}
	w := newTestWorker(store, client, Config{MaxAttempts: 2}, &recorder{})

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	client.mu.Lock()
	client.fail = nil
	client.mu.Unlock()

	stats, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunStats{Processed: 1}, stats)
	assert.Empty(t, w.failures)
}

func TestWorker_RunOnceTruncatesInput(t *testing.T) {
	store, _ := seed(t, strings.Repeat("é", 50))
	client := &fakeClient{}
	w := newTestWorker(store, client, Config{MaxInputChars: 10}, &recorder{})

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, client.inputs, 1)
	assert.Equal(t, strings.Repeat("é", 10), client.inputs[0])
}

type failingSource struct{}

func (failingSource) ListUnsummarized(context.Context, int) ([]*storage.Conversation, error) {
	return nil, &storage.StorageUnavailableError{Cause: errors.New("down")}
}

func (failingSource) UpsertSummary(context.Context, int64, string, time.Time) (*storage.Summary, error) {
	return nil, errors.New("unreachable")
}

func TestWorker_RunOnceListError(t *testing.T) {
	w := newTestWorker(failingSource{}, &fakeClient{}, Config{}, &recorder{})

	_, err := w.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, storage.IsUnavailable(err))
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store, _ := seed(t, "alpha")
	rec := &recorder{}
	w := newTestWorker(store, &fakeClient{}, Config{Interval: time.Hour}, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return rec.runs == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"日本語テキスト", 3, "日本語"},
		{"hello", 0, "hello"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

// gateClient blocks every call until want calls are in flight at once.
type gateClient struct {
	mu       sync.Mutex
	inFlight int
	peak     int
	want     int
	release  chan struct{}
}

func (g *gateClient) Summarize(ctx context.Context, text string) (string, error) {
	g.mu.Lock()
	g.inFlight++
	if g.inFlight > g.peak {
		g.peak = g.inFlight
	}
	if g.inFlight == g.want {
		close(g.release)
	}
	g.mu.Unlock()

	select {
	case <-g.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
	return "s:" + text, nil
}

func TestWorker_RunOnceConcurrent(t *testing.T) {
	store, _ := seed(t, "a", "b", "c", "d")
	client := &gateClient{want: 4, release: make(chan struct{})}
	rec := &recorder{}
	w := newTestWorker(store, client, Config{BatchSize: 10, Concurrency: 4}, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, RunStats{Processed: 4}, stats)
	assert.Equal(t, 4, client.peak)
	assert.Len(t, rec.published, 4)
}

func TestNewWorker_Defaults(t *testing.T) {
	w := NewWorker(memstore.NewMemoryStorage(), &fakeClient{}, Config{})
	if w.cfg != DefaultConfig() {
		t.Errorf("cfg = %+v, want %+v", w.cfg, DefaultConfig())
	}
}

func TestPool_RecoversFromPanic(t *testing.T) {
	p := newPool(2, logger.Nop())

	var mu sync.Mutex
	ran := 0
	require.NoError(t, p.submit(func() { panic("boom") }))
	for i := 0; i < 3; i++ {
		require.NoError(t, p.submit(func() {
			mu.Lock()
			ran++
			mu.Unlock()
		}))
	}
	p.stop()

	assert.Equal(t, 3, ran)
	assert.Error(t, p.submit(func() {}))
	p.stop()
}
