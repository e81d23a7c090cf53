package summarizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/vedmemory/ved/pkg/logger"
	"github.com/vedmemory/ved/pkg/storage"
)

// Summary outcomes reported to the Recorder.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Source is the storage subset the worker reads and writes.
type Source interface {
	ListUnsummarized(ctx context.Context, limit int) ([]*storage.Conversation, error)
	UpsertSummary(ctx context.Context, conversationID int64, content string, at time.Time) (*storage.Summary, error)
}

// Invalidator drops cached retrieval results of a project.
type Invalidator interface {
	Invalidate(ctx context.Context, projectID int64) error
}

// Publisher announces a written summary.
type Publisher interface {
	SummaryUpdated(userID, projectID, conversationID int64)
}

// Recorder receives worker measurements. *metrics.Manager implements it.
type Recorder interface {
	RecordSummary(status string)
	RecordSummarizerRun(duration time.Duration)
}

type nopHooks struct{}

func (nopHooks) Invalidate(context.Context, int64) error { return nil }
func (nopHooks) SummaryUpdated(int64, int64, int64)      {}
func (nopHooks) RecordSummary(string)                    {}
func (nopHooks) RecordSummarizerRun(time.Duration)       {}

// Config controls batching.
type Config struct {
	// Interval between passes in Run.
	Interval time.Duration
	// BatchSize caps the conversations handled per pass.
	BatchSize int
	// MaxInputChars truncates transcripts before they are sent.
	MaxInputChars int
	// Concurrency is the number of summaries requested at once.
	Concurrency int
	// MaxAttempts is how many passes may fail on one conversation before
	// the worker stops picking it up.
	MaxAttempts int
}

// DefaultConfig returns the worker defaults.
func DefaultConfig() Config {
	return Config{
		Interval:      5 * time.Minute,
		BatchSize:     20,
		MaxInputChars: 12000,
		Concurrency:   1,
		MaxAttempts:   3,
	}
}

// RunStats describes one pass.
type RunStats struct {
	Processed int
	Failed    int
	// Skipped counts conversations passed over after MaxAttempts failures.
	Skipped int
}

// Worker fills in missing summaries.
type Worker struct {
	source      Source
	client      Client
	cfg         Config
	invalidator Invalidator
	publisher   Publisher
	recorder    Recorder
	log         logger.Logger
	now         func() time.Time

	mu       sync.Mutex
	failures map[int64]int
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the worker logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.log = logger.Component(l, "summarizer")
		}
	}
}

// WithInvalidator sets the cache invalidated after each written summary.
func WithInvalidator(inv Invalidator) Option {
	return func(w *Worker) {
		if inv != nil {
			w.invalidator = inv
		}
	}
}

// WithPublisher sets where summary.updated events go.
func WithPublisher(p Publisher) Option {
	return func(w *Worker) {
		if p != nil {
			w.publisher = p
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(w *Worker) {
		if r != nil {
			w.recorder = r
		}
	}
}

// NewWorker creates a worker. Zero config fields take their defaults.
func NewWorker(source Source, client Client, cfg Config, opts ...Option) *Worker {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = def.MaxInputChars
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}

	w := &Worker{
		source:      source,
		client:      client,
		cfg:         cfg,
		invalidator: nopHooks{},
		publisher:   nopHooks{},
		recorder:    nopHooks{},
		log:         logger.Component(nil, "summarizer"),
		now:         time.Now,
		failures:    map[int64]int{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RunOnce summarizes up to BatchSize conversations, oldest first. A failure
// on one conversation is logged and counted; only a failure to list the
// batch, or cancellation, is returned. Conversations that failed
// MaxAttempts times are passed over so they cannot hold the head of the
// queue.
func (w *Worker) RunOnce(ctx context.Context) (RunStats, error) {
	start := time.Now()
	defer func() { w.recorder.RecordSummarizerRun(time.Since(start)) }()

	var stats RunStats
	convs, skipped, err := w.batch(ctx)
	if err != nil {
		return stats, err
	}
	stats.Skipped = skipped

	var (
		mu       sync.Mutex
		canceled bool
	)
	p := newPool(w.cfg.Concurrency, w.log)
	for _, c := range convs {
		if ctx.Err() != nil {
			break
		}
		c := c
		err := p.submit(func() {
			err := w.summarize(ctx, c)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				stats.Processed++
				w.recorder.RecordSummary(StatusOK)
				w.forget(c.ID)
			case errors.Is(err, context.Canceled) && ctx.Err() != nil:
				canceled = true
			default:
				stats.Failed++
				w.recorder.RecordSummary(StatusFailed)
				attempts := w.fail(c.ID)
				w.log.WarnContext(ctx, "summarize failed", "conversation_id", c.ID, "attempts", attempts, "error", err)
				if attempts == w.cfg.MaxAttempts {
					w.log.ErrorContext(ctx, "giving up on conversation", "conversation_id", c.ID)
				}
			}
		})
		if err != nil {
			break
		}
	}
	p.stop()

	if canceled || ctx.Err() != nil {
		return stats, ctx.Err()
	}

	if len(convs) > 0 {
		w.log.InfoContext(ctx, "summarizer pass complete",
			"processed", stats.Processed,
			"failed", stats.Failed,
			"skipped", stats.Skipped,
			"duration", time.Since(start),
		)
	}
	return stats, nil
}

// batch lists the next conversations to summarize. The listing is widened
// by the number of given-up conversations so that, after dropping them, a
// full batch remains whenever enough other work exists.
func (w *Worker) batch(ctx context.Context) ([]*storage.Conversation, int, error) {
	w.mu.Lock()
	parked := 0
	for _, n := range w.failures {
		if n >= w.cfg.MaxAttempts {
			parked++
		}
	}
	w.mu.Unlock()

	convs, err := w.source.ListUnsummarized(ctx, w.cfg.BatchSize+parked)
	if err != nil {
		return nil, 0, fmt.Errorf("summarizer: list unsummarized: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*storage.Conversation, 0, w.cfg.BatchSize)
	skipped := 0
	for _, c := range convs {
		if w.failures[c.ID] >= w.cfg.MaxAttempts {
			skipped++
			continue
		}
		if len(out) < w.cfg.BatchSize {
			out = append(out, c)
		}
	}
	return out, skipped, nil
}

func (w *Worker) fail(id int64) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures[id]++
	return w.failures[id]
}

func (w *Worker) forget(id int64) {
	w.mu.Lock()
	delete(w.failures, id)
	w.mu.Unlock()
}

func (w *Worker) summarize(ctx context.Context, c *storage.Conversation) error {
	text := truncate(c.RawContent, w.cfg.MaxInputChars)
	summary, err := w.client.Summarize(ctx, text)
	if err != nil {
		return err
	}
	if _, err := w.source.UpsertSummary(ctx, c.ID, summary, w.now()); err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	if err := w.invalidator.Invalidate(ctx, c.ProjectID); err != nil {
		w.log.WarnContext(ctx, "cache invalidation failed", "project_id", c.ProjectID, "error", err)
	}
	w.publisher.SummaryUpdated(c.UserID, c.ProjectID, c.ID)
	return nil
}

// Run calls RunOnce every Interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("summarizer started",
		"interval", w.cfg.Interval,
		"batch_size", w.cfg.BatchSize,
		"concurrency", w.cfg.Concurrency,
	)
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Error("summarizer pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			w.log.Info("summarizer stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
