// Package memory ranks a user's stored conversations against a free-text
// query and assembles resume context from their summaries.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vedmemory/ved/pkg/logger"
	"github.com/vedmemory/ved/pkg/storage"
)

const tracerName = "ved.memory"

const (
	spanRetrieve = "memory.retrieve"
	spanFetch    = "memory.fetch"
)

// Retrieval outcomes reported to the Recorder.
const (
	OutcomeMatched  = "matched"
	OutcomeFallback = "fallback"
	OutcomeEmpty    = "empty"
	OutcomeInvalid  = "invalid"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Source is the read side of storage the engine depends on. Both calls are
// scoped by the requesting user.
type Source interface {
	GetProject(ctx context.Context, projectID, userID int64) (*storage.Project, error)
	RecentConversations(ctx context.Context, projectID, userID int64, limit int) ([]*storage.ConversationRecord, error)
}

// Recorder receives retrieval measurements. *metrics.Manager implements it.
type Recorder interface {
	RecordRetrieval(outcome string, scanned int, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordRetrieval(string, int, time.Duration) {}

// Retriever is implemented by Engine and CachedRetriever.
type Retriever interface {
	Retrieve(ctx context.Context, projectID int64, query string, userID int64) (*Result, error)
}

// Engine scores conversations lexically with a recency tie-break. It keeps
// no state between calls and is safe for concurrent use.
type Engine struct {
	source   Source
	log      logger.Logger
	recorder Recorder
	tracer   trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = logger.Component(l, "memory")
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// NewEngine creates an engine reading from source.
func NewEngine(source Source, opts ...Option) *Engine {
	e := &Engine{
		source:   source,
		log:      logger.Component(nil, "memory"),
		recorder: nopRecorder{},
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Retrieve returns up to TopK context blocks for query within the project.
//
// It fails with ErrEmptyQuery when the trimmed query is empty and with
// ErrProjectNotFound when the project does not exist or belongs to another
// user. Other errors come from storage.
func (e *Engine) Retrieve(ctx context.Context, projectID int64, query string, userID int64) (*Result, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, spanRetrieve, trace.WithAttributes(
		attribute.Int64("ved.project_id", projectID),
		attribute.Int64("ved.user_id", userID),
	))
	defer span.End()

	res, outcome, err := e.retrieve(ctx, projectID, query, userID)

	scanned := 0
	if res != nil {
		scanned = res.TotalScanned
		span.SetAttributes(
			attribute.Int("ved.total_scanned", res.TotalScanned),
			attribute.Int("ved.blocks", len(res.ContextBlocks)),
		)
	}
	span.SetAttributes(attribute.String("ved.outcome", outcome))
	e.recorder.RecordRetrieval(outcome, scanned, time.Since(start))

	switch outcome {
	case OutcomeInvalid, OutcomeNotFound:
		e.log.DebugContext(ctx, "retrieval rejected",
			"project_id", projectID,
			"user_id", userID,
			"error", err,
		)
	case OutcomeError:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.log.ErrorContext(ctx, "retrieval failed",
			"project_id", projectID,
			"user_id", userID,
			"error", err,
		)
	default:
		e.log.DebugContext(ctx, "retrieval complete",
			"project_id", projectID,
			"outcome", outcome,
			"total_scanned", scanned,
			"duration", time.Since(start),
		)
	}

	return res, err
}

func (e *Engine) retrieve(ctx context.Context, projectID int64, query string, userID int64) (*Result, string, error) {
	normalized, tokens := normalizeQuery(query)
	if len(tokens) == 0 {
		return nil, OutcomeInvalid, ErrEmptyQuery
	}

	if _, err := e.source.GetProject(ctx, projectID, userID); err != nil {
		if storage.IsNotFound(err) {
			return nil, OutcomeNotFound, ErrProjectNotFound
		}
		return nil, OutcomeError, fmt.Errorf("memory: get project %d: %w", projectID, err)
	}

	records, err := e.fetch(ctx, projectID, userID)
	if err != nil {
		return nil, OutcomeError, fmt.Errorf("memory: fetch conversations: %w", err)
	}

	res := &Result{
		ProjectID:     projectID,
		Query:         normalized,
		TotalScanned:  len(records),
		ContextBlocks: []ContextBlock{},
	}
	if len(records) == 0 {
		return res, OutcomeEmpty, nil
	}

	candidates := make([]candidate, len(records))
	var matches []candidate
	for i, rec := range records {
		var summary *string
		summaryText := ""
		if rec.Summary != nil {
			s := rec.Summary.Content
			summary = &s
			summaryText = s
		}

		kw := keywordScore(tokens, rec.RawContent, summaryText)
		candidates[i] = candidate{
			block: ContextBlock{
				ConversationID: rec.ID,
				Score:          round4(float64(kw) + recencyBoost(i)),
				RawContent:     rec.RawContent,
				Summary:        summary,
				CreatedAt:      rec.CreatedAt,
			},
			keyword: kw,
		}
		if kw > 0 {
			matches = append(matches, candidates[i])
		}
	}

	if len(matches) == 0 {
		res.ContextBlocks = blocks(candidates, TopK)
		return res, OutcomeFallback, nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].block, matches[j].block
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	res.ContextBlocks = blocks(matches, TopK)
	return res, OutcomeMatched, nil
}

func (e *Engine) fetch(ctx context.Context, projectID, userID int64) ([]*storage.ConversationRecord, error) {
	ctx, span := e.tracer.Start(ctx, spanFetch)
	defer span.End()

	records, err := e.source.RecentConversations(ctx, projectID, userID, ScanLimit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	// The scan never exceeds ScanLimit, whatever the backend returns.
	if len(records) > ScanLimit {
		records = records[:ScanLimit]
	}
	return records, nil
}

func blocks(cs []candidate, n int) []ContextBlock {
	if len(cs) > n {
		cs = cs[:n]
	}
	out := make([]ContextBlock, len(cs))
	for i, c := range cs {
		out[i] = c.block
	}
	return out
}

// IsClientError reports whether err is caused by caller input rather than
// an infrastructure fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrEmptyQuery) ||
		errors.Is(err, ErrProjectNotFound) ||
		errors.Is(err, ErrInvalidMode) ||
		errors.Is(err, ErrNoConversations)
}
