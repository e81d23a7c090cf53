package memory

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vedmemory/ved/pkg/cache"
	"github.com/vedmemory/ved/pkg/logger"
)

// Cache lookup results reported to the CacheRecorder.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// CacheRecorder receives cache outcomes. *metrics.Manager implements it.
type CacheRecorder interface {
	RecordCacheLookup(result string)
	RecordCacheInvalidation()
}

type nopCacheRecorder struct{}

func (nopCacheRecorder) RecordCacheLookup(string) {}
func (nopCacheRecorder) RecordCacheInvalidation() {}

// CachedRetriever serves repeated queries from a cache. Entries are keyed by
// user, project, project generation and a digest of the normalized query,
// so Invalidate only has to advance the generation.
//
// Only successful results are cached. Any cache failure falls through to
// the wrapped retriever.
type CachedRetriever struct {
	next     Retriever
	cache    cache.Cache
	ttl      time.Duration
	log      logger.Logger
	recorder CacheRecorder
}

// CacheOption configures a CachedRetriever.
type CacheOption func(*CachedRetriever)

// WithCacheLogger sets the logger used for degraded-cache warnings.
func WithCacheLogger(l logger.Logger) CacheOption {
	return func(r *CachedRetriever) {
		if l != nil {
			r.log = logger.Component(l, "memory.cache")
		}
	}
}

// WithCacheRecorder sets the lookup recorder.
func WithCacheRecorder(rec CacheRecorder) CacheOption {
	return func(r *CachedRetriever) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// NewCachedRetriever wraps next with c. A non-positive ttl defers to the
// cache's own default.
func NewCachedRetriever(next Retriever, c cache.Cache, ttl time.Duration, opts ...CacheOption) *CachedRetriever {
	r := &CachedRetriever{
		next:     next,
		cache:    c,
		ttl:      ttl,
		log:      logger.Component(nil, "memory.cache"),
		recorder: nopCacheRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func projectScope(projectID int64) string {
	return fmt.Sprintf("project:%d", projectID)
}

func retrievalKey(userID, projectID, generation int64, normalized string) string {
	return fmt.Sprintf("retrieval:%d:%d:%d:%x", userID, projectID, generation, sha256.Sum256([]byte(normalized)))
}

// Retrieve returns a cached result when one exists for the current project
// generation and otherwise delegates, caching what comes back.
func (r *CachedRetriever) Retrieve(ctx context.Context, projectID int64, query string, userID int64) (*Result, error) {
	normalized, tokens := normalizeQuery(query)
	if len(tokens) == 0 {
		return r.next.Retrieve(ctx, projectID, query, userID)
	}

	gen, err := r.cache.Generation(ctx, projectScope(projectID))
	if err != nil {
		r.recorder.RecordCacheLookup(CacheError)
		r.log.WarnContext(ctx, "cache generation lookup failed", "project_id", projectID, "error", err)
		return r.next.Retrieve(ctx, projectID, query, userID)
	}
	key := retrievalKey(userID, projectID, gen, normalized)

	data, ok, err := r.cache.Get(ctx, key)
	switch {
	case err != nil:
		r.recorder.RecordCacheLookup(CacheError)
		r.log.WarnContext(ctx, "cache get failed", "project_id", projectID, "error", err)
	case ok:
		var res Result
		if err := json.Unmarshal(data, &res); err == nil {
			r.recorder.RecordCacheLookup(CacheHit)
			return &res, nil
		}
		r.recorder.RecordCacheLookup(CacheError)
		r.log.WarnContext(ctx, "discarding undecodable cache entry", "project_id", projectID, "error", err)
	default:
		r.recorder.RecordCacheLookup(CacheMiss)
	}

	res, err := r.next.Retrieve(ctx, projectID, query, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(res); err != nil {
		r.log.WarnContext(ctx, "cache encode failed", "project_id", projectID, "error", err)
	} else if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
		r.log.WarnContext(ctx, "cache set failed", "project_id", projectID, "error", err)
	}
	return res, nil
}

// Invalidate makes every cached result for the project unreachable. Failures
// are logged and returned; entries then age out through their TTL.
func (r *CachedRetriever) Invalidate(ctx context.Context, projectID int64) error {
	if err := r.cache.Bump(ctx, projectScope(projectID)); err != nil {
		r.log.WarnContext(ctx, "cache invalidation failed", "project_id", projectID, "error", err)
		return err
	}
	r.recorder.RecordCacheInvalidation()
	return nil
}
