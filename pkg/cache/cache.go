// Package cache stores serialized retrieval results keyed by caller-built
// strings, with per-scope generation counters for invalidation.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed cache.
var ErrClosed = errors.New("cache: closed")

// Cache is implemented by the in-process LRU and the Redis backend.
//
// Generations are monotonic per scope. Callers embed the current generation
// in their keys so that a Bump makes every older entry unreachable without
// having to enumerate it.
type Cache interface {
	// Get returns the value for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl. A non-positive ttl uses the
	// backend default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Generation returns the current generation of scope, zero if never bumped.
	Generation(ctx context.Context, scope string) (int64, error)

	// Bump advances the generation of scope.
	Bump(ctx context.Context, scope string) error

	Close() error
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int
}

// HitRate returns hits over total lookups, 0 when nothing was looked up.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
