package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// LRU is a size-bounded in-process cache with per-entry expiry.
type LRU struct {
	mu          sync.Mutex
	maxSize     int
	ttl         time.Duration
	items       map[string]*list.Element
	eviction    *list.List
	generations map[string]int64
	hits        int64
	misses      int64
	closed      bool

	now func() time.Time
}

type lruItem struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewLRU creates an LRU holding at most maxSize entries, each living for ttl
// unless Set is given its own.
func NewLRU(maxSize int, ttl time.Duration) *LRU {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &LRU{
		maxSize:     maxSize,
		ttl:         ttl,
		items:       make(map[string]*list.Element),
		eviction:    list.New(),
		generations: make(map[string]int64),
		now:         time.Now,
	}
}

// Get retrieves an entry, promoting it to the front. Expired entries are
// removed and reported as misses.
func (c *LRU) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false, ErrClosed
	}

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false, nil
	}

	item := elem.Value.(*lruItem)
	if !item.expiresAt.IsZero() && !c.now().Before(item.expiresAt) {
		c.remove(elem)
		c.misses++
		return nil, false, nil
	}

	c.eviction.MoveToFront(elem)
	c.hits++
	return item.value, true, nil
}

// Set adds or replaces an entry, evicting the least recently used one when full.
func (c *LRU) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if ttl <= 0 {
		ttl = c.ttl
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	if elem, ok := c.items[key]; ok {
		item := elem.Value.(*lruItem)
		item.value = value
		item.expiresAt = expiresAt
		c.eviction.MoveToFront(elem)
		return nil
	}

	if c.eviction.Len() >= c.maxSize {
		if back := c.eviction.Back(); back != nil {
			c.remove(back)
		}
	}

	c.items[key] = c.eviction.PushFront(&lruItem{key: key, value: value, expiresAt: expiresAt})
	return nil
}

// Generation returns the generation of scope.
func (c *LRU) Generation(ctx context.Context, scope string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}
	return c.generations[scope], nil
}

// Bump advances the generation of scope.
func (c *LRU) Bump(ctx context.Context, scope string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.generations[scope]++
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns hit and miss counters.
func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: len(c.items)}
}

// Close drops every entry.
func (c *LRU) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.items = make(map[string]*list.Element)
	c.eviction.Init()
	return nil
}

func (c *LRU) remove(elem *list.Element) {
	c.eviction.Remove(elem)
	delete(c.items, elem.Value.(*lruItem).key)
}
