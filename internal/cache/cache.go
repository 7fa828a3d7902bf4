package cache

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize is the entry cap used when New is given a non-positive size.
const DefaultSize = 1024

// Cache is a keyed cache with per-entry expiry. Safe for concurrent use.
type Cache[V any] struct {
	entries *lru.Cache[string, entry[V]]

	mu  sync.RWMutex
	now func() time.Time
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// New creates a cache holding at most size entries.
func New[V any](size int) (*Cache[V], error) {
	if size < 1 {
		size = DefaultSize
	}
	entries, err := lru.New[string, entry[V]](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &Cache[V]{
		entries: entries,
		now:     time.Now,
	}, nil
}

// Get returns the cached value if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	e, ok := c.entries.Get(key)
	if !ok {
		return zero, false
	}

	if !c.clock().Before(e.expiresAt) {
		c.entries.Remove(key)
		return zero, false
	}

	return e.value, true
}

// Put stores value with expiry now+ttl, overwriting any existing entry.
func (c *Cache[V]) Put(key string, value V, ttl time.Duration) {
	c.entries.Add(key, entry[V]{
		value:     value,
		expiresAt: c.clock().Add(ttl),
	})
}

// Remove deletes key if present.
func (c *Cache[V]) Remove(key string) {
	c.entries.Remove(key)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[V]) Len() int {
	return c.entries.Len()
}

// Purge removes every entry.
func (c *Cache[V]) Purge() {
	c.entries.Purge()
}

// SetClock replaces the time source. Used by tests.
func (c *Cache[V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *Cache[V]) clock() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now()
}
