// Package cache is a small typed in-memory TTL map with prefix invalidation.
package cache

import (
	"strings"
	"sync"
	"time"
)

type item[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache maps string keys to values of type V until their TTL runs out.
// When a limit is set, Set sweeps expired items once the limit is reached
// and then drops the entry closest to expiry.
type Cache[V any] struct {
	mu    sync.RWMutex
	items map[string]item[V]
	limit int
	now   func() time.Time
}

// New returns an unbounded cache.
func New[V any]() *Cache[V] {
	return NewBounded[V](0)
}

// NewBounded returns a cache holding at most limit items. Zero means no limit.
func NewBounded[V any](limit int) *Cache[V] {
	return &Cache[V]{items: map[string]item[V]{}, limit: limit, now: time.Now}
}

func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists && c.limit > 0 && len(c.items) >= c.limit {
		c.evictLocked()
	}
	c.items[key] = item[V]{value: value, expiresAt: c.now().Add(ttl)}
}

func (c *Cache[V]) evictLocked() {
	now := c.now()
	var victim string
	var soonest time.Time
	for k, it := range c.items {
		if now.After(it.expiresAt) {
			delete(c.items, k)
			continue
		}
		if victim == "" || it.expiresAt.Before(soonest) {
			victim, soonest = k, it.expiresAt
		}
	}
	if len(c.items) >= c.limit && victim != "" {
		delete(c.items, victim)
	}
}

// Get returns the value of key. Expired items are removed on read.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if c.now().After(it.expiresAt) {
		c.mu.Lock()
		if cur, still := c.items[key]; still && cur.expiresAt.Equal(it.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return it.value, true
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Invalidate removes every item whose key starts with prefix and returns
// how many were removed.
func (c *Cache[V]) Invalidate(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
			n++
		}
	}
	return n
}

// Len counts stored items, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
