// Package cache provides a shared LRU-with-TTL wrapper used by the
// lexical performance cache (L1), the AST cache (L2), and the
// orchestrator's response cache, built on hashicorp/golang-lru rather
// than a hand-rolled map+mutex.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// entry wraps a cached value with its expiry time.
type entry[V any] struct {
	value   V
	expires time.Time
}

// TTLCache is a size-bounded LRU cache where each entry additionally
// expires after a fixed TTL from insertion.
type TTLCache[K comparable, V any] struct {
	mu  sync.Mutex
	lru *lru.Cache[K, entry[V]]
	ttl time.Duration
}

// New creates a TTLCache bounded to size entries, each living for ttl
// after insertion. A non-positive ttl disables expiry (LRU-only).
func New[K comparable, V any](size int, ttl time.Duration) (*TTLCache[K, V], error) {
	if size <= 0 {
		size = 1
	}
	l, err := lru.New[K, entry[V]](size)
	if err != nil {
		return nil, err
	}
	return &TTLCache[K, V]{lru: l, ttl: ttl}, nil
}

// Get returns the cached value for key, or ok=false if absent or
// expired. An expired entry is evicted on lookup.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}
	if c.ttl > 0 && time.Now().After(e.expires) {
		c.lru.Remove(key)
		return zero, false
	}
	return e.value, true
}

// Put inserts or replaces the value for key, resetting its TTL.
func (c *TTLCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := time.Time{}
	if c.ttl > 0 {
		expires = time.Now().Add(c.ttl)
	}
	c.lru.Add(key, entry[V]{value: value, expires: expires})
}

// Remove evicts key if present.
func (c *TTLCache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// RemoveMatching evicts every key for which match returns true. Used by
// file-watch handlers to invalidate cache entries scoped to a changed
// path without iterating the caller's own index.
func (c *TTLCache[K, V]) RemoveMatching(match func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, k := range c.lru.Keys() {
		if match(k) {
			c.lru.Remove(k)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries currently cached, including any not
// yet lazily expired.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge clears the cache entirely.
func (c *TTLCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}
