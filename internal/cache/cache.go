// Package cache provides an in-memory TTL cache with capacity-bounded
// eviction. Expiry is enforced lazily at read time; there is no background
// sweeper. State is process-local and best-effort by design.
package cache

import (
	"sort"
	"sync"
	"time"
)

// DefaultCapacity bounds the store when no explicit capacity is given.
const DefaultCapacity = 400

type entry[V any] struct {
	value      V
	expiresAt  time.Time
	lastAccess time.Time
}

// Cache is a TTL cache safe for concurrent use. When a Set would push the
// store past capacity, the least-recently-accessed ~10% of entries are
// evicted first.
type Cache[V any] struct {
	mu       sync.Mutex
	store    map[string]*entry[V]
	capacity int

	now func() time.Time
}

// New creates a cache bounded to capacity entries. A non-positive capacity
// falls back to DefaultCapacity.
func New[V any](capacity int) *Cache[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache[V]{
		store:    make(map[string]*entry[V]),
		capacity: capacity,
		now:      time.Now,
	}
}

// Get returns the cached value for key. An expired entry is a miss and is
// removed. A hit refreshes the entry's recency.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.store[key]
	if !ok {
		return zero, false
	}
	now := c.now()
	if now.After(e.expiresAt) {
		delete(c.store, key)
		return zero, false
	}
	e.lastAccess = now
	return e.value, true
}

// Set stores value under key for ttl. Overwriting an existing key never
// triggers eviction.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.store[key]; !exists && len(c.store) >= c.capacity {
		c.evictLocked()
	}
	c.store[key] = &entry[V]{
		value:      value,
		expiresAt:  now.Add(ttl),
		lastAccess: now,
	}
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = make(map[string]*entry[V])
}

// Len returns the number of stored entries, including not-yet-collected
// expired ones.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.store)
}

// evictLocked removes the least-recently-accessed ~10% of entries (at least
// one). Caller must hold c.mu.
func (c *Cache[V]) evictLocked() {
	n := c.capacity / 10
	if n < 1 {
		n = 1
	}

	type victim struct {
		key        string
		lastAccess time.Time
	}
	victims := make([]victim, 0, len(c.store))
	for k, e := range c.store {
		victims = append(victims, victim{key: k, lastAccess: e.lastAccess})
	}
	sort.Slice(victims, func(i, j int) bool {
		return victims[i].lastAccess.Before(victims[j].lastAccess)
	})

	if n > len(victims) {
		n = len(victims)
	}
	for _, v := range victims[:n] {
		delete(c.store, v.key)
	}
}
