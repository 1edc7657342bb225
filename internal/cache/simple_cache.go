package cache

import (
	"sync"
	"time"
)

// entry stores a cached value and its absolute expiration timestamp.
type entry[V any] struct {
	value     V
	expiresAt time.Time // zero means no expiration
}

// SimpleCache is a map-backed cache with per-item TTL and optional locking.
// Expired entries are skipped on read and dropped by PurgeExpired.
type SimpleCache[K comparable, V any] struct {
	mu    *sync.RWMutex // nil when not goroutine-safe
	now   func() time.Time
	items map[K]entry[V]
}

// Options controls construction of a SimpleCache.
type Options struct {
	ConcurrencySafe bool
	// Now overrides the time source; defaults to time.Now.
	Now func() time.Time
}

func NewSimpleCache[K comparable, V any](opts Options) *SimpleCache[K, V] {
	c := &SimpleCache[K, V]{
		now:   opts.Now,
		items: make(map[K]entry[V]),
	}
	if opts.ConcurrencySafe {
		c.mu = &sync.RWMutex{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

func (c *SimpleCache[K, V]) lockR() func() {
	if c.mu == nil {
		return func() {}
	}
	c.mu.RLock()
	return c.mu.RUnlock
}

func (c *SimpleCache[K, V]) lockW() func() {
	if c.mu == nil {
		return func() {}
	}
	c.mu.Lock()
	return c.mu.Unlock
}

func (e entry[V]) expired(at time.Time) bool {
	return !e.expiresAt.IsZero() && !at.Before(e.expiresAt)
}

// Get returns the value if present and not expired.
func (c *SimpleCache[K, V]) Get(key K) (V, bool) {
	unlock := c.lockR()
	defer unlock()

	var zero V
	e, ok := c.items[key]
	if !ok || e.expired(c.now()) {
		return zero, false
	}
	return e.value, true
}

// Set stores value. A ttl <= 0 never expires.
func (c *SimpleCache[K, V]) Set(key K, value V, ttl time.Duration) {
	unlock := c.lockW()
	defer unlock()

	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}
	c.items[key] = entry[V]{value: value, expiresAt: exp}
}

func (c *SimpleCache[K, V]) Delete(keys ...K) {
	unlock := c.lockW()
	defer unlock()
	for _, k := range keys {
		delete(c.items, k)
	}
}

// Len counts only live entries.
func (c *SimpleCache[K, V]) Len() int {
	unlock := c.lockR()
	defer unlock()
	at := c.now()
	n := 0
	for _, e := range c.items {
		if !e.expired(at) {
			n++
		}
	}
	return n
}

// PurgeExpired removes expired entries and returns how many were dropped.
func (c *SimpleCache[K, V]) PurgeExpired() int {
	unlock := c.lockW()
	defer unlock()
	at := c.now()
	removed := 0
	for k, e := range c.items {
		if e.expired(at) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}
