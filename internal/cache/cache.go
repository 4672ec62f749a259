// Package cache provides a small keyed memoization layer for expensive
// derived quantities. One abstraction covers both invalidation styles used by
// the engine: rolling TTL (volatility estimates) and calendar-day boundary
// (pivot levels, sizing base).
package cache

import (
	"sync"
	"time"
)

// Policy decides whether a stored value is still fresh.
type Policy interface {
	Fresh(storedAt, now time.Time) bool
}

type ttlPolicy struct{ d time.Duration }

func (p ttlPolicy) Fresh(storedAt, now time.Time) bool {
	return now.Sub(storedAt) < p.d
}

// TTL keeps values fresh for a rolling duration after each write.
func TTL(d time.Duration) Policy { return ttlPolicy{d: d} }

type calendarPolicy struct{ loc *time.Location }

func (p calendarPolicy) Fresh(storedAt, now time.Time) bool {
	sy, sm, sd := storedAt.In(p.loc).Date()
	ny, nm, nd := now.In(p.loc).Date()
	return sy == ny && sm == nm && sd == nd
}

// CalendarDay keeps values fresh until the calendar day rolls over in loc.
func CalendarDay(loc *time.Location) Policy {
	if loc == nil {
		loc = time.UTC
	}
	return calendarPolicy{loc: loc}
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache memoizes values per key under the configured freshness policy.
// Writes are last-write-wins; readers may briefly observe a stale value while
// a recompute is in flight, which is acceptable for derived market data.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	policy  Policy
	now     func() time.Time
	entries map[K]entry[V]
}

// Option configures cache construction.
type Option[K comparable, V any] func(*Cache[K, V])

// WithClock overrides the time source (tests).
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *Cache[K, V]) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds an empty cache with the given policy.
func New[K comparable, V any](policy Policy, opts ...Option[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{
		policy:  policy,
		now:     time.Now,
		entries: make(map[K]entry[V]),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the stored value when present and fresh.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.policy.Fresh(e.storedAt, c.now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores a value, stamping it with the current clock.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, storedAt: c.now()}
	c.mu.Unlock()
}

// GetOrCompute returns the fresh value for key, invoking compute on miss or
// expiry. Compute runs outside the lock; concurrent computes race and the
// last writer wins.
func (c *Cache[K, V]) GetOrCompute(key K, compute func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		var zero V
		return zero, err
	}
	c.Put(key, v)
	return v, nil
}

// Invalidate drops the entry for key.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len reports the number of stored entries, fresh or not.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
