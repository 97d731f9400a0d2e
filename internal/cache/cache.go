// Package cache holds short-lived entries that have not been promoted to
// durable storage, such as registrations awaiting email verification.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache is a concurrency-safe map whose entries expire a fixed duration after
// they were stored. Expired entries are invisible to readers even before a
// sweep removes them.
type Cache[V any] struct {
	name    string
	timeout time.Duration
	field   func(V) string
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]entry[V]
}

type Option[V any] func(*Cache[V])

// WithClock replaces time.Now. Tests use it to move time forward.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) { c.now = now }
}

// WithField selects the value field CheckByField compares against.
func WithField[V any](field func(V) string) Option[V] {
	return func(c *Cache[V]) { c.field = field }
}

func New[V any](name string, timeout time.Duration, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		name:    name,
		timeout: timeout,
		now:     time.Now,
		entries: make(map[string]entry[V]),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache[V]) Name() string           { return c.name }
func (c *Cache[V]) Timeout() time.Duration { return c.timeout }

func (c *Cache[V]) expired(e entry[V], now time.Time) bool {
	return !now.Before(e.storedAt.Add(c.timeout))
}

// Set stores value under key, restarting its expiry window.
func (c *Cache[V]) Set(key string, value V) {
	now := c.now()
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, storedAt: now}
	c.mu.Unlock()
}

func (c *Cache[V]) Get(key string) (V, bool) {
	now := c.now()
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.expired(e, now) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Remaining reports how long key stays valid. Zero means absent or expired.
func (c *Cache[V]) Remaining(key string) time.Duration {
	now := c.now()
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.expired(e, now) {
		return 0
	}
	return e.storedAt.Add(c.timeout).Sub(now)
}

// SetIfFieldAbsent stores value under key unless another live entry already
// has the same field value, in which case it returns that entry's key and
// false. The check and the insert happen under one lock.
func (c *Cache[V]) SetIfFieldAbsent(key string, value V) (string, bool) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.field != nil {
		want := c.field(value)
		for existing, e := range c.entries {
			if existing == key || c.expired(e, now) {
				continue
			}
			if c.field(e.value) == want {
				return existing, false
			}
		}
	}
	c.entries[key] = entry[V]{value: value, storedAt: now}
	return key, true
}

// Take removes key and returns its value if it was live.
func (c *Cache[V]) Take(key string) (V, bool) {
	now := c.now()
	c.mu.Lock()
	e, ok := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()
	if !ok || c.expired(e, now) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// CheckByField reports whether any live entry's designated field equals value.
// It always returns false when the cache was built without WithField.
func (c *Cache[V]) CheckByField(value string) bool {
	_, ok := c.FindByField(value)
	return ok
}

// FindByField returns the key of a live entry whose field equals value.
func (c *Cache[V]) FindByField(value string) (string, bool) {
	if c.field == nil {
		return "", false
	}
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	for key, e := range c.entries {
		if c.expired(e, now) {
			continue
		}
		if c.field(e.value) == value {
			return key, true
		}
	}
	return "", false
}

// SweepExpired removes entries that had expired when the sweep inspected them
// and returns how many were removed. Candidates come from a snapshot; each is
// re-checked under the write lock so an entry replaced mid-sweep survives.
func (c *Cache[V]) SweepExpired() int {
	now := c.now()

	c.mu.RLock()
	stale := make(map[string]time.Time)
	for key, e := range c.entries {
		if c.expired(e, now) {
			stale[key] = e.storedAt
		}
	}
	c.mu.RUnlock()

	if len(stale) == 0 {
		return 0
	}

	removed := 0
	c.mu.Lock()
	for key, storedAt := range stale {
		current, ok := c.entries[key]
		if !ok || !current.storedAt.Equal(storedAt) {
			continue
		}
		delete(c.entries, key)
		removed++
	}
	c.mu.Unlock()
	return removed
}

// Len counts stored entries, including expired ones not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
