// Package cache provides a bounded key/value cache with per-entry expiry.
//
// Eviction is lazy: stale entries are dropped when they are read, and the
// oldest entry is dropped when an insert would exceed the size bound. There
// is no background sweeper.
package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

type entry[V any] struct {
	value      V
	insertedAt time.Time
}

// TTL is a bounded cache whose entries expire ttl after insertion.
// It is safe for concurrent use.
type TTL[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a TTL cache
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewTTL creates a cache holding at most maxSize entries for ttl each.
func NewTTL[V any](maxSize int, ttl time.Duration, opts ...Option) *TTL[V] {
	if maxSize <= 0 {
		maxSize = 1000
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTL[V]{
		entries: make(map[string]entry[V], maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     o.now,
	}
}

// Get returns the value for key if it is present and younger than the TTL.
// An expired entry is removed.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.now().Sub(e.insertedAt) >= c.ttl {
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

// Set inserts or overwrites key. When the cache is full and key is new, the
// single oldest entry is evicted first.
func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = entry[V]{value: value, insertedAt: c.now()}
}

// Delete removes key if present.
func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of stored entries, including ones that have
// expired but not yet been touched.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *TTL[V]) evictOldest() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.insertedAt.Before(oldestAt) {
			oldestKey, oldestAt, found = k, e.insertedAt, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}

// Key derives a deterministic cache key from an operation name and its
// arguments. Maps are formatted with sorted keys by fmt, so equal argument
// tuples always produce equal keys.
func Key(op string, args ...any) string {
	var sb strings.Builder
	sb.WriteString(op)
	for _, arg := range args {
		sb.WriteByte('|')
		fmt.Fprintf(&sb, "%v", arg)
	}
	return sb.String()
}
