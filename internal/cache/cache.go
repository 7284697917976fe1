// Package cache provides the time-boxed metric cache.
//
// Entries are never evicted on their own: Valid reports whether an entry is
// still inside its TTL window, while Get keeps returning the last value so
// callers can fall back to expired data when the backend is down.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

const defaultStoreTimeout = 2 * time.Second

// Entry is a cached value with the time it was stored.
type Entry[T any] struct {
	Key      string
	Value    T
	StoredAt time.Time
}

// Store is an optional write-through backing store shared between processes.
type Store interface {
	Save(ctx context.Context, key string, data []byte, storedAt time.Time) error
	Load(ctx context.Context, key string) (data []byte, storedAt time.Time, found bool, err error)
	Clear(ctx context.Context, prefix string) error
}

type options struct {
	now          func() time.Time
	store        Store
	storeTimeout time.Duration
	log          *slog.Logger
}

// Option configures a TimeBoxed cache.
type Option func(*options)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithStore adds a write-through backing store.
func WithStore(s Store) Option {
	return func(o *options) { o.store = s }
}

// WithLogger sets the logger used for store failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// TimeBoxed is a key/value cache with a single TTL.
type TimeBoxed[T any] struct {
	name string
	ttl  time.Duration
	opts options

	mu      sync.RWMutex
	entries map[string]Entry[T]
}

// New creates a cache. name namespaces keys in the backing store.
func New[T any](name string, ttl time.Duration, opts ...Option) *TimeBoxed[T] {
	o := options{
		now:          time.Now,
		storeTimeout: defaultStoreTimeout,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &TimeBoxed[T]{
		name:    name,
		ttl:     ttl,
		opts:    o,
		entries: make(map[string]Entry[T]),
	}
}

// TTL returns the validity window.
func (c *TimeBoxed[T]) TTL() time.Duration {
	return c.ttl
}

// Valid reports whether key holds an entry younger than the TTL.
func (c *TimeBoxed[T]) Valid(key string) bool {
	e, ok := c.lookup(key)
	if !ok {
		return false
	}
	return c.opts.now().Sub(e.StoredAt) < c.ttl
}

// Get returns the stored value regardless of its age.
func (c *TimeBoxed[T]) Get(key string) (T, bool) {
	e, ok := c.lookup(key)
	return e.Value, ok
}

// Entry returns the full entry regardless of its age.
func (c *TimeBoxed[T]) Entry(key string) (Entry[T], bool) {
	return c.lookup(key)
}

// Set overwrites key and resets its timestamp.
func (c *TimeBoxed[T]) Set(key string, value T) {
	now := c.opts.now()

	c.mu.Lock()
	if prev, ok := c.entries[key]; ok && now.Before(prev.StoredAt) {
		now = prev.StoredAt
	}
	c.entries[key] = Entry[T]{Key: key, Value: value, StoredAt: now}
	c.mu.Unlock()

	if c.opts.store != nil {
		c.save(key, value, now)
	}
}

// Clear drops every entry.
func (c *TimeBoxed[T]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]Entry[T])
	c.mu.Unlock()

	if c.opts.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.storeTimeout)
	defer cancel()
	if err := c.opts.store.Clear(ctx, c.name+":"); err != nil {
		c.opts.log.Warn("Failed to clear cache store", "cache", c.name, "error", err)
	}
}

// Len returns the number of locally held entries.
func (c *TimeBoxed[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *TimeBoxed[T]) lookup(key string) (Entry[T], bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok || c.opts.store == nil {
		return e, ok
	}

	loaded, ok := c.load(key)
	if !ok {
		return Entry[T]{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A concurrent Set wins over the loaded copy.
	if cur, exists := c.entries[key]; exists {
		return cur, true
	}
	c.entries[key] = loaded
	return loaded, true
}

func (c *TimeBoxed[T]) save(key string, value T, storedAt time.Time) {
	data, err := json.Marshal(value)
	if err != nil {
		c.opts.log.Warn("Failed to encode cache entry", "cache", c.name, "key", key, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.storeTimeout)
	defer cancel()
	if err := c.opts.store.Save(ctx, c.name+":"+key, data, storedAt); err != nil {
		c.opts.log.Warn("Failed to write cache store", "cache", c.name, "key", key, "error", err)
	}
}

func (c *TimeBoxed[T]) load(key string) (Entry[T], bool) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.storeTimeout)
	defer cancel()

	data, storedAt, found, err := c.opts.store.Load(ctx, c.name+":"+key)
	if err != nil {
		c.opts.log.Warn("Failed to read cache store", "cache", c.name, "key", key, "error", err)
		return Entry[T]{}, false
	}
	if !found {
		return Entry[T]{}, false
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		c.opts.log.Warn("Failed to decode cache entry", "cache", c.name, "key", key, "error", err)
		return Entry[T]{}, false
	}
	return Entry[T]{Key: key, Value: value, StoredAt: storedAt}, true
}
