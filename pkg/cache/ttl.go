// Package cache provides a generic TTL cache used for template lookups and
// compiled renderers.
package cache

import (
	"sync"
	"time"

	"github.com/heraldlabs/herald/pkg/clock"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL is a thread-safe cache whose entries expire after a per-entry duration.
// Expired entries are dropped lazily on Get and swept by an optional
// background GC loop.
type TTL[K comparable, V any] struct {
	mu         sync.RWMutex
	items      map[K]entry[V]
	defaultTTL time.Duration
	clock      clock.Clock

	gcInterval time.Duration
	stopGC     chan struct{}
	stopOnce   sync.Once
}

// Option configures a TTL cache.
type Option[K comparable, V any] func(*TTL[K, V])

// WithClock injects a clock, primarily for tests.
func WithClock[K comparable, V any](c clock.Clock) Option[K, V] {
	return func(t *TTL[K, V]) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithGCInterval sets the background sweep interval. Zero disables the loop;
// expiry then happens only lazily on access.
func WithGCInterval[K comparable, V any](interval time.Duration) Option[K, V] {
	return func(t *TTL[K, V]) {
		t.gcInterval = interval
	}
}

// New creates a TTL cache with the given default entry lifetime.
// The default TTL must be positive, otherwise it panics.
func New[K comparable, V any](defaultTTL time.Duration, opts ...Option[K, V]) *TTL[K, V] {
	if defaultTTL <= 0 {
		panic("cache TTL must be positive")
	}

	t := &TTL[K, V]{
		items:      make(map[K]entry[V]),
		defaultTTL: defaultTTL,
		clock:      clock.System(),
		stopGC:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.gcInterval > 0 {
		go t.gcLoop()
	}

	return t
}

// Get retrieves an unexpired value. Expired entries are removed on access.
func (t *TTL[K, V]) Get(key K) (V, bool) {
	t.mu.RLock()
	e, ok := t.items[key]
	t.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}

	if t.clock.Now().After(e.expiresAt) {
		t.mu.Lock()
		// Re-check under the write lock: a concurrent Set may have refreshed it.
		if cur, still := t.items[key]; still && t.clock.Now().After(cur.expiresAt) {
			delete(t.items, key)
		}
		t.mu.Unlock()
		return zero, false
	}

	return e.value, true
}

// Set stores a value with the default TTL.
func (t *TTL[K, V]) Set(key K, value V) {
	t.SetWithTTL(key, value, t.defaultTTL)
}

// SetWithTTL stores a value with an explicit lifetime.
func (t *TTL[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = t.defaultTTL
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[key] = entry[V]{value: value, expiresAt: t.clock.Now().Add(ttl)}
}

// Delete removes an entry regardless of expiry.
func (t *TTL[K, V]) Delete(key K) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.items, key)
}

// Len returns the number of entries, including not-yet-swept expired ones.
func (t *TTL[K, V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

// Purge removes every expired entry. Called by the GC loop and exposed for
// callers that run their own sweep schedule.
func (t *TTL[K, V]) Purge() {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	for k, e := range t.items {
		if now.After(e.expiresAt) {
			delete(t.items, k)
		}
	}
}

// Close stops the background GC loop. Safe to call multiple times.
func (t *TTL[K, V]) Close() {
	t.stopOnce.Do(func() {
		close(t.stopGC)
	})
}

func (t *TTL[K, V]) gcLoop() {
	ticker := time.NewTicker(t.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Purge()
		case <-t.stopGC:
			return
		}
	}
}
