package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/heraldlabs/herald/pkg/clock"
)

type window struct {
	count   int64
	resetAt time.Time
}

// MemoryStore implements an in-memory fixed-window store.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	clock   clock.Clock
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithClock injects a clock, primarily for tests.
func WithClock(clk clock.Clock) MemoryStoreOption {
	return func(s *MemoryStore) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// NewMemoryStore creates a new in-memory store. Expired windows are reset
// lazily on access; Purge removes them wholesale and is driven by the
// orchestrator's GC sweep rather than an internal timer.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		windows: make(map[string]*window),
		clock:   clock.System(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// IncrementAndGet atomically increments the counter, starting a fresh window
// when none is active.
func (s *MemoryStore) IncrementAndGet(ctx context.Context, key string, windowSize time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	w, exists := s.windows[key]

	if !exists || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(windowSize)}
		s.windows[key] = w
		return 1, windowSize, nil
	}

	w.count++
	return w.count, w.resetAt.Sub(now), nil
}

// Get returns the current count without incrementing.
func (s *MemoryStore) Get(ctx context.Context, key string) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.windows[key]
	if !exists {
		return 0, 0, nil
	}

	now := s.clock.Now()
	if !now.Before(w.resetAt) {
		return 0, 0, nil
	}

	return w.count, w.resetAt.Sub(now), nil
}

// Delete removes the given key from the store.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.windows, key)
	return nil
}

// Purge drops every expired window.
func (s *MemoryStore) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for key, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, key)
		}
	}
}

// Len reports the number of tracked windows, expired included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
