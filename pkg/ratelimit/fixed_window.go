package ratelimit

import (
	"context"
	"time"

	"github.com/heraldlabs/herald/pkg/clock"
)

// FixedWindow implements a fixed-window rate limiter: the first request in a
// window initializes the counter and the reset time, subsequent requests
// increment and compare against the ceiling, and an expired window is reset
// lazily on next access. No queueing or shaping; the answer is allow/deny.
type FixedWindow struct {
	store  Store
	limit  int
	window time.Duration
	clock  clock.Clock
}

// Option configures a FixedWindow.
type Option func(*FixedWindow)

// WithLimiterClock injects a clock, primarily for tests. ResetAt stays
// consistent with a store running on the same clock.
func WithLimiterClock(clk clock.Clock) Option {
	return func(fw *FixedWindow) {
		if clk != nil {
			fw.clock = clk
		}
	}
}

// NewFixedWindow creates a fixed-window rate limiter.
func NewFixedWindow(store Store, limit int, window time.Duration, opts ...Option) (*FixedWindow, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if window <= 0 {
		return nil, ErrInvalidWindow
	}

	fw := &FixedWindow{
		store:  store,
		limit:  limit,
		window: window,
		clock:  clock.System(),
	}
	for _, opt := range opts {
		opt(fw)
	}
	return fw, nil
}

// Allow checks if a single request is allowed for the given key.
func (fw *FixedWindow) Allow(ctx context.Context, key string) (*Result, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	count, remaining, err := fw.store.IncrementAndGet(ctx, key, fw.window)
	if err != nil {
		return nil, err
	}

	return &Result{
		Allowed:   count <= int64(fw.limit),
		Limit:     fw.limit,
		Remaining: max(0, fw.limit-int(count)),
		ResetAt:   fw.clock.Now().Add(remaining),
	}, nil
}

// Status returns the current window state without consuming a slot.
func (fw *FixedWindow) Status(ctx context.Context, key string) (*Result, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	count, remaining, err := fw.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	return &Result{
		Allowed:   count < int64(fw.limit),
		Limit:     fw.limit,
		Remaining: max(0, fw.limit-int(count)),
		ResetAt:   fw.clock.Now().Add(remaining),
	}, nil
}

// Reset clears the window for the given key.
func (fw *FixedWindow) Reset(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}
	return fw.store.Delete(ctx, key)
}
