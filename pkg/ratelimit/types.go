// Package ratelimit provides the per-(channel, recipient) fixed-window
// counter consulted before every delivery attempt.
//
// The window resets atomically and entirely rather than sliding, so short
// bursts straddling a window boundary can exceed the intended average rate by
// up to 2x. That approximation is accepted; a stricter reimplementation must
// document the behavioral change.
package ratelimit

import (
	"context"
	"time"
)

// Result contains the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the maximum number of requests allowed in the window.
	Limit int

	// Remaining is the number of requests remaining in the current window.
	Remaining int

	// ResetAt is the time when the window resets.
	ResetAt time.Time
}

// RetryAfter returns how long to wait before the next request is allowed.
// Returns 0 if the current request was allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	return time.Until(r.ResetAt)
}

// Limiter defines the interface for rate limiting implementations.
type Limiter interface {
	// Allow checks if a single request is allowed for the given key,
	// consuming one slot if so.
	Allow(ctx context.Context, key string) (*Result, error)

	// Status returns the current state for the key without consuming a slot.
	Status(ctx context.Context, key string) (*Result, error)

	// Reset clears the window for the given key.
	Reset(ctx context.Context, key string) error
}

// Store defines the interface for rate limit storage backends.
type Store interface {
	// IncrementAndGet atomically increments the counter for the key,
	// initializing a fresh window when none is active, and returns the new
	// count plus the remaining window duration.
	IncrementAndGet(ctx context.Context, key string, window time.Duration) (count int64, remaining time.Duration, err error)

	// Get returns the current count and remaining window duration without
	// incrementing. A missing or expired window reports zero.
	Get(ctx context.Context, key string) (count int64, remaining time.Duration, err error)

	// Delete removes the given key from the store.
	Delete(ctx context.Context, key string) error
}
