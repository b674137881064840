package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/heraldlabs/herald/pkg/provider"
)

var (
	// ErrNoProviders is returned when a channel has no available providers at
	// construction time.
	ErrNoProviders = errors.New("no available providers for channel")

	// ErrAllProvidersExhausted is returned when every provider in the chain
	// was skipped or failed.
	ErrAllProvidersExhausted = errors.New("all providers exhausted")

	// ErrUnknownChannel is returned for a channel no dispatcher serves.
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrInvalidDestination is returned when no provider in the chain accepts
	// the destination address.
	ErrInvalidDestination = errors.New("destination address rejected by all providers")
)

// ProviderFailure records one provider's outcome within a failed dispatch.
type ProviderFailure struct {
	Provider string
	Skipped  bool // circuit breaker open, no call was made
	Err      error
}

// ExhaustedError aggregates the per-provider outcomes of a dispatch where no
// provider succeeded.
type ExhaustedError struct {
	Channel  provider.Channel
	Failures []ProviderFailure
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Skipped {
			parts = append(parts, f.Provider+": skipped (breaker open)")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %v", f.Provider, f.Err))
	}
	return fmt.Sprintf("channel %s: all providers exhausted: %s", e.Channel, strings.Join(parts, "; "))
}

func (e *ExhaustedError) Unwrap() error { return ErrAllProvidersExhausted }

// Permanent reports whether the dispatch failed for good: at least one
// provider was actually called and every called provider rejected the message
// permanently. A chain that was entirely skipped, or that saw any transient
// failure, is worth retrying.
func (e *ExhaustedError) Permanent() bool {
	called := false
	for _, f := range e.Failures {
		if f.Skipped {
			continue
		}
		called = true
		if !provider.IsPermanent(f.Err) {
			return false
		}
	}
	return called
}
