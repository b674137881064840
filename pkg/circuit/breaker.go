// Package circuit provides the per-provider health gate used by channel
// dispatchers. The breaker has two states: closed and open. There is no
// half-open probe state; once the cool-down has elapsed past the last failure
// the breaker lazily resets to closed on the next consult and the following
// request is a fresh, fully-trusted attempt.
package circuit

import (
	"sync"
	"time"

	"github.com/heraldlabs/herald/pkg/clock"
)

// State represents the current state of a breaker.
type State int

const (
	// Closed allows requests to pass through.
	Closed State = iota
	// Open blocks all requests to the provider.
	Open
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures a breaker.
type Settings struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker.
	FailureThreshold int

	// CoolDown is how long past the last failure an open breaker stays open.
	CoolDown time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 3
	}
	if s.CoolDown <= 0 {
		s.CoolDown = 5 * time.Minute
	}
	return s
}

// Breaker tracks consecutive failures for a single provider.
// Safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	settings Settings
	clock    clock.Clock

	open        bool
	failures    int
	lastFailure time.Time
}

// New creates a breaker with the given settings.
func New(settings Settings, clk clock.Clock) *Breaker {
	if clk == nil {
		clk = clock.System()
	}
	return &Breaker{
		settings: settings.withDefaults(),
		clock:    clk,
	}
}

// Allow reports whether a request may reach the provider. An open breaker
// whose cool-down has elapsed is reset to closed here, with the failure count
// zeroed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return true
	}

	if b.clock.Since(b.lastFailure) >= b.settings.CoolDown {
		b.open = false
		b.failures = 0
		return true
	}

	return false
}

// RecordFailure counts a provider failure and opens the breaker once the
// threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.clock.Now()
	b.failures++
	if b.failures >= b.settings.FailureThreshold {
		b.open = true
	}
}

// RecordSuccess resets the failure count and closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.open = false
	b.failures = 0
}

// State returns the state as Allow would observe it, without mutating.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open && b.clock.Since(b.lastFailure) < b.settings.CoolDown {
		return Open
	}
	return Closed
}

// Stats provides visibility into breaker state for health reporting.
type Stats struct {
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
	LastFailure time.Time `json:"last_failure,omitzero"`
}

// Stats returns a snapshot of the breaker.
func (b *Breaker) Stats() Stats {
	state := b.State()

	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		State:       state.String(),
		Failures:    b.failures,
		LastFailure: b.lastFailure,
	}
}
