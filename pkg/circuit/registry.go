package circuit

import (
	"sync"

	"github.com/heraldlabs/herald/pkg/clock"
)

// Registry holds one breaker per provider key, creating them on demand.
// Each breaker carries its own lock, so unrelated providers never serialize
// on one another; the registry lock only guards map membership.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	settings map[string]Settings
	fallback Settings
	clock    clock.Clock
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock injects a clock for all breakers created by the registry.
func WithClock(clk clock.Clock) RegistryOption {
	return func(r *Registry) {
		if clk != nil {
			r.clock = clk
		}
	}
}

// WithSettings overrides the breaker settings for a specific provider key.
func WithSettings(key string, settings Settings) RegistryOption {
	return func(r *Registry) {
		r.settings[key] = settings
	}
}

// NewRegistry creates a registry whose breakers default to the given settings.
func NewRegistry(fallback Settings, opts ...RegistryOption) *Registry {
	r := &Registry{
		breakers: make(map[string]*Breaker),
		settings: make(map[string]Settings),
		fallback: fallback.withDefaults(),
		clock:    clock.System(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Get returns the breaker for the given provider key, creating it if needed.
func (r *Registry) Get(key string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[key]; ok {
		return b
	}

	settings, ok := r.settings[key]
	if !ok {
		settings = r.fallback
	}
	b = New(settings, r.clock)
	r.breakers[key] = b
	return b
}

// Stats returns a snapshot of every known breaker keyed by provider.
func (r *Registry) Stats() map[string]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Stats, len(r.breakers))
	for key, b := range r.breakers {
		out[key] = b.Stats()
	}
	return out
}

// Purge drops breakers that are closed with no recorded failures. Open or
// degraded breakers are kept so their history survives the sweep.
func (r *Registry) Purge() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, b := range r.breakers {
		stats := b.Stats()
		if stats.State == Closed.String() && stats.Failures == 0 {
			delete(r.breakers, key)
		}
	}
}
