package dispatch

import (
	"log/slog"
	"time"

	"github.com/heraldlabs/herald/pkg/circuit"
	"github.com/heraldlabs/herald/pkg/clock"
	"github.com/heraldlabs/herald/pkg/provider"
)

// ChannelBreakerSettings returns the breaker policy for a channel. SMS runs
// looser thresholds than email and push: carriers throttle aggressively and a
// short burst of failures rarely means the vendor itself is down.
func ChannelBreakerSettings(ch provider.Channel) circuit.Settings {
	if ch == provider.ChannelSMS {
		return circuit.Settings{FailureThreshold: 5, CoolDown: 10 * time.Minute}
	}
	return circuit.Settings{FailureThreshold: 3, CoolDown: 5 * time.Minute}
}

// Registry holds one dispatcher per channel plus that channel's breaker
// registry.
type Registry struct {
	dispatchers map[provider.Channel]*Dispatcher
	breakers    map[provider.Channel]*circuit.Registry
}

type registryConfig struct {
	clock    clock.Clock
	log      *slog.Logger
	settings map[provider.Channel]circuit.Settings
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryConfig)

// WithRegistryClock injects a clock for all channel breaker registries.
func WithRegistryClock(clk clock.Clock) RegistryOption {
	return func(c *registryConfig) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithRegistryLogger attaches a logger to every dispatcher.
func WithRegistryLogger(log *slog.Logger) RegistryOption {
	return func(c *registryConfig) {
		if log != nil {
			c.log = log
		}
	}
}

// WithChannelBreakerSettings overrides the breaker policy for one channel.
func WithChannelBreakerSettings(ch provider.Channel, settings circuit.Settings) RegistryOption {
	return func(c *registryConfig) { c.settings[ch] = settings }
}

// NewRegistry groups providers by channel and builds one dispatcher per
// channel that has at least one available provider. The in-app channel gets
// no breaker registry: it has no external vendor to protect.
func NewRegistry(providers []provider.Provider, opts ...RegistryOption) *Registry {
	cfg := &registryConfig{
		clock:    clock.System(),
		log:      slog.Default(),
		settings: make(map[provider.Channel]circuit.Settings),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	byChannel := make(map[provider.Channel][]provider.Provider)
	for _, p := range providers {
		byChannel[p.Channel()] = append(byChannel[p.Channel()], p)
	}

	r := &Registry{
		dispatchers: make(map[provider.Channel]*Dispatcher),
		breakers:    make(map[provider.Channel]*circuit.Registry),
	}
	for ch, chain := range byChannel {
		dispatcherOpts := []Option{WithLogger(cfg.log)}
		if ch != provider.ChannelInApp {
			settings, ok := cfg.settings[ch]
			if !ok {
				settings = ChannelBreakerSettings(ch)
			}
			breakers := circuit.NewRegistry(settings, circuit.WithClock(cfg.clock))
			r.breakers[ch] = breakers
			dispatcherOpts = append(dispatcherOpts, WithBreakers(breakers))
		}

		d, err := New(ch, chain, dispatcherOpts...)
		if err != nil {
			// Every provider for the channel was unconfigured; the channel
			// simply is not served in this deployment.
			delete(r.breakers, ch)
			continue
		}
		r.dispatchers[ch] = d
	}
	return r
}

// Get returns the dispatcher serving a channel.
func (r *Registry) Get(ch provider.Channel) (*Dispatcher, error) {
	d, ok := r.dispatchers[ch]
	if !ok {
		return nil, ErrUnknownChannel
	}
	return d, nil
}

// Channels lists the channels with an active dispatcher.
func (r *Registry) Channels() []provider.Channel {
	out := make([]provider.Channel, 0, len(r.dispatchers))
	for ch := range r.dispatchers {
		out = append(out, ch)
	}
	return out
}

// Availability reports the active provider chain per channel, in priority
// order.
func (r *Registry) Availability() map[provider.Channel][]string {
	out := make(map[provider.Channel][]string, len(r.dispatchers))
	for ch, d := range r.dispatchers {
		out[ch] = d.Providers()
	}
	return out
}

// BreakerStats snapshots breaker state across all channels.
func (r *Registry) BreakerStats() map[provider.Channel]map[string]circuit.Stats {
	out := make(map[provider.Channel]map[string]circuit.Stats, len(r.breakers))
	for ch, reg := range r.breakers {
		out[ch] = reg.Stats()
	}
	return out
}

// PurgeBreakers drops idle breakers across all channels.
func (r *Registry) PurgeBreakers() {
	for _, reg := range r.breakers {
		reg.Purge()
	}
}
