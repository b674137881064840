// Package dispatch routes a delivery request through a channel's ordered
// provider chain. The chain is a deterministic fallback, not a load balancer:
// provider order is fixed, the first healthy provider is always preferred,
// and lower-priority providers only see traffic when everything ahead of them
// is open-circuited or failing.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/heraldlabs/herald/pkg/circuit"
	"github.com/heraldlabs/herald/pkg/logger"
	"github.com/heraldlabs/herald/pkg/provider"
)

// Result is a successful dispatch outcome.
type Result struct {
	Provider          string
	ProviderMessageID string
	Raw               string
}

// Dispatcher owns the provider chain for a single channel.
type Dispatcher struct {
	channel   provider.Channel
	providers []provider.Provider
	breakers  *circuit.Registry // nil for channels without vendor health (in-app)
	log       *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger attaches a logger.
func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// WithBreakers attaches a circuit breaker registry consulted before each
// provider call. Without one, every provider is always eligible.
func WithBreakers(reg *circuit.Registry) Option {
	return func(d *Dispatcher) { d.breakers = reg }
}

// New creates a dispatcher over the given providers, in priority order.
// Providers that report unavailable are excluded up front; at least one must
// remain.
func New(channel provider.Channel, providers []provider.Provider, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		channel: channel,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	for _, p := range providers {
		if p.Channel() != channel {
			continue
		}
		if !p.IsAvailable() {
			d.log.LogAttrs(context.Background(), slog.LevelInfo, "provider excluded: not configured",
				logger.Channel(string(channel)),
				logger.Provider(p.Name()),
			)
			continue
		}
		d.providers = append(d.providers, p)
	}
	if len(d.providers) == 0 {
		return nil, ErrNoProviders
	}
	return d, nil
}

// Channel returns the channel this dispatcher serves.
func (d *Dispatcher) Channel() provider.Channel { return d.channel }

// Providers returns the names of the active chain, in priority order.
func (d *Dispatcher) Providers() []string {
	names := make([]string, len(d.providers))
	for i, p := range d.providers {
		names[i] = p.Name()
	}
	return names
}

// ValidDestination reports whether any provider in the chain accepts the
// address.
func (d *Dispatcher) ValidDestination(address string) bool {
	for _, p := range d.providers {
		if p.ValidateDestination(address) {
			return true
		}
	}
	return false
}

// Dispatch walks the provider chain until one accepts the message. Breaker
// bookkeeping happens here: a success resets the chosen provider's breaker, a
// transient failure records against it. Permanent rejections fall through to
// the next provider but do not count as vendor ill health.
func (d *Dispatcher) Dispatch(ctx context.Context, req provider.Request) (*Result, error) {
	failures := make([]ProviderFailure, 0, len(d.providers))

	for _, p := range d.providers {
		var breaker *circuit.Breaker
		if d.breakers != nil {
			breaker = d.breakers.Get(p.Name())
			if !breaker.Allow() {
				d.log.LogAttrs(ctx, slog.LevelDebug, "provider skipped: breaker open",
					logger.Channel(string(d.channel)),
					logger.Provider(p.Name()),
					logger.NotificationID(req.NotificationID),
				)
				failures = append(failures, ProviderFailure{Provider: p.Name(), Skipped: true})
				continue
			}
		}

		resp, err := p.Send(ctx, req)
		if err == nil {
			if breaker != nil {
				breaker.RecordSuccess()
			}
			d.log.LogAttrs(ctx, slog.LevelInfo, "dispatched",
				logger.Channel(string(d.channel)),
				logger.Provider(p.Name()),
				logger.NotificationID(req.NotificationID),
			)
			return &Result{
				Provider:          p.Name(),
				ProviderMessageID: resp.ProviderMessageID,
				Raw:               resp.Raw,
			}, nil
		}

		if breaker != nil && provider.IsTransient(err) {
			breaker.RecordFailure()
		}
		d.log.LogAttrs(ctx, slog.LevelWarn, "provider failed, falling through",
			logger.Channel(string(d.channel)),
			logger.Provider(p.Name()),
			logger.NotificationID(req.NotificationID),
			logger.Error(err),
		)
		failures = append(failures, ProviderFailure{Provider: p.Name(), Err: err})
	}

	return nil, &ExhaustedError{Channel: d.channel, Failures: failures}
}
