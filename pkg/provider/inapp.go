package provider

import (
	"context"

	"github.com/google/uuid"

	"github.com/heraldlabs/herald/pkg/clock"
	"github.com/heraldlabs/herald/pkg/inbox"
)

// InApp delivers by writing to the user's in-app feed. There is no external
// vendor and no circuit breaker; a write either lands in the store or the
// failure is local and transient.
type InApp struct {
	store inbox.Store
	clock clock.Clock
}

type inAppOption func(*InApp)

func WithInAppClock(c clock.Clock) inAppOption {
	return func(a *InApp) { a.clock = c }
}

func NewInApp(store inbox.Store, opts ...inAppOption) *InApp {
	a := &InApp{store: store, clock: clock.System()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *InApp) Name() string     { return "inapp" }
func (a *InApp) Channel() Channel { return ChannelInApp }

func (a *InApp) IsAvailable() bool { return a.store != nil }

// ValidateDestination accepts any non-empty user identifier.
func (a *InApp) ValidateDestination(address string) bool { return address != "" }

func (a *InApp) Send(ctx context.Context, req Request) (*Response, error) {
	if !a.IsAvailable() {
		return nil, Permanent(a.Name(), "not_configured", "missing inbox store", ErrProviderUnavailable)
	}

	msg := inbox.Message{
		ID:        uuid.NewString(),
		UserID:    req.To,
		Subject:   req.Subject,
		Body:      req.Body,
		CreatedAt: a.clock.Now(),
	}
	if len(req.Data) > 0 {
		msg.Data = make(map[string]any, len(req.Data))
		for k, v := range req.Data {
			msg.Data[k] = v
		}
	}

	if err := a.store.Create(ctx, msg); err != nil {
		return nil, Transient(a.Name(), "store_write", err.Error(), err)
	}

	return &Response{ProviderMessageID: msg.ID}, nil
}
