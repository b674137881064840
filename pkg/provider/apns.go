package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// APNs sends push notifications through the Apple Push Notification service
// using token-based (p8) authentication.
type APNs struct {
	client *apns2.Client
	cfg    APNsConfig
}

func NewAPNs(cfg APNsConfig) (*APNs, error) {
	a := &APNs{cfg: cfg}
	if cfg.KeyFile == "" || cfg.KeyID == "" || cfg.TeamID == "" {
		return a, nil
	}
	authKey, err := token.AuthKeyFromFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("apns: load auth key: %w", err)
	}
	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Development {
		client = client.Development()
	} else {
		client = client.Production()
	}
	a.client = client
	return a, nil
}

func (a *APNs) Name() string     { return "apns" }
func (a *APNs) Channel() Channel { return ChannelPush }

func (a *APNs) IsAvailable() bool {
	return a.client != nil && a.cfg.Topic != ""
}

func (a *APNs) ValidateDestination(address string) bool { return ValidAPNsToken(address) }

func (a *APNs) Send(ctx context.Context, req Request) (*Response, error) {
	if !a.IsAvailable() {
		return nil, Permanent(a.Name(), "not_configured", "missing credentials", ErrProviderUnavailable)
	}

	pl := payload.NewPayload().AlertTitle(req.Subject).AlertBody(req.Body)
	for k, v := range req.Data {
		pl = pl.Custom(k, v)
	}

	res, err := a.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: req.To,
		Topic:       a.cfg.Topic,
		Payload:     pl,
	})
	if err != nil {
		return nil, Transient(a.Name(), "request_failed", err.Error(), err)
	}
	if !res.Sent() {
		code := fmt.Sprintf("%d", res.StatusCode)
		switch {
		case res.StatusCode == http.StatusGone: // token no longer valid for the topic
			return nil, Permanent(a.Name(), code, res.Reason, nil)
		case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
			return nil, Transient(a.Name(), code, res.Reason, nil)
		default:
			return nil, Permanent(a.Name(), code, res.Reason, nil)
		}
	}

	return &Response{ProviderMessageID: res.ApnsID}, nil
}
