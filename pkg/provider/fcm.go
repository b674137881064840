package provider

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCM sends push notifications through Firebase Cloud Messaging.
type FCM struct {
	client *messaging.Client
}

// NewFCM creates the FCM push provider. Without a credentials file the
// provider is constructed unavailable.
func NewFCM(ctx context.Context, cfg FCMConfig) (*FCM, error) {
	f := &FCM{}
	if cfg.CredentialsFile == "" {
		return f, nil
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("fcm: init app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("fcm: init messaging client: %w", err)
	}
	f.client = client
	return f, nil
}

func (f *FCM) Name() string     { return "fcm" }
func (f *FCM) Channel() Channel { return ChannelPush }

func (f *FCM) IsAvailable() bool { return f.client != nil }

func (f *FCM) ValidateDestination(address string) bool { return ValidDeviceToken(address) }

func (f *FCM) Send(ctx context.Context, req Request) (*Response, error) {
	if !f.IsAvailable() {
		return nil, Permanent(f.Name(), "not_configured", "missing credentials", ErrProviderUnavailable)
	}

	id, err := f.client.Send(ctx, &messaging.Message{
		Token: req.To,
		Notification: &messaging.Notification{
			Title: req.Subject,
			Body:  req.Body,
		},
		Data: req.Data,
	})
	if err != nil {
		return nil, classifyFCMError(f.Name(), err)
	}

	return &Response{ProviderMessageID: id}, nil
}

func classifyFCMError(providerName string, err error) *SendError {
	switch {
	case messaging.IsUnregistered(err):
		// Stale device token; the registration will never come back.
		return Permanent(providerName, "unregistered", err.Error(), err)
	case errorutils.IsUnavailable(err), errorutils.IsInternal(err), errorutils.IsResourceExhausted(err):
		return Transient(providerName, "backend", err.Error(), err)
	default:
		return Permanent(providerName, "rejected", err.Error(), err)
	}
}
