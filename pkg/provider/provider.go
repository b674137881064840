// Package provider contains the vendor adapters behind each delivery channel.
//
// Every adapter normalizes its vendor's response into the same Response and
// SendError shapes at this boundary; vendor-specific fields never leak into
// the dispatch or orchestration layers. Adapters also classify failures as
// transient or permanent - the dispatcher reads that classification, it never
// decides it.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Channel is a notification medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
	ChannelInApp Channel = "in_app"
)

// Valid reports whether the channel is one of the known media.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp:
		return true
	}
	return false
}

// Request is the channel-agnostic payload handed to an adapter. Rendered
// content is already resolved by the time a request reaches a provider.
type Request struct {
	NotificationID string
	To             string
	Subject        string
	Body           string
	HTMLBody       string
	Preheader      string
	Data           map[string]string // push payload / message metadata
	Tag            string
}

// Response is the normalized successful outcome of a vendor call.
type Response struct {
	ProviderMessageID string
	Raw               string // verbatim vendor response detail for the delivery log
}

// Class classifies a send failure.
type Class int

const (
	// ClassTransient marks timeouts, 5xx responses and vendor throttling.
	// Transient failures are retried and counted against the provider's
	// circuit breaker.
	ClassTransient Class = iota

	// ClassPermanent marks invalid destinations and hard vendor rejections.
	// Permanent failures are never retried.
	ClassPermanent
)

func (c Class) String() string {
	if c == ClassPermanent {
		return "permanent"
	}
	return "transient"
}

// SendError is the normalized failure shape every adapter returns.
type SendError struct {
	Provider string
	Class    Class
	Code     string
	Message  string
	cause    error
}

func (e *SendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s failure [%s]: %s", e.Provider, e.Class, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s failure: %s", e.Provider, e.Class, e.Message)
}

func (e *SendError) Unwrap() error { return e.cause }

// Transient builds a retryable SendError.
func Transient(providerName, code, message string, cause error) *SendError {
	return &SendError{Provider: providerName, Class: ClassTransient, Code: code, Message: message, cause: cause}
}

// Permanent builds a non-retryable SendError.
func Permanent(providerName, code, message string, cause error) *SendError {
	return &SendError{Provider: providerName, Class: ClassPermanent, Code: code, Message: message, cause: cause}
}

// IsTransient reports whether err is a SendError classified as transient.
// Unclassified errors (cancelled contexts, unexpected transport failures) are
// treated as transient so a vendor blip never strands a notification.
func IsTransient(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Class == ClassTransient
	}
	return true
}

// IsPermanent reports whether err is a SendError classified as permanent.
func IsPermanent(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Class == ClassPermanent
	}
	return false
}

// Provider is the uniform contract every vendor adapter implements.
type Provider interface {
	// Name identifies the vendor, e.g. "sendgrid".
	Name() string

	// Channel returns which delivery channel this provider serves.
	Channel() Channel

	// IsAvailable reports whether credentials/config are present. Dispatchers
	// exclude unavailable providers at startup.
	IsAvailable() bool

	// ValidateDestination reports whether the address is plausible for this
	// provider's channel.
	ValidateDestination(address string) bool

	// Send performs exactly one outbound vendor call.
	Send(ctx context.Context, req Request) (*Response, error)
}
