package delivery

import (
	"time"

	"github.com/heraldlabs/herald/pkg/provider"
)

// AttemptStatus is the lifecycle of a single delivery log entry.
type AttemptStatus string

const (
	AttemptProcessing AttemptStatus = "processing"
	AttemptSent       AttemptStatus = "sent"
	AttemptDelivered  AttemptStatus = "delivered"
	AttemptBounced    AttemptStatus = "bounced"
	AttemptFailed     AttemptStatus = "failed"
)

// Attempt is one dispatch try against the provider chain. Numbers start at 1
// and are strictly increasing and contiguous per notification; at most one
// attempt per notification is in the processing state at any time.
type Attempt struct {
	ID             string
	NotificationID string
	Number         int
	Channel        provider.Channel
	Status         AttemptStatus

	Provider          string
	ProviderMessageID string
	Latency           time.Duration

	ErrorCode    string
	ErrorMessage string

	CreatedAt   time.Time
	SentAt      *time.Time
	DeliveredAt *time.Time
	BouncedAt   *time.Time
	FailedAt    *time.Time
}

func (a *Attempt) markSent(providerName, messageID string, latency time.Duration, now time.Time) {
	a.Status = AttemptSent
	a.Provider = providerName
	a.ProviderMessageID = messageID
	a.Latency = latency
	a.SentAt = &now
}

func (a *Attempt) markFailed(code, message string, latency time.Duration, now time.Time) {
	a.Status = AttemptFailed
	a.ErrorCode = code
	a.ErrorMessage = message
	a.Latency = latency
	a.FailedAt = &now
}
