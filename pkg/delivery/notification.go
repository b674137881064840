package delivery

import (
	"time"

	"github.com/heraldlabs/herald/pkg/backoff"
	"github.com/heraldlabs/herald/pkg/provider"
)

// Status is a notification's position in the delivery lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusDelivered  Status = "delivered"
	StatusFailed     Status = "failed"
)

// transitions is the forward-only state machine. A failed notification may
// move back to pending only when a retry has been scheduled; delivered is
// terminal.
var transitions = map[Status]map[Status]struct{}{
	StatusPending:    {StatusProcessing: {}},
	StatusProcessing: {StatusSent: {}, StatusDelivered: {}, StatusFailed: {}},
	StatusSent:       {StatusDelivered: {}, StatusFailed: {}},
	StatusFailed:     {StatusPending: {}},
	StatusDelivered:  {},
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	_, ok := transitions[s][next]
	return ok
}

// Terminal reports whether the status admits no further transitions for a
// notification with exhausted retries.
func (s Status) Terminal() bool {
	return s == StatusDelivered
}

// Priority orders bulk submission; it carries no scheduling weight inside a
// single dispatch.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Notification is one message to one recipient over one channel. The caller
// owns identity and content; the delivery core only mutates status and retry
// bookkeeping.
type Notification struct {
	ID        string
	Channel   provider.Channel
	Recipient string
	Priority  Priority

	// Raw content, or a template reference rendered at dispatch time.
	Subject    string
	Body       string
	HTMLBody   string
	TemplateID string
	Variables  map[string]any
	Locale     string
	Data       map[string]string

	Status Status
	Reason string // human-readable, set on rate-limit deferrals and failures

	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time
	ScheduledAt *time.Time

	GroupID string // bulk submission group, empty for standalone sends

	CreatedAt   time.Time
	UpdatedAt   time.Time
	SentAt      *time.Time
	DeliveredAt *time.Time
	FailedAt    *time.Time
}

// Templated reports whether content comes from the template engine.
func (n *Notification) Templated() bool { return n.TemplateID != "" }

// RetriesLeft reports whether another attempt is permitted.
func (n *Notification) RetriesLeft() bool { return n.RetryCount < n.MaxRetries }

// MarkAsFailed records a failed processing round. The retry counter
// increments and, while retries remain, the notification returns to pending
// with a coarse minutes-scale NextRetryAt so callers always see when the next
// try happens even before the orchestrator refines it. Out of retries, the
// notification stays failed for good.
func (n *Notification) MarkAsFailed(reason string, strategy backoff.Strategy, now time.Time) {
	n.RetryCount++
	n.Status = StatusFailed
	n.Reason = reason
	n.FailedAt = &now
	n.UpdatedAt = now
	n.NextRetryAt = nil

	if !n.RetriesLeft() {
		return
	}
	next := now.Add(strategy.Next(n.RetryCount))
	n.Status = StatusPending
	n.NextRetryAt = &next
}

// MarkAsSent records a successful vendor hand-off.
func (n *Notification) MarkAsSent(now time.Time) {
	n.Status = StatusSent
	n.Reason = ""
	n.SentAt = &now
	n.UpdatedAt = now
	n.NextRetryAt = nil
}

// MarkAsDelivered records end-recipient delivery confirmation.
func (n *Notification) MarkAsDelivered(now time.Time) {
	n.Status = StatusDelivered
	n.Reason = ""
	n.DeliveredAt = &now
	n.UpdatedAt = now
	n.NextRetryAt = nil
}

// Defer reschedules a pending notification without consuming a retry. Used
// when no vendor call happened, e.g. a rate-limited round.
func (n *Notification) Defer(reason string, until, now time.Time) {
	n.Status = StatusPending
	n.Reason = reason
	n.NextRetryAt = &until
	n.UpdatedAt = now
}

// Validate checks the fields the delivery core depends on.
func (n *Notification) Validate() error {
	switch {
	case n.ID == "":
		return ErrMissingID
	case !n.Channel.Valid():
		return ErrUnknownChannel
	case n.Recipient == "":
		return ErrMissingRecipient
	case n.TemplateID == "" && n.Body == "" && n.HTMLBody == "":
		return ErrMissingContent
	case n.MaxRetries < 0:
		return ErrInvalidMaxRetries
	case n.RetryCount > n.MaxRetries:
		return ErrRetryCountExceedsMax
	}
	return nil
}
