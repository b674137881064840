package delivery

import (
	"context"
	"time"

	"github.com/heraldlabs/herald/pkg/provider"
)

// GroupStats summarizes one bulk submission group.
type GroupStats struct {
	GroupID   string
	Total     int64
	Pending   int64
	Sent      int64
	Delivered int64
	Failed    int64
}

// MetricsFilter narrows metric aggregation. Zero values match everything.
type MetricsFilter struct {
	Channel provider.Channel
	Since   time.Time
}

// ProviderCounts aggregates the delivery log for one provider.
type ProviderCounts struct {
	Attempts  int64
	Sent      int64
	Delivered int64
	Failed    int64
}

// FailureRate reports the share of attempts that ended failed or bounced.
func (c ProviderCounts) FailureRate() float64 {
	if c.Attempts == 0 {
		return 0
	}
	return float64(c.Failed) / float64(c.Attempts)
}

// Storage persists notifications and their delivery log. Implementations
// must keep attempt numbers per notification strictly increasing and
// contiguous; callers rely on CreateAttempt assigning the next number.
type Storage interface {
	CreateNotification(ctx context.Context, n *Notification) error
	GetNotification(ctx context.Context, id string) (*Notification, error)
	UpdateNotification(ctx context.Context, n *Notification) error

	// ListScheduled returns pending notifications whose ScheduledAt has
	// arrived and that are not waiting on a retry timer.
	ListScheduled(ctx context.Context, now time.Time, limit int) ([]*Notification, error)

	// ListDueRetries returns pending notifications whose NextRetryAt has
	// arrived.
	ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*Notification, error)

	// CreateAttempt assigns the next attempt number for the notification and
	// persists the entry, reporting the assigned number on the struct.
	CreateAttempt(ctx context.Context, a *Attempt) error
	UpdateAttempt(ctx context.Context, a *Attempt) error
	ListAttempts(ctx context.Context, notificationID string) ([]*Attempt, error)

	// FindAttemptByProviderMessage resolves a vendor callback to the attempt
	// that produced the message.
	FindAttemptByProviderMessage(ctx context.Context, providerName, messageID string) (*Attempt, error)

	CountByStatus(ctx context.Context, filter MetricsFilter) (map[Status]int64, error)
	CountByChannel(ctx context.Context, filter MetricsFilter) (map[provider.Channel]int64, error)

	// CountByProvider aggregates the delivery log per provider name.
	CountByProvider(ctx context.Context, filter MetricsFilter) (map[string]ProviderCounts, error)
	GroupStats(ctx context.Context, groupID string) (*GroupStats, error)

	// PurgeTerminal deletes settled notifications (and their attempts)
	// older than the cutoff, returning how many went. Settled covers
	// delivered, failed and sent rows whose callbacks never arrived;
	// pending and processing rows are never reclaimed.
	PurgeTerminal(ctx context.Context, cutoff time.Time) (int64, error)

	Ping(ctx context.Context) error
}
