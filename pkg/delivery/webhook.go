package delivery

import (
	"context"
	"errors"
	"log/slog"

	"github.com/heraldlabs/herald/pkg/logger"
	"github.com/heraldlabs/herald/pkg/provider"
)

// ApplyProviderEvent folds a vendor delivery callback into the attempt and
// notification it refers to. Engagement events (opens, clicks) and unmapped
// event types are logged and otherwise ignored; they do not move delivery
// state. Events for unknown message ids are dropped silently since vendors
// replay callbacks long after retention windows.
func (o *Orchestrator) ApplyProviderEvent(ctx context.Context, providerName, messageID, eventType string) error {
	status := provider.TranslateEvent(providerName, eventType)

	o.log.LogAttrs(ctx, slog.LevelDebug, "provider event received",
		logger.Provider(providerName),
		slog.String("event_type", eventType),
		slog.String("status", string(status)),
	)
	if !status.Terminal() {
		return nil
	}

	attempt, err := o.storage.FindAttemptByProviderMessage(ctx, providerName, messageID)
	if err != nil {
		if errors.Is(err, ErrAttemptNotFound) {
			return nil
		}
		return err
	}
	n, err := o.storage.GetNotification(ctx, attempt.NotificationID)
	if err != nil {
		return err
	}

	now := o.clk.Now()
	switch status {
	case provider.EventDelivered:
		if attempt.Status == AttemptSent {
			attempt.Status = AttemptDelivered
			attempt.DeliveredAt = &now
			if err := o.storage.UpdateAttempt(ctx, attempt); err != nil {
				return err
			}
		}
		if n.Status.CanTransition(StatusDelivered) {
			n.MarkAsDelivered(now)
			if err := o.storage.UpdateNotification(ctx, n); err != nil {
				return err
			}
		}

	case provider.EventBounced, provider.EventComplained, provider.EventFailed:
		attempt.Status = AttemptBounced
		attempt.BouncedAt = &now
		attempt.ErrorCode = eventType
		if status == provider.EventFailed {
			attempt.Status = AttemptFailed
			attempt.FailedAt = &now
		}
		if err := o.storage.UpdateAttempt(ctx, attempt); err != nil {
			return err
		}

		// A bounce after a successful hand-off means the address is bad;
		// retrying through another vendor would bounce again.
		if n.Status.CanTransition(StatusFailed) {
			n.Status = StatusFailed
			n.Reason = "bounced: " + eventType
			n.FailedAt = &now
			n.NextRetryAt = nil
			n.UpdatedAt = now
			if err := o.storage.UpdateNotification(ctx, n); err != nil {
				return err
			}
		}
	}

	o.reportGroupProgress(ctx, n)
	return nil
}
