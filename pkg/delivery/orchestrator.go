// Package delivery coordinates the notification lifecycle: rate limiting,
// template rendering, channel dispatch, the delivery log and retry
// scheduling. It is the only package that mutates notification status.
package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heraldlabs/herald/pkg/backoff"
	"github.com/heraldlabs/herald/pkg/circuit"
	"github.com/heraldlabs/herald/pkg/clock"
	"github.com/heraldlabs/herald/pkg/dispatch"
	"github.com/heraldlabs/herald/pkg/logger"
	"github.com/heraldlabs/herald/pkg/provider"
	"github.com/heraldlabs/herald/pkg/ratelimit"
	"github.com/heraldlabs/herald/pkg/template"
)

// Orchestrator is the top-level delivery coordinator.
type Orchestrator struct {
	storage     Storage
	dispatchers *dispatch.Registry
	limiters    map[provider.Channel]ratelimit.Limiter
	templates   *template.Engine

	// deliveryBackoff is the fine seconds-scale schedule applied after
	// vendor-level recoverable failures; notificationBackoff is the coarse
	// minutes-scale schedule MarkAsFailed surfaces to callers. Both stay in
	// play: MarkAsFailed writes the coarse timestamp first and the
	// orchestrator overrides it with the fine one when the failure was a
	// transient vendor problem.
	deliveryBackoff     backoff.Strategy
	notificationBackoff backoff.Strategy

	cfg      Config
	clk      clock.Clock
	log      *slog.Logger
	inflight *inflightSet
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithTemplates attaches the template engine for templated notifications.
func WithTemplates(e *template.Engine) Option {
	return func(o *Orchestrator) { o.templates = e }
}

// WithLimiter installs the rate limiter for one channel. Channels without a
// limiter are not rate limited.
func WithLimiter(ch provider.Channel, l ratelimit.Limiter) Option {
	return func(o *Orchestrator) { o.limiters[ch] = l }
}

// WithLimiters installs rate limiters for several channels at once.
func WithLimiters(limiters map[provider.Channel]ratelimit.Limiter) Option {
	return func(o *Orchestrator) {
		for ch, l := range limiters {
			o.limiters[ch] = l
		}
	}
}

// WithDeliveryBackoff overrides the seconds-scale vendor retry schedule.
func WithDeliveryBackoff(s backoff.Strategy) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.deliveryBackoff = s
		}
	}
}

// WithNotificationBackoff overrides the minutes-scale caller-facing schedule.
func WithNotificationBackoff(s backoff.Strategy) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.notificationBackoff = s
		}
	}
}

// WithClock injects the time source.
func WithClock(clk clock.Clock) Option {
	return func(o *Orchestrator) {
		if clk != nil {
			o.clk = clk
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// NewOrchestrator wires the delivery core together.
func NewOrchestrator(storage Storage, dispatchers *dispatch.Registry, cfg Config, opts ...Option) (*Orchestrator, error) {
	if storage == nil {
		return nil, ErrStorageRequired
	}
	if dispatchers == nil {
		return nil, ErrDispatchersRequired
	}

	o := &Orchestrator{
		storage:             storage,
		dispatchers:         dispatchers,
		limiters:            make(map[provider.Channel]ratelimit.Limiter),
		deliveryBackoff:     &backoff.Delivery{},
		notificationBackoff: &backoff.Notification{},
		cfg:                 cfg.withDefaults(),
		clk:                 clock.System(),
		log:                 slog.Default(),
		inflight:            newInflightSet(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// SendNotification persists the notification and attempts immediate delivery.
// A notification scheduled for the future is stored and left for the
// scheduled sweep; no attempt is made and no attempt entry is returned.
func (o *Orchestrator) SendNotification(ctx context.Context, n *Notification) (*Attempt, error) {
	now := o.clk.Now()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = StatusPending
	}
	if n.Priority == "" {
		n.Priority = PriorityNormal
	}
	if n.MaxRetries == 0 {
		n.MaxRetries = o.cfg.MaxRetries
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now

	if err := n.Validate(); err != nil {
		return nil, err
	}
	if n.Status != StatusPending {
		return nil, ErrInvalidState
	}

	d, err := o.dispatchers.Get(n.Channel)
	if err != nil {
		return nil, err
	}
	if !d.ValidDestination(n.Recipient) {
		return nil, ErrInvalidDestination
	}

	if err := o.storage.CreateNotification(ctx, n); err != nil {
		return nil, err
	}

	if n.ScheduledAt != nil && n.ScheduledAt.After(now) {
		o.log.LogAttrs(ctx, slog.LevelDebug, "notification deferred until schedule",
			logger.NotificationID(n.ID),
			logger.Channel(string(n.Channel)),
		)
		return nil, nil
	}
	return o.ProcessDelivery(ctx, n.ID)
}

// ProcessDelivery runs one delivery round for a pending notification: rate
// limit check, optional template render, dispatch, outcome recording and
// retry scheduling. Exactly one round per notification id runs at a time.
func (o *Orchestrator) ProcessDelivery(ctx context.Context, notificationID string) (*Attempt, error) {
	if !o.inflight.acquire(notificationID) {
		return nil, ErrDeliveryInFlight
	}
	defer o.inflight.release(notificationID)

	n, err := o.storage.GetNotification(ctx, notificationID)
	if err != nil {
		return nil, err
	}

	now := o.clk.Now()
	if n.Status != StatusPending {
		return nil, ErrInvalidState
	}
	if n.ScheduledAt != nil && n.ScheduledAt.After(now) {
		return nil, ErrInvalidState
	}

	// Rate limit before anything else. A limited round makes no vendor call,
	// so it neither consumes a retry nor produces a delivery log entry; the
	// notification simply waits out the window.
	if limiter, ok := o.limiters[n.Channel]; ok {
		res, err := limiter.Allow(ctx, string(n.Channel)+":"+n.Recipient)
		if err != nil {
			return nil, err
		}
		if !res.Allowed {
			n.Defer(ReasonRateLimited, res.ResetAt, now)
			if err := o.storage.UpdateNotification(ctx, n); err != nil {
				return nil, err
			}
			o.log.LogAttrs(ctx, slog.LevelInfo, "delivery rate limited",
				logger.NotificationID(n.ID),
				logger.Channel(string(n.Channel)),
				logger.Recipient(n.Recipient),
			)
			return nil, ErrRateLimitExceeded
		}
	}

	// Resolve the dispatcher before touching notification state so an
	// unservable channel cannot strand the row in processing.
	d, err := o.dispatchers.Get(n.Channel)
	if err != nil {
		return nil, err
	}

	n.Status = StatusProcessing
	n.NextRetryAt = nil
	n.UpdatedAt = now
	if err := o.storage.UpdateNotification(ctx, n); err != nil {
		return nil, err
	}

	req, err := o.buildRequest(ctx, n)
	if err != nil {
		// Template problems are configuration errors; retrying cannot fix
		// them, so the notification fails for good without a vendor call.
		n.Status = StatusFailed
		n.Reason = ReasonTemplateInvalid
		n.FailedAt = &now
		n.NextRetryAt = nil
		n.UpdatedAt = now
		if uerr := o.storage.UpdateNotification(ctx, n); uerr != nil {
			return nil, errors.Join(err, uerr)
		}
		return nil, err
	}

	attempt := &Attempt{
		ID:             uuid.NewString(),
		NotificationID: n.ID,
		Channel:        n.Channel,
		Status:         AttemptProcessing,
		CreatedAt:      now,
	}
	if err := o.storage.CreateAttempt(ctx, attempt); err != nil {
		// Hand the row back to the retry sweep; a processing row with no
		// attempt would never be picked up again.
		n.Status = StatusPending
		next := o.clk.Now()
		n.NextRetryAt = &next
		n.UpdatedAt = next
		if uerr := o.storage.UpdateNotification(ctx, n); uerr != nil {
			return nil, errors.Join(err, uerr)
		}
		return nil, err
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, o.cfg.ProcessTimeout)
	defer cancel()

	started := o.clk.Now()
	res, dispatchErr := d.Dispatch(dispatchCtx, *req)
	latency := o.clk.Since(started)
	done := o.clk.Now()

	if dispatchErr == nil {
		attempt.markSent(res.Provider, res.ProviderMessageID, latency, done)
		if err := o.storage.UpdateAttempt(ctx, attempt); err != nil {
			return attempt, err
		}

		// The in-app channel has no vendor confirmation step; a stored feed
		// message is already delivered.
		if n.Channel == provider.ChannelInApp {
			n.MarkAsDelivered(done)
		} else {
			n.MarkAsSent(done)
		}
		if err := o.storage.UpdateNotification(ctx, n); err != nil {
			return attempt, err
		}
		o.reportGroupProgress(ctx, n)

		o.log.LogAttrs(ctx, slog.LevelInfo, "notification sent",
			logger.NotificationID(n.ID),
			logger.Channel(string(n.Channel)),
			logger.Provider(res.Provider),
			logger.AttemptNumber(attempt.Number),
			logger.Duration(latency),
		)
		return attempt, nil
	}

	return o.recordFailure(ctx, n, attempt, dispatchErr, latency, done)
}

// recordFailure closes the attempt, advances retry bookkeeping and schedules
// the next round when one is warranted.
func (o *Orchestrator) recordFailure(ctx context.Context, n *Notification, attempt *Attempt, dispatchErr error, latency time.Duration, now time.Time) (*Attempt, error) {
	code := "dispatch_failed"
	permanent := false
	var exhausted *dispatch.ExhaustedError
	if errors.As(dispatchErr, &exhausted) {
		code = "providers_exhausted"
		permanent = exhausted.Permanent()
	}

	attempt.markFailed(code, dispatchErr.Error(), latency, now)
	if err := o.storage.UpdateAttempt(ctx, attempt); err != nil {
		return attempt, err
	}

	reason := ReasonProvidersExhausted
	if permanent {
		reason = ReasonPermanentRejection
	}
	n.MarkAsFailed(reason, o.notificationBackoff, now)

	switch {
	case permanent:
		// Non-retryable regardless of remaining budget.
		n.Status = StatusFailed
		n.NextRetryAt = nil
	case n.Status == StatusPending:
		// Vendor-level transient failure with retries left: the fine
		// seconds-scale schedule takes precedence over the coarse one.
		next := now.Add(o.deliveryBackoff.Next(n.RetryCount))
		n.NextRetryAt = &next
	default:
		n.Reason = ReasonRetriesExhausted
	}
	if err := o.storage.UpdateNotification(ctx, n); err != nil {
		return attempt, err
	}
	o.reportGroupProgress(ctx, n)

	o.log.LogAttrs(ctx, slog.LevelWarn, "delivery failed",
		logger.NotificationID(n.ID),
		logger.Channel(string(n.Channel)),
		logger.AttemptNumber(attempt.Number),
		logger.RetryCount(n.RetryCount),
		logger.Error(dispatchErr),
	)
	return attempt, errors.Join(ErrDeliveryFailed, dispatchErr)
}

// buildRequest resolves the outbound payload, rendering the template when the
// notification references one.
func (o *Orchestrator) buildRequest(ctx context.Context, n *Notification) (*provider.Request, error) {
	req := &provider.Request{
		NotificationID: n.ID,
		To:             n.Recipient,
		Subject:        n.Subject,
		Body:           n.Body,
		HTMLBody:       n.HTMLBody,
		Data:           n.Data,
		Tag:            n.TemplateID,
	}
	if !n.Templated() {
		return req, nil
	}
	if o.templates == nil {
		return nil, template.ErrTemplateNotFound
	}

	rendered, err := o.templates.Render(ctx, n.TemplateID, n.Variables, n.Locale)
	if err != nil {
		return nil, err
	}
	req.Subject = rendered.Subject
	req.Body = rendered.Body
	req.HTMLBody = rendered.HTMLBody
	req.Preheader = rendered.Preheader
	return req, nil
}

// RetryNotification forces an immediate retry, bypassing the retry timer.
// Rate limits and circuit breakers still apply.
func (o *Orchestrator) RetryNotification(ctx context.Context, notificationID string) (*Attempt, error) {
	n, err := o.storage.GetNotification(ctx, notificationID)
	if err != nil {
		return nil, err
	}

	switch n.Status {
	case StatusPending:
		if n.NextRetryAt != nil {
			n.NextRetryAt = nil
			n.UpdatedAt = o.clk.Now()
			if err := o.storage.UpdateNotification(ctx, n); err != nil {
				return nil, err
			}
		}
		return o.ProcessDelivery(ctx, notificationID)
	case StatusProcessing:
		return nil, ErrDeliveryInFlight
	case StatusFailed:
		return nil, ErrRetriesExhausted
	default:
		return nil, ErrInvalidState
	}
}

// reportGroupProgress logs bulk group counters after a state change; the
// stats themselves live in storage.
func (o *Orchestrator) reportGroupProgress(ctx context.Context, n *Notification) {
	if n.GroupID == "" {
		return
	}
	stats, err := o.storage.GroupStats(ctx, n.GroupID)
	if err != nil {
		o.log.LogAttrs(ctx, slog.LevelWarn, "group stats unavailable",
			logger.GroupID(n.GroupID),
			logger.Error(err),
		)
		return
	}
	o.log.LogAttrs(ctx, slog.LevelDebug, "group progress",
		logger.GroupID(n.GroupID),
		slog.Int64("total", stats.Total),
		slog.Int64("sent", stats.Sent),
		slog.Int64("delivered", stats.Delivered),
		slog.Int64("failed", stats.Failed),
	)
}

// GetNotification exposes current status and retry state to callers.
func (o *Orchestrator) GetNotification(ctx context.Context, id string) (*Notification, error) {
	return o.storage.GetNotification(ctx, id)
}

// ListAttempts returns the delivery log for a notification.
func (o *Orchestrator) ListAttempts(ctx context.Context, notificationID string) ([]*Attempt, error) {
	return o.storage.ListAttempts(ctx, notificationID)
}

// GroupStats returns bulk group counters.
func (o *Orchestrator) GroupStats(ctx context.Context, groupID string) (*GroupStats, error) {
	return o.storage.GroupStats(ctx, groupID)
}

// RenderTemplate renders a template outside the delivery path, for preview
// and test callers. It shares the engine's lookup and compile caches with
// delivery-time rendering.
func (o *Orchestrator) RenderTemplate(ctx context.Context, templateID string, vars map[string]any, locale string) (template.RenderResult, error) {
	if o.templates == nil {
		return template.RenderResult{}, template.ErrTemplateNotFound
	}
	return o.templates.Render(ctx, templateID, vars, locale)
}

// Metrics is the aggregate view handed to the reporting layer.
type Metrics struct {
	Notifications map[Status]int64
	Channels      map[provider.Channel]int64
	Providers     map[string]ProviderCounts
	Availability  map[provider.Channel][]string
	Breakers      map[provider.Channel]map[string]circuit.Stats
}

// Metrics snapshots delivery counts, per-provider attempt rates, availability
// and breaker state, scoped by the filter.
func (o *Orchestrator) Metrics(ctx context.Context, filter MetricsFilter) (*Metrics, error) {
	byStatus, err := o.storage.CountByStatus(ctx, filter)
	if err != nil {
		return nil, err
	}
	byChannel, err := o.storage.CountByChannel(ctx, filter)
	if err != nil {
		return nil, err
	}
	byProvider, err := o.storage.CountByProvider(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &Metrics{
		Notifications: byStatus,
		Channels:      byChannel,
		Providers:     byProvider,
		Availability:  o.dispatchers.Availability(),
		Breakers:      o.dispatchers.BreakerStats(),
	}, nil
}

// Health statuses reported by HealthCheck.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// Health is the orchestrator's readiness report.
type Health struct {
	Status       string
	Availability map[provider.Channel][]string
	QueueDepth   int64
}

// HealthCheck verifies the storage dependency and reports channel
// availability together with the number of notifications awaiting delivery.
// A storage failure is an error; a channel without providers only degrades
// the status.
func (o *Orchestrator) HealthCheck(ctx context.Context) (*Health, error) {
	if err := o.storage.Ping(ctx); err != nil {
		return nil, err
	}
	byStatus, err := o.storage.CountByStatus(ctx, MetricsFilter{})
	if err != nil {
		return nil, err
	}

	h := &Health{
		Status:       HealthOK,
		Availability: o.dispatchers.Availability(),
		QueueDepth:   byStatus[StatusPending],
	}
	if len(o.dispatchers.Channels()) == 0 {
		h.Status = HealthDegraded
	}
	return h, nil
}
