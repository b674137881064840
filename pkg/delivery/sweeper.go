package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/heraldlabs/herald/pkg/logger"
)

// Sweeper runs the three periodic maintenance tasks: promoting scheduled
// notifications, promoting due retries, and garbage-collecting terminal rows
// plus idle breaker state. Each task runs on its own timer so a slow vendor
// call inside one sweep never delays the others.
type Sweeper struct {
	orch *Orchestrator
	cfg  Config
	cron *cron.Cron
	log  *slog.Logger

	// gcHooks run during the GC sweep, after storage purge. Wired to cache,
	// rate limiter and breaker purges by the caller.
	gcHooks []func()
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithGCHook registers an extra cleanup run on the GC interval.
func WithGCHook(hook func()) SweeperOption {
	return func(s *Sweeper) {
		if hook != nil {
			s.gcHooks = append(s.gcHooks, hook)
		}
	}
}

// WithSweeperLogger attaches a logger.
func WithSweeperLogger(log *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if log != nil {
			s.log = log
		}
	}
}

// NewSweeper creates the sweeper; Start schedules the jobs.
func NewSweeper(orch *Orchestrator, opts ...SweeperOption) (*Sweeper, error) {
	if orch == nil {
		return nil, errors.New("orchestrator is required")
	}
	s := &Sweeper{
		orch: orch,
		cfg:  orch.cfg,
		cron: cron.New(),
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start registers the periodic jobs and launches the scheduler.
func (s *Sweeper) Start() error {
	jobs := []struct {
		every time.Duration
		run   func()
	}{
		{s.cfg.ScheduledSweepInterval, s.sweepScheduled},
		{s.cfg.RetrySweepInterval, s.sweepRetries},
		{s.cfg.GCInterval, s.sweepGC},
	}
	for _, job := range jobs {
		if _, err := s.cron.AddFunc("@every "+job.every.String(), job.run); err != nil {
			return err
		}
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling and returns a context that closes when running jobs
// finish.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Sweeper) sweepScheduled() {
	ctx := context.Background()
	due, err := s.orch.storage.ListScheduled(ctx, s.orch.clk.Now(), s.cfg.SweepBatchSize)
	if err != nil {
		s.log.LogAttrs(ctx, slog.LevelError, "scheduled sweep failed",
			logger.Component("sweeper"),
			logger.Error(err),
		)
		return
	}
	s.process(ctx, due)
}

func (s *Sweeper) sweepRetries() {
	ctx := context.Background()
	due, err := s.orch.storage.ListDueRetries(ctx, s.orch.clk.Now(), s.cfg.SweepBatchSize)
	if err != nil {
		s.log.LogAttrs(ctx, slog.LevelError, "retry sweep failed",
			logger.Component("sweeper"),
			logger.Error(err),
		)
		return
	}
	s.process(ctx, due)
}

// process re-submits due notifications sequentially. Deliveries already in
// flight (picked up by a concurrent manual retry) and rate-limited deferrals
// are expected outcomes, not sweep errors.
func (s *Sweeper) process(ctx context.Context, due []*Notification) {
	for _, n := range due {
		_, err := s.orch.ProcessDelivery(ctx, n.ID)
		switch {
		case err == nil,
			errors.Is(err, ErrDeliveryInFlight),
			errors.Is(err, ErrRateLimitExceeded),
			errors.Is(err, ErrInvalidState),
			errors.Is(err, ErrDeliveryFailed):
		default:
			s.log.LogAttrs(ctx, slog.LevelError, "sweep delivery errored",
				logger.Component("sweeper"),
				logger.NotificationID(n.ID),
				logger.Error(err),
			)
		}
	}
}

func (s *Sweeper) sweepGC() {
	ctx := context.Background()
	cutoff := s.orch.clk.Now().Add(-s.cfg.Retention)
	purged, err := s.orch.storage.PurgeTerminal(ctx, cutoff)
	if err != nil {
		s.log.LogAttrs(ctx, slog.LevelError, "gc sweep failed",
			logger.Component("sweeper"),
			logger.Error(err),
		)
	} else if purged > 0 {
		s.log.LogAttrs(ctx, slog.LevelInfo, "purged terminal notifications",
			logger.Component("sweeper"),
			slog.Int64("purged", purged),
		)
	}

	s.orch.dispatchers.PurgeBreakers()
	for _, hook := range s.gcHooks {
		hook()
	}
}
