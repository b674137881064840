package delivery

import (
	"time"

	"github.com/heraldlabs/herald/pkg/provider"
	"github.com/heraldlabs/herald/pkg/ratelimit"
)

// Config tunes the delivery orchestrator and its background sweeps.
type Config struct {
	MaxRetries     int           `env:"DELIVERY_MAX_RETRIES" envDefault:"3"`
	ProcessTimeout time.Duration `env:"DELIVERY_PROCESS_TIMEOUT" envDefault:"30s"`

	ScheduledSweepInterval time.Duration `env:"DELIVERY_SCHEDULED_SWEEP_INTERVAL" envDefault:"30s"`
	RetrySweepInterval     time.Duration `env:"DELIVERY_RETRY_SWEEP_INTERVAL" envDefault:"15s"`
	GCInterval             time.Duration `env:"DELIVERY_GC_INTERVAL" envDefault:"1h"`
	SweepBatchSize         int           `env:"DELIVERY_SWEEP_BATCH_SIZE" envDefault:"100"`
	Retention              time.Duration `env:"DELIVERY_RETENTION" envDefault:"720h"`

	BulkBatchSize  int           `env:"DELIVERY_BULK_BATCH_SIZE" envDefault:"50"`
	BulkBatchDelay time.Duration `env:"DELIVERY_BULK_BATCH_DELAY" envDefault:"1s"`
	BulkMaxGroup   int           `env:"DELIVERY_BULK_MAX_GROUP" envDefault:"10000"`
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = 30 * time.Second
	}
	if c.ScheduledSweepInterval <= 0 {
		c.ScheduledSweepInterval = 30 * time.Second
	}
	if c.RetrySweepInterval <= 0 {
		c.RetrySweepInterval = 15 * time.Second
	}
	if c.GCInterval <= 0 {
		c.GCInterval = time.Hour
	}
	if c.SweepBatchSize <= 0 {
		c.SweepBatchSize = 100
	}
	if c.Retention <= 0 {
		c.Retention = 30 * 24 * time.Hour
	}
	if c.BulkBatchSize <= 0 {
		c.BulkBatchSize = 50
	}
	if c.BulkMaxGroup <= 0 {
		c.BulkMaxGroup = 10000
	}
	return c
}

// NewLimiters builds one fixed-window limiter per channel from the rate
// limit configuration, all sharing the given store.
func NewLimiters(cfg ratelimit.Config, store ratelimit.Store) (map[provider.Channel]ratelimit.Limiter, error) {
	specs := []struct {
		channel provider.Channel
		limit   int
		window  time.Duration
	}{
		{provider.ChannelEmail, cfg.EmailLimit, cfg.EmailWindow},
		{provider.ChannelSMS, cfg.SMSLimit, cfg.SMSWindow},
		{provider.ChannelPush, cfg.PushLimit, cfg.PushWindow},
		{provider.ChannelInApp, cfg.InAppLimit, cfg.InAppWindow},
	}

	out := make(map[provider.Channel]ratelimit.Limiter, len(specs))
	for _, spec := range specs {
		limiter, err := ratelimit.NewFixedWindow(store, spec.limit, spec.window)
		if err != nil {
			return nil, err
		}
		out[spec.channel] = limiter
	}
	return out, nil
}
