package ratelimit

import "time"

// Config holds per-channel rate limit settings. Ceilings are deployment
// tuning, not protocol constants.
type Config struct {
	EmailLimit  int           `env:"RATELIMIT_EMAIL_LIMIT" envDefault:"300"`
	EmailWindow time.Duration `env:"RATELIMIT_EMAIL_WINDOW" envDefault:"1m"`
	SMSLimit    int           `env:"RATELIMIT_SMS_LIMIT" envDefault:"300"`
	SMSWindow   time.Duration `env:"RATELIMIT_SMS_WINDOW" envDefault:"1m"`
	PushLimit   int           `env:"RATELIMIT_PUSH_LIMIT" envDefault:"300"`
	PushWindow  time.Duration `env:"RATELIMIT_PUSH_WINDOW" envDefault:"1m"`
	InAppLimit  int           `env:"RATELIMIT_INAPP_LIMIT" envDefault:"300"`
	InAppWindow time.Duration `env:"RATELIMIT_INAPP_WINDOW" envDefault:"1m"`
}
