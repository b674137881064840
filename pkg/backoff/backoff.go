// Package backoff provides the retry delay policies used by the delivery core.
//
// Two deliberately separate policies exist. Delivery computes seconds-scale
// delays for vendor-level transient failures and produces the authoritative
// NextRetryAt on the notification. Notification computes the coarser
// minutes-scale delay applied when a processing sweep defers a notification.
// They must not be merged into one curve.
package backoff

import (
	"math"
	"time"
)

// Strategy computes the delay before the next retry.
// retryCount is the number of failures so far; the first retry is computed
// with retryCount = 1.
type Strategy interface {
	Next(retryCount int) time.Duration
}

// Delivery implements the per-attempt exponential policy:
// min(Base * Multiplier^retryCount, Max).
type Delivery struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
}

// Next returns the exponential delay for the given retry count.
// Zero-valued fields fall back to the defaults: base 5s, multiplier 2, cap 5m.
func (d Delivery) Next(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}

	base := d.Base
	if base == 0 {
		base = 5 * time.Second
	}
	multiplier := d.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}
	max := d.Max
	if max == 0 {
		max = 5 * time.Minute
	}

	delay := float64(base) * math.Pow(multiplier, float64(retryCount))
	if delay > float64(max) {
		return max
	}
	return time.Duration(delay)
}

// Notification implements the sweep-level policy: 5 * 3^(retryCount-1)
// minutes, i.e. 5m, 15m, 45m, capped at Max.
type Notification struct {
	Max time.Duration
}

// Next returns the minutes-scale delay for the given retry count.
func (n Notification) Next(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}

	max := n.Max
	if max == 0 {
		max = 24 * time.Hour
	}

	delay := 5 * time.Minute * time.Duration(math.Pow(3, float64(retryCount-1)))
	if delay > max || delay <= 0 {
		return max
	}
	return delay
}

// Fixed returns the same delay for every retry. Used by tests and manual
// retry paths that want a predictable schedule.
type Fixed struct {
	Interval time.Duration
}

func (f Fixed) Next(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	return f.Interval
}
