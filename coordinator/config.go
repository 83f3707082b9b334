package coordinator

import "time"

// Default values for the coordinator. If the values are not set, these values are used.
const (
	DefaultOfferTimeout  = 12 * time.Second
	DefaultRestartWindow = 10 * time.Second
	DefaultStatsInterval = time.Second
	DefaultBackoffBase   = time.Second
	DefaultBackoffMax    = 16 * time.Second
	DefaultMaxAttempts   = 5
	DefaultEventBuffer   = 64
)

// Config contains the configuration for the coordinator.
type Config struct {
	OfferTimeout  time.Duration
	RestartWindow time.Duration
	StatsInterval time.Duration
	Backoff       Backoff
}

func (c Config) withDefaults() Config {
	if c.OfferTimeout <= 0 {
		c.OfferTimeout = DefaultOfferTimeout
	}
	if c.RestartWindow <= 0 {
		c.RestartWindow = DefaultRestartWindow
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = DefaultStatsInterval
	}
	if c.Backoff.Base <= 0 {
		c.Backoff.Base = DefaultBackoffBase
	}
	if c.Backoff.Max <= 0 {
		c.Backoff.Max = DefaultBackoffMax
	}
	if c.Backoff.MaxAttempts <= 0 {
		c.Backoff.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// Backoff is the reconnect policy of a session. The delay doubles with every
// attempt and is capped at Max.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

// Next returns the delay before the given attempt, counted from 1, and false
// once the attempts are exhausted.
func (b Backoff) Next(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt > b.MaxAttempts {
		return 0, false
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max, true
		}
	}
	return min(d, b.Max), true
}
