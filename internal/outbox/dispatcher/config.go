package dispatcher

import "time"

// Config controls the outbox dispatch loop. A row is parked after
// MaxAttempts counted publish failures.
type Config struct {
	BatchSize    int
	PollInterval time.Duration
	RunTimeout   time.Duration
	LockTTL      time.Duration
	MaxAttempts  int
}

func DefaultConfig() Config {
	return Config{
		BatchSize:    100,
		PollInterval: time.Second,
		RunTimeout:   10 * time.Second,
		LockTTL:      15 * time.Second,
		MaxAttempts:  20,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	return c
}
