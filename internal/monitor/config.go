package monitor

import "time"

// Config controls the billing period monitor loop.
type Config struct {
	Interval time.Duration
}

func DefaultConfig() Config {
	return Config{Interval: 10 * time.Minute}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	return c
}
