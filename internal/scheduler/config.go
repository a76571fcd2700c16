package scheduler

import (
	"time"

	"github.com/andinolabs/canje/internal/config"
)

// Config controls the sweep cadence.
type Config struct {
	RunInterval  time.Duration
	SweepTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:  time.Minute,
		SweepTimeout: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.SweepTimeout <= 0 {
		c.SweepTimeout = defaults.SweepTimeout
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	out := Config{}
	if cfg.VoucherSweepSeconds > 0 {
		out.RunInterval = time.Duration(cfg.VoucherSweepSeconds) * time.Second
	}
	return out.withDefaults()
}
