package config

import (
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type SchedulerConfig struct {
	// PollInterval is how often due soundcron runs are pulled.
	PollInterval time.Duration `env:"SCHEDULER_POLL_INTERVAL, default=1m"`
	// Lookahead is how far past now runs are pulled. It must cover the poll
	// interval or runs are played late.
	Lookahead time.Duration `env:"SCHEDULER_LOOKAHEAD, default=2m"`
}

func NewSchedulerConfig(l envconfig.Lookuper) (*SchedulerConfig, error) {
	var cfg SchedulerConfig
	if err := process(l, &cfg); err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("SCHEDULER_POLL_INTERVAL must be positive, got %s", cfg.PollInterval)
	}
	if cfg.Lookahead < cfg.PollInterval {
		return nil, fmt.Errorf("SCHEDULER_LOOKAHEAD (%s) must be at least SCHEDULER_POLL_INTERVAL (%s)", cfg.Lookahead, cfg.PollInterval)
	}
	return &cfg, nil
}
