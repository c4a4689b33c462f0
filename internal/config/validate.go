package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for values the operator cannot run with.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}

	if c.LeaderElection.Enabled && c.LeaderElection.ID == "" {
		return errors.New("leaderElection.id is required when leader election is enabled")
	}

	if err := c.Backoff.validate(); err != nil {
		return fmt.Errorf("backoff validation failed: %w", err)
	}

	return nil
}

func (b Backoff) validate() error {
	if b.BaseDelay <= 0 {
		return fmt.Errorf("baseDelay must be positive, got %s", b.BaseDelay)
	}
	if b.MaxDelay < b.BaseDelay {
		return fmt.Errorf("maxDelay %s is below baseDelay %s", b.MaxDelay, b.BaseDelay)
	}
	if b.QPS <= 0 {
		return fmt.Errorf("qps must be positive, got %v", b.QPS)
	}
	if b.Burst < 1 {
		return fmt.Errorf("burst must be at least 1, got %d", b.Burst)
	}
	return nil
}
