package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the settings the given command mode depends on. Modes:
// "score", "batch", "history", "serve".
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	switch mode {
	case "score", "batch":
		c.validateUpstream(add)
		c.validateScoring(add)
	case "serve":
		c.validateUpstream(add)
		c.validateScoring(add)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server.port must be > 0 and <= 65535")
		}
	case "history":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
	c.validateStore(add)

	if mode == "batch" {
		if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 50 {
			add("batch.concurrency must be between 1 and 50")
		}
		if c.Batch.ThrottleEvery < 0 || c.Batch.ThrottleDelayMs < 0 {
			add("batch.throttle_every and batch.throttle_delay_ms must be >= 0")
		}
		if c.Batch.SubjectTimeoutSecs < 1 || c.Batch.SubjectTimeoutSecs >= c.Redis.LeaseTTLSecs {
			add("batch.subject_timeout_secs must be >= 1 and below redis.lease_ttl_secs (%d)", c.Redis.LeaseTTLSecs)
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore(add func(string, ...any)) {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		add("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		add("store.database_url is required")
	}
}

func (c *Config) validateUpstream(add func(string, ...any)) {
	if c.Salesforce.ClientID == "" {
		add("salesforce.client_id is required")
	}
	if c.Salesforce.Username == "" {
		add("salesforce.username is required")
	}
	if c.Salesforce.KeyPath == "" {
		add("salesforce.key_path is required")
	}
	if c.Warehouse.DatabaseURL == "" {
		add("warehouse.database_url is required")
	}
}

func (c *Config) validateScoring(add func(string, ...any)) {
	if c.Scoring.WindowDays < 1 {
		add("scoring.window_days must be >= 1")
	}
	if c.Scoring.FallbackConfidence < 0 || c.Scoring.FallbackConfidence > 1 {
		add("scoring.fallback_confidence must be between 0 and 1")
	}
	if c.Alert.DropThreshold < 1 {
		add("alert.drop_threshold must be >= 1")
	}
	if c.Alert.DueInDays < 0 {
		add("alert.due_in_days must be >= 0")
	}
}
