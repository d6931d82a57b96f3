// Package config supplies invocation tunables with environment overrides.
package config

import (
	"os"
	"time"

	"github.com/sabre1041/community.kubernetes/internal/scaler"
)

// ScaleConfig carries the tunables of a scale invocation.
type ScaleConfig struct {
	// PollInterval is the sleep between convergence checks.
	PollInterval time.Duration

	// WaitTimeout bounds the convergence wait.
	WaitTimeout time.Duration
}

var DefaultScaleConfig = ScaleConfig{
	PollInterval: scaler.DefaultPollInterval,
	WaitTimeout:  scaler.DefaultWaitTimeout,
}

// FromEnv returns the defaults with POLL_INTERVAL and WAIT_TIMEOUT
// environment overrides applied. Unparseable values keep the default.
func FromEnv() ScaleConfig {
	cfg := DefaultScaleConfig
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollInterval = d
		}
	}
	if v := os.Getenv("WAIT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WaitTimeout = d
		}
	}
	return cfg
}
