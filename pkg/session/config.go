package session

import (
	"os"
	"strconv"
	"time"
)

// Config controls session issuance and upgrade credential validation.
type Config struct {
	// SigningKey is the HMAC key upgrade credentials must be signed with.
	// Empty disables signature validation (tests, single-user deployments).
	SigningKey string
	// IdleTimeout revokes sessions not seen for this long. Zero disables
	// idle revocation.
	IdleTimeout time.Duration
	// SweepInterval is how often the idle sweep runs. Default 5m.
	SweepInterval time.Duration
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() *Config {
	return &Config{
		IdleTimeout:   0,
		SweepInterval: 5 * time.Minute,
	}
}

// ConfigFromEnv loads config from environment variables.
// LEDGER_SESSION_SIGNING_KEY, LEDGER_SESSION_IDLE_TIMEOUT_MINUTES,
// LEDGER_SESSION_SWEEP_INTERVAL_MINUTES
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	cfg.SigningKey = os.Getenv("LEDGER_SESSION_SIGNING_KEY")

	if v := os.Getenv("LEDGER_SESSION_IDLE_TIMEOUT_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.IdleTimeout = time.Duration(n) * time.Minute
		}
	}

	if v := os.Getenv("LEDGER_SESSION_SWEEP_INTERVAL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SweepInterval = time.Duration(n) * time.Minute
		}
	}

	return cfg
}
