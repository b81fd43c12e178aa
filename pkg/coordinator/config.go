package coordinator

import (
	"os"
	"strconv"
	"time"
)

// Config controls coordinator worker behavior.
type Config struct {
	Concurrency      int           // Max concurrent executions. Default 3.
	PollInterval     time.Duration // How often workers poll for pending intents. Default 500ms.
	ExecutionTimeout time.Duration // Max wall time for one execution. Default 10m.
	ClaimTimeout     time.Duration // Max time an intent can sit in_progress before the sweep fails it. Default 15m.
	SweepInterval    time.Duration // How often the recovery sweep runs. Default 1m.
	Enabled          bool          // Whether workers run. Default true.
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() *Config {
	return &Config{
		Concurrency:      3,
		PollInterval:     500 * time.Millisecond,
		ExecutionTimeout: 10 * time.Minute,
		ClaimTimeout:     15 * time.Minute,
		SweepInterval:    time.Minute,
		Enabled:          true,
	}
}

// ConfigFromEnv loads config from environment variables.
// LEDGER_COORDINATOR_CONCURRENCY, LEDGER_COORDINATOR_POLL_INTERVAL_MS,
// LEDGER_COORDINATOR_EXECUTION_TIMEOUT_MINUTES,
// LEDGER_COORDINATOR_CLAIM_TIMEOUT_MINUTES, LEDGER_COORDINATOR_ENABLED
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("LEDGER_COORDINATOR_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Concurrency = n
		}
	}

	if v := os.Getenv("LEDGER_COORDINATOR_POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PollInterval = time.Duration(n) * time.Millisecond
		}
	}

	if v := os.Getenv("LEDGER_COORDINATOR_EXECUTION_TIMEOUT_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ExecutionTimeout = time.Duration(n) * time.Minute
		}
	}

	if v := os.Getenv("LEDGER_COORDINATOR_CLAIM_TIMEOUT_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ClaimTimeout = time.Duration(n) * time.Minute
		}
	}

	if v := os.Getenv("LEDGER_COORDINATOR_ENABLED"); v != "" {
		cfg.Enabled, _ = strconv.ParseBool(v)
	}

	return cfg
}
