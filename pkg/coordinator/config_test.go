package coordinator

import (
	"os"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Concurrency != 3 {
		t.Errorf("expected Concurrency 3, got %d", cfg.Concurrency)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("expected PollInterval 500ms, got %v", cfg.PollInterval)
	}
	if cfg.ExecutionTimeout != 10*time.Minute {
		t.Errorf("expected ExecutionTimeout 10m, got %v", cfg.ExecutionTimeout)
	}
	if cfg.ClaimTimeout != 15*time.Minute {
		t.Errorf("expected ClaimTimeout 15m, got %v", cfg.ClaimTimeout)
	}
	if !cfg.Enabled {
		t.Error("expected Enabled to be true")
	}
}

func TestConfigFromEnv(t *testing.T) {
	tests := []struct {
		name             string
		envs             map[string]string
		wantConcurrency  int
		wantPollInterval time.Duration
		wantEnabled      bool
	}{
		{
			name:             "defaults",
			envs:             map[string]string{},
			wantConcurrency:  3,
			wantPollInterval: 500 * time.Millisecond,
			wantEnabled:      true,
		},
		{
			name: "custom values",
			envs: map[string]string{
				"LEDGER_COORDINATOR_CONCURRENCY":      "8",
				"LEDGER_COORDINATOR_POLL_INTERVAL_MS": "100",
				"LEDGER_COORDINATOR_ENABLED":          "false",
			},
			wantConcurrency:  8,
			wantPollInterval: 100 * time.Millisecond,
			wantEnabled:      false,
		},
		{
			name: "invalid concurrency falls back to default",
			envs: map[string]string{
				"LEDGER_COORDINATOR_CONCURRENCY": "invalid",
			},
			wantConcurrency:  3,
			wantPollInterval: 500 * time.Millisecond,
			wantEnabled:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envs {
				os.Setenv(k, v)
			}
			defer func() {
				for k := range tt.envs {
					os.Unsetenv(k)
				}
			}()

			cfg := ConfigFromEnv()

			if cfg.Concurrency != tt.wantConcurrency {
				t.Errorf("Concurrency = %d, want %d", cfg.Concurrency, tt.wantConcurrency)
			}
			if cfg.PollInterval != tt.wantPollInterval {
				t.Errorf("PollInterval = %v, want %v", cfg.PollInterval, tt.wantPollInterval)
			}
			if cfg.Enabled != tt.wantEnabled {
				t.Errorf("Enabled = %v, want %v", cfg.Enabled, tt.wantEnabled)
			}
		})
	}
}
