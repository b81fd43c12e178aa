package cache

import (
	"os"
	"strconv"
	"time"
)

// CacheConfig controls the discovery query response cache.
type CacheConfig struct {
	Enabled bool          // Whether response caching is active. Default true.
	MaxSize int           // Max cached responses. Default 512.
	TTL     time.Duration // Entry time-to-live. Default 30s.
}

// DefaultCacheConfig returns the default cache configuration.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Enabled: true,
		MaxSize: 512,
		TTL:     30 * time.Second,
	}
}

// CacheConfigFromEnv loads cache config from environment variables.
// LEDGER_CACHE_ENABLED, LEDGER_CACHE_MAX_SIZE, LEDGER_CACHE_TTL_SECONDS
func CacheConfigFromEnv() *CacheConfig {
	cfg := DefaultCacheConfig()

	if v := os.Getenv("LEDGER_CACHE_ENABLED"); v != "" {
		cfg.Enabled, _ = strconv.ParseBool(v)
	}

	if v := os.Getenv("LEDGER_CACHE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSize = n
		}
	}

	if v := os.Getenv("LEDGER_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TTL = time.Duration(n) * time.Second
		}
	}

	return cfg
}
