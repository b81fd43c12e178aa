package blob

import (
	"os"
	"strconv"
	"time"
)

// BadgerConfigFromEnv loads blob store config from environment variables.
// LEDGER_BLOB_PATH, LEDGER_BLOB_IN_MEMORY, LEDGER_BLOB_SYNC_WRITES,
// LEDGER_BLOB_GC_INTERVAL_MINUTES
func BadgerConfigFromEnv() BadgerConfig {
	path := os.Getenv("LEDGER_BLOB_PATH")
	if path == "" {
		path = "/var/lib/ledger/blobs"
	}
	cfg := DefaultBadgerConfig(path)

	if v := os.Getenv("LEDGER_BLOB_IN_MEMORY"); v != "" {
		cfg.InMemory, _ = strconv.ParseBool(v)
	}

	if v := os.Getenv("LEDGER_BLOB_SYNC_WRITES"); v != "" {
		cfg.SyncWrites, _ = strconv.ParseBool(v)
	}

	if v := os.Getenv("LEDGER_BLOB_GC_INTERVAL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.GCInterval = time.Duration(n) * time.Minute
		}
	}

	return cfg
}
