// Package tenancy provides tenant context resolution and middleware for the
// ledger server. It supports single-tenant (backward compatible) and
// header-based multi-tenant modes.
package tenancy

import "os"

// TenancyMode controls how tenant context is resolved.
type TenancyMode string

const (
	// ModeSingle uses the "default" tenant for all requests (backward compat).
	ModeSingle TenancyMode = "single"
	// ModeHeader requires a tenant id per request (multi-tenant).
	ModeHeader TenancyMode = "header"
)

// ModeFromEnv reads LEDGER_TENANCY_MODE and returns the configured mode.
// Unknown or empty values fall back to ModeSingle.
func ModeFromEnv() TenancyMode {
	switch TenancyMode(os.Getenv("LEDGER_TENANCY_MODE")) {
	case ModeHeader:
		return ModeHeader
	default:
		return ModeSingle
	}
}
