package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	outputFmt string
	tenantID  string
	sessionID string
)

// apiBase matches the server's versioned mount point.
const apiBase = "/api/ledger/v1alpha1"

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "CLI for the intent and artifact ledger server",
	Long: `ledgerctl drives the ledger server: session leases, intent submission,
execution polling, and artifact inspection.

Listing commands read the discovery index, which may lag the artifact store;
use "artifacts get" for authoritative data.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Ledger server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVarP(&tenantID, "tenant", "t", "", "Tenant for multi-tenant operations (default: from LEDGER_TENANT env)")
	rootCmd.PersistentFlags().StringVarP(&sessionID, "session", "s", "", "Session lease id (default: from LEDGER_SESSION env)")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(intentsCmd)
	rootCmd.AddCommand(artifactsCmd)
	rootCmd.AddCommand(discoverCmd)
}

// resolvedTenant returns the effective tenant id.
// Priority: --tenant flag > LEDGER_TENANT env var > "" (single-tenant).
func resolvedTenant() string {
	if tenantID != "" {
		return tenantID
	}
	return os.Getenv("LEDGER_TENANT")
}

// resolvedSession returns the effective session lease id.
func resolvedSession() string {
	if sessionID != "" {
		return sessionID
	}
	return os.Getenv("LEDGER_SESSION")
}
