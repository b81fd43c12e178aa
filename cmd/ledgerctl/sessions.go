package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage session leases",
}

func init() {
	sessionsCmd.AddCommand(sessionsBeginCmd)
	sessionsCmd.AddCommand(sessionsGetCmd)
	sessionsCmd.AddCommand(sessionsUpgradeCmd)
	sessionsCmd.AddCommand(sessionsInvalidateCmd)

	sessionsUpgradeCmd.Flags().StringVar(&upgradeUser, "user", "", "User id to bind the session to (required)")
	sessionsUpgradeCmd.Flags().StringVar(&upgradeCredentials, "credentials", "", "Signed credential token for the upgrade")
	sessionsUpgradeCmd.MarkFlagRequired("user")
}

var (
	upgradeUser        string
	upgradeCredentials string
)

var sessionsBeginCmd = &cobra.Command{
	Use:   "begin",
	Short: "Start a new anonymous session lease",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		var resp map[string]any
		if err := client.postJSON(apiBase+"/sessions", nil, &resp); err != nil {
			return fmt.Errorf("failed to begin session: %w", err)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(resp)
		}

		fmt.Printf("Session %s (%s)\n", field(resp, "session_id"), field(resp, "status"))
		fmt.Printf("Export LEDGER_SESSION=%s to use it with other commands.\n", field(resp, "session_id"))
		return nil
	},
}

var sessionsGetCmd = &cobra.Command{
	Use:   "get [session-id]",
	Short: "Show a session lease (defaults to the current session)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := resolvedSession()
		if len(args) == 1 {
			id = args[0]
		}
		if id == "" {
			return fmt.Errorf("no session id given and LEDGER_SESSION is not set")
		}

		client := newClient()
		var resp map[string]any
		if err := client.getJSON(apiBase+"/sessions/"+id, &resp); err != nil {
			return fmt.Errorf("failed to get session %q: %w", id, err)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(resp)
		}

		printTable(
			[]string{"Session", "Status", "Tenant", "User", "Created"},
			[][]string{{
				field(resp, "session_id"),
				field(resp, "status"),
				field(resp, "tenant_id"),
				field(resp, "user_id"),
				field(resp, "created_at"),
			}},
		)
		return nil
	},
}

var sessionsUpgradeCmd = &cobra.Command{
	Use:   "upgrade [session-id]",
	Short: "Upgrade an anonymous session to an authenticated one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := resolvedSession()
		if len(args) == 1 {
			id = args[0]
		}
		if id == "" {
			return fmt.Errorf("no session id given and LEDGER_SESSION is not set")
		}
		tenant := resolvedTenant()
		if tenant == "" {
			return fmt.Errorf("upgrade requires a tenant (--tenant or LEDGER_TENANT)")
		}

		body := map[string]string{
			"user_id":   upgradeUser,
			"tenant_id": tenant,
		}
		if upgradeCredentials != "" {
			body["credentials"] = upgradeCredentials
		}

		client := newClient()
		var resp map[string]any
		if err := client.postJSON(apiBase+"/sessions/"+id+":upgrade", body, &resp); err != nil {
			return fmt.Errorf("failed to upgrade session %q: %w", id, err)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(resp)
		}

		fmt.Printf("Session %s upgraded: user=%s tenant=%s\n",
			field(resp, "session_id"), field(resp, "user_id"), field(resp, "tenant_id"))
		return nil
	},
}

var sessionsInvalidateCmd = &cobra.Command{
	Use:   "invalidate [session-id]",
	Short: "Revoke a session lease",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := resolvedSession()
		if len(args) == 1 {
			id = args[0]
		}
		if id == "" {
			return fmt.Errorf("no session id given and LEDGER_SESSION is not set")
		}

		client := newClient()
		resp, err := client.do(http.MethodPost, apiBase+"/sessions/"+id+":invalidate", nil)
		if err != nil {
			return fmt.Errorf("failed to invalidate session %q: %w", id, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		fmt.Printf("Session %s invalidated.\n", id)
		return nil
	},
}
