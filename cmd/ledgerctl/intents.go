package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"
)

var intentsCmd = &cobra.Command{
	Use:   "intents",
	Short: "Submit intents and inspect the execution log",
}

func init() {
	intentsCmd.AddCommand(intentsSubmitCmd)
	intentsCmd.AddCommand(intentsStatusCmd)
	intentsCmd.AddCommand(intentsListCmd)
	intentsCmd.AddCommand(intentsGetCmd)
	intentsCmd.AddCommand(intentsCancelCmd)

	intentsSubmitCmd.Flags().StringVar(&submitType, "type", "", "Intent type to execute (required)")
	intentsSubmitCmd.Flags().StringVar(&submitTarget, "target", "", "Target artifact id, when the intent operates on an existing artifact")
	intentsSubmitCmd.Flags().StringVar(&submitKey, "idempotency-key", "", "Idempotency key for safe resubmission")
	intentsSubmitCmd.Flags().StringVar(&submitContext, "context", "", "Intent context as a JSON object")
	intentsSubmitCmd.Flags().BoolVar(&submitWait, "wait", false, "Poll until the execution reaches a terminal status")
	intentsSubmitCmd.MarkFlagRequired("type")

	intentsListCmd.Flags().StringVar(&listIntentType, "type", "", "Filter by intent type")
	intentsListCmd.Flags().StringVar(&listIntentStatus, "status", "", "Filter by status (pending, in_progress, completed, failed, cancelled)")
	intentsListCmd.Flags().StringVar(&listIntentSession, "for-session", "", "Filter by originating session id")
	intentsListCmd.Flags().IntVar(&listIntentPageSize, "page-size", 0, "Number of results per page")
	intentsListCmd.Flags().StringVar(&listIntentPageToken, "next-page-token", "", "Pagination token for next page")
}

var (
	submitType    string
	submitTarget  string
	submitKey     string
	submitContext string
	submitWait    bool

	listIntentType      string
	listIntentStatus    string
	listIntentSession   string
	listIntentPageSize  int
	listIntentPageToken string
)

var intentsSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Record an intent and start its execution",
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{
			"intent_type": submitType,
		}
		if submitTarget != "" {
			body["target_artifact_id"] = submitTarget
		}
		if submitKey != "" {
			body["idempotency_key"] = submitKey
		}
		if submitContext != "" {
			var ctx map[string]any
			if err := json.Unmarshal([]byte(submitContext), &ctx); err != nil {
				return fmt.Errorf("--context must be a JSON object: %w", err)
			}
			body["context"] = ctx
		}

		client := newClient()
		var resp map[string]any
		if err := client.postJSON(apiBase+"/execution/executions", body, &resp); err != nil {
			return fmt.Errorf("failed to submit intent: %w", err)
		}

		executionID := field(resp, "execution_id")
		if !submitWait {
			if outputFmt == "json" || outputFmt == "yaml" {
				return printOutput(resp)
			}
			fmt.Printf("Intent %s accepted, execution %s\n", field(resp, "intent_id"), executionID)
			fmt.Printf("Poll with: ledgerctl intents status %s\n", executionID)
			return nil
		}

		// --wait: poll until terminal.
		for {
			var st map[string]any
			if err := client.getJSON(apiBase+"/execution/executions/"+executionID, &st); err != nil {
				return fmt.Errorf("failed to poll execution %q: %w", executionID, err)
			}
			status := field(st, "status")
			switch status {
			case "completed", "failed", "cancelled":
				return printExecutionStatus(st)
			}
			time.Sleep(time.Second)
		}
	},
}

var intentsStatusCmd = &cobra.Command{
	Use:   "status [execution-id]",
	Short: "Show the status of an execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		var st map[string]any
		if err := client.getJSON(apiBase+"/execution/executions/"+args[0], &st); err != nil {
			return fmt.Errorf("failed to get execution %q: %w", args[0], err)
		}
		return printExecutionStatus(st)
	},
}

func printExecutionStatus(st map[string]any) error {
	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(st)
	}

	fmt.Printf("Execution %s: %s\n", field(st, "execution_id"), field(st, "status"))
	if errMsg := field(st, "error"); errMsg != "-" {
		fmt.Printf("Error: %s\n", errMsg)
	}

	arts, _ := st["artifacts"].([]any)
	if len(arts) == 0 {
		return nil
	}
	fmt.Println("\nProduced artifacts:")
	rows := make([][]string, 0, len(arts))
	for _, a := range arts {
		m, ok := a.(map[string]any)
		if !ok {
			continue
		}
		rows = append(rows, []string{
			field(m, "artifactId"),
			field(m, "artifactType"),
			fmt.Sprintf("v%s", field(m, "version")),
			field(m, "lifecycleState"),
		})
	}
	printTable([]string{"Artifact", "Type", "Version", "State"}, rows)
	return nil
}

var intentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded intent executions",
	RunE: func(cmd *cobra.Command, args []string) error {
		params := url.Values{}
		if listIntentType != "" {
			params.Set("type", listIntentType)
		}
		if listIntentStatus != "" {
			params.Set("status", listIntentStatus)
		}
		if listIntentSession != "" {
			params.Set("sessionId", listIntentSession)
		}
		if listIntentPageSize > 0 {
			params.Set("pageSize", fmt.Sprintf("%d", listIntentPageSize))
		}
		if listIntentPageToken != "" {
			params.Set("pageToken", listIntentPageToken)
		}
		path := apiBase + "/intent-log/intents"
		if len(params) > 0 {
			path += "?" + params.Encode()
		}

		client := newClient()
		var resp map[string]any
		if err := client.getJSON(path, &resp); err != nil {
			return fmt.Errorf("failed to list intents: %w", err)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(resp)
		}

		items, _ := resp["intents"].([]any)
		if len(items) == 0 {
			fmt.Println("No intents found.")
			return nil
		}

		rows := make([][]string, 0, len(items))
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			rows = append(rows, []string{
				field(m, "intent_id"),
				truncate(field(m, "intent_type"), 30),
				field(m, "status"),
				truncate(field(m, "execution_id"), 36),
				field(m, "created_at"),
			})
		}
		printTable([]string{"Intent", "Type", "Status", "Execution", "Created"}, rows)

		if token := field(resp, "nextPageToken"); token != "-" {
			fmt.Printf("\nMore results available. Use --next-page-token %s\n", token)
		}
		return nil
	},
}

var intentsGetCmd = &cobra.Command{
	Use:   "get [intent-id]",
	Short: "Show a single intent execution record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		var resp map[string]any
		if err := client.getJSON(apiBase+"/intent-log/intents/"+args[0], &resp); err != nil {
			return fmt.Errorf("failed to get intent %q: %w", args[0], err)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(resp)
		}

		fmt.Printf("Intent:      %s\n", field(resp, "intent_id"))
		fmt.Printf("Type:        %s\n", field(resp, "intent_type"))
		fmt.Printf("Status:      %s\n", field(resp, "status"))
		fmt.Printf("Session:     %s\n", field(resp, "session_id"))
		fmt.Printf("Execution:   %s\n", field(resp, "execution_id"))
		fmt.Printf("Target:      %s\n", field(resp, "target_artifact_id"))
		fmt.Printf("Produced:    %s\n", field(resp, "produced_artifact_ids"))
		fmt.Printf("Started:     %s\n", field(resp, "started_at"))
		fmt.Printf("Completed:   %s\n", field(resp, "completed_at"))
		if errMsg := field(resp, "error"); errMsg != "-" {
			fmt.Printf("Error:       %s\n", errMsg)
		}
		return nil
	},
}

var intentsCancelCmd = &cobra.Command{
	Use:   "cancel [intent-id]",
	Short: "Request cancellation of a pending or running intent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		var resp map[string]any
		if err := client.postJSON(apiBase+"/intent-log/intents/"+args[0]+":cancel", nil, &resp); err != nil {
			return fmt.Errorf("failed to cancel intent %q: %w", args[0], err)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(resp)
		}
		fmt.Printf("Intent %s: %s\n", field(resp, "intent_id"), field(resp, "status"))
		return nil
	},
}
