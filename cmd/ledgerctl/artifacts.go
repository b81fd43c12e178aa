package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "Inspect artifact versions and lifecycle state",
	Long: `Read artifact records from the authoritative store.

Artifacts are versioned append-only: each supersede creates a new row and
moves the current-version marker. Use "versions" to see the full chain.`,
}

func init() {
	artifactsCmd.AddCommand(artifactsListCmd)
	artifactsCmd.AddCommand(artifactsGetCmd)
	artifactsCmd.AddCommand(artifactsCurrentCmd)
	artifactsCmd.AddCommand(artifactsVersionsCmd)
	artifactsCmd.AddCommand(artifactsTransitionCmd)

	artifactsListCmd.Flags().StringVar(&listArtifactType, "type", "", "Filter by artifact type")
	artifactsListCmd.Flags().StringVar(&listArtifactState, "state", "", "Filter by lifecycle state (draft, accepted, obsolete)")
	artifactsListCmd.Flags().BoolVar(&listArtifactCurrent, "current", false, "Only current versions")
	artifactsListCmd.Flags().IntVar(&listArtifactPageSize, "page-size", 0, "Number of results per page")
	artifactsListCmd.Flags().StringVar(&listArtifactPageToken, "next-page-token", "", "Pagination token for next page")

	artifactsTransitionCmd.Flags().StringVar(&transitionState, "state", "", "Target lifecycle state (required)")
	artifactsTransitionCmd.Flags().StringVar(&transitionActor, "actor", "", "Actor recorded in the audit trail")
	artifactsTransitionCmd.MarkFlagRequired("state")
}

var (
	listArtifactType      string
	listArtifactState     string
	listArtifactCurrent   bool
	listArtifactPageSize  int
	listArtifactPageToken string

	transitionState string
	transitionActor string
)

func artifactRow(m map[string]any) []string {
	return []string{
		field(m, "artifactId"),
		truncate(field(m, "artifactType"), 30),
		fmt.Sprintf("v%s", field(m, "version")),
		field(m, "lifecycleState"),
		field(m, "isCurrentVersion"),
		truncate(field(m, "purpose"), 30),
	}
}

var artifactColumns = []string{"Artifact", "Type", "Version", "State", "Current", "Purpose"}

var artifactsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List artifact records",
	RunE: func(cmd *cobra.Command, args []string) error {
		params := url.Values{}
		if listArtifactType != "" {
			params.Set("type", listArtifactType)
		}
		if listArtifactState != "" {
			params.Set("state", listArtifactState)
		}
		if listArtifactCurrent {
			params.Set("current", "true")
		}
		if listArtifactPageSize > 0 {
			params.Set("pageSize", fmt.Sprintf("%d", listArtifactPageSize))
		}
		if listArtifactPageToken != "" {
			params.Set("pageToken", listArtifactPageToken)
		}
		path := apiBase + "/registry/artifacts"
		if len(params) > 0 {
			path += "?" + params.Encode()
		}

		client := newClient()
		var resp map[string]any
		if err := client.getJSON(path, &resp); err != nil {
			return fmt.Errorf("failed to list artifacts: %w", err)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(resp)
		}

		items, _ := resp["artifacts"].([]any)
		if len(items) == 0 {
			fmt.Println("No artifacts found.")
			return nil
		}

		rows := make([][]string, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				rows = append(rows, artifactRow(m))
			}
		}
		printTable(artifactColumns, rows)

		if token := field(resp, "nextPageToken"); token != "-" {
			fmt.Printf("\nMore results available. Use --next-page-token %s\n", token)
		}
		return nil
	},
}

func printArtifactDetail(resp map[string]any) error {
	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(resp)
	}

	fmt.Printf("Artifact:    %s\n", field(resp, "artifactId"))
	fmt.Printf("Type:        %s\n", field(resp, "artifactType"))
	fmt.Printf("Version:     v%s (current: %s)\n", field(resp, "version"), field(resp, "isCurrentVersion"))
	fmt.Printf("State:       %s\n", field(resp, "lifecycleState"))
	fmt.Printf("Owner:       %s\n", field(resp, "owner"))
	fmt.Printf("Purpose:     %s\n", field(resp, "purpose"))
	fmt.Printf("Payload:     %s\n", field(resp, "payloadReference"))
	fmt.Printf("Session:     %s\n", field(resp, "sessionId"))
	fmt.Printf("Execution:   %s\n", field(resp, "executionId"))
	fmt.Printf("Parent:      %s\n", field(resp, "parentArtifactId"))
	fmt.Printf("Root:        %s\n", field(resp, "rootArtifactId"))
	fmt.Printf("Sources:     %s\n", field(resp, "sourceArtifactIds"))
	fmt.Printf("Created:     %s\n", field(resp, "createdAt"))
	return nil
}

var artifactsGetCmd = &cobra.Command{
	Use:   "get [artifact-id]",
	Short: "Show one artifact version record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		var resp map[string]any
		if err := client.getJSON(apiBase+"/registry/artifacts/"+args[0], &resp); err != nil {
			return fmt.Errorf("failed to get artifact %q: %w", args[0], err)
		}
		return printArtifactDetail(resp)
	},
}

var artifactsCurrentCmd = &cobra.Command{
	Use:   "current [artifact-id]",
	Short: "Show the current version of an artifact's chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		var resp map[string]any
		if err := client.getJSON(apiBase+"/registry/artifacts/"+args[0]+"/current", &resp); err != nil {
			return fmt.Errorf("failed to get current version for %q: %w", args[0], err)
		}
		return printArtifactDetail(resp)
	},
}

var artifactsVersionsCmd = &cobra.Command{
	Use:   "versions [artifact-id]",
	Short: "List every version in an artifact's chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		var resp map[string]any
		if err := client.getJSON(apiBase+"/registry/artifacts/"+args[0]+"/versions", &resp); err != nil {
			return fmt.Errorf("failed to list versions for %q: %w", args[0], err)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(resp)
		}

		items, _ := resp["versions"].([]any)
		if len(items) == 0 {
			fmt.Println("No versions found.")
			return nil
		}
		rows := make([][]string, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				rows = append(rows, artifactRow(m))
			}
		}
		printTable(artifactColumns, rows)
		return nil
	},
}

var artifactsTransitionCmd = &cobra.Command{
	Use:   "transition [artifact-id]",
	Short: "Move an artifact to a new lifecycle state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{"state": transitionState}
		if transitionActor != "" {
			body["actor"] = transitionActor
		}

		client := newClient()
		var resp map[string]any
		if err := client.postJSON(apiBase+"/registry/artifacts/"+args[0]+":transition", body, &resp); err != nil {
			return fmt.Errorf("failed to transition artifact %q: %w", args[0], err)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(resp)
		}
		fmt.Printf("Artifact %s is now %s\n", field(resp, "artifactId"), field(resp, "lifecycleState"))
		return nil
	},
}
