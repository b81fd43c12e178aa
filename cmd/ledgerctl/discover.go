package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Query the artifact discovery index",
	Long: `Query the discovery index projection.

The index is eventually consistent: recent writes may not be visible yet, and
entries may lag the artifact store. Use "artifacts get" when you need the
authoritative record.`,
	RunE: runDiscover,
}

var (
	discoverType      string
	discoverState     string
	discoverPageSize  int
	discoverPageToken string
)

func init() {
	discoverCmd.Flags().StringVar(&discoverType, "type", "", "Filter by artifact type")
	discoverCmd.Flags().StringVar(&discoverState, "state", "", "Filter by index state (PENDING, READY, FAILED, ARCHIVED, DELETED)")
	discoverCmd.Flags().IntVar(&discoverPageSize, "page-size", 0, "Number of results per page")
	discoverCmd.Flags().StringVar(&discoverPageToken, "next-page-token", "", "Pagination token for next page")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	params := url.Values{}
	if discoverType != "" {
		params.Set("type", discoverType)
	}
	if discoverState != "" {
		params.Set("state", discoverState)
	}
	if discoverPageSize > 0 {
		params.Set("pageSize", fmt.Sprintf("%d", discoverPageSize))
	}
	if discoverPageToken != "" {
		params.Set("pageToken", discoverPageToken)
	}
	path := apiBase + "/discovery/index/entries"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	client := newClient()
	var resp map[string]any
	if err := client.getJSON(path, &resp); err != nil {
		return fmt.Errorf("failed to query discovery index: %w", err)
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(resp)
	}

	items, _ := resp["entries"].([]any)
	if len(items) == 0 {
		fmt.Println("No index entries found.")
		return nil
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		version := "-"
		if sd, ok := m["semantic_descriptor"].(map[string]any); ok {
			version = field(sd, "version")
		}
		rows = append(rows, []string{
			field(m, "artifact_id"),
			truncate(field(m, "artifact_type"), 30),
			field(m, "lifecycle_state"),
			version,
			field(m, "updated_at"),
		})
	}
	printTable([]string{"Artifact", "Type", "State", "Version", "Indexed"}, rows)

	if token := field(resp, "nextPageToken"); token != "-" {
		fmt.Printf("\nMore results available. Use --next-page-token %s\n", token)
	}
	return nil
}
