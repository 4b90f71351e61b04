package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	runsPipeline  string
	runsStatus    string
	runsPageSize  int
	runsPageToken string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded pipeline runs",
	Long:  "List the run history, newest first. Filter by pipeline or status (updated, not_updated, error).",
	RunE:  runRunsList,
}

var runsGetCmd = &cobra.Command{
	Use:   "get <run-id>",
	Short: "Show one recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsGet,
}

func init() {
	runsCmd.Flags().StringVar(&runsPipeline, "pipeline", "", "Only runs of this pipeline")
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "Only runs with this status")
	runsCmd.Flags().IntVar(&runsPageSize, "page-size", 20, "Runs per page")
	runsCmd.Flags().StringVar(&runsPageToken, "page-token", "", "Continue from a previous page")

	runsCmd.AddCommand(runsGetCmd)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	client := newClient()

	q := url.Values{}
	if runsPipeline != "" {
		q.Set("pipeline", runsPipeline)
	}
	if runsStatus != "" {
		q.Set("status", runsStatus)
	}
	if runsPageSize > 0 {
		q.Set("pageSize", strconv.Itoa(runsPageSize))
	}
	if runsPageToken != "" {
		q.Set("pageToken", runsPageToken)
	}

	path := "/api/runs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp runListResponse
	if err := client.getJSON(path, &resp); err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(resp)
	}

	headers := []string{"ID", "Pipeline", "Status", "Version", "Started", "Duration"}
	rows := make([][]string, 0, len(resp.Runs))
	for _, r := range resp.Runs {
		rows = append(rows, []string{
			r.ID,
			r.Pipeline,
			r.Status,
			r.VersionValue,
			r.StartedAt,
			formatDurationMs(r.DurationMs),
		})
	}
	printTable(headers, rows)

	if resp.NextPageToken != "" {
		fmt.Printf("\nMore results: --page-token %s\n", resp.NextPageToken)
	}
	return nil
}

func runRunsGet(cmd *cobra.Command, args []string) error {
	client := newClient()

	resp, status, err := client.getStatus("/api/runs/" + url.PathEscape(args[0]))
	if err != nil {
		return err
	}
	if status != 200 {
		return fmt.Errorf("%v", resp["message"])
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(resp)
	}

	version := asString(resp["versionValue"])
	if vt := asString(resp["versionType"]); vt != "" && version != "" {
		version += " (" + vt + ")"
	}
	printKV([][2]string{
		{"ID", asString(resp["id"])},
		{"Pipeline", asString(resp["pipeline"])},
		{"Status", asString(resp["status"])},
		{"Reason", asString(resp["reason"])},
		{"Message", asString(resp["message"])},
		{"Version", version},
		{"File", asString(resp["filename"])},
		{"Folder", asString(resp["folderId"])},
		{"Period", asString(resp["periodRange"])},
		{"Started", asString(resp["startedAt"])},
		{"Duration", formatDurationMs(int64(toFloat(resp["durationMs"])))},
	})
	return nil
}

func toFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}
