package main

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/spf13/cobra"
)

var (
	runAll   bool
	runAsync bool
)

var runCmd = &cobra.Command{
	Use:   "run [pipeline]",
	Short: "Trigger a pipeline run",
	Long: `Trigger a pipeline run and report the outcome: whether a new edition
was published, the existing file was left in place, or the run failed.

Without a pipeline name the server runs its configured default pipeline.
With --all every registered pipeline runs in turn.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runAll, "all", false, "Run every registered pipeline")
	runCmd.Flags().BoolVar(&runAsync, "async", false, "Queue the run as a job instead of waiting for it")
}

func runRun(cmd *cobra.Command, args []string) error {
	if runAll && len(args) > 0 {
		return fmt.Errorf("--all cannot be combined with a pipeline name")
	}

	client := newClient()

	if runAsync {
		return enqueueRun(client, args)
	}
	if runAll {
		return runAllSync(client)
	}

	path := "/run"
	if len(args) == 1 {
		path = "/run/" + url.PathEscape(args[0])
	}

	resp, status, err := client.postRaw(path, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusNotFound, http.StatusTooManyRequests:
		return fmt.Errorf("%v", resp["message"])
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		if err := printOutput(resp); err != nil {
			return err
		}
	} else {
		printKV(outcomePairs(resp))
	}

	if asString(resp["status"]) == "error" {
		detail := asString(resp["message"])
		if detail == "" {
			detail = asString(resp["reason"])
		}
		return fmt.Errorf("pipeline run failed: %s", detail)
	}
	return nil
}

func enqueueRun(client *pipeClient, args []string) error {
	name := "*"
	if !runAll {
		if len(args) == 0 {
			return fmt.Errorf("a pipeline name or --all is required with --async")
		}
		name = args[0]
	}

	body := map[string]string{"pipeline": name, "requestedBy": "statpipectl"}
	resp, status, err := client.postRaw("/api/jobs/runs", body)
	if err != nil {
		return err
	}
	if status != http.StatusAccepted && status != http.StatusOK {
		return fmt.Errorf("failed to queue run: %v", resp["error"])
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(resp)
	}
	printKV([][2]string{
		{"Job", asString(resp["id"])},
		{"Pipeline", asString(resp["pipeline"])},
		{"State", asString(resp["state"])},
	})
	return nil
}

func runAllSync(client *pipeClient) error {
	resp, status, err := client.postRaw("/run/all", nil)
	if err != nil {
		return err
	}
	if status == http.StatusTooManyRequests {
		return fmt.Errorf("%v", resp["message"])
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(resp)
	}

	results, _ := resp["results"].(map[string]any)
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := 0
	headers := []string{"Pipeline", "Status", "Version", "Info"}
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		out, _ := results[name].(map[string]any)
		st := asString(out["status"])
		if st == "error" {
			failed++
		}
		info := asString(out["reason"])
		if info == "" {
			info = truncate(asString(out["message"]), 60)
		}
		rows = append(rows, []string{name, st, asString(out["version_value"]), info})
	}
	printTable(headers, rows)

	if failed > 0 {
		return fmt.Errorf("%d of %d pipeline runs failed", failed, len(names))
	}
	return nil
}

// outcomePairs flattens a run outcome for the detail view. The outcome
// keeps the historical snake_case keys.
func outcomePairs(out map[string]any) [][2]string {
	version := asString(out["version_value"])
	if vt := asString(out["version_type"]); vt != "" && version != "" {
		version += " (" + vt + ")"
	}
	return [][2]string{
		{"Status", asString(out["status"])},
		{"Reason", asString(out["reason"])},
		{"Message", asString(out["message"])},
		{"Version", version},
		{"File", asString(out["filename"])},
		{"Folder", asString(out["folder_id"])},
		{"Link", asString(out["web_link"])},
		{"Variables", asString(out["n_variables"])},
		{"Observations", asString(out["n_observations"])},
		{"Period", asString(out["period_range"])},
		{"Sector", asString(out["sector"])},
		{"Timestamp", asString(out["timestamp"])},
	}
}
