package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var (
	jobsState    string
	jobsPipeline string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List queued pipeline runs",
	Long:  "List the job queue. Filter by state (queued, running, succeeded, failed, canceled) or pipeline.",
	RunE:  runJobsList,
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show one queued run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsGet,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a queued run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCancel,
}

func init() {
	jobsCmd.Flags().StringVar(&jobsState, "state", "", "Only jobs in this state")
	jobsCmd.Flags().StringVar(&jobsPipeline, "pipeline", "", "Only jobs for this pipeline")

	jobsCmd.AddCommand(jobsGetCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	client := newClient()

	q := url.Values{}
	if jobsState != "" {
		q.Set("state", jobsState)
	}
	if jobsPipeline != "" {
		q.Set("pipeline", jobsPipeline)
	}

	path := "/api/jobs/runs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp jobListResponse
	if err := client.getJSON(path, &resp); err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(resp)
	}

	headers := []string{"ID", "Pipeline", "State", "Attempts", "Requested", "Result"}
	rows := make([][]string, 0, len(resp.Jobs))
	for _, j := range resp.Jobs {
		result := j.ResultStatus
		if j.ResultVersion != "" {
			result += " " + j.ResultVersion
		}
		if result == "" && j.LastError != "" {
			result = truncate(j.LastError, 40)
		}
		rows = append(rows, []string{
			j.ID,
			j.Pipeline,
			j.State,
			fmt.Sprintf("%d", j.AttemptCount),
			j.RequestedAt,
			result,
		})
	}
	printTable(headers, rows)
	return nil
}

func runJobsGet(cmd *cobra.Command, args []string) error {
	client := newClient()

	resp, status, err := client.getStatus("/api/jobs/runs/" + url.PathEscape(args[0]))
	if err != nil {
		return err
	}
	if status != 200 {
		return fmt.Errorf("%v", resp["error"])
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(resp)
	}

	printKV([][2]string{
		{"ID", asString(resp["id"])},
		{"Pipeline", asString(resp["pipeline"])},
		{"State", asString(resp["state"])},
		{"Requested by", asString(resp["requestedBy"])},
		{"Requested at", asString(resp["requestedAt"])},
		{"Started", asString(resp["startedAt"])},
		{"Finished", asString(resp["finishedAt"])},
		{"Attempts", asString(resp["attemptCount"])},
		{"Result", asString(resp["resultStatus"])},
		{"Version", asString(resp["resultVersion"])},
		{"Last error", asString(resp["lastError"])},
	})
	return nil
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	client := newClient()

	resp, status, err := client.postRaw("/api/jobs/runs/"+url.PathEscape(args[0])+":cancel", nil)
	if err != nil {
		return err
	}
	if status != 200 {
		return fmt.Errorf("failed to cancel job: %v", resp["error"])
	}

	fmt.Printf("Job %s canceled\n", args[0])
	return nil
}
