package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL   string
	outputFmt   string
	httpTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "statpipectl",
	Short: "CLI for the statistical pipeline server",
	Long: `statpipectl drives the pipeline server over its HTTP API: trigger
pipeline runs, follow the run history and the job queue, and manage the
folder routing settings.

Synchronous runs (the default) hold the connection open until the server
has fetched the series, built the workbook and published it. Use --async
to queue the run instead.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL(), "Pipeline server URL (env STATPIPE_SERVER)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().DurationVar(&httpTimeout, "timeout", 15*time.Minute, "HTTP request timeout; synchronous runs hold the request open")

	rootCmd.AddCommand(pipelinesCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(checkCmd)
}

// defaultServerURL returns the flag default.
// Priority: STATPIPE_SERVER env var > localhost.
func defaultServerURL() string {
	if v := os.Getenv("STATPIPE_SERVER"); v != "" {
		return v
	}
	return "http://localhost:8080"
}
