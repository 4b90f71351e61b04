package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pipelinesCmd = &cobra.Command{
	Use:   "pipelines",
	Short: "List the registered pipelines",
	RunE:  runPipelinesList,
}

func runPipelinesList(cmd *cobra.Command, args []string) error {
	client := newClient()

	var resp pipelinesResponse
	if err := client.getJSON("/pipelines", &resp); err != nil {
		return fmt.Errorf("failed to list pipelines: %w", err)
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(resp)
	}

	headers := []string{"Pipeline", "Trigger"}
	rows := make([][]string, 0, len(resp.AvailablePipelines))
	for _, name := range resp.AvailablePipelines {
		rows = append(rows, []string{name, "/run/" + name})
	}

	printTable(headers, rows)
	return nil
}
