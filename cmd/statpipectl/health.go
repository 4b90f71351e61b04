package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health and readiness",
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	client := newClient()

	var healthResp map[string]any
	if err := client.getJSON("/healthz", &healthResp); err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}

	// Readiness can answer 503 with a component breakdown, which is
	// still worth showing.
	readyResp, _, err := client.getStatus("/readyz")
	if err != nil {
		readyResp = map[string]any{"status": "unknown", "error": err.Error()}
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		combined := map[string]any{
			"health":    healthResp,
			"readiness": readyResp,
		}
		return printOutput(combined)
	}

	headers := []string{"Check", "Status"}
	rows := [][]string{
		{"Liveness", asString(healthResp["status"])},
		{"Uptime", asString(healthResp["uptime"])},
		{"Readiness", asString(readyResp["status"])},
	}

	if components, ok := readyResp["components"].(map[string]any); ok {
		names := make([]string, 0, len(components))
		for name := range components {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			component, ok := components[name].(map[string]any)
			if !ok {
				continue
			}
			status := asString(component["status"])
			if detail := asString(component["details"]); detail != "" {
				status += " (" + detail + ")"
			}
			if errMsg := asString(component["error"]); errMsg != "" {
				status += " (" + truncate(errMsg, 40) + ")"
			}
			rows = append(rows, []string{"  " + name, status})
		}
	}

	printTable(headers, rows)
	return nil
}
