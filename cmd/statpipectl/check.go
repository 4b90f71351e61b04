package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify file store connectivity",
	Long:  "Ask the server to list its main folder, proving the file store credentials and folder ids work.",
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	client := newClient()

	resp, status, err := client.getStatus("/test")
	if err != nil {
		return err
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		if err := printOutput(resp); err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("file store check failed")
		}
		return nil
	}

	if status != http.StatusOK {
		return fmt.Errorf("file store check failed: %v", resp["message"])
	}

	samples := ""
	if files, ok := resp["sample_files"].([]any); ok {
		names := make([]string, 0, len(files))
		for _, f := range files {
			names = append(names, asString(f))
		}
		samples = strings.Join(names, ", ")
	}

	printKV([][2]string{
		{"Store", asString(resp["message"])},
		{"Main folder", asString(resp["folder_id"])},
		{"Archive folder", asString(resp["archive_folder_id"])},
		{"Files", asString(resp["files_in_folder"])},
		{"Samples", samples},
	})
	return nil
}
