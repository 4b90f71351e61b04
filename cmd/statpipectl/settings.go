package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var (
	settingsMain    string
	settingsArchive string
	settingsRoutes  []string
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show the folder routing settings",
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update the folder routing settings",
	Long: `Update the folder routing settings in place. The current settings are
loaded first, the given changes applied and the result saved with the
loaded version, so a concurrent edit is detected instead of overwritten.`,
	RunE: runSettingsSet,
}

func init() {
	settingsSetCmd.Flags().StringVar(&settingsMain, "main", "", "Main folder id")
	settingsSetCmd.Flags().StringVar(&settingsArchive, "archive", "", "Archive folder id")
	settingsSetCmd.Flags().StringArrayVar(&settingsRoutes, "route", nil,
		"Routing entry as key=folderID, repeatable. An empty folderID removes the route.")

	settingsCmd.AddCommand(settingsSetCmd)
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	client := newClient()

	var env settingsEnvelope
	if err := client.getJSON("/api/settings", &env); err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(env)
	}

	printKV(settingsPairs(&env))
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsMain == "" && settingsArchive == "" && len(settingsRoutes) == 0 {
		return fmt.Errorf("nothing to change: pass --main, --archive or --route")
	}

	client := newClient()

	var env settingsEnvelope
	if err := client.getJSON("/api/settings", &env); err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if env.Settings == nil {
		env.Settings = &settingsPayload{}
	}
	if err := applySettingsChanges(env.Settings, settingsMain, settingsArchive, settingsRoutes); err != nil {
		return err
	}

	var updated settingsEnvelope
	if err := client.putJSON("/api/settings", env, &updated); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(updated)
	}

	printKV(settingsPairs(&updated))
	return nil
}

// applySettingsChanges merges the command line flags into the loaded
// settings. An empty folder id in a --route flag removes that route.
func applySettingsChanges(s *settingsPayload, main, archive string, routes []string) error {
	if main != "" {
		s.MainFolderID = main
	}
	if archive != "" {
		s.ArchiveFolderID = archive
	}
	for _, route := range routes {
		key, id, found := strings.Cut(route, "=")
		if !found || key == "" {
			return fmt.Errorf("invalid --route %q (expected key=folderID)", route)
		}
		if s.Folders == nil {
			s.Folders = map[string]string{}
		}
		if id == "" {
			delete(s.Folders, key)
		} else {
			s.Folders[key] = id
		}
	}
	return nil
}

func settingsPairs(env *settingsEnvelope) [][2]string {
	pairs := [][2]string{}
	if env.Settings != nil {
		pairs = append(pairs,
			[2]string{"Main folder", env.Settings.MainFolderID},
			[2]string{"Archive folder", env.Settings.ArchiveFolderID},
		)
		keys := make([]string, 0, len(env.Settings.Folders))
		for k := range env.Settings.Folders {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			pairs = append(pairs, [2]string{"Route " + k, env.Settings.Folders[k]})
		}
	}
	pairs = append(pairs, [2]string{"Version", env.Version})
	return pairs
}
