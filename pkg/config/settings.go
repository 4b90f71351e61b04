package config

import (
	"fmt"
	"os"
)

// Folder routing keys understood by the pipelines.
const (
	FolderQuarterly = "quarterly"
	FolderMonthly   = "monthly"
	FolderAnnual    = "annual"
)

// Historical production folder ids, kept as defaults so the service comes
// up pointing at the same shared drive as before.
const (
	defaultMainFolderID    = "0ACZ58HkBSJpjUk9PVA"
	defaultArchiveFolderID = "1wT0j1Hz26TW9v891LQ2ZFSpGHwQkkAmu"
)

// Settings is the runtime-editable part of the configuration: where
// published files land. It is persisted by the SettingsStore and can be
// changed through the API without a restart.
type Settings struct {
	// MainFolderID is the shared-drive root. The run log lives here and
	// pipelines without a routed folder publish here.
	MainFolderID string `yaml:"mainFolderID" json:"mainFolderID"`

	// ArchiveFolderID receives replaced files regardless of where they
	// were published.
	ArchiveFolderID string `yaml:"archiveFolderID" json:"archiveFolderID"`

	// Folders maps routing keys (quarterly, monthly, annual) to folder
	// ids. An empty id routes to the main folder.
	Folders map[string]string `yaml:"folders" json:"folders"`
}

// SettingsFromEnv builds the initial settings from the historical
// environment variables, falling back to the production defaults.
func SettingsFromEnv() *Settings {
	return &Settings{
		MainFolderID:    envOrDefault("DRIVE_FOLDER_ID", defaultMainFolderID),
		ArchiveFolderID: envOrDefault("ARCHIVE_FOLDER_ID", defaultArchiveFolderID),
		Folders: map[string]string{
			FolderQuarterly: os.Getenv("FOLDER_DATI_TRIMESTRALI"),
			FolderMonthly:   os.Getenv("FOLDER_DATI_MENSILI"),
			FolderAnnual:    os.Getenv("FOLDER_DATI_ANNUALI"),
		},
	}
}

// Validate rejects settings that would strand published files.
func (s *Settings) Validate() error {
	if s.MainFolderID == "" {
		return fmt.Errorf("settings: main folder id is required")
	}
	if s.ArchiveFolderID == "" {
		return fmt.Errorf("settings: archive folder id is required")
	}
	return nil
}

// Clone returns a deep copy so callers can mutate without racing the
// reconcile loop.
func (s *Settings) Clone() *Settings {
	out := &Settings{
		MainFolderID:    s.MainFolderID,
		ArchiveFolderID: s.ArchiveFolderID,
		Folders:         make(map[string]string, len(s.Folders)),
	}
	for k, v := range s.Folders {
		out.Folders[k] = v
	}
	return out
}
