package config

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// maxSettingsFileSize is the maximum allowed settings file size (1 MiB).
	maxSettingsFileSize = 1 << 20

	// maxRevisionHistory is the maximum number of revision snapshots to keep.
	maxRevisionHistory = 20

	// historyDirName is the name of the directory used for revision snapshots.
	historyDirName = ".history"
)

// ErrVersionConflict is returned when a Save detects that the settings file
// has been modified since the caller last loaded it (optimistic concurrency).
var ErrVersionConflict = errors.New("settings version conflict: file was modified since last load")

// ErrFileTooLarge is returned when a settings file exceeds maxSettingsFileSize.
var ErrFileTooLarge = errors.New("settings file exceeds maximum allowed size (1 MiB)")

// ErrPathTraversal is returned when a settings file path contains path traversal.
var ErrPathTraversal = errors.New("settings file path contains path traversal")

// SettingsStore persists the folder-routing settings in a YAML file.
// It uses SHA-256 content hashing for optimistic concurrency control and
// atomic writes (write-to-temp + rename) to avoid partial writes.
type SettingsStore struct {
	path string
	mu   sync.Mutex
}

// NewSettingsStore creates a SettingsStore for the given file path.
// The file does not need to exist yet; Init seeds it with defaults.
// Returns an error if the path contains path traversal sequences.
func NewSettingsStore(path string) (*SettingsStore, error) {
	if err := validateSettingsPath(path); err != nil {
		return nil, err
	}
	return &SettingsStore{path: path}, nil
}

// validateSettingsPath checks that the path does not contain ".." traversal components.
func validateSettingsPath(path string) error {
	cleaned := filepath.Clean(path)
	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return ErrPathTraversal
		}
	}
	return nil
}

// Path returns the file path managed by this store.
func (s *SettingsStore) Path() string {
	return s.path
}

// Init loads the settings file, or writes the given defaults and returns
// them when the file does not exist yet.
func (s *SettingsStore) Init(ctx context.Context, defaults *Settings) (*Settings, string, error) {
	if _, err := os.Stat(s.path); err != nil {
		if !os.IsNotExist(err) {
			return nil, "", fmt.Errorf("settings store: failed to stat %s: %w", s.path, err)
		}

		data, err := marshalSettings(defaults)
		if err != nil {
			return nil, "", fmt.Errorf("settings store: failed to marshal defaults: %w", err)
		}

		s.mu.Lock()
		err = s.writeAtomic(data)
		s.mu.Unlock()
		if err != nil {
			return nil, "", err
		}
	}
	return s.Load(ctx)
}

// Load reads the YAML settings file, parses it, and returns the settings
// together with a version string (SHA-256 hex digest of the raw file bytes).
func (s *SettingsStore) Load(_ context.Context) (*Settings, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, "", fmt.Errorf("settings store: failed to read %s: %w", s.path, err)
	}

	if int64(len(data)) > maxSettingsFileSize {
		return nil, "", fmt.Errorf("settings store: %s: %w", s.path, ErrFileTooLarge)
	}

	version := hashBytes(data)

	settings := &Settings{}
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, "", fmt.Errorf("settings store: failed to parse %s: %w", s.path, err)
	}
	if settings.Folders == nil {
		settings.Folders = map[string]string{}
	}

	return settings, version, nil
}

// Save marshals the settings to YAML and writes them atomically to the file.
// The provided version must match the current file hash; otherwise
// ErrVersionConflict is returned. On success the new version hash is returned.
// Before writing, the current file is snapshotted to .history/ for revision tracking.
func (s *SettingsStore) Save(_ context.Context, settings *Settings, version string) (string, error) {
	if err := settings.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-read the current file to get the latest hash for comparison.
	currentData, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("settings store: failed to read current file for version check: %w", err)
	}

	currentVersion := hashBytes(currentData)
	if currentVersion != version {
		return "", ErrVersionConflict
	}

	data, err := marshalSettings(settings)
	if err != nil {
		return "", fmt.Errorf("settings store: failed to marshal settings: %w", err)
	}

	if int64(len(data)) > maxSettingsFileSize {
		return "", fmt.Errorf("settings store: marshaled settings: %w", ErrFileTooLarge)
	}

	// Snapshot current file to .history/ before overwriting. History is
	// best-effort and never fails the save.
	_ = s.snapshotCurrent(currentData, currentVersion)

	if err := s.writeAtomic(data); err != nil {
		return "", err
	}

	// Prune old history entries (best-effort).
	_ = s.pruneHistory()

	return hashBytes(data), nil
}

// writeAtomic writes data to the settings file via a temp file in the same
// directory, fsync, then rename. Must be called with s.mu held.
func (s *SettingsStore) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("settings store: failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up the temp file on any error path.
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("settings store: failed to write temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("settings store: failed to sync temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("settings store: failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("settings store: failed to rename temp file: %w", err)
	}
	tmpName = "" // prevent deferred Remove

	return nil
}

// historyDir returns the path to the .history/ directory next to the settings file.
func (s *SettingsStore) historyDir() string {
	return filepath.Join(filepath.Dir(s.path), historyDirName)
}

// snapshotCurrent copies the current file content to .history/{timestamp}_{version_short}.yaml.
// Must be called with s.mu held.
func (s *SettingsStore) snapshotCurrent(data []byte, version string) error {
	histDir := s.historyDir()
	if err := os.MkdirAll(histDir, 0o755); err != nil {
		return fmt.Errorf("settings store: failed to create history dir: %w", err)
	}

	versionShort := version
	if len(versionShort) > 8 {
		versionShort = versionShort[:8]
	}

	filename := fmt.Sprintf("%d_%s.yaml", time.Now().Unix(), versionShort)
	histPath := filepath.Join(histDir, filename)

	if err := os.WriteFile(histPath, data, 0o644); err != nil {
		return fmt.Errorf("settings store: failed to write history snapshot: %w", err)
	}

	return nil
}

// pruneHistory removes old revision files, keeping only the most recent maxRevisionHistory.
// Must be called with s.mu held.
func (s *SettingsStore) pruneHistory() error {
	histDir := s.historyDir()
	entries, err := os.ReadDir(histDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// Filter to only .yaml files.
	var yamlFiles []os.DirEntry
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".yaml") {
			yamlFiles = append(yamlFiles, e)
		}
	}

	if len(yamlFiles) <= maxRevisionHistory {
		return nil
	}

	// Sort by name (which starts with unix timestamp) ascending.
	sort.Slice(yamlFiles, func(i, j int) bool {
		return yamlFiles[i].Name() < yamlFiles[j].Name()
	})

	// Remove oldest entries.
	toRemove := len(yamlFiles) - maxRevisionHistory
	for i := 0; i < toRemove; i++ {
		_ = os.Remove(filepath.Join(histDir, yamlFiles[i].Name()))
	}

	return nil
}

// marshalSettings serializes settings to YAML bytes. Cloning first keeps
// the on-disk file carrying a folders map even when the caller left it nil.
func marshalSettings(s *Settings) ([]byte, error) {
	return yaml.Marshal(s.Clone())
}

// hashBytes returns the SHA-256 hex digest of the given byte slice.
func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h)
}
