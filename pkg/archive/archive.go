// Package archive moves displaced slot occupants into the archive folder
// under their version suffix.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/macrodata/statpipe/pkg/filestore"
	"github.com/macrodata/statpipe/pkg/version"
)

// Archiver relocates occupants to a single archive folder, whatever folder
// they were published in.
type Archiver struct {
	store         filestore.Store
	archiveFolder string
	logger        *slog.Logger
}

// New creates an Archiver targeting the given archive folder.
func New(store filestore.Store, archiveFolder string, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{store: store, archiveFolder: archiveFolder, logger: logger}
}

// ArchivedName derives the archived filename by substituting the version
// suffix for every _LATEST tag. A name without the tag passes through
// unchanged; the file is still moved.
func ArchivedName(filename, suffix string) string {
	return strings.ReplaceAll(filename, version.CurrentTag, "_"+suffix)
}

// Archive renames the occupant and moves it to the archive folder in one
// store call, so no observer sees a renamed file still in the live folder.
// On failure the occupant is left untouched and the caller must not publish.
func (a *Archiver) Archive(ctx context.Context, ref *filestore.FileRef, suffix string) (*filestore.FileRef, error) {
	archivedName := ArchivedName(ref.Name, suffix)
	moved, err := a.store.Move(ctx, ref.ID, archivedName, ref.Folder, a.archiveFolder)
	if err != nil {
		return nil, fmt.Errorf("archive %s as %s: %w", ref.Name, archivedName, err)
	}
	a.logger.Info("archived file", "from", ref.Name, "to", archivedName, "folder", a.archiveFolder)
	return moved, nil
}
