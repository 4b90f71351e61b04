// Package runlog maintains the append-only run ledger kept next to the
// published files. One line per pipeline run, human-readable, never fatal:
// a run that published correctly does not fail because the ledger was
// unwritable.
package runlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/macrodata/statpipe/pkg/filestore"
)

// Filename is the ledger's fixed name. It always lives in the main folder,
// even for pipelines publishing into subfolders.
const Filename = "pipeline_log.txt"

const timeLayout = "2006-01-02 15:04:05"

// Status is the run outcome recorded in the ledger.
type Status string

const (
	StatusUpdated    Status = "updated"
	StatusNotUpdated Status = "not_updated"
	StatusError      Status = "error"
)

// Log appends run outcomes to the ledger file.
type Log struct {
	store  filestore.Store
	folder string
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Log writing to the given folder.
func New(store filestore.Store, folder string, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{store: store, folder: folder, logger: logger, now: time.Now}
}

// Record appends one line for a pipeline run. Ledger failures are logged
// and dropped.
func (l *Log) Record(ctx context.Context, pipeline string, status Status, versionInfo, details string) {
	line := formatLine(l.now(), pipeline, status, versionInfo, details)
	if err := l.appendLine(ctx, line); err != nil {
		l.logger.Warn("run log update failed", "pipeline", pipeline, "error", err)
	}
}

func formatLine(now time.Time, pipeline string, status Status, versionInfo, details string) string {
	ts := now.Format(timeLayout)
	switch status {
	case StatusUpdated:
		return fmt.Sprintf("[%s] %s: updated; version: %s", ts, pipeline, versionInfo)
	case StatusNotUpdated:
		return fmt.Sprintf("[%s] %s: not_updated; version: %s (unchanged)", ts, pipeline, versionInfo)
	default:
		return fmt.Sprintf("[%s] %s: error; %s", ts, pipeline, details)
	}
}

// appendLine does a whole-file read, append, write-back. The ledger is small
// and runs are serialized per deployment, so the simple cycle holds up.
func (l *Log) appendLine(ctx context.Context, line string) error {
	existing, err := l.store.FindInFolder(ctx, l.folder, Filename)
	if err != nil {
		return fmt.Errorf("find run log: %w", err)
	}

	if existing == nil {
		if _, err := l.store.Create(ctx, l.folder, Filename, "text/plain", []byte(line+"\n")); err != nil {
			return fmt.Errorf("create run log: %w", err)
		}
		return nil
	}

	content, err := l.store.Download(ctx, existing.ID)
	if err != nil {
		return fmt.Errorf("read run log: %w", err)
	}
	content = append(content, []byte(line+"\n")...)
	if _, err := l.store.UpdateContent(ctx, existing.ID, "text/plain", content); err != nil {
		return fmt.Errorf("write run log: %w", err)
	}
	return nil
}
