// Package pipeline defines the dataset pipeline contract and runs
// pipelines end to end: produce a workbook, resolve its version against
// the published occupant, archive, publish, and record the outcome.
// Pipelines register themselves via init() using Register.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/macrodata/statpipe/pkg/sdmx"
)

// Env carries the shared dependencies handed to every pipeline during
// Init, before any Produce call.
type Env struct {
	// SDMX is the shared ISTAT client.
	SDMX *sdmx.Client

	// Folders maps logical folder keys ("quarterly", "monthly",
	// "annual") to store folder ids. Unset keys resolve to "" and the
	// coordinator routes those artifacts to the main folder.
	Folders map[string]string

	// Logger is namespaced to the pipeline.
	Logger *slog.Logger
}

// Folder resolves a logical folder key, returning "" when unset.
func (e Env) Folder(key string) string {
	return e.Folders[key]
}

// Artifact is the product of one pipeline run, ready to publish.
type Artifact struct {
	// Filename is the published name, carrying the current-version tag.
	Filename string

	// Folder is the target folder id. Empty or placeholder values fall
	// back to the main folder.
	Folder string

	// Content is the finished workbook.
	Content []byte

	// ContentType defaults to the xlsx MIME type when empty.
	ContentType string

	// Edition is the source publication edition for edition versioned
	// pipelines. Empty means the artifact versions by download month.
	Edition string

	// Run stats surfaced in results and the history store.
	Variables    int
	Observations int
	PeriodRange  string
	Sector       string
}

// Pipeline builds one published dataset.
type Pipeline interface {
	// Name is the stable identifier used in URLs and the run ledger.
	Name() string

	// Description is a short human readable summary.
	Description() string

	// Init wires the pipeline with its shared dependencies. Called once
	// during startup before any Produce.
	Init(ctx context.Context, env Env) error

	// Produce downloads source data and builds the finished workbook.
	Produce(ctx context.Context) (*Artifact, error)
}
