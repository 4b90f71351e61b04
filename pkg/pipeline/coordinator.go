package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/macrodata/statpipe/pkg/archive"
	"github.com/macrodata/statpipe/pkg/filestore"
	"github.com/macrodata/statpipe/pkg/runlog"
	"github.com/macrodata/statpipe/pkg/version"
	"github.com/macrodata/statpipe/pkg/workbook"
)

// Run statuses, also used verbatim in JSON responses and the run ledger.
const (
	StatusUpdated    = "updated"
	StatusNotUpdated = "not_updated"
	StatusError      = "error"
)

const timeLayout = "2006-01-02 15:04:05"

// Outcome is the result of one pipeline run, shaped like the service's
// JSON responses.
type Outcome struct {
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
	Message      string `json:"message,omitempty"`
	VersionType  string `json:"version_type,omitempty"`
	VersionValue string `json:"version_value,omitempty"`
	Filename     string `json:"filename,omitempty"`
	FileID       string `json:"file_id,omitempty"`
	WebLink      string `json:"web_link,omitempty"`
	FolderID     string `json:"folder_id,omitempty"`
	Timestamp    string `json:"timestamp,omitempty"`
	Variables    int    `json:"n_variables,omitempty"`
	Observations int    `json:"n_observations,omitempty"`
	PeriodRange  string `json:"period_range,omitempty"`
	Sector       string `json:"sector,omitempty"`
}

// CoordinatorConfig wires a Coordinator.
type CoordinatorConfig struct {
	Store    filestore.Store
	Resolver *version.Resolver
	Archiver *archive.Archiver
	RunLog   *runlog.Log

	// History persists outcomes. Optional; nothing is recorded when nil.
	History *RunStore

	// MainFolder receives artifacts whose pipeline declares no valid
	// output folder.
	MainFolder string

	Logger *slog.Logger
}

// Coordinator runs pipelines end to end and owns the per-slot locks
// that keep concurrent triggers from interleaving on one published
// file.
type Coordinator struct {
	store      filestore.Store
	resolver   *version.Resolver
	archiver   *archive.Archiver
	runLog     *runlog.Log
	history    *RunStore
	mainFolder string
	logger     *slog.Logger

	slotMu sync.Mutex
	slots  map[string]*sync.Mutex
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:      cfg.Store,
		resolver:   cfg.Resolver,
		archiver:   cfg.Archiver,
		runLog:     cfg.RunLog,
		history:    cfg.History,
		mainFolder: cfg.MainFolder,
		logger:     logger,
		slots:      make(map[string]*sync.Mutex),
	}
}

// Run executes one pipeline: produce, resolve, archive if the occupant
// version differs, publish, and record the outcome.
func (c *Coordinator) Run(ctx context.Context, p Pipeline) Outcome {
	name := p.Name()
	start := time.Now()

	c.logger.Info("pipeline run started", "pipeline", name)

	art, err := p.Produce(ctx)
	if err != nil {
		c.logger.Error("pipeline produce failed", "pipeline", name, "error", err)
		c.runLog.Record(ctx, name, runlog.StatusError, "", err.Error())
		return c.finish(name, start, Outcome{Status: StatusError, Message: err.Error()})
	}

	folder := c.routeFolder(name, art.Folder)
	out := c.publish(ctx, name, art, folder)

	// Run stats travel on every publish outcome, errors included.
	out.Variables = art.Variables
	out.Observations = art.Observations
	out.PeriodRange = art.PeriodRange
	out.Sector = art.Sector

	return c.finish(name, start, out)
}

// RunAll runs every registered pipeline sequentially in name order and
// returns the outcomes keyed by pipeline name.
func (c *Coordinator) RunAll(ctx context.Context) map[string]Outcome {
	results := make(map[string]Outcome)
	for _, p := range All() {
		results[p.Name()] = c.Run(ctx, p)
	}
	return results
}

// publish holds the slot lock for the whole resolve/archive/create
// sequence so two triggers on one slot cannot interleave.
func (c *Coordinator) publish(ctx context.Context, name string, art *Artifact, folder string) Outcome {
	ts := time.Now().Format(timeLayout)
	slot := folder + "/" + art.Filename

	mu := c.slotLock(slot)
	mu.Lock()
	defer mu.Unlock()

	d, err := c.resolver.Resolve(ctx, version.Candidate{
		Filename: art.Filename,
		Folder:   folder,
		Edition:  art.Edition,
	})
	if err != nil {
		c.logger.Error("version resolution failed", "pipeline", name, "slot", slot, "error", err)
		c.runLog.Record(ctx, name, runlog.StatusError, "", err.Error())
		return Outcome{Status: StatusError, Message: err.Error()}
	}

	versionInfo := d.Suffix()

	switch d.Action {
	case version.ActionSkip:
		c.logger.Info("publish skipped", "pipeline", name, "slot", slot, "version", versionInfo)
		c.runLog.Record(ctx, name, runlog.StatusNotUpdated, versionInfo, "")
		return Outcome{
			Status:       StatusNotUpdated,
			Reason:       d.SkipReason,
			VersionType:  string(d.VersionType),
			VersionValue: d.VersionValue,
			Filename:     art.Filename,
			Timestamp:    ts,
		}

	case version.ActionReplace:
		if _, err := c.archiver.Archive(ctx, d.Existing, d.ExistingSuffix); err != nil {
			c.logger.Error("archive failed", "pipeline", name, "slot", slot, "error", err)
			c.runLog.Record(ctx, name, runlog.StatusError, "", "Failed to archive old file")
			return Outcome{Status: StatusError, Reason: "Failed to archive old file", Timestamp: ts}
		}
	}

	contentType := art.ContentType
	if contentType == "" {
		contentType = workbook.ContentType
	}

	ref, err := c.store.Create(ctx, folder, art.Filename, contentType, art.Content)
	if err != nil {
		c.logger.Error("publish failed", "pipeline", name, "slot", slot, "error", err)
		c.runLog.Record(ctx, name, runlog.StatusError, "", err.Error())
		return Outcome{Status: StatusError, Message: err.Error()}
	}

	c.logger.Info("artifact published",
		"pipeline", name, "slot", slot, "version", versionInfo, "file_id", ref.ID)
	c.runLog.Record(ctx, name, runlog.StatusUpdated, versionInfo, "")

	return Outcome{
		Status:       StatusUpdated,
		VersionType:  string(d.VersionType),
		VersionValue: d.VersionValue,
		Filename:     art.Filename,
		FileID:       ref.ID,
		WebLink:      ref.WebLink,
		FolderID:     folder,
		Timestamp:    ts,
	}
}

// routeFolder validates a pipeline supplied folder id, falling back to
// the main folder for empty or placeholder values.
func (c *Coordinator) routeFolder(name, folder string) string {
	if folder == "" || strings.HasPrefix(folder, "YOUR_") {
		c.logger.Info("no valid output folder, using main folder", "pipeline", name)
		return c.mainFolder
	}
	return folder
}

func (c *Coordinator) slotLock(key string) *sync.Mutex {
	c.slotMu.Lock()
	defer c.slotMu.Unlock()

	mu, ok := c.slots[key]
	if !ok {
		mu = &sync.Mutex{}
		c.slots[key] = mu
	}
	return mu
}

func (c *Coordinator) finish(name string, start time.Time, out Outcome) Outcome {
	if c.history != nil {
		c.history.Save(name, out, start, time.Since(start))
	}
	return out
}
