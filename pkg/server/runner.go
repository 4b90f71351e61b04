package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/macrodata/statpipe/pkg/jobs"
	"github.com/macrodata/statpipe/pkg/pipeline"
)

// coordinatorRunner executes queued runs through the server's current
// coordinator, so jobs claimed after a settings change use the new
// folder routing.
type coordinatorRunner struct {
	srv *Server
}

var _ jobs.PipelineRunner = (*coordinatorRunner)(nil)

func (cr *coordinatorRunner) RunPipeline(ctx context.Context, name string) (jobs.RunResult, error) {
	p := pipeline.Lookup(name)
	if p == nil {
		return jobs.RunResult{}, fmt.Errorf("pipeline %q not found", name)
	}

	start := time.Now()
	out := cr.srv.currentCoordinator().Run(ctx, p)
	res := jobs.RunResult{
		Status:      out.Status,
		VersionInfo: outcomeVersionInfo(out),
		Duration:    time.Since(start),
	}

	if out.Status == pipeline.StatusError {
		msg := out.Message
		if msg == "" {
			msg = out.Reason
		}
		return res, errors.New(msg)
	}
	return res, nil
}

func (cr *coordinatorRunner) RunAll(ctx context.Context) (jobs.RunResult, error) {
	start := time.Now()
	results := cr.srv.currentCoordinator().RunAll(ctx)

	failed := 0
	for _, out := range results {
		if out.Status == pipeline.StatusError {
			failed++
		}
	}

	res := jobs.RunResult{
		Status:      "completed",
		VersionInfo: fmt.Sprintf("%d/%d succeeded", len(results)-failed, len(results)),
		Duration:    time.Since(start),
	}

	// Individual failures are already in the run history; the job only
	// fails when nothing succeeded.
	if failed > 0 && failed == len(results) {
		return res, fmt.Errorf("all %d pipeline runs failed", failed)
	}
	return res, nil
}

// outcomeVersionInfo renders the "value_type" suffix the run ledger uses.
func outcomeVersionInfo(out pipeline.Outcome) string {
	if out.VersionValue == "" && out.VersionType == "" {
		return ""
	}
	return out.VersionValue + "_" + out.VersionType
}
