package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macrodata/statpipe/pkg/pipeline"
)

func TestRunnerRunPipeline(t *testing.T) {
	registerStubs(t,
		&stubPipeline{name: "income", art: stubArtifact(t, "Income_LATEST.xlsx", "2026M01")},
		&stubPipeline{name: "broken", err: errors.New("download failed: HTTP 503")},
	)
	env := newTestServer(t)
	runner := &coordinatorRunner{srv: env.srv}

	res, err := runner.RunPipeline(context.Background(), "income")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusUpdated, res.Status)
	assert.Equal(t, "2026M01_Edition", res.VersionInfo)
	assert.Greater(t, res.Duration, time.Duration(0))

	_, err = runner.RunPipeline(context.Background(), "missing")
	assert.ErrorContains(t, err, `pipeline "missing" not found`)

	res, err = runner.RunPipeline(context.Background(), "broken")
	assert.ErrorContains(t, err, "download failed: HTTP 503")
	assert.Equal(t, pipeline.StatusError, res.Status)
}

func TestRunnerRunAllToleratesPartialFailure(t *testing.T) {
	registerStubs(t,
		&stubPipeline{name: "income", art: stubArtifact(t, "Income_LATEST.xlsx", "2026M01")},
		&stubPipeline{name: "broken", err: errors.New("download failed")},
	)
	env := newTestServer(t)
	runner := &coordinatorRunner{srv: env.srv}

	res, err := runner.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "completed", res.Status)
	assert.Equal(t, "1/2 succeeded", res.VersionInfo)
}

func TestRunnerRunAllFailsWhenNothingSucceeds(t *testing.T) {
	registerStubs(t, &stubPipeline{name: "broken", err: errors.New("download failed")})
	env := newTestServer(t)
	runner := &coordinatorRunner{srv: env.srv}

	res, err := runner.RunAll(context.Background())
	assert.ErrorContains(t, err, "all 1 pipeline runs failed")
	assert.Equal(t, "0/1 succeeded", res.VersionInfo)
}
