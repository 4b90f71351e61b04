package jobs

import (
	"time"
)

// JobState represents the lifecycle state of a queued pipeline run.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
	JobStateCanceled  JobState = "canceled"
)

// PipelineAll is the Pipeline value that requests a run of every
// registered pipeline.
const PipelineAll = "*"

// RunJob is the GORM model for an asynchronously executed pipeline run.
type RunJob struct {
	ID             string     `gorm:"primaryKey;column:id;type:varchar(36)"`
	Pipeline       string     `gorm:"column:pipeline;index:idx_run_job_pipeline_state,priority:1;not null"`
	RequestedBy    string     `gorm:"column:requested_by;not null"`
	RequestedAt    time.Time  `gorm:"column:requested_at;not null"`
	State          JobState   `gorm:"column:state;index:idx_run_job_pipeline_state,priority:2;index:idx_run_job_state;not null;default:queued"`
	Message        string     `gorm:"column:message"`
	StartedAt      *time.Time `gorm:"column:started_at"`
	FinishedAt     *time.Time `gorm:"column:finished_at"`
	AttemptCount   int        `gorm:"column:attempt_count;default:0"`
	LastError      string     `gorm:"column:last_error"`
	IdempotencyKey string     `gorm:"column:idempotency_key;uniqueIndex:idx_run_job_idemp_key"`
	ResultStatus   string     `gorm:"column:result_status"`
	ResultVersion  string     `gorm:"column:result_version"`
	DurationMs     int64      `gorm:"column:duration_ms"`
}

// TableName returns the GORM table name.
func (RunJob) TableName() string { return "run_jobs" }

// IsTerminal returns true if the job is in a terminal state.
func (j *RunJob) IsTerminal() bool {
	switch j.State {
	case JobStateSucceeded, JobStateFailed, JobStateCanceled:
		return true
	}
	return false
}
