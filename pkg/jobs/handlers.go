package jobs

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// enqueueRequest is the body for POST /api/jobs/runs.
type enqueueRequest struct {
	Pipeline       string `json:"pipeline"`
	RequestedBy    string `json:"requestedBy,omitempty"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// EnqueueJobHandler handles POST /api/jobs/runs. The pipeline field names a
// registered pipeline, or "*" to run all of them. When the request carries an
// idempotency key that matches a queued or running job, the existing job is
// returned with 200 instead of creating a duplicate.
func EnqueueJobHandler(store *JobStore, known func(name string) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req enqueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Pipeline == "" {
			writeError(w, http.StatusBadRequest, "missing pipeline name")
			return
		}
		if req.Pipeline != PipelineAll && known != nil && !known(req.Pipeline) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("pipeline %q not found", req.Pipeline))
			return
		}

		requestedBy := req.RequestedBy
		if requestedBy == "" {
			requestedBy = "api"
		}

		job := &RunJob{
			ID:             uuid.NewString(),
			Pipeline:       req.Pipeline,
			RequestedBy:    requestedBy,
			RequestedAt:    time.Now(),
			State:          JobStateQueued,
			IdempotencyKey: req.IdempotencyKey,
		}
		created, err := store.Enqueue(job)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to enqueue job: %v", err))
			return
		}

		status := http.StatusAccepted
		if created.ID != job.ID {
			// Idempotency dedupe returned an existing job.
			status = http.StatusOK
		}
		writeJSON(w, status, jobToResponse(created))
	}
}

// GetJobHandler handles GET /api/jobs/runs/{jobId}
func GetJobHandler(store *JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobId")
		if jobID == "" {
			writeError(w, http.StatusBadRequest, "missing job ID")
			return
		}

		job, err := store.Get(jobID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get job: %v", err))
			return
		}
		if job == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("job %q not found", jobID))
			return
		}

		writeJSON(w, http.StatusOK, jobToResponse(job))
	}
}

// ListJobsHandler handles GET /api/jobs/runs
// Query params: pipeline, state, requestedBy, pageSize, pageToken
func ListJobsHandler(store *JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := JobListFilter{
			Pipeline:    r.URL.Query().Get("pipeline"),
			State:       r.URL.Query().Get("state"),
			RequestedBy: r.URL.Query().Get("requestedBy"),
		}

		pageSize := 20
		if ps := r.URL.Query().Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}
		pageToken := r.URL.Query().Get("pageToken")

		records, nextToken, total, err := store.List(filter, pageSize, pageToken)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list jobs: %v", err))
			return
		}

		jobs := make([]jobResponse, len(records))
		for i := range records {
			jobs[i] = jobToResponse(&records[i])
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"jobs":          jobs,
			"nextPageToken": nextToken,
			"totalSize":     total,
		})
	}
}

// CancelJobHandler handles POST /api/jobs/runs/{jobId}:cancel
func CancelJobHandler(store *JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobId")
		if jobID == "" {
			writeError(w, http.StatusBadRequest, "missing job ID")
			return
		}

		if err := store.Cancel(jobID); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to cancel job: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"status": "canceled",
			"jobId":  jobID,
		})
	}
}

// jobResponse is the API response for a queued pipeline run.
type jobResponse struct {
	ID            string `json:"id"`
	Pipeline      string `json:"pipeline"`
	RequestedBy   string `json:"requestedBy"`
	RequestedAt   string `json:"requestedAt"`
	State         string `json:"state"`
	Message       string `json:"message,omitempty"`
	StartedAt     string `json:"startedAt,omitempty"`
	FinishedAt    string `json:"finishedAt,omitempty"`
	AttemptCount  int    `json:"attemptCount"`
	LastError     string `json:"lastError,omitempty"`
	ResultStatus  string `json:"resultStatus,omitempty"`
	ResultVersion string `json:"resultVersion,omitempty"`
	DurationMs    int64  `json:"durationMs,omitempty"`
}

func jobToResponse(job *RunJob) jobResponse {
	resp := jobResponse{
		ID:            job.ID,
		Pipeline:      job.Pipeline,
		RequestedBy:   job.RequestedBy,
		RequestedAt:   job.RequestedAt.Format(time.RFC3339),
		State:         string(job.State),
		Message:       job.Message,
		AttemptCount:  job.AttemptCount,
		LastError:     job.LastError,
		ResultStatus:  job.ResultStatus,
		ResultVersion: job.ResultVersion,
		DurationMs:    job.DurationMs,
	}
	if job.StartedAt != nil {
		resp.StartedAt = job.StartedAt.Format(time.RFC3339)
	}
	if job.FinishedAt != nil {
		resp.FinishedAt = job.FinishedAt.Format(time.RFC3339)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
