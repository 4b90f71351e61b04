package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/macrodata/statpipe/pkg/config"
	"github.com/macrodata/statpipe/pkg/pipeline"
)

// serviceName is reported by the root health route. The schedulers that
// poll it match on this value, so it keeps its historical spelling.
const serviceName = "istat-pipeline"

func (s *Server) homeHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   serviceName,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// storeCheckHandler verifies file store connectivity by listing the main
// folder.
func (s *Server) storeCheckHandler(w http.ResponseWriter, r *http.Request) {
	st := s.currentSettings()

	files, err := s.store.List(r.Context(), st.MainFolderID, 10)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":    "error",
			"message":   err.Error(),
			"timestamp": time.Now().Format(time.RFC3339),
		})
		return
	}

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "success",
		"message":           "File store connection working",
		"folder_id":         st.MainFolderID,
		"archive_folder_id": st.ArchiveFolderID,
		"files_in_folder":   len(files),
		"sample_files":      names,
		"timestamp":         time.Now().Format(time.RFC3339),
	})
}

func (s *Server) pipelinesHandler(w http.ResponseWriter, _ *http.Request) {
	names := pipeline.Names()
	endpoints := make([]string, 0, len(names))
	for _, name := range names {
		endpoints = append(endpoints, "/run/"+name)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "success",
		"available_pipelines": names,
		"endpoints":           endpoints,
		"timestamp":           time.Now().Format(time.RFC3339),
	})
}

func (s *Server) runHandler(w http.ResponseWriter, r *http.Request) {
	s.runByName(w, r, chi.URLParam(r, "pipelineName"))
}

func (s *Server) runDefaultHandler(w http.ResponseWriter, r *http.Request) {
	s.runByName(w, r, s.cfg.DefaultPipeline)
}

// runByName executes one pipeline synchronously and answers with the run
// outcome. Unknown names get 404 with the registered alternatives; an
// error outcome gets 500 with the outcome body.
func (s *Server) runByName(w http.ResponseWriter, r *http.Request, name string) {
	p := pipeline.Lookup(name)
	if p == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"status":              "error",
			"message":             fmt.Sprintf("Pipeline %q not found", name),
			"available_pipelines": pipeline.Names(),
		})
		return
	}

	if s.rateLimiter != nil {
		if allowed, retryAfter := s.rateLimiter.Allow(name); !allowed {
			writeRateLimited(w, retryAfter)
			return
		}
	}

	out := s.currentCoordinator().Run(r.Context(), p)

	code := http.StatusOK
	if out.Status == pipeline.StatusError {
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, out)
}

func (s *Server) runAllHandler(w http.ResponseWriter, r *http.Request) {
	if s.rateLimiter != nil {
		if allowed, retryAfter := s.rateLimiter.Allow(pipeline.RunAllKey); !allowed {
			writeRateLimited(w, retryAfter)
			return
		}
	}

	results := s.currentCoordinator().RunAll(r.Context())

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "completed",
		"pipelines_run": len(results),
		"results":       results,
		"timestamp":     time.Now().Format(time.RFC3339),
	})
}

func (s *Server) notFoundHandler(w http.ResponseWriter, _ *http.Request) {
	routes := []string{"/", "/test", "/pipelines", "/run", "/run/all"}
	for _, name := range pipeline.Names() {
		routes = append(routes, "/run/"+name)
	}

	writeJSON(w, http.StatusNotFound, map[string]any{
		"status":           "error",
		"message":          "Route not found",
		"available_routes": routes,
		"timestamp":        time.Now().Format(time.RFC3339),
	})
}

// listRunsHandler handles GET /api/runs
// Query params: pipeline, status, pageSize, pageToken
func (s *Server) listRunsHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotImplemented, "run history is not enabled", nil)
		return
	}

	filter := pipeline.RunListFilter{
		Pipeline: r.URL.Query().Get("pipeline"),
		Status:   r.URL.Query().Get("status"),
	}

	pageSize := 20
	if ps := r.URL.Query().Get("pageSize"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 {
			pageSize = v
		}
	}
	pageToken := r.URL.Query().Get("pageToken")

	records, nextToken, total, err := s.history.List(filter, pageSize, pageToken)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs", err)
		return
	}

	runs := make([]runResponse, len(records))
	for i := range records {
		runs[i] = runToResponse(&records[i])
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":          runs,
		"nextPageToken": nextToken,
		"totalSize":     total,
	})
}

// getRunHandler handles GET /api/runs/{runId}
func (s *Server) getRunHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotImplemented, "run history is not enabled", nil)
		return
	}

	runID := chi.URLParam(r, "runId")
	rec, err := s.history.Get(runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get run", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("run %q not found", runID), nil)
		return
	}

	writeJSON(w, http.StatusOK, runToResponse(rec))
}

// settingsEnvelope pairs the folder routing settings with the version
// hash used for optimistic concurrency on save.
type settingsEnvelope struct {
	Settings *config.Settings `json:"settings"`
	Version  string           `json:"version"`
}

func (s *Server) getSettingsHandler(w http.ResponseWriter, r *http.Request) {
	st, version, err := s.settingsStore.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settingsEnvelope{Settings: st, Version: version})
}

// updateSettingsHandler handles PUT /api/settings. The request must carry
// the version from a previous GET; a stale version gets 409. Saved
// settings are applied immediately.
func (s *Server) updateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var req settingsEnvelope
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Settings == nil {
		writeError(w, http.StatusBadRequest, "missing settings", nil)
		return
	}
	if req.Version == "" {
		writeError(w, http.StatusBadRequest, "missing version", nil)
		return
	}
	if err := req.Settings.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings", err)
		return
	}

	newVersion, err := s.settingsStore.Save(r.Context(), req.Settings, req.Version)
	if err != nil {
		if errors.Is(err, config.ErrVersionConflict) {
			writeError(w, http.StatusConflict, "settings changed since last load", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to save settings", err)
		return
	}

	if s.reconciler != nil {
		s.reconciler.Bump(newVersion)
	}
	if err := s.applySettings(r.Context(), req.Settings); err != nil {
		s.logger.Error("failed to apply saved settings", "error", err)
	}

	writeJSON(w, http.StatusOK, settingsEnvelope{Settings: req.Settings, Version: newVersion})
}

// runResponse is the API representation of a recorded run.
type runResponse struct {
	ID           string `json:"id"`
	Pipeline     string `json:"pipeline"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
	Message      string `json:"message,omitempty"`
	VersionType  string `json:"versionType,omitempty"`
	VersionValue string `json:"versionValue,omitempty"`
	Filename     string `json:"filename,omitempty"`
	FileID       string `json:"fileId,omitempty"`
	WebLink      string `json:"webLink,omitempty"`
	FolderID     string `json:"folderId,omitempty"`
	Variables    int    `json:"nVariables,omitempty"`
	Observations int    `json:"nObservations,omitempty"`
	PeriodRange  string `json:"periodRange,omitempty"`
	Sector       string `json:"sector,omitempty"`
	DurationMs   int64  `json:"durationMs"`
	StartedAt    string `json:"startedAt"`
}

func runToResponse(rec *pipeline.RunRecord) runResponse {
	return runResponse{
		ID:           rec.ID,
		Pipeline:     rec.Pipeline,
		Status:       rec.Status,
		Reason:       rec.Reason,
		Message:      rec.Message,
		VersionType:  rec.VersionType,
		VersionValue: rec.VersionValue,
		Filename:     rec.Filename,
		FileID:       rec.FileID,
		WebLink:      rec.WebLink,
		FolderID:     rec.FolderID,
		Variables:    rec.Variables,
		Observations: rec.Observations,
		PeriodRange:  rec.PeriodRange,
		Sector:       rec.Sector,
		DurationMs:   rec.DurationMs,
		StartedAt:    rec.StartedAt.Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string, err error) {
	errMsg := message
	if err != nil {
		errMsg = fmt.Sprintf("%s: %v", message, err)
	}
	writeJSON(w, status, map[string]string{
		"error":   http.StatusText(status),
		"message": errMsg,
	})
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeError(w, http.StatusTooManyRequests, fmt.Sprintf("rate limited, retry after %d seconds", seconds), nil)
}
