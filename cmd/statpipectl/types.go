package main

// pipelinesResponse is the body of GET /pipelines. The snake_case keys
// are the historical trigger surface.
type pipelinesResponse struct {
	Status             string   `json:"status"`
	AvailablePipelines []string `json:"available_pipelines"`
	Endpoints          []string `json:"endpoints"`
	Timestamp          string   `json:"timestamp"`
}

// runInfo is one recorded run from GET /api/runs.
type runInfo struct {
	ID           string `json:"id"`
	Pipeline     string `json:"pipeline"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
	Message      string `json:"message,omitempty"`
	VersionType  string `json:"versionType,omitempty"`
	VersionValue string `json:"versionValue,omitempty"`
	Filename     string `json:"filename,omitempty"`
	FolderID     string `json:"folderId,omitempty"`
	PeriodRange  string `json:"periodRange,omitempty"`
	DurationMs   int64  `json:"durationMs"`
	StartedAt    string `json:"startedAt"`
}

type runListResponse struct {
	Runs          []runInfo `json:"runs"`
	NextPageToken string    `json:"nextPageToken"`
	TotalSize     int       `json:"totalSize"`
}

// jobInfo is one queued run from GET /api/jobs/runs.
type jobInfo struct {
	ID            string `json:"id"`
	Pipeline      string `json:"pipeline"`
	RequestedBy   string `json:"requestedBy"`
	RequestedAt   string `json:"requestedAt"`
	State         string `json:"state"`
	AttemptCount  int    `json:"attemptCount"`
	LastError     string `json:"lastError,omitempty"`
	ResultStatus  string `json:"resultStatus,omitempty"`
	ResultVersion string `json:"resultVersion,omitempty"`
	DurationMs    int64  `json:"durationMs,omitempty"`
}

type jobListResponse struct {
	Jobs          []jobInfo `json:"jobs"`
	NextPageToken string    `json:"nextPageToken"`
	TotalSize     int       `json:"totalSize"`
}

// settingsPayload mirrors the server's folder routing settings.
type settingsPayload struct {
	MainFolderID    string            `json:"mainFolderID"`
	ArchiveFolderID string            `json:"archiveFolderID"`
	Folders         map[string]string `json:"folders,omitempty"`
}

// settingsEnvelope pairs the settings with the version hash the server
// requires on save.
type settingsEnvelope struct {
	Settings *settingsPayload `json:"settings"`
	Version  string           `json:"version"`
}
