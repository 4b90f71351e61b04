package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// --- truncate tests ---

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is a long string", 10, "this is..."},
		{"abc", 3, "abc"},
		{"abcd", 3, "abc"},
		{"", 5, ""},
		{"hello", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.s, func(t *testing.T) {
			got := truncate(tt.s, tt.max)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.s, tt.max, got, tt.want)
			}
		})
	}
}

// --- asString tests ---

func TestAsString(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "updated", "updated"},
		{"whole float", float64(42), "42"},
		{"large whole float", float64(120000), "120000"},
		{"fractional float", float64(3.14), "3.14"},
		{"bool", true, "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := asString(tt.in)
			if got != tt.want {
				t.Errorf("asString(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatDurationMs(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0s"},
		{250, "250ms"},
		{1500, "1.5s"},
		{62000, "1m2s"},
	}

	for _, tt := range tests {
		got := formatDurationMs(tt.ms)
		if got != tt.want {
			t.Errorf("formatDurationMs(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

// --- outcome rendering tests ---

func pairValue(pairs [][2]string, label string) string {
	for _, p := range pairs {
		if p[0] == label {
			return p[1]
		}
	}
	return ""
}

func TestOutcomePairs(t *testing.T) {
	t.Run("composed version", func(t *testing.T) {
		out := map[string]any{
			"status":         "updated",
			"version_type":   "Edition",
			"version_value":  "2026M01",
			"filename":       "prezzi_2026M01.xlsx",
			"n_observations": float64(1240),
		}
		pairs := outcomePairs(out)

		if got := pairValue(pairs, "Status"); got != "updated" {
			t.Errorf("Status = %q, want %q", got, "updated")
		}
		if got := pairValue(pairs, "Version"); got != "2026M01 (Edition)" {
			t.Errorf("Version = %q, want %q", got, "2026M01 (Edition)")
		}
		if got := pairValue(pairs, "Observations"); got != "1240" {
			t.Errorf("Observations = %q, want %q", got, "1240")
		}
	})

	t.Run("version without type", func(t *testing.T) {
		pairs := outcomePairs(map[string]any{"version_value": "2026M01"})
		if got := pairValue(pairs, "Version"); got != "2026M01" {
			t.Errorf("Version = %q, want %q", got, "2026M01")
		}
	})

	t.Run("type without value stays empty", func(t *testing.T) {
		pairs := outcomePairs(map[string]any{"version_type": "Edition"})
		if got := pairValue(pairs, "Version"); got != "" {
			t.Errorf("Version = %q, want empty", got)
		}
	})

	t.Run("missing keys yield empty values", func(t *testing.T) {
		pairs := outcomePairs(map[string]any{})
		for _, p := range pairs {
			if p[1] != "" {
				t.Errorf("pair %q = %q, want empty", p[0], p[1])
			}
		}
	})
}

// --- settings rendering tests ---

func TestSettingsPairs(t *testing.T) {
	env := &settingsEnvelope{
		Settings: &settingsPayload{
			MainFolderID:    "main-1",
			ArchiveFolderID: "arch-1",
			Folders: map[string]string{
				"quarterly": "q-1",
				"annual":    "a-1",
				"monthly":   "m-1",
			},
		},
		Version: "v1",
	}

	pairs := settingsPairs(env)

	wantLabels := []string{
		"Main folder", "Archive folder",
		"Route annual", "Route monthly", "Route quarterly",
		"Version",
	}
	if len(pairs) != len(wantLabels) {
		t.Fatalf("got %d pairs, want %d", len(pairs), len(wantLabels))
	}
	for i, want := range wantLabels {
		if pairs[i][0] != want {
			t.Errorf("pair %d label = %q, want %q", i, pairs[i][0], want)
		}
	}
	if got := pairValue(pairs, "Route monthly"); got != "m-1" {
		t.Errorf("Route monthly = %q, want %q", got, "m-1")
	}
}

func TestSettingsPairsNilSettings(t *testing.T) {
	pairs := settingsPairs(&settingsEnvelope{Version: "v9"})
	if len(pairs) != 1 || pairs[0][0] != "Version" || pairs[0][1] != "v9" {
		t.Errorf("pairs = %v, want only the version", pairs)
	}
}

func TestApplySettingsChanges(t *testing.T) {
	t.Run("overrides folders", func(t *testing.T) {
		s := &settingsPayload{MainFolderID: "old-main", ArchiveFolderID: "old-arch"}
		if err := applySettingsChanges(s, "new-main", "", nil); err != nil {
			t.Fatalf("applySettingsChanges failed: %v", err)
		}
		if s.MainFolderID != "new-main" {
			t.Errorf("MainFolderID = %q, want %q", s.MainFolderID, "new-main")
		}
		if s.ArchiveFolderID != "old-arch" {
			t.Errorf("ArchiveFolderID = %q, want unchanged %q", s.ArchiveFolderID, "old-arch")
		}
	})

	t.Run("adds route to nil map", func(t *testing.T) {
		s := &settingsPayload{}
		if err := applySettingsChanges(s, "", "", []string{"monthly=m-1"}); err != nil {
			t.Fatalf("applySettingsChanges failed: %v", err)
		}
		if s.Folders["monthly"] != "m-1" {
			t.Errorf("Folders[monthly] = %q, want %q", s.Folders["monthly"], "m-1")
		}
	})

	t.Run("empty id removes route", func(t *testing.T) {
		s := &settingsPayload{Folders: map[string]string{"monthly": "m-1", "annual": "a-1"}}
		if err := applySettingsChanges(s, "", "", []string{"monthly="}); err != nil {
			t.Fatalf("applySettingsChanges failed: %v", err)
		}
		if _, ok := s.Folders["monthly"]; ok {
			t.Error("monthly route should be removed")
		}
		if s.Folders["annual"] != "a-1" {
			t.Error("annual route should survive")
		}
	})

	t.Run("rejects malformed route", func(t *testing.T) {
		err := applySettingsChanges(&settingsPayload{}, "", "", []string{"no-separator"})
		if err == nil {
			t.Fatal("expected error for route without =")
		}
		if !strings.Contains(err.Error(), "no-separator") {
			t.Errorf("error should name the bad flag value, got: %v", err)
		}
	})

	t.Run("rejects empty key", func(t *testing.T) {
		if err := applySettingsChanges(&settingsPayload{}, "", "", []string{"=m-1"}); err == nil {
			t.Fatal("expected error for empty route key")
		}
	})
}

// --- HTTP integration tests with httptest ---

func TestPipelinesListHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pipelines" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		resp := pipelinesResponse{
			Status:             "healthy",
			AvailablePipelines: []string{"income", "prices"},
			Endpoints:          []string{"/run/income", "/run/prices"},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := &pipeClient{baseURL: srv.URL, http: srv.Client()}

	var resp pipelinesResponse
	if err := client.getJSON("/pipelines", &resp); err != nil {
		t.Fatalf("getJSON failed: %v", err)
	}

	if len(resp.AvailablePipelines) != 2 {
		t.Fatalf("expected 2 pipelines, got %d", len(resp.AvailablePipelines))
	}
	if resp.AvailablePipelines[0] != "income" {
		t.Errorf("first pipeline = %q, want %q", resp.AvailablePipelines[0], "income")
	}
}

func TestRunHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Path != "/run/income" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		resp := map[string]any{
			"status":        "updated",
			"version_type":  "Edition",
			"version_value": "2026M01",
			"filename":      "reddito_2026M01.xlsx",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := &pipeClient{baseURL: srv.URL, http: srv.Client()}

	resp, status, err := client.postRaw("/run/income", nil)
	if err != nil {
		t.Fatalf("postRaw failed: %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	if resp["status"] != "updated" {
		t.Errorf("outcome status = %v, want %q", resp["status"], "updated")
	}
}

func TestRunNotFoundHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"status":              "error",
			"message":             `Pipeline "nope" not found`,
			"available_pipelines": []string{"income"},
		})
	}))
	defer srv.Close()

	client := &pipeClient{baseURL: srv.URL, http: srv.Client()}

	// The trigger surface answers 404 with a structured body, which
	// postRaw hands back instead of turning into an error.
	resp, status, err := client.postRaw("/run/nope", nil)
	if err != nil {
		t.Fatalf("postRaw failed: %v", err)
	}
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
	if msg := asString(resp["message"]); !strings.Contains(msg, "not found") {
		t.Errorf("message = %q, should mention the missing pipeline", msg)
	}
}

func TestRunsListHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/runs" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		q := r.URL.Query()
		if q.Get("pipeline") != "income" {
			t.Errorf("pipeline filter = %q, want %q", q.Get("pipeline"), "income")
		}
		if q.Get("pageSize") != "5" {
			t.Errorf("pageSize = %q, want %q", q.Get("pageSize"), "5")
		}
		resp := runListResponse{
			Runs: []runInfo{
				{ID: "run-1", Pipeline: "income", Status: "updated", VersionValue: "2026M01", DurationMs: 1500},
			},
			TotalSize: 1,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := &pipeClient{baseURL: srv.URL, http: srv.Client()}

	var resp runListResponse
	if err := client.getJSON("/api/runs?pipeline=income&pageSize=5", &resp); err != nil {
		t.Fatalf("getJSON failed: %v", err)
	}

	if resp.TotalSize != 1 {
		t.Errorf("TotalSize = %d, want 1", resp.TotalSize)
	}
	if resp.Runs[0].VersionValue != "2026M01" {
		t.Errorf("run version = %q, want %q", resp.Runs[0].VersionValue, "2026M01")
	}
}

func TestEnqueueRunHTTP(t *testing.T) {
	oldAll := runAll
	oldFmt := outputFmt
	defer func() { runAll = oldAll; outputFmt = oldFmt }()
	runAll = false
	outputFmt = "table"

	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/jobs/runs" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(jobInfo{ID: "job-1", Pipeline: received["pipeline"], State: "queued"})
	}))
	defer srv.Close()

	client := &pipeClient{baseURL: srv.URL, http: srv.Client()}

	if err := enqueueRun(client, []string{"income"}); err != nil {
		t.Fatalf("enqueueRun failed: %v", err)
	}
	if received["pipeline"] != "income" {
		t.Errorf("queued pipeline = %q, want %q", received["pipeline"], "income")
	}
	if received["requestedBy"] != "statpipectl" {
		t.Errorf("requestedBy = %q, want %q", received["requestedBy"], "statpipectl")
	}
}

func TestEnqueueRunRequiresName(t *testing.T) {
	oldAll := runAll
	defer func() { runAll = oldAll }()
	runAll = false

	client := &pipeClient{baseURL: "http://unused", http: http.DefaultClient}
	if err := enqueueRun(client, nil); err == nil {
		t.Fatal("expected error without a pipeline name or --all")
	}
}

func TestJobsCancelHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/jobs/runs/job-1:cancel" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "canceled", "jobId": "job-1"})
	}))
	defer srv.Close()

	client := &pipeClient{baseURL: srv.URL, http: srv.Client()}

	resp, status, err := client.postRaw("/api/jobs/runs/job-1:cancel", nil)
	if err != nil {
		t.Fatalf("postRaw failed: %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	if resp["status"] != "canceled" {
		t.Errorf("status field = %v, want %q", resp["status"], "canceled")
	}
}

func TestSettingsUpdateHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/settings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(settingsEnvelope{
				Settings: &settingsPayload{
					MainFolderID:    "main-1",
					ArchiveFolderID: "arch-1",
					Folders:         map[string]string{"quarterly": "q-1"},
				},
				Version: "v1",
			})
		case http.MethodPut:
			var env settingsEnvelope
			if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			// The save must carry the version from the load.
			if env.Version != "v1" {
				t.Errorf("saved version = %q, want %q", env.Version, "v1")
			}
			if env.Settings.MainFolderID != "relocated" {
				t.Errorf("saved main folder = %q, want %q", env.Settings.MainFolderID, "relocated")
			}
			if env.Settings.Folders["monthly"] != "m-1" {
				t.Errorf("saved monthly route = %q, want %q", env.Settings.Folders["monthly"], "m-1")
			}
			env.Version = "v2"
			json.NewEncoder(w).Encode(env)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	client := &pipeClient{baseURL: srv.URL, http: srv.Client()}

	var env settingsEnvelope
	if err := client.getJSON("/api/settings", &env); err != nil {
		t.Fatalf("getJSON failed: %v", err)
	}
	if err := applySettingsChanges(env.Settings, "relocated", "", []string{"monthly=m-1"}); err != nil {
		t.Fatalf("applySettingsChanges failed: %v", err)
	}

	var updated settingsEnvelope
	if err := client.putJSON("/api/settings", env, &updated); err != nil {
		t.Fatalf("putJSON failed: %v", err)
	}
	if updated.Version != "v2" {
		t.Errorf("updated version = %q, want %q", updated.Version, "v2")
	}
}

func TestSettingsConflictHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{
			"error":   "Conflict",
			"message": "settings changed since last load",
		})
	}))
	defer srv.Close()

	client := &pipeClient{baseURL: srv.URL, http: srv.Client()}

	err := client.putJSON("/api/settings", settingsEnvelope{Version: "stale"}, nil)
	if err == nil {
		t.Fatal("expected error for 409 response")
	}
	if !strings.Contains(err.Error(), "409") {
		t.Errorf("error should contain status code, got: %v", err)
	}
	if !strings.Contains(err.Error(), "settings changed") {
		t.Errorf("error should carry the response body, got: %v", err)
	}
}

func TestHealthHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/healthz":
			json.NewEncoder(w).Encode(map[string]string{"status": "alive", "uptime": "5m"})
		case "/readyz":
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{
				"status": "not_ready",
				"components": map[string]any{
					"database": map[string]any{"status": "down", "error": "connection refused"},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := &pipeClient{baseURL: srv.URL, http: srv.Client()}

	var health map[string]any
	if err := client.getJSON("/healthz", &health); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if health["status"] != "alive" {
		t.Errorf("health status = %v, want %q", health["status"], "alive")
	}

	// Readiness may answer 503 with a component breakdown. getStatus
	// returns the decoded body rather than failing on the status code.
	ready, status, err := client.getStatus("/readyz")
	if err != nil {
		t.Fatalf("readiness check failed: %v", err)
	}
	if status != http.StatusServiceUnavailable {
		t.Errorf("readiness status code = %d, want 503", status)
	}
	if ready["status"] != "not_ready" {
		t.Errorf("readiness status = %v, want %q", ready["status"], "not_ready")
	}
}

func TestClientErrorHandling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	client := &pipeClient{baseURL: srv.URL, http: srv.Client()}

	var resp pipelinesResponse
	err := client.getJSON("/pipelines", &resp)
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error should contain status code, got: %v", err)
	}
}

func TestGetStatusDecodesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "error",
			"message": "File store error: credentials expired",
		})
	}))
	defer srv.Close()

	client := &pipeClient{baseURL: srv.URL, http: srv.Client()}

	resp, status, err := client.getStatus("/test")
	if err != nil {
		t.Fatalf("getStatus failed: %v", err)
	}
	if status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", status)
	}
	if msg := asString(resp["message"]); !strings.Contains(msg, "credentials expired") {
		t.Errorf("message = %q, should carry the server detail", msg)
	}
}

// --- Server URL resolution tests ---

func TestDefaultServerURL_EnvVar(t *testing.T) {
	t.Setenv("STATPIPE_SERVER", "http://pipeline.example:9090")

	got := defaultServerURL()
	if got != "http://pipeline.example:9090" {
		t.Errorf("defaultServerURL() = %q, want env value", got)
	}
}

func TestDefaultServerURL_Default(t *testing.T) {
	t.Setenv("STATPIPE_SERVER", "")

	got := defaultServerURL()
	if got != "http://localhost:8080" {
		t.Errorf("defaultServerURL() = %q, want %q", got, "http://localhost:8080")
	}
}
