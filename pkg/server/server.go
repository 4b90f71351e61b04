// Package server exposes the pipeline service over HTTP: the historical
// trigger routes the schedulers call, health probes, run history, the
// runtime folder-routing settings, and the async job queue.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"

	"github.com/macrodata/statpipe/pkg/archive"
	"github.com/macrodata/statpipe/pkg/config"
	"github.com/macrodata/statpipe/pkg/filestore"
	"github.com/macrodata/statpipe/pkg/jobs"
	"github.com/macrodata/statpipe/pkg/pipeline"
	"github.com/macrodata/statpipe/pkg/runlog"
	"github.com/macrodata/statpipe/pkg/sdmx"
	"github.com/macrodata/statpipe/pkg/version"
	"github.com/macrodata/statpipe/pkg/workbook"
)

// Config wires a Server.
type Config struct {
	Service *config.ServiceConfig
	DB      *gorm.DB
	Store   filestore.Store
	SDMX    *sdmx.Client

	// SettingsStore persists the folder routing settings; Settings and
	// SettingsVersion are the values the caller loaded at startup.
	SettingsStore   *config.SettingsStore
	Settings        *config.Settings
	SettingsVersion string

	// JobConfig enables the async run queue when non-nil and enabled.
	JobConfig *jobs.JobConfig

	Logger *slog.Logger
}

// Server owns the HTTP surface and the run machinery behind it. The
// coordinator stack is rebuilt whenever the folder settings change, so
// a settings edit takes effect without a restart.
type Server struct {
	cfg    *config.ServiceConfig
	db     *gorm.DB
	store  filestore.Store
	sdmx   *sdmx.Client
	logger *slog.Logger

	settingsStore *config.SettingsStore
	reconciler    *config.Reconciler

	history     *pipeline.RunStore
	rateLimiter *pipeline.RunRateLimiter

	jobConfig *jobs.JobConfig
	jobStore  *jobs.JobStore

	router    chi.Router
	startedAt time.Time

	mu          sync.RWMutex
	settings    *config.Settings
	coordinator *pipeline.Coordinator
	ready       bool
}

// New creates a Server. Call Init before MountRoutes.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:           cfg.Service,
		db:            cfg.DB,
		store:         cfg.Store,
		sdmx:          cfg.SDMX,
		logger:        logger,
		settingsStore: cfg.SettingsStore,
		jobConfig:     cfg.JobConfig,
		settings:      cfg.Settings.Clone(),
		startedAt:     time.Now(),
	}

	if cfg.Service.TriggerIntervalSeconds > 0 {
		interval := time.Duration(cfg.Service.TriggerIntervalSeconds) * time.Second
		s.rateLimiter = pipeline.NewRunRateLimiter(interval)
	}
	if cfg.SettingsStore != nil {
		s.reconciler = config.NewReconciler(cfg.SettingsStore, cfg.SettingsVersion, 0, s.onSettingsChanged, logger)
	}

	return s
}

// Init migrates the server-owned tables, builds the coordinator stack
// from the startup settings, and initializes every registered pipeline.
func (s *Server) Init(ctx context.Context) error {
	if s.db != nil {
		s.history = pipeline.NewRunStore(s.db, s.logger)
		if err := s.history.AutoMigrate(); err != nil {
			s.logger.Error("failed to auto-migrate run history table", "error", err)
		}

		if s.jobConfig != nil && s.jobConfig.Enabled {
			s.jobStore = jobs.NewJobStore(s.db)
			if err := s.jobStore.AutoMigrate(); err != nil {
				s.logger.Error("failed to auto-migrate job tables", "error", err)
			}
		}
	}

	if err := s.applySettings(ctx, s.currentSettings()); err != nil {
		return err
	}

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()

	return nil
}

// applySettings rebuilds the coordinator stack around the given folder
// settings and re-initializes the pipelines with the new routing map.
func (s *Server) applySettings(ctx context.Context, st *config.Settings) error {
	st = st.Clone()

	resolver := version.NewResolver(s.store, workbook.Reader{}, s.logger)
	archiver := archive.New(s.store, st.ArchiveFolderID, s.logger)
	runLog := runlog.New(s.store, st.MainFolderID, s.logger)

	coord := pipeline.NewCoordinator(pipeline.CoordinatorConfig{
		Store:      s.store,
		Resolver:   resolver,
		Archiver:   archiver,
		RunLog:     runLog,
		History:    s.history,
		MainFolder: st.MainFolderID,
		Logger:     s.logger,
	})

	s.mu.Lock()
	s.settings = st
	s.coordinator = coord
	s.mu.Unlock()

	return pipeline.InitAll(ctx, pipeline.Env{
		SDMX:    s.sdmx,
		Folders: st.Folders,
		Logger:  s.logger,
	})
}

// onSettingsChanged is the reconciler callback for external edits to the
// settings file.
func (s *Server) onSettingsChanged(st *config.Settings) {
	if err := s.applySettings(context.Background(), st); err != nil {
		s.logger.Error("failed to apply updated settings", "error", err)
	}
}

// ReconcileLoop watches the settings file for external edits and applies
// them without a restart. It blocks until the context is cancelled.
func (s *Server) ReconcileLoop(ctx context.Context) {
	if s.reconciler == nil {
		s.logger.Info("no settings store set, reconcile loop disabled")
		return
	}
	s.reconciler.Run(ctx)
}

// NewJobWorkerPool creates the worker pool for queued runs. Call Run(ctx)
// on the returned pool to start processing. Returns nil if jobs are not
// enabled.
func (s *Server) NewJobWorkerPool() *jobs.WorkerPool {
	if s.jobStore == nil || s.jobConfig == nil || !s.jobConfig.Enabled {
		return nil
	}
	return jobs.NewWorkerPool(s.jobStore, &coordinatorRunner{srv: s}, s.jobConfig, s.logger)
}

// MountRoutes creates the HTTP router with all routes mounted.
func (s *Server) MountRoutes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Historical trigger surface, kept shape compatible for the
	// schedulers that call it.
	r.Get("/", s.homeHandler)
	r.Get("/test", s.storeCheckHandler)
	r.Get("/pipelines", s.pipelinesHandler)
	r.Get("/run", s.runDefaultHandler)
	r.Post("/run", s.runDefaultHandler)
	r.Get("/run/all", s.runAllHandler)
	r.Post("/run/all", s.runAllHandler)
	r.Get("/run/{pipelineName}", s.runHandler)
	r.Post("/run/{pipelineName}", s.runHandler)

	r.Get("/healthz", s.healthHandler)
	r.Get("/livez", s.healthHandler)
	r.Get("/readyz", s.readyHandler)

	r.Get("/api/runs", s.listRunsHandler)
	r.Get("/api/runs/{runId}", s.getRunHandler)
	r.Get("/api/settings", s.getSettingsHandler)
	r.Put("/api/settings", s.updateSettingsHandler)

	if s.jobStore != nil {
		known := func(name string) bool { return pipeline.Lookup(name) != nil }
		r.Mount("/api/jobs", jobs.Router(s.jobStore, known))
		s.logger.Info("mounted job API routes")
	}

	r.NotFound(s.notFoundHandler)

	s.router = r
	return r
}

// Router returns the router built by MountRoutes.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) currentSettings() *config.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *Server) currentCoordinator() *pipeline.Coordinator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coordinator
}

// healthHandler answers liveness probes.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	uptime := time.Since(s.startedAt).Round(time.Second).String()
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": uptime,
	})
}

// readyHandler checks whether the server can serve traffic: database
// reachable and the startup settings applied.
func (s *Server) readyHandler(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()

	allReady := true

	dbStatus := map[string]string{"status": "up"}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			dbStatus["status"] = "down"
			dbStatus["error"] = err.Error()
			allReady = false
		} else if err := sqlDB.Ping(); err != nil {
			dbStatus["status"] = "down"
			dbStatus["error"] = err.Error()
			allReady = false
		}
	} else {
		dbStatus["status"] = "not_configured"
	}

	settingsStatus := map[string]string{"status": "applied"}
	if !ready {
		settingsStatus["status"] = "pending"
		allReady = false
	}

	pipelinesStatus := map[string]string{
		"status":  "ok",
		"details": fmt.Sprintf("%d pipelines registered", len(pipeline.Names())),
	}

	status := "ready"
	code := http.StatusOK
	if !allReady {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status": status,
		"components": map[string]any{
			"database":  dbStatus,
			"settings":  settingsStatus,
			"pipelines": pipelinesStatus,
		},
	})
}
