// Package main provides the pipeline server entry point. The server
// fetches statistical time series, builds the xlsx reports and publishes
// them to the configured file store.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/macrodata/statpipe/pkg/config"
	"github.com/macrodata/statpipe/pkg/dataset"
	"github.com/macrodata/statpipe/pkg/filestore"
	"github.com/macrodata/statpipe/pkg/filestore/dbstore"
	"github.com/macrodata/statpipe/pkg/filestore/drive"
	"github.com/macrodata/statpipe/pkg/jobs"
	"github.com/macrodata/statpipe/pkg/pipeline"
	"github.com/macrodata/statpipe/pkg/sdmx"
	"github.com/macrodata/statpipe/pkg/server"
	"github.com/macrodata/statpipe/pipelines/matrix"

	// Import pipelines - their init() registers them
	_ "github.com/macrodata/statpipe/pipelines/consumption"
	_ "github.com/macrodata/statpipe/pipelines/income"
	_ "github.com/macrodata/statpipe/pipelines/prices"
)

func main() {
	var (
		configPath   string
		listenAddr   string
		settingsPath string
	)

	flag.StringVar(&configPath, "config", "", "Path to the YAML service config")
	flag.StringVar(&listenAddr, "listen", "", "Address to listen on (overrides config)")
	flag.StringVar(&settingsPath, "settings", "", "Path to the folder settings file (overrides config)")
	flag.Parse()

	// Initialize glog for backwards compatibility
	_ = flag.Set("logtostderr", "true")

	// Set up structured logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		glog.Fatalf("Failed to load config: %v", err)
	}
	cfg.ApplyEnv()
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if settingsPath != "" {
		cfg.SettingsPath = settingsPath
	}
	if err := cfg.Validate(); err != nil {
		glog.Fatalf("Invalid config: %v", err)
	}

	logger.Info("starting pipeline server",
		"listen", cfg.Listen,
		"settings", cfg.SettingsPath,
		"database", cfg.Database.Type,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Register dataset definitions from the configured sources before the
	// server initializes the pipelines.
	if err := loadDatasetDefinitions(ctx, cfg, logger); err != nil {
		glog.Fatalf("Failed to load dataset definitions: %v", err)
	}

	gormDB, err := config.OpenDatabase(cfg.Database)
	if err != nil {
		glog.Fatalf("Failed to connect to database: %v", err)
	}

	settingsStore, err := config.NewSettingsStore(cfg.SettingsPath)
	if err != nil {
		glog.Fatalf("Failed to create settings store: %v", err)
	}
	settings, settingsVersion, err := settingsStore.Init(ctx, config.SettingsFromEnv())
	if err != nil {
		glog.Fatalf("Failed to initialize settings: %v", err)
	}

	var store filestore.Store
	if cfg.Drive.Enabled {
		// The main folder id doubles as the shared drive id, matching how
		// the folders were provisioned.
		client, err := drive.New(cfg.Drive.CredentialsFile, settings.MainFolderID, cfg.Drive.BaseURL)
		if err != nil {
			glog.Fatalf("Failed to create drive client: %v", err)
		}
		store = client
		logger.Info("using cloud drive file store", "mainFolder", settings.MainFolderID)
	} else {
		dbStore := dbstore.New(gormDB)
		if err := dbStore.AutoMigrate(); err != nil {
			glog.Fatalf("Failed to migrate file store tables: %v", err)
		}
		store = dbStore
		logger.Info("using database file store")
	}

	sdmxBase := cfg.SDMXBaseURL
	if sdmxBase == "" {
		sdmxBase = sdmx.DefaultBaseURL
	}

	srv := server.New(server.Config{
		Service:         cfg,
		DB:              gormDB,
		Store:           store,
		SDMX:            sdmx.New(sdmxBase, logger),
		SettingsStore:   settingsStore,
		Settings:        settings,
		SettingsVersion: settingsVersion,
		JobConfig:       jobs.JobConfigFromEnv(),
		Logger:          logger,
	})
	if err := srv.Init(ctx); err != nil {
		glog.Fatalf("Failed to initialize server: %v", err)
	}

	// Mount routes and start
	router := srv.MountRoutes()

	// Start settings reconcile loop in background.
	go srv.ReconcileLoop(ctx)

	if wp := srv.NewJobWorkerPool(); wp != nil {
		go wp.Run(ctx)
	}

	logger.Info("pipeline server ready",
		"listen", cfg.Listen,
		"pipelines", pipeline.Names(),
	)

	// Create HTTP server with graceful shutdown. No write timeout: a
	// synchronous pipeline run holds its request open for minutes.
	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: router,
	}

	// Start HTTP server in goroutine
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	logger.Info("shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("pipeline server stopped")
}

// loadDatasetDefinitions registers matrix pipelines for every definition
// found in the configured directory and git sources.
func loadDatasetDefinitions(ctx context.Context, cfg *config.ServiceConfig, logger *slog.Logger) error {
	if cfg.Datasets.Dir != "" {
		defs, err := dataset.LoadDir(cfg.Datasets.Dir, "")
		if err != nil {
			return err
		}
		for _, def := range defs {
			matrix.Register(def)
		}
		logger.Info("loaded dataset definitions from directory",
			"dir", cfg.Datasets.Dir, "definitions", len(defs))
	}

	if cfg.Datasets.Git.URL != "" {
		src := dataset.NewGitSource(cfg.Datasets.Git.URL, cfg.Datasets.Git.Ref,
			cfg.Datasets.Git.Token, cfg.Datasets.Git.Glob)
		src.Logger = logger
		defs, _, err := src.Load(ctx)
		if err != nil {
			return err
		}
		for _, def := range defs {
			matrix.Register(def)
		}
	}

	return nil
}
