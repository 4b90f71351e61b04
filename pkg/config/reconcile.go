package config

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// defaultReconcileInterval is how often the settings file is re-checked.
const defaultReconcileInterval = 30 * time.Second

// Reconciler periodically reloads the settings file and notifies the
// server when it changed externally (edited on disk or by another
// replica). Changes made through Save are picked up the same way.
type Reconciler struct {
	store    *SettingsStore
	interval time.Duration
	onChange func(*Settings)
	logger   *slog.Logger

	mu      sync.Mutex
	version string
}

// NewReconciler creates a Reconciler. initialVersion is the hash the
// caller already applied, so the first tick only fires onChange for a
// genuinely newer file. A zero interval selects the default 30s.
func NewReconciler(store *SettingsStore, initialVersion string, interval time.Duration, onChange func(*Settings), logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:    store,
		interval: interval,
		onChange: onChange,
		logger:   logger,
		version:  initialVersion,
	}
}

// Bump records a version the caller already applied, so the next tick
// does not re-fire onChange for a change the caller made itself.
func (r *Reconciler) Bump(version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.version = version
}

// Run blocks until the context is cancelled, checking the settings file
// on every tick.
func (r *Reconciler) Run(ctx context.Context) {
	if r.store == nil {
		r.logger.Info("no settings store set, reconcile loop disabled")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("settings reconcile loop started", "interval", r.interval.String())

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("settings reconcile loop stopped")
			return
		case <-ticker.C:
			r.reconcileOnce(ctx)
		}
	}
}

// reconcileOnce performs a single reconciliation check.
func (r *Reconciler) reconcileOnce(ctx context.Context) {
	settings, version, err := r.store.Load(ctx)
	if err != nil {
		r.logger.Error("reconcile: failed to load settings", "error", err)
		return
	}

	r.mu.Lock()
	current := r.version
	if version != current {
		r.version = version
	}
	r.mu.Unlock()

	if version == current {
		return
	}

	r.logger.Info("reconcile: settings changed externally, updating",
		"oldVersion", current, "newVersion", version)

	if r.onChange != nil {
		r.onChange(settings)
	}
}
