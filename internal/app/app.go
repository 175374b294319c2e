// Package app assembles and runs the sync engine: one-shot runs for the sync command
// and the schedule daemon with its HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/NovaUNL/Supernova-sub000/internal/config"
	"github.com/NovaUNL/Supernova-sub000/internal/sync/coordinator"
	"github.com/NovaUNL/Supernova-sub000/internal/sync/orchestrator"
)

// scheduleUpdater is a coordinator whose schedule can change while it runs
type scheduleUpdater interface {
	UpdateSchedule(schedule coordinator.Schedule) error
}

// SyncApp encapsulates all components needed to run the sync engine.
// It provides lifecycle management and graceful shutdown capabilities
type SyncApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// RunOnce performs a single run of mode and records its status
func (app *SyncApp) RunOnce(
	ctx context.Context, mode orchestrator.Mode, flags orchestrator.Flags,
) (*orchestrator.Summary, error) {
	return app.components.Coordinator.RunOnce(ctx, mode, flags)
}

// Start starts the schedule daemon (HTTP server and background coordinator).
// This method blocks until the HTTP server stops or encounters an error
func (app *SyncApp) Start() error {
	go func() {
		if err := app.components.Coordinator.Start(app.ctx); err != nil {
			slog.Error("Sync coordinator failed", "error", err)
		}
	}()

	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// WatchConfig applies the sync.schedule section of the file at path to the running
// coordinator each time the file changes. Other sections need a restart. It blocks
// until ctx is done.
func (app *SyncApp) WatchConfig(ctx context.Context, path string) error {
	updater, ok := app.components.Coordinator.(scheduleUpdater)
	if !ok {
		return errors.New("coordinator does not support schedule reloads")
	}
	return config.Watch(ctx, path, func(cfg *config.Config) {
		if err := updater.UpdateSchedule(buildSchedule(cfg.Sync.Schedule)); err != nil {
			slog.Error("Keeping the current sync schedule", "error", err)
		}
	})
}

// Stop gracefully stops the application with the given timeout.
// It waits for a run in progress, then shuts down the HTTP server and releases storage
func (app *SyncApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	if err := app.components.Coordinator.Stop(); err != nil {
		slog.Error("Failed to stop sync coordinator", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := app.httpServer.Shutdown(shutdownCtx)

	app.Close()

	if err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// Close releases storage without touching the HTTP server. It is all a one-shot run needs.
func (app *SyncApp) Close() {
	if app.cancelFunc != nil {
		app.cancelFunc()
	}
}

// GetConfig returns the application configuration
func (app *SyncApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *SyncApp) GetHTTPServer() *http.Server {
	return app.httpServer
}
