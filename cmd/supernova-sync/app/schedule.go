package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/NovaUNL/Supernova-sub000/internal/app"
)

const defaultGracefulTimeout = 30 * time.Second

func newScheduleCmd() *cobra.Command {
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run syncs on a schedule",
		Long: `Run fast, slow and full syncs on the intervals of the sync.schedule section and serve
the health, status and metrics API until interrupted.

The last outcome of each mode is persisted, so a restarted daemon does not repeat a run
that is not yet due. Edits to sync.schedule in the configuration file take effect without
a restart.`,
		Args: cobra.NoArgs,
		RunE: runSchedule,
	}

	addConfigFlags(scheduleCmd)
	scheduleCmd.Flags().String("address", "", "Address to listen on, overriding listen")
	return scheduleCmd
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	tel, shutdownTelemetry, err := newTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdownTelemetry()

	opts := []app.SyncAppOptions{app.WithConfig(cfg), app.WithTelemetry(tel)}
	if address, _ := cmd.Flags().GetString("address"); address != "" {
		opts = append(opts, app.WithAddress(address))
	}

	syncApp, err := app.NewSyncApp(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create sync app: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- syncApp.Start()
	}()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		watchCtx, stopWatching := context.WithCancel(ctx)
		defer stopWatching()
		go func() {
			if err := syncApp.WatchConfig(watchCtx, path); err != nil {
				slog.Warn("Schedule changes will need a restart", "error", err)
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown the daemon
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		syncApp.Close()
		return err
	case sig := <-quit:
		slog.Info("Received signal", "signal", sig.String())
	}

	return syncApp.Stop(defaultGracefulTimeout)
}
