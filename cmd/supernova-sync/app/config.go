package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/NovaUNL/Supernova-sub000/internal/config"
	"github.com/NovaUNL/Supernova-sub000/internal/telemetry"
)

// addConfigFlags registers the flags that sync and schedule read their configuration from
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Path to configuration file (YAML format)")
	cmd.Flags().String("upstream", "", "Upstream base URL, overriding upstream.url")
	cmd.Flags().String("storage", "", "Storage type (postgres or memory), overriding storage")
	cmd.Flags().Int("concurrency", 0, "Top-level workers, overriding sync.concurrency")
}

// loadConfig loads the configuration file named by --config and overlays the environment
// and the override flags on top of it
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	for key, flag := range map[string]string{
		"upstream.url":     "upstream",
		"storage":          "storage",
		"sync.concurrency": "concurrency",
	} {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return nil, fmt.Errorf("failed to bind %s flag: %w", flag, err)
		}
	}

	opts := []config.Option{config.WithViper(v)}
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	if configPath != "" {
		opts = append(opts, config.WithConfigPath(configPath))
	}

	cfg, err := config.LoadConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", configPath,
		"upstream", cfg.Upstream.URL,
		"storage", cfg.GetStorage(),
		"status", cfg.GetStatusType())
	return cfg, nil
}

// newTelemetry initializes telemetry from the configuration. It returns no-op providers
// when telemetry is not enabled.
func newTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Telemetry, func(), error) {
	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown telemetry", "error", err)
		}
	}
	return tel, shutdown, nil
}
