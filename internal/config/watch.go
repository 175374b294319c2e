package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the configuration file at path whenever it changes and hands every
// valid result to onReload. An invalid file is logged and skipped, so the last good
// configuration stays in effect. Watch blocks until ctx is done.
//
// The parent directory is watched instead of the file itself. Editors and ConfigMap
// mounts replace the file rather than writing to it, which would drop a watch on the file.
func Watch(ctx context.Context, path string, onReload func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	dir, name := filepath.Split(abs)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	slog.Info("Watching configuration file", "path", abs)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("config watcher closed")
			}
			if !affects(event, name) {
				continue
			}
			cfg, err := LoadConfig(WithConfigPath(abs))
			if err != nil {
				slog.Error("Ignoring invalid configuration change", "path", abs, "error", err)
				continue
			}
			slog.Info("Configuration reloaded", "path", abs)
			onReload(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("config watcher closed")
			}
			slog.Warn("Config watcher error", "error", err)
		}
	}
}

// affects reports whether event left a new version of the file named name. Kubernetes
// swaps the ..data symlink of a mounted ConfigMap instead of touching the file.
func affects(event fsnotify.Event, name string) bool {
	base := filepath.Base(event.Name)
	if base != name && base != "..data" {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}
