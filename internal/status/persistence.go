// Package status records the outcome of every sync mode so the daemon can tell
// which mode is due after a restart and the API can report it.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:generate mockgen -destination=mocks/mock_status_persistence.go -package=mocks -source=persistence.go StatusPersistence

// StatusFileName is the file holding a mode's status inside its directory
const StatusFileName = "status.yaml"

// StatusPersistence stores one RunStatus per sync mode
//
//nolint:revive // This name is fine
type StatusPersistence interface {
	// SaveStatus replaces the status of mode
	SaveStatus(ctx context.Context, mode string, status *RunStatus) error

	// LoadStatus returns the status of mode, or an empty RunStatus if it never ran
	LoadStatus(ctx context.Context, mode string) (*RunStatus, error)

	// LoadAllStatus returns the status of every mode that ran at least once
	LoadAllStatus(ctx context.Context) (map[string]*RunStatus, error)
}

// fileStatusPersistence keeps <basePath>/<mode>/status.yaml
type fileStatusPersistence struct {
	basePath string
}

// NewFileStatusPersistence stores statuses as YAML under basePath
func NewFileStatusPersistence(basePath string) StatusPersistence {
	return &fileStatusPersistence{basePath: basePath}
}

func (f *fileStatusPersistence) path(mode string) string {
	return filepath.Join(f.basePath, mode, StatusFileName)
}

// SaveStatus writes a temporary file next to the status file and renames it over,
// so a crash mid-write leaves the previous status readable
func (f *fileStatusPersistence) SaveStatus(_ context.Context, mode string, status *RunStatus) error {
	data, err := yaml.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal %s status: %w", mode, err)
	}

	dir := filepath.Dir(f.path(mode))
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create %s status directory: %w", mode, err)
	}

	tmp, err := os.CreateTemp(dir, StatusFileName+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary %s status file: %w", mode, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s status: %w", mode, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s status: %w", mode, err)
	}
	if err := os.Rename(tmp.Name(), f.path(mode)); err != nil {
		return fmt.Errorf("failed to replace %s status file: %w", mode, err)
	}
	return nil
}

func (f *fileStatusPersistence) LoadStatus(_ context.Context, mode string) (*RunStatus, error) {
	// #nosec G304 -- the path is the configured base path joined with a mode name
	data, err := os.ReadFile(f.path(mode))
	if errors.Is(err, os.ErrNotExist) {
		return &RunStatus{Mode: mode}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s status: %w", mode, err)
	}

	status := &RunStatus{}
	if err := yaml.Unmarshal(data, status); err != nil {
		return nil, fmt.Errorf("failed to parse %s status: %w", mode, err)
	}
	// The directory name wins over whatever the file says
	status.Mode = mode
	return status, nil
}

// LoadAllStatus skips modes whose file cannot be read, so one corrupt status does
// not hide the others
func (f *fileStatusPersistence) LoadAllStatus(ctx context.Context) (map[string]*RunStatus, error) {
	entries, err := os.ReadDir(f.basePath)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]*RunStatus{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list status directory: %w", err)
	}

	all := make(map[string]*RunStatus, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		mode := entry.Name()
		if _, err := os.Stat(f.path(mode)); err != nil {
			continue
		}
		status, err := f.LoadStatus(ctx, mode)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable run status", "mode", mode, "error", err)
			continue
		}
		all[mode] = status
	}
	return all, nil
}
