package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/NovaUNL/Supernova-sub000/internal/config"
	"github.com/NovaUNL/Supernova-sub000/internal/status"
	"github.com/NovaUNL/Supernova-sub000/internal/store"
	"github.com/NovaUNL/Supernova-sub000/internal/store/memory"
)

// MemoryFactory keeps synchronized data in process memory and run status in files.
// Nothing but the status survives a restart.
type MemoryFactory struct {
	config   *config.Config
	store    *memory.Store
	statuses status.StatusPersistence
}

var _ Factory = (*MemoryFactory)(nil)

// NewMemoryFactory creates a new in-memory storage factory.
func NewMemoryFactory(cfg *config.Config) (*MemoryFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.GetStatusType() != config.StatusTypeFile {
		return nil, fmt.Errorf("%s storage only supports %s status", config.StorageTypeMemory, config.StatusTypeFile)
	}

	slog.Info("Creating in-memory storage factory", "status_path", cfg.GetStatusPath())

	return &MemoryFactory{
		config:   cfg,
		store:    memory.New(),
		statuses: newFileStatusPersistence(cfg),
	}, nil
}

// CreateStore returns the in-memory store.
func (m *MemoryFactory) CreateStore(_ context.Context) (store.Store, error) {
	return m.store, nil
}

// CreateStatusPersistence returns the file status backend.
func (m *MemoryFactory) CreateStatusPersistence(_ context.Context) (status.StatusPersistence, error) {
	return m.statuses, nil
}

// CheckReadiness always succeeds.
func (*MemoryFactory) CheckReadiness(_ context.Context) error {
	return nil
}

// Cleanup is a no-op: nothing is held open.
func (*MemoryFactory) Cleanup() {
	slog.Debug("Cleaning up in-memory storage factory (no-op)")
}
