// Package storage provides factory functions for creating storage-dependent components.
// It implements the Abstract Factory pattern to ensure the store and the run status
// persistence are created with compatible backends.
package storage

import (
	"context"
	"fmt"

	"github.com/NovaUNL/Supernova-sub000/internal/config"
	"github.com/NovaUNL/Supernova-sub000/internal/status"
	"github.com/NovaUNL/Supernova-sub000/internal/store"
)

//go:generate mockgen -destination=mocks/mock_factory.go -package=mocks -source=factory.go Factory

// Factory creates storage-dependent components as a family.
//
// The factory encapsulates the creation of:
// - Store: the synchronized academic data
// - StatusPersistence: the status of each run mode
//
// It also manages the lifecycle of storage resources (e.g., database connections).
type Factory interface {
	// CreateStore returns the store synchronized data is written to.
	// Repeated calls return the same store.
	CreateStore(ctx context.Context) (store.Store, error)

	// CreateStatusPersistence returns where run status is recorded, as selected by
	// the status section of the configuration.
	CreateStatusPersistence(ctx context.Context) (status.StatusPersistence, error)

	// CheckReadiness reports whether the backing storage is reachable.
	CheckReadiness(ctx context.Context) error

	// Cleanup releases any resources held by this factory.
	// For database factories, this closes the connection pool.
	// Should be called when the application shuts down.
	Cleanup()
}

// NewStorageFactory creates a storage factory based on the configured storage type.
func NewStorageFactory(ctx context.Context, cfg *config.Config) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.GetStorage() {
	case config.StorageTypePostgres:
		return NewDatabaseFactory(ctx, cfg)
	case config.StorageTypeMemory:
		return NewMemoryFactory(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.GetStorage())
	}
}

// newFileStatusPersistence builds the file backend, which both factories support
func newFileStatusPersistence(cfg *config.Config) status.StatusPersistence {
	return status.NewFileStatusPersistence(cfg.GetStatusPath())
}
