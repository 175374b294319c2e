package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NovaUNL/Supernova-sub000/internal/config"
	"github.com/NovaUNL/Supernova-sub000/internal/status"
	"github.com/NovaUNL/Supernova-sub000/internal/store"
	"github.com/NovaUNL/Supernova-sub000/internal/store/postgres"
)

// DatabaseFactory creates database-backed storage components.
// The store and, unless the file status backend is selected, the run status share one pool.
type DatabaseFactory struct {
	config *config.Config
	pool   *pgxpool.Pool
	store  *postgres.Store
}

var _ Factory = (*DatabaseFactory)(nil)

// DatabaseFactoryOption is a functional option for configuring the DatabaseFactory
type DatabaseFactoryOption func(*DatabaseFactory)

// WithPool uses an existing connection pool instead of dialing the configured database
func WithPool(pool *pgxpool.Pool) DatabaseFactoryOption {
	return func(f *DatabaseFactory) {
		f.pool = pool
	}
}

// NewDatabaseFactory creates a new database-backed storage factory.
// It establishes a connection pool to the configured PostgreSQL database.
func NewDatabaseFactory(ctx context.Context, cfg *config.Config, opts ...DatabaseFactoryOption) (*DatabaseFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	factory := &DatabaseFactory{config: cfg}
	for _, opt := range opts {
		opt(factory)
	}

	if factory.pool == nil {
		if cfg.Database == nil {
			return nil, fmt.Errorf("database configuration is required for %s storage", config.StorageTypePostgres)
		}

		slog.Info("Creating database-backed storage factory")
		pool, err := postgres.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to create database connection pool: %w", err)
		}
		factory.pool = pool
	}

	factory.store = postgres.New(factory.pool)
	return factory, nil
}

// CreateStore returns the pgx-backed store.
func (d *DatabaseFactory) CreateStore(_ context.Context) (store.Store, error) {
	return d.store, nil
}

// CreateStatusPersistence records run status in the sync_run table, or in files when
// the status section asks for it.
func (d *DatabaseFactory) CreateStatusPersistence(_ context.Context) (status.StatusPersistence, error) {
	if d.config.GetStatusType() == config.StatusTypeFile {
		slog.Debug("Creating file-based status persistence", "path", d.config.GetStatusPath())
		return newFileStatusPersistence(d.config), nil
	}
	slog.Debug("Creating database-backed status persistence")
	return status.NewDBStatusPersistence(d.pool), nil
}

// CheckReadiness pings the database.
func (d *DatabaseFactory) CheckReadiness(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database is not reachable: %w", err)
	}
	return nil
}

// Cleanup closes the database connection pool.
func (d *DatabaseFactory) Cleanup() {
	if d.pool != nil {
		slog.Info("Closing database connection pool")
		d.store.Close()
	}
}
