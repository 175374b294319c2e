//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NovaUNL/Supernova-sub000/database"
	"github.com/NovaUNL/Supernova-sub000/internal/config"
	"github.com/NovaUNL/Supernova-sub000/internal/status"
)

func TestDatabaseFactory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool, _ := database.SetupTestDB(t)

	tests := []struct {
		name       string
		statusType string
	}{
		{name: "database status", statusType: config.StatusTypeDatabase},
		{name: "file status", statusType: config.StatusTypeFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Storage: config.StorageTypePostgres,
				Status:  config.StatusConfig{Type: tt.statusType, Path: t.TempDir()},
			}
			factory, err := NewDatabaseFactory(ctx, cfg, WithPool(pool))
			require.NoError(t, err)

			require.NoError(t, factory.CheckReadiness(ctx))

			st, err := factory.CreateStore(ctx)
			require.NoError(t, err)
			require.NotNil(t, st)

			statuses, err := factory.CreateStatusPersistence(ctx)
			require.NoError(t, err)

			mode := "full-" + tt.statusType
			require.NoError(t, statuses.SaveStatus(ctx, mode, &status.RunStatus{Phase: status.SyncPhaseFailed, Message: "boom"}))
			loaded, err := statuses.LoadStatus(ctx, mode)
			require.NoError(t, err)
			assert.Equal(t, "boom", loaded.Message)
		})
	}
}
