package status

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
	pkgsync "github.com/NovaUNL/Supernova-sub000/internal/sync"
)

func TestFileStatusPersistence_RoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	statuses := NewFileStatusPersistence(dir)
	ctx := context.Background()

	finished := time.Date(2024, 10, 7, 9, 12, 0, 0, time.UTC)
	started := finished.Add(-12 * time.Minute)
	saved := &RunStatus{
		Mode:        "slow",
		RunID:       "0b6a4c1e-7d4f-4c0e-9a53-7a3f5e1d2c11",
		Phase:       SyncPhaseComplete,
		Message:     "Sync completed",
		LastAttempt: &started,
		LastSuccess: &finished,
		Summary: &RunSummary{
			StartedAt:  started,
			FinishedAt: finished,
			Totals:     pkgsync.Counts{Created: 3, Unchanged: 40, Disappeared: 2},
			ByKind: map[model.Kind]pkgsync.Counts{
				model.KindClassInstance: {Created: 3, Unchanged: 40},
				model.KindTurn:          {Disappeared: 2},
			},
			Propagated: 2,
			StepErrors: []string{"students: upstream unavailable"},
		},
	}
	require.NoError(t, statuses.SaveStatus(ctx, "slow", saved))
	assert.FileExists(t, filepath.Join(dir, "slow", StatusFileName))

	loaded, err := statuses.LoadStatus(ctx, "slow")
	require.NoError(t, err)
	assert.Equal(t, saved.RunID, loaded.RunID)
	assert.Equal(t, SyncPhaseComplete, loaded.Phase)
	assert.True(t, finished.Equal(*loaded.LastSuccess))
	require.NotNil(t, loaded.Summary)
	assert.Equal(t, saved.Summary.Totals, loaded.Summary.Totals)
	assert.Equal(t, saved.Summary.ByKind, loaded.Summary.ByKind)
	assert.Equal(t, saved.Summary.StepErrors, loaded.Summary.StepErrors)
	assert.Equal(t, int64(2), loaded.Summary.Propagated)

	// Only the status file is left behind
	entries, err := os.ReadDir(filepath.Join(dir, "slow"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStatusPersistence_Overwrite(t *testing.T) {
	t.Parallel()

	statuses := NewFileStatusPersistence(t.TempDir())
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, statuses.SaveStatus(ctx, "full", &RunStatus{
		Phase:        SyncPhaseSyncing,
		LastAttempt:  &now,
		AttemptCount: 2,
		Summary:      &RunSummary{Propagated: 9},
	}))
	loaded, err := statuses.LoadStatus(ctx, "full")
	require.NoError(t, err)
	assert.True(t, loaded.IsSyncing())

	require.NoError(t, statuses.SaveStatus(ctx, "full", &RunStatus{
		Phase:       SyncPhaseFailed,
		Message:     "upstream unreachable",
		LastAttempt: &now,
	}))
	loaded, err = statuses.LoadStatus(ctx, "full")
	require.NoError(t, err)
	assert.Equal(t, SyncPhaseFailed, loaded.Phase)
	assert.Equal(t, "upstream unreachable", loaded.Message)
	assert.Zero(t, loaded.AttemptCount)
	assert.Nil(t, loaded.Summary, "nothing from the previous save survives")
}

func TestFileStatusPersistence_NeverRan(t *testing.T) {
	t.Parallel()

	loaded, err := NewFileStatusPersistence(t.TempDir()).LoadStatus(context.Background(), "fast")
	require.NoError(t, err)
	assert.Equal(t, &RunStatus{Mode: "fast"}, loaded)
	assert.False(t, loaded.IsSyncing())
}

func TestFileStatusPersistence_ModeComesFromDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "fast"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fast", StatusFileName),
		[]byte("mode: full\nphase: Complete\n"), 0600))

	loaded, err := NewFileStatusPersistence(dir).LoadStatus(context.Background(), "fast")
	require.NoError(t, err)
	assert.Equal(t, "fast", loaded.Mode)
	assert.Equal(t, SyncPhaseComplete, loaded.Phase)
}

func TestFileStatusPersistence_LoadAllStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		setup     func(t *testing.T, dir string, p StatusPersistence)
		wantModes []string
	}{
		{
			name:  "missing base directory",
			setup: func(t *testing.T, dir string, _ StatusPersistence) { require.NoError(t, os.Remove(dir)) },
		},
		{
			name:  "empty base directory",
			setup: func(*testing.T, string, StatusPersistence) {},
		},
		{
			name: "every mode",
			setup: func(t *testing.T, _ string, p StatusPersistence) {
				for _, mode := range []string{"fast", "slow", "full"} {
					require.NoError(t, p.SaveStatus(context.Background(), mode, &RunStatus{Phase: SyncPhaseComplete}))
				}
			},
			wantModes: []string{"fast", "full", "slow"},
		},
		{
			name: "corrupt and stray entries are skipped",
			setup: func(t *testing.T, dir string, p StatusPersistence) {
				require.NoError(t, p.SaveStatus(context.Background(), "fast", &RunStatus{Phase: SyncPhaseComplete}))
				require.NoError(t, os.MkdirAll(filepath.Join(dir, "slow"), 0750))
				require.NoError(t, os.WriteFile(filepath.Join(dir, "slow", StatusFileName), []byte("phase: [unterminated"), 0600))
				require.NoError(t, os.MkdirAll(filepath.Join(dir, "lost+found"), 0750))
				require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("status files"), 0600))
			},
			wantModes: []string{"fast"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := filepath.Join(t.TempDir(), "status")
			require.NoError(t, os.MkdirAll(dir, 0750))
			p := NewFileStatusPersistence(dir)
			tt.setup(t, dir, p)

			all, err := p.LoadAllStatus(context.Background())
			require.NoError(t, err)
			require.NotNil(t, all)

			modes := make([]string, 0, len(all))
			for mode, st := range all {
				assert.Equal(t, mode, st.Mode)
				modes = append(modes, mode)
			}
			assert.ElementsMatch(t, tt.wantModes, modes)
		})
	}
}
