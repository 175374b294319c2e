package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/NovaUNL/Supernova-sub000/internal/config"
	"github.com/NovaUNL/Supernova-sub000/internal/sync/coordinator"
	"github.com/NovaUNL/Supernova-sub000/internal/sync/orchestrator"
	"github.com/NovaUNL/Supernova-sub000/internal/upstream/upstreamtest"
)

func createValidTestConfig(t *testing.T, upstreamURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Upstream: config.UpstreamConfig{URL: upstreamURL, Timeout: "5s"},
		Storage:  config.StorageTypeMemory,
		Status: config.StatusConfig{
			Type: config.StatusTypeFile,
			Path: t.TempDir(),
		},
	}
}

func TestBaseConfig(t *testing.T) {
	t.Parallel()
	cfg := createValidTestConfig(t, "http://upstream.invalid")

	built, err := baseConfig(WithConfig(cfg))
	require.NoError(t, err)
	require.NotNil(t, built)
	assert.Equal(t, config.DefaultListenAddress, built.address)
	assert.Equal(t, defaultRequestTimeout, built.requestTimeout)
	assert.NotNil(t, built.logger)
	assert.NotNil(t, built.now)
}

func TestBaseConfig_ListenFromConfig(t *testing.T) {
	t.Parallel()
	cfg := createValidTestConfig(t, "http://upstream.invalid")
	cfg.Listen = "127.0.0.1:9191"

	built, err := baseConfig(WithConfig(cfg))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9191", built.address)

	built, err = baseConfig(WithConfig(cfg), WithAddress(":9090"))
	require.NoError(t, err)
	assert.Equal(t, ":9090", built.address)
}

func TestBaseConfig_Errors(t *testing.T) {
	t.Parallel()

	_, err := baseConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config cannot be nil")

	_, err = baseConfig(WithConfig(createValidTestConfig(t, "http://upstream.invalid")), WithLogger(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logger cannot be nil")
}

func TestWithAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{name: "port only", addr: ":8080"},
		{name: "localhost", addr: "localhost:8080"},
		{name: "ipv4", addr: "127.0.0.1:0"},
		{name: "empty", addr: "", wantErr: true},
		{name: "no port", addr: "127.0.0.1", wantErr: true},
		{name: "empty port", addr: "127.0.0.1:", wantErr: true},
		{name: "port out of range", addr: ":70000", wantErr: true},
		{name: "hostname", addr: "example.com:80", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &syncAppConfig{}
			err := WithAddress(tt.addr)(cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addr, cfg.address)
		})
	}
}

func TestBuildOrchestratorConfig(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, time.November, 3, 12, 0, 0, 0, time.UTC)
	defaults := orchestrator.DefaultConfig(now)

	tests := []struct {
		name         string
		sync         config.SyncConfig
		wantCalendar bool
		check        func(*testing.T, orchestrator.Config)
	}{
		{
			name:         "empty section keeps defaults",
			wantCalendar: true,
			check: func(t *testing.T, cfg orchestrator.Config) {
				t.Helper()
				assert.Equal(t, defaults, cfg)
			},
		},
		{
			name: "pinned year disables the calendar",
			sync: config.SyncConfig{Year: 2023, Period: 2},
			check: func(t *testing.T, cfg orchestrator.Config) {
				t.Helper()
				assert.Equal(t, 2023, cfg.Year)
				assert.Equal(t, 2, cfg.Period)
			},
		},
		{
			name: "overrides",
			sync: config.SyncConfig{
				RecentYearMargin: 3,
				Concurrency:      4,
				FastStaleness:    "2h",
				SlowStaleness:    "48h",
				RetryCooldown:    "0s",
			},
			wantCalendar: true,
			check: func(t *testing.T, cfg orchestrator.Config) {
				t.Helper()
				assert.Equal(t, 3, cfg.RecentYearMargin)
				assert.Equal(t, 4, cfg.Concurrency)
				assert.Equal(t, 2*time.Hour, cfg.FastStaleness)
				assert.Equal(t, 48*time.Hour, cfg.SlowStaleness)
				assert.Zero(t, cfg.RetryCooldown)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, calendar := buildOrchestratorConfig(&tt.sync, now)
			assert.Equal(t, tt.wantCalendar, calendar)
			tt.check(t, cfg)
		})
	}
}

func TestBuildSchedule(t *testing.T) {
	t.Parallel()

	assert.Equal(t, coordinator.DefaultSchedule(), buildSchedule(config.ScheduleConfig{}))

	schedule := buildSchedule(config.ScheduleConfig{Fast: "30m", FailureBackoff: "0s"})
	assert.Equal(t, 30*time.Minute, schedule.Fast)
	assert.Equal(t, coordinator.DefaultSchedule().Slow, schedule.Slow)
	assert.Equal(t, coordinator.DefaultSchedule().Full, schedule.Full)
	assert.Zero(t, schedule.FailureBackoff)
}

func TestNewSyncApp_RunOnce(t *testing.T) {
	t.Parallel()

	server := upstreamtest.NewServer(t)
	server.Serve("/students/", `[]`)
	server.Serve("/teachers/", `[]`)
	server.Serve("/departments/", `[]`)

	cfg := createValidTestConfig(t, server.URL)
	app, err := NewSyncApp(context.Background(), WithConfig(cfg), WithAddress("127.0.0.1:0"))
	require.NoError(t, err)
	t.Cleanup(app.Close)

	summary, err := app.RunOnce(context.Background(), orchestrator.ModeSlow, orchestrator.Flags{NoUpdate: true})
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, orchestrator.ModeSlow, summary.Mode)
	assert.Empty(t, summary.StepErrors)
	assert.Equal(t, 1, server.Hits("/departments/"))
	assert.Zero(t, server.Hits("/update/classes/"))

	runStatus, err := app.components.Statuses.LoadStatus(context.Background(), "slow")
	require.NoError(t, err)
	assert.Equal(t, "Complete", string(runStatus.Phase))
	assert.NotNil(t, runStatus.LastSuccess)
	assert.Equal(t, orchestrator.StateIdle, app.components.Orchestrator.State())
}

func TestNewSyncApp_InjectedCoordinator(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	app := createTestApp(t, ctrl, "127.0.0.1:0")
	assert.Nil(t, app.components.Orchestrator)
	assert.NotNil(t, app.components.Store)
	assert.NotNil(t, app.GetHTTPServer().Handler)
}

func TestNewSyncApp_StorageError(t *testing.T) {
	t.Parallel()
	cfg := createValidTestConfig(t, "http://upstream.invalid")
	cfg.Status.Type = config.StatusTypeDatabase

	_, err := NewSyncApp(context.Background(), WithConfig(cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create storage factory")
}
