package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/NovaUNL/Supernova-sub000/internal/status"
	"github.com/NovaUNL/Supernova-sub000/internal/sync/orchestrator"
	"github.com/NovaUNL/Supernova-sub000/internal/telemetry"
)

//go:generate mockgen -destination=mocks/mock_runner.go -package=mocks -source=coordinator.go Runner,Coordinator

const (
	// basePollingInterval is the base interval at which the coordinator checks for due runs
	basePollingInterval = 2 * time.Minute
	// pollingJitter is the maximum random offset (±30 seconds) applied to the polling interval
	pollingJitter = 30 * time.Second
)

// Runner performs one sync run. *orchestrator.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, mode orchestrator.Mode, flags orchestrator.Flags) (*orchestrator.Summary, error)
}

// Coordinator schedules sync runs and records their status
type Coordinator interface {
	// Start begins background scheduling.
	// Blocks until context is cancelled or Stop is called
	Start(ctx context.Context) error

	// Stop gracefully stops the coordinator, waiting for a run in progress
	Stop() error

	// RunOnce performs a single run of mode right away and records its status
	RunOnce(ctx context.Context, mode orchestrator.Mode, flags orchestrator.Flags) (*orchestrator.Summary, error)
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	runner   Runner
	statuses status.StatusPersistence
	logger   *slog.Logger
	now      func() time.Time
	interval func() time.Duration

	mu       sync.RWMutex
	schedule Schedule

	// Lifecycle management
	cancelFunc context.CancelFunc
	done       chan struct{}

	syncMetrics *telemetry.SyncMetrics
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithSyncMetrics sets the sync metrics for the coordinator
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(c *defaultCoordinator) {
		c.syncMetrics = metrics
	}
}

// WithLogger sets the coordinator logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *defaultCoordinator) {
		c.logger = logger
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *defaultCoordinator) {
		c.now = now
	}
}

// WithPollingInterval replaces the jittered polling interval
func WithPollingInterval(interval time.Duration) Option {
	return func(c *defaultCoordinator) {
		c.interval = func() time.Duration { return interval }
	}
}

// New creates a new coordinator with injected dependencies
func New(runner Runner, statuses status.StatusPersistence, schedule Schedule, opts ...Option) Coordinator {
	c := &defaultCoordinator{
		runner:   runner,
		statuses: statuses,
		schedule: schedule,
		logger:   slog.Default(),
		now:      time.Now,
		interval: calculatePollingInterval,
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// calculatePollingInterval returns the base polling interval with a random jitter applied.
// The jitter is ±30 seconds so that replicas do not poll in lockstep.
func calculatePollingInterval() time.Duration {
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	jitterOffset := time.Duration(rand.Int64N(int64(2*pollingJitter))) - pollingJitter
	return basePollingInterval + jitterOffset
}

// Start begins background scheduling
func (c *defaultCoordinator) Start(ctx context.Context) error {
	schedule := c.currentSchedule()
	if err := schedule.Validate(); err != nil {
		close(c.done)
		return fmt.Errorf("invalid sync schedule: %w", err)
	}
	c.logger.Info("Starting sync coordinator",
		"fast_interval", schedule.Fast,
		"slow_interval", schedule.Slow,
		"full_interval", schedule.Full)

	coordCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	defer func() {
		close(c.done)
		c.logger.Info("Sync coordinator shutting down")
	}()

	pollingInterval := c.interval()
	c.logger.Info("Configured coordinator polling interval",
		"base_interval", basePollingInterval,
		"actual_interval", pollingInterval)

	ticker := time.NewTicker(pollingInterval)
	defer ticker.Stop()

	c.processNextRun(coordCtx)

	for {
		select {
		case <-ticker.C:
			c.processNextRun(coordCtx)

			ticker.Reset(c.interval())
		case <-coordCtx.Done():
			c.logger.Info("Sync coordinator stopping")
			return nil
		}
	}
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	if c.cancelFunc != nil {
		c.logger.Info("Stopping sync coordinator")
		c.cancelFunc()
		<-c.done
	}
	return nil
}

// UpdateSchedule replaces the schedule from the next poll on. An invalid schedule
// is rejected and the current one kept.
func (c *defaultCoordinator) UpdateSchedule(schedule Schedule) error {
	if err := schedule.Validate(); err != nil {
		return fmt.Errorf("invalid sync schedule: %w", err)
	}
	c.mu.Lock()
	c.schedule = schedule
	c.mu.Unlock()

	c.logger.Info("Sync schedule updated",
		"fast_interval", schedule.Fast,
		"slow_interval", schedule.Slow,
		"full_interval", schedule.Full,
		"failure_backoff", schedule.FailureBackoff)
	return nil
}

func (c *defaultCoordinator) currentSchedule() Schedule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.schedule
}

// processNextRun runs the due mode, if any
func (c *defaultCoordinator) processNextRun(ctx context.Context) {
	statuses, err := c.statuses.LoadAllStatus(ctx)
	if err != nil {
		c.logger.Error("Error loading sync status", "error", err)
		return
	}

	schedule := c.currentSchedule()
	mode, ok := schedule.DueMode(statuses, c.now())
	if !ok {
		c.logger.Debug("No sync run is due")
		return
	}

	if _, err := c.RunOnce(ctx, mode, schedule.Flags); err != nil {
		c.logger.Error("Scheduled sync run failed", "mode", mode, "error", err)
	}
}

// RunOnce performs a run of mode, persisting its status before and after
func (c *defaultCoordinator) RunOnce(
	ctx context.Context, mode orchestrator.Mode, flags orchestrator.Flags,
) (*orchestrator.Summary, error) {
	key := string(mode)
	previous, err := c.statuses.LoadStatus(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load status of %s runs: %w", mode, err)
	}

	startTime := c.now()
	runStatus := *previous
	runStatus.Mode = key
	runStatus.Phase = status.SyncPhaseSyncing
	runStatus.Message = "Sync in progress"
	runStatus.LastAttempt = &startTime
	runStatus.AttemptCount++
	c.save(ctx, key, &runStatus)

	// Set a default failure here in case the run panics or is killed unexpectedly.
	runStatus.Phase = status.SyncPhaseFailed
	runStatus.Message = fmt.Sprintf("Unexpected failure while running %s sync", mode)
	defer func() {
		c.save(context.WithoutCancel(ctx), key, &runStatus)
	}()

	c.logger.Info("Starting sync operation", "mode", mode, "attempt", runStatus.AttemptCount)

	summary, runErr := c.runner.Run(ctx, mode, flags)
	duration := c.now().Sub(startTime)

	if errors.Is(runErr, orchestrator.ErrBusy) {
		// Another run owns the orchestrator; keep the previous outcome.
		runStatus = *previous
		runStatus.Mode = key
		return nil, runErr
	}
	if summary == nil && runErr == nil {
		runErr = errors.New("sync run returned no summary")
	}

	if summary != nil {
		runStatus.RunID = summary.RunID.String()
		runStatus.Summary = toRunSummary(summary)
		c.syncMetrics.RecordEntities(ctx, key, summary.ByKind)
		c.syncMetrics.RecordStepErrors(ctx, key, len(summary.StepErrors))
	}

	if runErr != nil {
		runStatus.Message = runErr.Error()
		c.logger.Error("Sync failed", "mode", mode, "error", runErr)
		c.syncMetrics.RecordRunDuration(ctx, key, duration, false)
		return summary, runErr
	}

	finished := c.now()
	runStatus.Phase = status.SyncPhaseComplete
	runStatus.LastSuccess = &finished
	runStatus.AttemptCount = 0
	runStatus.Message = "Sync completed successfully"
	if n := len(summary.StepErrors); n > 0 {
		runStatus.Message = fmt.Sprintf("Sync completed with %d failed steps", n)
	}
	c.logger.Info("Sync completed",
		"mode", mode,
		"run_id", runStatus.RunID,
		"duration", duration,
		"step_errors", len(summary.StepErrors))

	c.syncMetrics.RecordRunDuration(ctx, key, duration, true)
	c.syncMetrics.RecordLastSuccess(ctx, key, finished)
	return summary, nil
}

func (c *defaultCoordinator) save(ctx context.Context, mode string, runStatus *status.RunStatus) {
	if err := c.statuses.SaveStatus(ctx, mode, runStatus); err != nil {
		c.logger.Error("Error updating sync status", "mode", mode, "error", err)
	}
}

func toRunSummary(s *orchestrator.Summary) *status.RunSummary {
	return &status.RunSummary{
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Totals:     s.Totals,
		ByKind:     s.ByKind,
		Propagated: s.Propagated,
		StepErrors: s.StepErrors,
	}
}
