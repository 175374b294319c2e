// Package coordinator schedules synchronization runs in the background.
//
// The coordinator sits on top of the orchestrator and handles:
//
//   - Picking the due mode from the persisted status of every mode
//   - Polling with jitter so replicas do not check in lockstep
//   - Persisting run status before and after every run
//   - Recording run metrics
//   - Graceful shutdown
//
// # Choosing a mode
//
// Each mode has an interval in the Schedule. On every poll the coordinator loads the
// status of all modes and runs the deepest one whose last success is older than its
// interval. A successful full run also counts for slow and fast, and a successful slow
// run counts for fast. A mode whose last run failed waits FailureBackoff after that
// attempt before it is tried again.
//
// # Usage
//
//	orch := orchestrator.New(source, store, cfg, orchestrator.WithCalendar())
//	statuses := status.NewDBStatusPersistence(pool)
//	coord := coordinator.New(orch, statuses, coordinator.DefaultSchedule())
//
//	go coord.Start(ctx)
//	...
//	coord.Stop()
//
// One-shot runs from the command line go through RunOnce, so their outcome is
// recorded the same way.
package coordinator
