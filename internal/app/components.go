package app

import (
	"github.com/NovaUNL/Supernova-sub000/internal/status"
	"github.com/NovaUNL/Supernova-sub000/internal/store"
	"github.com/NovaUNL/Supernova-sub000/internal/sync/coordinator"
	"github.com/NovaUNL/Supernova-sub000/internal/sync/orchestrator"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Coordinator schedules runs and records their status
	Coordinator coordinator.Coordinator

	// Orchestrator performs the runs. Nil when a custom coordinator was injected.
	Orchestrator *orchestrator.Orchestrator

	// Store holds the synchronized data
	Store store.Store

	// Statuses holds the status of each run mode
	Statuses status.StatusPersistence
}
