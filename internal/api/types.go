package api

import "github.com/NovaUNL/Supernova-sub000/internal/status"

// HealthResponse answers /health and /readiness
type HealthResponse struct {
	Status string `json:"status" example:"ready"`
}

// StatusResponse is the body of GET /status
type StatusResponse struct {
	// State is the current orchestrator phase, e.g. "idle" or "slow"
	State string `json:"state,omitempty" example:"idle"`

	// Runs holds the last known status of each mode that ever ran
	Runs map[string]*status.RunStatus `json:"runs"`
}
