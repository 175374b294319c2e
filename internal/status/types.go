package status

import (
	"time"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
	pkgsync "github.com/NovaUNL/Supernova-sub000/internal/sync"
)

// SyncPhase represents the current phase of a synchronization run
type SyncPhase string

const (
	// SyncPhaseSyncing means a run is in progress
	SyncPhaseSyncing SyncPhase = "Syncing"

	// SyncPhaseComplete means the last run finished
	SyncPhaseComplete SyncPhase = "Complete"

	// SyncPhaseFailed means the last run could not finish
	SyncPhaseFailed SyncPhase = "Failed"
)

// RunStatus is the persisted state of one sync mode
type RunStatus struct {
	// Mode is the sync mode this status belongs to (fast, slow or full)
	Mode string `yaml:"mode" json:"mode"`

	// RunID identifies the last run
	RunID string `yaml:"runId,omitempty" json:"runId,omitempty"`

	// Phase represents the current synchronization phase
	Phase SyncPhase `yaml:"phase" json:"phase"`

	// Message provides additional information about the run
	Message string `yaml:"message,omitempty" json:"message,omitempty"`

	// LastAttempt is when the last run started
	LastAttempt *time.Time `yaml:"lastAttempt,omitempty" json:"lastAttempt,omitempty"`

	// AttemptCount is the number of runs since the last success
	AttemptCount int `yaml:"attemptCount,omitempty" json:"attemptCount,omitempty"`

	// LastSuccess is when the last successful run finished
	LastSuccess *time.Time `yaml:"lastSuccess,omitempty" json:"lastSuccess,omitempty"`

	// Summary holds the counts of the last finished run
	Summary *RunSummary `yaml:"summary,omitempty" json:"summary,omitempty"`
}

// RunSummary is what a finished run did
type RunSummary struct {
	StartedAt  time.Time                     `yaml:"startedAt" json:"startedAt"`
	FinishedAt time.Time                     `yaml:"finishedAt" json:"finishedAt"`
	Totals     pkgsync.Counts                `yaml:"totals" json:"totals"`
	ByKind     map[model.Kind]pkgsync.Counts `yaml:"byKind,omitempty" json:"byKind,omitempty"`
	Propagated int64                         `yaml:"propagated" json:"propagated"`
	StepErrors []string                      `yaml:"stepErrors,omitempty" json:"stepErrors,omitempty"`
}

// IsSyncing reports whether a run of this mode is in progress
func (s *RunStatus) IsSyncing() bool {
	return s.Phase == SyncPhaseSyncing
}
