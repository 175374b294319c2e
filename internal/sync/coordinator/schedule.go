package coordinator

import (
	"fmt"
	"time"

	"github.com/NovaUNL/Supernova-sub000/internal/status"
	"github.com/NovaUNL/Supernova-sub000/internal/sync/orchestrator"
)

// Default schedule intervals.
const (
	DefaultFastInterval   = time.Hour
	DefaultSlowInterval   = 24 * time.Hour
	DefaultFullInterval   = 7 * 24 * time.Hour
	DefaultFailureBackoff = 15 * time.Minute
)

// Schedule says how often each mode runs. A zero interval disables the mode.
type Schedule struct {
	Fast time.Duration
	Slow time.Duration
	Full time.Duration

	// FailureBackoff is how long a mode whose last run failed waits before the next attempt.
	FailureBackoff time.Duration

	// Flags are passed to every scheduled run.
	Flags orchestrator.Flags
}

// DefaultSchedule returns the default intervals.
func DefaultSchedule() Schedule {
	return Schedule{
		Fast:           DefaultFastInterval,
		Slow:           DefaultSlowInterval,
		Full:           DefaultFullInterval,
		FailureBackoff: DefaultFailureBackoff,
	}
}

// Interval returns the configured interval of mode.
func (s Schedule) Interval(mode orchestrator.Mode) time.Duration {
	switch mode {
	case orchestrator.ModeFast:
		return s.Fast
	case orchestrator.ModeSlow:
		return s.Slow
	case orchestrator.ModeFull:
		return s.Full
	default:
		return 0
	}
}

// Validate checks the intervals are usable.
func (s Schedule) Validate() error {
	if s.Fast < 0 || s.Slow < 0 || s.Full < 0 || s.FailureBackoff < 0 {
		return fmt.Errorf("schedule intervals must not be negative")
	}
	if s.Fast == 0 && s.Slow == 0 && s.Full == 0 {
		return fmt.Errorf("at least one sync mode must be scheduled")
	}
	return nil
}

// DueMode picks the mode to run at now from the last status of every mode, or false
// when nothing is due. Deeper modes cover the shallower ones: a due full run wins over
// a due slow run, which wins over fast, and a success of a deeper mode counts as a
// success of every shallower one.
func (s Schedule) DueMode(statuses map[string]*status.RunStatus, now time.Time) (orchestrator.Mode, bool) {
	var covered *time.Time
	due := orchestrator.Mode("")
	for i := len(orchestrator.Modes) - 1; i >= 0; i-- {
		mode := orchestrator.Modes[i]
		st := statuses[string(mode)]
		if st != nil && st.LastSuccess != nil && (covered == nil || st.LastSuccess.After(*covered)) {
			covered = st.LastSuccess
		}
		if due == "" && s.due(mode, st, covered, now) {
			due = mode
		}
	}
	return due, due != ""
}

func (s Schedule) due(mode orchestrator.Mode, st *status.RunStatus, lastSuccess *time.Time, now time.Time) bool {
	interval := s.Interval(mode)
	if interval <= 0 {
		return false
	}
	if st != nil && st.Phase == status.SyncPhaseFailed && st.LastAttempt != nil &&
		now.Sub(*st.LastAttempt) < s.FailureBackoff {
		return false
	}
	return lastSuccess == nil || now.Sub(*lastSuccess) >= interval
}
