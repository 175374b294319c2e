package orchestrator

import (
	"fmt"
	"time"

	"github.com/NovaUNL/Supernova-sub000/internal/sync/pool"
)

// Defaults applied by DefaultConfig.
const (
	DefaultRecentYearMargin = 2
	DefaultFastStaleness    = 4 * time.Hour
	DefaultSlowStaleness    = 24 * time.Hour
)

// Mode is the depth of a run.
type Mode string

// Run modes.
const (
	ModeFast Mode = "fast"
	ModeSlow Mode = "slow"
	ModeFull Mode = "full"
)

// Modes lists every mode from the cheapest to the most thorough.
var Modes = []Mode{ModeFast, ModeSlow, ModeFull}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeFast, ModeSlow, ModeFull:
		return m, nil
	default:
		return "", fmt.Errorf("unknown sync mode %q, expected one of fast, slow, full", s)
	}
}

// Config holds what the scripts need to know about the academic calendar and pacing.
type Config struct {
	// Year is the current academic year, named after the calendar year it ends in.
	Year int

	// Period is the current teaching period within Year.
	Period int

	// RecentYearMargin is how many years back slow and full runs recurse fully.
	RecentYearMargin int

	// FastStaleness skips class instances reconciled more recently in fast runs.
	FastStaleness time.Duration

	// SlowStaleness skips classes and class instances reconciled more recently in slow runs.
	SlowStaleness time.Duration

	// Concurrency is the number of top-level workers.
	Concurrency int

	// RetryCooldown is how long a worker rests after repeated failures.
	RetryCooldown time.Duration
}

// DefaultConfig derives the calendar from now. The academic year rolls over in September.
func DefaultConfig(now time.Time) Config {
	year := now.Year()
	if now.Month() > time.August {
		year++
	}
	period := 2
	if now.Month() > time.August || now.Month() < time.March {
		period = 1
	}
	return Config{
		Year:             year,
		Period:           period,
		RecentYearMargin: DefaultRecentYearMargin,
		FastStaleness:    DefaultFastStaleness,
		SlowStaleness:    DefaultSlowStaleness,
		Concurrency:      pool.DefaultConcurrency,
		RetryCooldown:    pool.DefaultCooldown,
	}
}

// Flags tweak a single run.
type Flags struct {
	// NoUpdate skips every upstream refresh request.
	NoUpdate bool

	// NoOptimize disables staleness skipping in fast runs.
	NoOptimize bool

	// AssertBuildings compares upstream buildings with the stored ones.
	AssertBuildings bool

	// Rooms, Departments and Courses force the matching collection sync in any mode.
	Rooms       bool
	Departments bool
	Courses     bool

	// ForceClassInfo requests a class information refresh and disables staleness skipping.
	ForceClassInfo bool
}
