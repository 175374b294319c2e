package sync

import (
	gosync "sync"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
)

// Outcome is what happened to one entity during a run.
type Outcome string

// Outcomes counted by Tally.
const (
	OutcomeCreated     Outcome = "created"
	OutcomeUpdated     Outcome = "updated"
	OutcomeUnchanged   Outcome = "unchanged"
	OutcomeDisappeared Outcome = "disappeared"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeFailed      Outcome = "failed"
)

// Counts aggregates outcomes.
type Counts struct {
	Created     int64 `json:"created" yaml:"created"`
	Updated     int64 `json:"updated" yaml:"updated"`
	Unchanged   int64 `json:"unchanged" yaml:"unchanged"`
	Disappeared int64 `json:"disappeared" yaml:"disappeared"`
	Skipped     int64 `json:"skipped" yaml:"skipped"`
	Failed      int64 `json:"failed" yaml:"failed"`
}

func (c *Counts) add(o Outcome, n int64) {
	switch o {
	case OutcomeCreated:
		c.Created += n
	case OutcomeUpdated:
		c.Updated += n
	case OutcomeUnchanged:
		c.Unchanged += n
	case OutcomeDisappeared:
		c.Disappeared += n
	case OutcomeSkipped:
		c.Skipped += n
	case OutcomeFailed:
		c.Failed += n
	}
}

// ByOutcome returns the counts keyed by outcome.
func (c Counts) ByOutcome() map[Outcome]int64 {
	return map[Outcome]int64{
		OutcomeCreated:     c.Created,
		OutcomeUpdated:     c.Updated,
		OutcomeUnchanged:   c.Unchanged,
		OutcomeDisappeared: c.Disappeared,
		OutcomeSkipped:     c.Skipped,
		OutcomeFailed:      c.Failed,
	}
}

// Plus returns the field-wise sum of c and o.
func (c Counts) Plus(o Counts) Counts {
	return Counts{
		Created:     c.Created + o.Created,
		Updated:     c.Updated + o.Updated,
		Unchanged:   c.Unchanged + o.Unchanged,
		Disappeared: c.Disappeared + o.Disappeared,
		Skipped:     c.Skipped + o.Skipped,
		Failed:      c.Failed + o.Failed,
	}
}

// Tally counts outcomes per kind. It is safe for concurrent use.
type Tally struct {
	mu     gosync.Mutex
	counts map[model.Kind]*Counts
}

// NewTally creates an empty tally.
func NewTally() *Tally {
	return &Tally{counts: make(map[model.Kind]*Counts)}
}

// Add records n outcomes of kind. A nil Tally ignores the call.
func (t *Tally) Add(kind model.Kind, o Outcome, n int64) {
	if t == nil || n == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.counts[kind]
	if !ok {
		c = &Counts{}
		t.counts[kind] = c
	}
	c.add(o, n)
}

// ByKind returns a copy of the per-kind counts.
func (t *Tally) ByKind() map[model.Kind]Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[model.Kind]Counts, len(t.counts))
	for k, c := range t.counts {
		out[k] = *c
	}
	return out
}

// Total returns the sum over every kind.
func (t *Tally) Total() Counts {
	var total Counts
	for _, c := range t.ByKind() {
		total = total.Plus(c)
	}
	return total
}
