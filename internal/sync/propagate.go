package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
)

// Cascader marks the active children of disappeared parents along one ownership edge.
type Cascader interface {
	PropagateDisappearance(ctx context.Context, edge model.Ownership) (int64, error)
}

// Propagator walks model.Hierarchy top-down so a disappearance cascades in one pass.
type Propagator struct {
	store  Cascader
	logger *slog.Logger
	tally  *Tally
}

// NewPropagator creates a propagator over store. tally may be nil.
func NewPropagator(store Cascader, logger *slog.Logger, tally *Tally) *Propagator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Propagator{store: store, logger: logger, tally: tally}
}

// Propagate runs every edge in order and returns how many children each one marked.
// It must only run once the reconciliation round has finished.
func (p *Propagator) Propagate(ctx context.Context) (map[model.Ownership]int64, error) {
	marked := make(map[model.Ownership]int64, len(model.Hierarchy))
	for _, edge := range model.Hierarchy {
		n, err := p.store.PropagateDisappearance(ctx, edge)
		if err != nil {
			return marked, fmt.Errorf("failed to propagate disappearance along %s: %w", edge, err)
		}
		marked[edge] = n
		if n > 0 {
			p.logger.Warn("Propagated disappearance", "edge", edge.String(), "count", n)
			p.tally.Add(edge.Child, OutcomeDisappeared, n)
		}
	}
	return marked, nil
}
