// Package reconcile upserts upstream records into the store, one reconciler per entity kind.
//
// Every kind follows the same rules:
//
//   - a record never seen before is created unfrozen and active
//   - a frozen row only gets its bookkeeping refreshed; content drift is logged
//   - any other row has every tracked field compared and overwritten, with a warning per field
//   - children listed by the payload are diffed and visited according to the recursion policy
//
// The hierarchy being walked is the source of truth for parentage. A payload claiming a
// different parent is logged and that field ignored.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
	"github.com/NovaUNL/Supernova-sub000/internal/store"
	pkgsync "github.com/NovaUNL/Supernova-sub000/internal/sync"
	"github.com/NovaUNL/Supernova-sub000/internal/sync/pool"
	"github.com/NovaUNL/Supernova-sub000/internal/upstream"
)

// Env is what every reconciler of one run shares.
type Env struct {
	Source upstream.Source
	Store  store.Store

	// Pool runs top-level work. Children are visited with its sequential variant.
	Pool *pool.Pool

	Tally  *pkgsync.Tally
	Logger *slog.Logger
	Tracer trace.Tracer

	// MinYear stops full recursion into class instances of earlier years. Zero disables it.
	MinYear int

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

func (env *Env) now() time.Time {
	if env.Now == nil {
		return time.Now()
	}
	return env.Now()
}

func (env *Env) logger() *slog.Logger {
	if env.Logger == nil {
		return slog.Default()
	}
	return env.Logger
}

// Parent is the position in the hierarchy a reconciliation happens under.
// The zero value means the entity is reconciled on its own.
type Parent struct {
	Kind       model.Kind
	ID         int64
	ExternalID int64
}

// ParentOf builds the context for the children of e.
func ParentOf(e model.Entity) Parent {
	b := e.Base()
	return Parent{Kind: e.Kind(), ID: b.ID, ExternalID: b.ExtID()}
}

// IsZero reports whether there is no context.
func (p Parent) IsZero() bool {
	return p.ID == 0
}

// Reconciler upserts entities of one kind.
type Reconciler[P any, T model.Entity] interface {
	// Reconcile upserts the row of extID from payload and visits its children per policy.
	Reconcile(ctx context.Context, extID int64, payload *P, parent Parent, policy pkgsync.Policy) (T, error)

	// Sync fetches the record of extID, then reconciles it.
	Sync(ctx context.Context, extID int64, parent Parent, policy pkgsync.Policy) (T, error)
}

// Each runs fn over ids in env.Pool. Skipped items are logged and tallied, failures are
// retried by the pool when they are network errors and tallied once abandoned.
func (env *Env) Each(ctx context.Context, kind model.Kind, ids []int64, fn func(context.Context, int64) error) pool.Stats {
	return env.each(ctx, env.Pool, kind, ids, fn)
}

// EachInOrder is Each with a single worker.
func (env *Env) EachInOrder(ctx context.Context, kind model.Kind, ids []int64, fn func(context.Context, int64) error) pool.Stats {
	return env.each(ctx, env.childPool(), kind, ids, fn)
}

func (env *Env) each(
	ctx context.Context, p *pool.Pool, kind model.Kind, ids []int64, fn func(context.Context, int64) error,
) pool.Stats {
	if p == nil {
		p = pool.New(pool.WithLogger(env.logger()))
	}
	stats := pool.Run(ctx, p, ids, func(ctx context.Context, id int64) error {
		return env.settle(kind, id, fn(ctx, id))
	})
	env.Tally.Add(kind, pkgsync.OutcomeFailed, int64(stats.Failed))
	return stats
}

// settle turns skips into successes so that the pool neither retries nor counts them.
func (env *Env) settle(kind model.Kind, id int64, err error) error {
	if err == nil {
		return nil
	}
	if pkgsync.IsSkip(err) {
		env.logger().Warn("Skipping record", "kind", kind, "external_id", id, "reason", err.Error())
		env.Tally.Add(kind, pkgsync.OutcomeSkipped, 1)
		return nil
	}
	return err
}
