package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
	"github.com/NovaUNL/Supernova-sub000/internal/otel"
	"github.com/NovaUNL/Supernova-sub000/internal/store"
	pkgsync "github.com/NovaUNL/Supernova-sub000/internal/sync"
)

// kind is the reconciler shared by every entity kind. The hooks hold what differs.
type kind[P any, T model.Cloner[T]] struct {
	env  *Env
	kind model.Kind
	repo store.Repository[T]

	fetch func(ctx context.Context, extID int64) (*P, error)
	raw   func(*P) json.RawMessage
	fresh func() T

	// apply copies the payload onto e through ch. e.Base().ID is zero for a new row.
	apply func(ctx context.Context, e T, p *P, parent Parent, ch *changes) error

	// children visits the collections listed by the payload. Optional.
	children func(ctx context.Context, e T, p *P, policy pkgsync.Policy) error

	// after runs once a non-frozen row is stored. Optional.
	after func(ctx context.Context, e T, p *P) error
}

var _ Reconciler[struct{}, *model.Department] = (*kind[struct{}, *model.Department])(nil)

func (k *kind[P, T]) Sync(ctx context.Context, extID int64, parent Parent, policy pkgsync.Policy) (T, error) {
	p, err := k.fetch(ctx, extID)
	if err != nil {
		var zero T
		return zero, err
	}
	return k.Reconcile(ctx, extID, p, parent, policy)
}

func (k *kind[P, T]) Reconcile(ctx context.Context, extID int64, p *P, parent Parent, policy pkgsync.Policy) (T, error) {
	ctx, span := otel.StartSpan(ctx, k.env.Tracer, "reconcile."+string(k.kind), otel.Entity(string(k.kind), extID))
	defer span.End()
	span.SetAttributes(otel.AttrPolicy.String(policy.String()))

	e, err := k.upsert(ctx, extID, p, parent)
	if err != nil {
		otel.RecordError(span, err)
		var zero T
		return zero, err
	}
	if policy.Recurses() && k.children != nil {
		if err := k.children(ctx, e, p, policy); err != nil {
			otel.RecordError(span, err)
			return e, err
		}
	}
	return e, nil
}

func (k *kind[P, T]) upsert(ctx context.Context, extID int64, p *P, parent Parent) (T, error) {
	var zero T
	log := k.env.logger().With("kind", k.kind, "external_id", extID)

	existing, found, err := k.repo.ByExternalID(ctx, extID)
	if err != nil {
		return zero, err
	}
	if !found {
		created, err := k.create(ctx, extID, p, parent, log)
		if !errors.Is(err, store.ErrConflict) {
			return created, err
		}
		// Another worker stored it first.
		existing, found, err = k.repo.ByExternalID(ctx, extID)
		if err != nil {
			return zero, err
		}
		if !found {
			return zero, fmt.Errorf("%s %d conflicts on create but is not stored", k.kind, extID)
		}
	}
	if existing.Base().Frozen {
		return k.touchFrozen(ctx, existing, p, parent, log)
	}
	return k.update(ctx, existing, p, parent, log)
}

func (k *kind[P, T]) create(ctx context.Context, extID int64, p *P, parent Parent, log *slog.Logger) (T, error) {
	var zero T
	e := k.fresh()
	*e.Base() = model.NewExternal(extID, k.raw(p), k.env.now())
	if err := k.apply(ctx, e, p, parent, &changes{}); err != nil {
		return zero, err
	}
	created, err := k.repo.Create(ctx, e)
	if err != nil {
		return zero, err
	}
	if k.after != nil {
		if err := k.after(ctx, created, p); err != nil {
			return created, err
		}
	}
	log.Info("Created entity", "id", created.Base().ID)
	k.env.Tally.Add(k.kind, pkgsync.OutcomeCreated, 1)
	return created, nil
}

// touchFrozen refreshes bookkeeping only. The payload is applied to a copy to report drift.
func (k *kind[P, T]) touchFrozen(ctx context.Context, e T, p *P, parent Parent, log *slog.Logger) (T, error) {
	trial := e.Clone()
	ch := &changes{mode: collect}
	if err := k.apply(ctx, trial, p, parent, ch); err != nil {
		log.Debug("Payload of frozen entity does not apply", "error", err)
	}
	if len(ch.fields) > 0 {
		log.Info("Frozen entity differs from upstream", "fields", ch.fields)
	}
	at := k.env.now()
	if _, err := k.repo.Touch(ctx, []int64{e.Base().ExtID()}, at); err != nil {
		return e, err
	}
	e.Base().Touch(at)
	k.env.Tally.Add(k.kind, pkgsync.OutcomeUnchanged, 1)
	return e, nil
}

func (k *kind[P, T]) update(ctx context.Context, e T, p *P, parent Parent, log *slog.Logger) (T, error) {
	ch := &changes{mode: warn, log: log}
	if err := k.apply(ctx, e, p, parent, ch); err != nil {
		return e, err
	}
	b := e.Base()
	if raw := k.raw(p); !jsonEqual(b.ExternalData, raw) {
		b.ExternalData = raw
		ch.quiet("external_data")
	}
	if b.Disappeared {
		log.Info("Entity reappeared upstream")
	}
	b.Touch(k.env.now())
	if err := k.repo.Update(ctx, e); err != nil {
		return e, err
	}
	if k.after != nil {
		if err := k.after(ctx, e, p); err != nil {
			return e, err
		}
	}
	if len(ch.fields) > 0 {
		k.env.Tally.Add(k.kind, pkgsync.OutcomeUpdated, 1)
	} else {
		k.env.Tally.Add(k.kind, pkgsync.OutcomeUnchanged, 1)
	}
	return e, nil
}

type changeMode int

const (
	// silent applies without recording. Used on creation.
	silent changeMode = iota
	// collect records field names only.
	collect
	// warn records and logs every changed field.
	warn
)

// changes applies payload values to an entity and records what differed.
type changes struct {
	mode   changeMode
	log    *slog.Logger
	fields []string
}

func (ch *changes) record(field string, was, now any) {
	if ch.mode == silent {
		return
	}
	ch.fields = append(ch.fields, field)
	if ch.mode == warn {
		ch.log.Warn("Upstream content changed", "field", field, "old", was, "new", now)
	}
}

// quiet records a change that is not worth a warning.
func (ch *changes) quiet(field string) {
	if ch.mode != silent {
		ch.fields = append(ch.fields, field)
	}
}

// dryRun reports whether the result is discarded. Side effects must be avoided.
func (ch *changes) dryRun() bool {
	return ch.mode == collect
}

func set[V comparable](ch *changes, field string, dst *V, v V) {
	if *dst == v {
		return
	}
	ch.record(field, *dst, v)
	*dst = v
}

func setPtr[V comparable](ch *changes, field string, dst **V, v *V) {
	if equalPtr(*dst, v) {
		return
	}
	ch.record(field, deref(*dst), deref(v))
	if v == nil {
		*dst = nil
		return
	}
	c := *v
	*dst = &c
}

// setTime compares instants, ignoring the location they are expressed in.
func setTime(ch *changes, field string, dst **time.Time, v *time.Time) {
	if *dst == nil || v == nil {
		if *dst == v {
			return
		}
	} else if (*dst).Equal(*v) {
		return
	}
	ch.record(field, deref(*dst), deref(v))
	*dst = v
}

func setJSON(ch *changes, field string, dst *json.RawMessage, v json.RawMessage) {
	if jsonEqual(*dst, v) {
		return
	}
	ch.quiet(field)
	*dst = v
}

func equalPtr[V comparable](a, b *V) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func deref[V any](p *V) any {
	if p == nil {
		return nil
	}
	return *p
}

// jsonEqual compares documents by value. The store may normalize key order and spacing.
func jsonEqual(a, b json.RawMessage) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	var va, vb any
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return string(a) == string(b)
	}
	return reflect.DeepEqual(va, vb)
}
