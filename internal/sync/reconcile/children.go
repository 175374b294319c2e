package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
	"github.com/NovaUNL/Supernova-sub000/internal/store"
	pkgsync "github.com/NovaUNL/Supernova-sub000/internal/sync"
	"github.com/NovaUNL/Supernova-sub000/internal/sync/pool"
)

// filter narrows the mirrored children that PolicyFull reconciles.
type filter func(ctx context.Context, ids []int64) ([]int64, error)

// syncChildren diffs the stored children of parent against the ids listed upstream.
// Disappeared children are marked, mirrored ones touched (which also reactivates them),
// and the new ones (plus the mirrored ones under PolicyFull) are synced one at a time.
func syncChildren[P any, T model.Cloner[T]](
	ctx context.Context, child *kind[P, T], parent Parent, listed []int64, policy pkgsync.Policy, keep filter,
) error {
	return visitChildren(ctx, child, parent, listed, policy, keep, func(ctx context.Context, id int64) error {
		_, err := child.Sync(ctx, id, parent, policy)
		return err
	})
}

// syncEmbedded is syncChildren for children whose records came inside the parent payload.
func syncEmbedded[P any, T model.Cloner[T]](
	ctx context.Context, child *kind[P, T], parent Parent, records []*P, idOf func(*P) int64, policy pkgsync.Policy,
) error {
	byID := make(map[int64]*P, len(records))
	listed := make([]int64, 0, len(records))
	for _, r := range records {
		id := idOf(r)
		byID[id] = r
		listed = append(listed, id)
	}
	return visitChildren(ctx, child, parent, listed, policy, nil, func(ctx context.Context, id int64) error {
		_, err := child.Reconcile(ctx, id, byID[id], parent, policy)
		return err
	})
}

func visitChildren[P any, T model.Cloner[T]](
	ctx context.Context, child *kind[P, T], parent Parent, listed []int64, policy pkgsync.Policy, keep filter,
	visit func(context.Context, int64) error,
) error {
	env := child.env
	log := env.logger().With("kind", child.kind, "parent_kind", parent.Kind, "parent_external_id", parent.ExternalID)

	known, active, err := child.repo.Index(ctx, store.ChildrenOf(parent.ID))
	if err != nil {
		return err
	}
	part := pkgsync.Diff(known, active, model.NewIDSet(listed...))

	if err := markDisappeared(ctx, env, child.kind, child.repo, part.Disappeared, log); err != nil {
		return err
	}
	if _, err := child.repo.Touch(ctx, part.Mirrored, env.now()); err != nil {
		return err
	}
	if n := len(part.Mirrored) - countIn(active, part.Mirrored); n > 0 {
		log.Info("Children reappeared upstream", "count", n)
	}

	work := part.New
	if policy.UpdatesMirrored() {
		mirrored := part.Mirrored
		if keep != nil {
			if mirrored, err = keep(ctx, mirrored); err != nil {
				return err
			}
		}
		work = slices.Concat(part.New, mirrored)
	}
	if len(work) == 0 {
		return nil
	}

	env.each(ctx, env.childPool(), child.kind, work, visit)
	return nil
}

func countIn(set model.IDSet, ids []int64) int {
	n := 0
	for _, id := range ids {
		if set.Has(id) {
			n++
		}
	}
	return n
}

// syncCollection reconciles a flat collection whose records are already at hand.
func syncCollection[P any, T model.Cloner[T]](
	ctx context.Context, k *kind[P, T], records []*P, idOf func(*P) int64,
) (pkgsync.Partition, error) {
	env := k.env
	log := env.logger().With("kind", k.kind)

	byID := make(map[int64]*P, len(records))
	listed := model.NewIDSet()
	for _, r := range records {
		id := idOf(r)
		byID[id] = r
		listed.Add(id)
	}

	known, active, err := k.repo.Index(ctx, store.All())
	if err != nil {
		return pkgsync.Partition{}, err
	}
	part := pkgsync.Diff(known, active, listed)
	if err := markDisappeared(ctx, env, k.kind, k.repo, part.Disappeared, log); err != nil {
		return part, err
	}

	stats := env.Each(ctx, k.kind, slices.Concat(part.New, part.Mirrored), func(ctx context.Context, id int64) error {
		_, err := k.Reconcile(ctx, id, byID[id], Parent{}, pkgsync.PolicyNone)
		return err
	})
	log.Info("Synchronized collection",
		"new", len(part.New), "mirrored", len(part.Mirrored), "disappeared", len(part.Disappeared),
		"failed", stats.Failed)
	return part, nil
}

func markDisappeared[T model.Entity](
	ctx context.Context, env *Env, kind model.Kind, repo store.Repository[T], ids []int64, log *slog.Logger,
) error {
	if len(ids) == 0 {
		return nil
	}
	n, err := repo.MarkDisappeared(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		log.Warn("Entity disappeared upstream", "external_id", id)
	}
	env.Tally.Add(kind, pkgsync.OutcomeDisappeared, n)
	return nil
}

// syncLinks makes the targets of owner in rel match the listed external ids.
// Targets that are not stored locally are left out.
func syncLinks[T model.Entity](
	ctx context.Context, env *Env, rel model.Relation, ownerID int64, listed []int64,
	targets store.Repository[T], log *slog.Logger,
) error {
	links := env.Store.Links(rel)
	current, err := links.Targets(ctx, ownerID)
	if err != nil {
		return err
	}

	want := model.NewIDSet(listed...)
	var add, remove []int64
	for _, ext := range want.Sorted() {
		if _, ok := current[ext]; ok {
			continue
		}
		t, found, err := targets.ByExternalID(ctx, ext)
		if err != nil {
			return err
		}
		if !found {
			log.Debug("Ignoring link to unknown entity", "relation", rel, "target_external_id", ext)
			continue
		}
		add = append(add, t.Base().ID)
	}
	for ext, id := range current {
		if !want.Has(ext) {
			remove = append(remove, id)
		}
	}

	if err := links.Add(ctx, ownerID, add); err != nil {
		return err
	}
	if err := links.Remove(ctx, ownerID, remove); err != nil {
		return err
	}
	if len(add) > 0 || len(remove) > 0 {
		log.Info("Updated links", "relation", rel, "added", len(add), "removed", len(remove))
	}
	return nil
}

// owner resolves the local parent of a child. Under a context the context wins and a
// contradicting claim is logged; without one the claimed parent must be stored.
func owner[T model.Entity](
	ctx context.Context, ch *changes, log *slog.Logger, child model.Kind, extID int64,
	parentKind model.Kind, field string, claimed int64, parent Parent, parents store.Repository[T],
) (int64, error) {
	if !parent.IsZero() {
		if parent.Kind != parentKind {
			return 0, fmt.Errorf("%s cannot be reconciled under %s", child, parent.Kind)
		}
		if claimed != 0 && claimed != parent.ExternalID && !ch.dryRun() {
			err := &pkgsync.IllegalReparentError{
				Kind: child, ExternalID: extID, Field: field, Claimed: claimed, Context: parent.ExternalID,
			}
			log.Warn("Ignoring conflicting parent reference", "error", err.Error())
		}
		return parent.ID, nil
	}

	p, found, err := parents.ByExternalID(ctx, claimed)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, &pkgsync.MissingParentError{
			Kind: child, ExternalID: extID, ParentKind: parentKind, ParentExternalID: claimed,
		}
	}
	return p.Base().ID, nil
}

// moveTo assigns the owning parent, logging a legal reparent of a stored row.
func moveTo(ch *changes, log *slog.Logger, field string, dst *int64, id int64) {
	if *dst == id {
		return
	}
	if *dst != 0 && ch.mode == warn {
		log.Info("Moving to another parent", "field", field, "from", *dst, "to", id)
	}
	ch.quiet(field)
	*dst = id
}

// lookup resolves an optional reference to a local id. Unknown references resolve to nil.
func lookup[T model.Entity](ctx context.Context, repo store.Repository[T], extID *int64) (*int64, bool, error) {
	if extID == nil {
		return nil, true, nil
	}
	e, found, err := repo.ByExternalID(ctx, *extID)
	if err != nil || !found {
		return nil, false, err
	}
	id := e.Base().ID
	return &id, true, nil
}

func (env *Env) childPool() *pool.Pool {
	if env.Pool == nil {
		return pool.New(pool.WithConcurrency(1), pool.WithLogger(env.logger()))
	}
	return env.Pool.Sequential()
}
