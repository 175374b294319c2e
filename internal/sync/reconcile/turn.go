package reconcile

import (
	"context"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
	pkgsync "github.com/NovaUNL/Supernova-sub000/internal/sync"
	"github.com/NovaUNL/Supernova-sub000/internal/upstream"
)

func newTurns(env *Env) *kind[upstream.Turn, *model.Turn] {
	return &kind[upstream.Turn, *model.Turn]{
		env:   env,
		kind:  model.KindTurn,
		repo:  env.Store.Turns(),
		fetch: env.Source.Turn,
		raw:   (*upstream.Turn).JSON,
		fresh: func() *model.Turn { return &model.Turn{} },
		apply: func(ctx context.Context, t *model.Turn, p *upstream.Turn, parent Parent, ch *changes) error {
			log := env.logger().With("kind", model.KindTurn, "external_id", p.ID)
			instanceID, err := owner(ctx, ch, log, model.KindTurn, p.ID, model.KindClassInstance, "class_instance_id",
				p.ClassInstanceID, parent, env.Store.ClassInstances())
			if err != nil {
				return err
			}
			moveTo(ch, log, "class_instance", &t.ClassInstanceID, instanceID)
			set(ch, "type", &t.Type, p.Type)
			set(ch, "number", &t.Number, p.Number)
			set(ch, "restrictions", &t.Restrictions, p.Restrictions)
			set(ch, "state", &t.State, p.State)
			return nil
		},
		after: func(ctx context.Context, t *model.Turn, p *upstream.Turn) error {
			log := env.logger().With("kind", model.KindTurn, "external_id", p.ID)
			if err := syncLinks(ctx, env, model.RelTurnStudents, t.ID, p.Students, env.Store.Students(), log); err != nil {
				return err
			}
			return syncLinks(ctx, env, model.RelTurnTeachers, t.ID, p.Teachers, env.Store.Teachers(), log)
		},
	}
}

// wireTurns makes turns recurse into their weekly instances.
func wireTurns(turns *kind[upstream.Turn, *model.Turn], instances *kind[upstream.TurnInstance, *model.TurnInstance]) {
	turns.children = func(ctx context.Context, t *model.Turn, p *upstream.Turn, policy pkgsync.Policy) error {
		return syncChildren(ctx, instances, ParentOf(t), p.Instances, policy, nil)
	}
}

func newTurnInstances(env *Env) *kind[upstream.TurnInstance, *model.TurnInstance] {
	return &kind[upstream.TurnInstance, *model.TurnInstance]{
		env:   env,
		kind:  model.KindTurnInstance,
		repo:  env.Store.TurnInstances(),
		fetch: env.Source.TurnInstance,
		raw:   (*upstream.TurnInstance).JSON,
		fresh: func() *model.TurnInstance { return &model.TurnInstance{} },
		apply: func(ctx context.Context, ti *model.TurnInstance, p *upstream.TurnInstance, parent Parent, ch *changes) error {
			log := env.logger().With("kind", model.KindTurnInstance, "external_id", p.ID)
			turnID, err := owner(ctx, ch, log, model.KindTurnInstance, p.ID, model.KindTurn, "turn_id",
				p.TurnID, parent, env.Store.Turns())
			if err != nil {
				return err
			}
			room, found, err := lookup(ctx, env.Store.Rooms(), p.Room)
			if err != nil {
				return err
			}
			if !found && !ch.dryRun() {
				log.Warn("Unknown room, leaving it unset", "room", *p.Room)
			}

			moveTo(ch, log, "turn", &ti.TurnID, turnID)
			setPtr(ch, "weekday", &ti.Weekday, p.Weekday)
			setPtr(ch, "start", &ti.Start, p.Start)
			setPtr(ch, "duration", &ti.Duration, duration(p.Start, p.End))
			setPtr(ch, "room", &ti.RoomID, room)
			return nil
		},
	}
}

// duration is end minus start in minutes, when both are known.
func duration(start, end *int) *int {
	if start == nil || end == nil {
		return nil
	}
	d := *end - *start
	return &d
}
