package reconcile

import (
	"context"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
	pkgsync "github.com/NovaUNL/Supernova-sub000/internal/sync"
	"github.com/NovaUNL/Supernova-sub000/internal/upstream"
)

func newClassInstances(env *Env) *kind[upstream.ClassInstance, *model.ClassInstance] {
	return &kind[upstream.ClassInstance, *model.ClassInstance]{
		env:   env,
		kind:  model.KindClassInstance,
		repo:  env.Store.ClassInstances(),
		fetch: env.Source.ClassInstance,
		raw:   (*upstream.ClassInstance).JSON,
		fresh: func() *model.ClassInstance { return &model.ClassInstance{} },
		apply: func(ctx context.Context, ci *model.ClassInstance, p *upstream.ClassInstance, parent Parent, ch *changes) error {
			log := env.logger().With("kind", model.KindClassInstance, "external_id", p.ID)

			classID, err := owner(ctx, ch, log, model.KindClassInstance, p.ID, model.KindClass, "class_id",
				p.ClassID, parent, env.Store.Classes())
			if err != nil {
				return err
			}

			dept, found, err := lookup(ctx, env.Store.Departments(), p.DepartmentID)
			if err != nil {
				return err
			}
			if !found {
				return &pkgsync.MissingParentError{
					Kind:             model.KindClassInstance,
					ExternalID:       p.ID,
					ParentKind:       model.KindDepartment,
					ParentExternalID: *p.DepartmentID,
				}
			}

			moveTo(ch, log, "class", &ci.ClassID, classID)
			setPtr(ch, "department", &ci.DepartmentID, dept)
			setJSON(ch, "information", &ci.Information, p.Info)

			// The occurrence is the identity of an instance.
			if ci.ID == 0 {
				ci.Year, ci.Period = p.Year, p.Period
			} else if (ci.Year != p.Year || ci.Period != p.Period) && ch.mode == warn {
				log.Error("Class instance occurrence changed upstream, keeping the stored one",
					"year", ci.Year, "period", ci.Period, "upstream_year", p.Year, "upstream_period", p.Period)
			}
			return nil
		},
	}
}

// wireClassInstances makes instances recurse into their turns, enrollments, events and files.
// Turns go first so that file uploaders resolve against their teachers.
func wireClassInstances(
	instances *kind[upstream.ClassInstance, *model.ClassInstance],
	turns *kind[upstream.Turn, *model.Turn],
	enrollments *kind[upstream.Enrollment, *model.Enrollment],
	events *kind[upstream.ClassEvent, *model.ClassEvent],
	files *classFiles,
) {
	instances.children = func(ctx context.Context, ci *model.ClassInstance, p *upstream.ClassInstance, policy pkgsync.Policy) error {
		parent := ParentOf(ci)
		if err := syncChildren(ctx, turns, parent, p.Turns, policy, nil); err != nil {
			return err
		}
		if err := syncChildren(ctx, enrollments, parent, p.Enrollments, policy, nil); err != nil {
			return err
		}
		eventID := func(e *upstream.ClassEvent) int64 { return e.ID }
		if err := syncEmbedded(ctx, events, parent, p.Events, eventID, policy); err != nil {
			return err
		}
		return files.sync(ctx, ci, p.Files, policy)
	}
}
