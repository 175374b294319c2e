package reconcile

import (
	"context"
	"slices"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
	"github.com/NovaUNL/Supernova-sub000/internal/store"
	pkgsync "github.com/NovaUNL/Supernova-sub000/internal/sync"
	"github.com/NovaUNL/Supernova-sub000/internal/upstream"
)

func newClasses(env *Env) *kind[upstream.Class, *model.Class] {
	k := &kind[upstream.Class, *model.Class]{
		env:   env,
		kind:  model.KindClass,
		repo:  env.Store.Classes(),
		fetch: env.Source.Class,
		raw:   (*upstream.Class).JSON,
		fresh: func() *model.Class { return &model.Class{} },
	}
	k.apply = func(ctx context.Context, c *model.Class, p *upstream.Class, parent Parent, ch *changes) error {
		set(ch, "name", &c.Name, p.Name)
		set(ch, "abbreviation", &c.Abbreviation, p.Abbreviation)
		set(ch, "credits", &c.Credits, p.Credits)
		set(ch, "iid", &c.IID, p.IID)
		return classDepartment(ctx, env, c, p, parent, ch)
	}
	return k
}

// classDepartment sets the department of a class. Under a department context the
// context wins; otherwise the payload reference is followed when it is stored locally.
func classDepartment(ctx context.Context, env *Env, c *model.Class, p *upstream.Class, parent Parent, ch *changes) error {
	log := env.logger().With("kind", model.KindClass, "external_id", p.ID)
	if parent.Kind == model.KindDepartment {
		var claimed int64
		if p.Department != nil {
			claimed = *p.Department
		}
		id, err := owner(ctx, ch, log, model.KindClass, p.ID, model.KindDepartment, "dept", claimed, parent,
			env.Store.Departments())
		if err != nil {
			return err
		}
		if c.DepartmentID != nil && *c.DepartmentID != id && ch.mode == warn {
			log.Info("Moving to another parent", "field", "department", "from", *c.DepartmentID, "to", id)
		}
		setPtr(ch, "department", &c.DepartmentID, &id)
		return nil
	}

	id, found, err := lookup(ctx, env.Store.Departments(), p.Department)
	if err != nil {
		return err
	}
	if !found {
		log.Debug("Keeping department, upstream one is unknown", "dept", *p.Department)
		return nil
	}
	setPtr(ch, "department", &c.DepartmentID, id)
	return nil
}

// wireClasses makes classes recurse into their instances. Under PolicyFull, mirrored
// instances older than env.MinYear are left alone.
func wireClasses(classes *kind[upstream.Class, *model.Class], instances *kind[upstream.ClassInstance, *model.ClassInstance]) {
	env := classes.env
	classes.children = func(ctx context.Context, c *model.Class, p *upstream.Class, policy pkgsync.Policy) error {
		var keep filter
		if env.MinYear > 0 {
			keep = func(ctx context.Context, ids []int64) ([]int64, error) {
				stored, err := instances.repo.List(ctx, store.ChildrenOf(c.ID))
				if err != nil {
					return nil, err
				}
				old := model.NewIDSet()
				for _, ci := range stored {
					if ci.Year < env.MinYear {
						old.Add(ci.ExtID())
					}
				}
				return slices.DeleteFunc(slices.Clone(ids), old.Has), nil
			}
		}
		return syncChildren(ctx, instances, ParentOf(c), p.Instances, policy, keep)
	}
}
