package reconcile

import (
	"context"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
	pkgsync "github.com/NovaUNL/Supernova-sub000/internal/sync"
	"github.com/NovaUNL/Supernova-sub000/internal/upstream"
)

func newDepartments(env *Env) *kind[upstream.Department, *model.Department] {
	return &kind[upstream.Department, *model.Department]{
		env:   env,
		kind:  model.KindDepartment,
		repo:  env.Store.Departments(),
		fetch: env.Source.Department,
		raw:   (*upstream.Department).JSON,
		fresh: func() *model.Department { return &model.Department{} },
		apply: func(_ context.Context, d *model.Department, p *upstream.Department, _ Parent, ch *changes) error {
			set(ch, "name", &d.Name, p.Name)
			set(ch, "iid", &d.IID, p.IID)
			return nil
		},
	}
}

// wireDepartments makes departments recurse into their classes.
func wireDepartments(departments *kind[upstream.Department, *model.Department], classes *kind[upstream.Class, *model.Class]) {
	departments.children = func(ctx context.Context, d *model.Department, p *upstream.Department, policy pkgsync.Policy) error {
		return syncChildren(ctx, classes, ParentOf(d), p.Classes, policy, nil)
	}
}
