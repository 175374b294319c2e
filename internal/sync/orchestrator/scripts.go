package orchestrator

import (
	"context"
	"slices"
	"sync"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
	"github.com/NovaUNL/Supernova-sub000/internal/store"
	pkgsync "github.com/NovaUNL/Supernova-sub000/internal/sync"
	"github.com/NovaUNL/Supernova-sub000/internal/sync/reconcile"
	"github.com/NovaUNL/Supernova-sub000/internal/upstream"
)

// requestUpdates asks upstream to refresh the collections the mode is about to read.
// Fast runs request per class instance instead.
func (r *run) requestUpdates(ctx context.Context) {
	if r.flags.NoUpdate {
		return
	}
	switch r.summary.Mode {
	case ModeSlow:
		r.request(ctx, upstream.UpdateClasses)
		depts, err := active(ctx, r.o.store.Departments())
		if err != nil {
			r.log.Warn("Cannot list departments to refresh their teachers", "error", err)
			return
		}
		for _, d := range depts {
			r.request(ctx, upstream.UpdateTeachers(d.ExtID()))
		}
	case ModeFull:
		r.request(ctx, upstream.UpdateAdmissions)
		r.request(ctx, upstream.UpdateCourses)
		r.request(ctx, upstream.UpdateRooms)
	}
}

func (r *run) preamble(ctx context.Context) {
	full := r.summary.Mode == ModeFull
	if r.flags.AssertBuildings {
		r.step(ctx, "assert_buildings", r.collection(r.set.AssertBuildings))
	}
	if r.flags.Rooms || full {
		r.step(ctx, "buildings", r.collection(r.set.SyncBuildings))
		r.step(ctx, "rooms", r.collection(r.set.SyncRooms))
	}
	if r.flags.Courses || full {
		r.step(ctx, "courses", r.collection(r.set.SyncCourses))
	}
	if r.flags.Departments || r.summary.Mode != ModeFast {
		r.step(ctx, "departments", r.collection(r.set.SyncDepartments))
	}
}

func (r *run) fast(ctx context.Context) {
	cfg := r.o.cfg
	r.step(ctx, "class_instances", func(ctx context.Context) error {
		instances, err := r.o.store.ActiveClassInstances(ctx, cfg.Year, cfg.Period)
		if err != nil {
			return err
		}
		optimize := !r.flags.NoOptimize && !r.flags.ForceClassInfo
		now := r.o.now()
		fresh := 0
		instances = slices.DeleteFunc(instances, func(ci *model.ClassInstance) bool {
			if optimize && ci.UpdatedWithin(cfg.FastStaleness, now) {
				fresh++
				return true
			}
			return false
		})
		r.log.Info("Selected class instances", "selected", len(instances), "fresh", fresh)

		return r.classInstances(ctx, instances, pkgsync.PolicyCreation, func(ctx context.Context, extID int64) {
			if r.flags.NoUpdate {
				return
			}
			if r.flags.ForceClassInfo {
				r.request(ctx, upstream.UpdateClassInfo(extID))
			}
			r.request(ctx, upstream.UpdateClassEnrollments(extID))
			r.request(ctx, upstream.UpdateTurns(extID))
		})
	})
}

func (r *run) slow(ctx context.Context) {
	cfg := r.o.cfg
	r.people(ctx)
	r.departments(ctx)

	r.step(ctx, "classes", func(ctx context.Context) error {
		now := r.o.now()
		return r.classes(ctx, pkgsync.PolicyCreation, func(c *model.Class) bool {
			return !c.UpdatedWithin(cfg.SlowStaleness, now)
		})
	})

	r.step(ctx, "class_instances", func(ctx context.Context) error {
		instances, err := active(ctx, r.o.store.ClassInstances())
		if err != nil {
			return err
		}
		now := r.o.now()
		instances = slices.DeleteFunc(instances, func(ci *model.ClassInstance) bool {
			return ci.Year < cfg.Year-cfg.RecentYearMargin || ci.UpdatedWithin(cfg.SlowStaleness, now)
		})
		return r.classInstances(ctx, instances, pkgsync.PolicyFull, nil)
	})
}

func (r *run) full(ctx context.Context) {
	r.people(ctx)
	r.departments(ctx)
	r.step(ctx, "classes", func(ctx context.Context) error {
		return r.classes(ctx, pkgsync.PolicyFull, nil)
	})
}

func (r *run) people(ctx context.Context) {
	r.step(ctx, "students", r.collection(r.set.SyncStudents))
	r.step(ctx, "teachers", r.collection(r.set.SyncTeachers))
}

// departments reconciles every active department with CREATION, which reaches new classes.
// Departments go one at a time: a class moving between two of them must not be marked
// disappeared by the one it left while the other adopts it.
func (r *run) departments(ctx context.Context) {
	r.step(ctx, "department_classes", func(ctx context.Context) error {
		depts, err := active(ctx, r.o.store.Departments())
		if err != nil {
			return err
		}
		r.eachInOrder(ctx, model.KindDepartment, externalIDs(depts), func(ctx context.Context, id int64) error {
			_, err := r.set.Departments.Sync(ctx, id, reconcile.Parent{}, pkgsync.PolicyCreation)
			return err
		})
		return nil
	})
}

// classes reconciles the active classes accepted by keep under their department.
func (r *run) classes(ctx context.Context, policy pkgsync.Policy, keep func(*model.Class) bool) error {
	classes, err := active(ctx, r.o.store.Classes())
	if err != nil {
		return err
	}
	if keep != nil {
		classes = slices.DeleteFunc(classes, func(c *model.Class) bool { return !keep(c) })
	}

	depts, err := r.o.store.Departments().List(ctx, store.All())
	if err != nil {
		return err
	}
	deptParent := make(map[int64]reconcile.Parent, len(depts))
	for _, d := range depts {
		deptParent[d.ID] = reconcile.ParentOf(d)
	}
	parents := make(map[int64]reconcile.Parent, len(classes))
	for _, c := range classes {
		if c.DepartmentID != nil {
			parents[c.ExtID()] = deptParent[*c.DepartmentID]
		}
	}

	r.each(ctx, model.KindClass, externalIDs(classes), func(ctx context.Context, id int64) error {
		_, err := r.set.Classes.Sync(ctx, id, parents[id], policy)
		return err
	})
	return nil
}

// classInstances reconciles instances under their class. before runs ahead of the first
// try of each one, retries skip it.
func (r *run) classInstances(
	ctx context.Context, instances []*model.ClassInstance, policy pkgsync.Policy,
	before func(ctx context.Context, extID int64),
) error {
	classParent := make(map[int64]reconcile.Parent)
	parents := make(map[int64]reconcile.Parent, len(instances))
	for _, ci := range instances {
		p, ok := classParent[ci.ClassID]
		if !ok {
			c, found, err := r.o.store.Classes().ByID(ctx, ci.ClassID)
			if err != nil {
				return err
			}
			if found {
				p = reconcile.ParentOf(c)
			}
			classParent[ci.ClassID] = p
		}
		parents[ci.ExtID()] = p
	}

	var started sync.Map
	r.each(ctx, model.KindClassInstance, externalIDs(instances), func(ctx context.Context, id int64) error {
		if _, retry := started.LoadOrStore(id, struct{}{}); !retry && before != nil {
			before(ctx, id)
		}
		_, err := r.set.ClassInstances.Sync(ctx, id, parents[id], policy)
		return err
	})
	return nil
}

// active lists the rows that have an external id and are not marked disappeared.
func active[T model.Entity](ctx context.Context, repo store.Repository[T]) ([]T, error) {
	all, err := repo.List(ctx, store.All())
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(e T) bool {
		b := e.Base()
		return b.Disappeared || b.ExternalID == nil
	}), nil
}

func externalIDs[T model.Entity](rows []T) []int64 {
	ids := make([]int64, 0, len(rows))
	for _, e := range rows {
		ids = append(ids, e.Base().ExtID())
	}
	return ids
}
