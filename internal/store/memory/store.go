// Package memory is an in-process implementation of store.Store.
// Nothing survives the process; it backs tests and runs with storage type "memory".
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
	"github.com/NovaUNL/Supernova-sub000/internal/store"
)

// Store holds every kind in maps guarded by per-table locks.
type Store struct {
	departments    *table[*model.Department]
	buildings      *table[*model.Building]
	rooms          *table[*model.Room]
	courses        *table[*model.Course]
	classes        *table[*model.Class]
	classInstances *table[*model.ClassInstance]
	turns          *table[*model.Turn]
	turnInstances  *table[*model.TurnInstance]
	enrollments    *table[*model.Enrollment]
	classEvents    *table[*model.ClassEvent]
	classFiles     *table[*model.ClassFile]
	students       *table[*model.Student]
	teachers       *table[*model.Teacher]

	links map[model.Relation]*links
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	s := &Store{
		departments: newTable[*model.Department](nil),
		buildings:   newTable[*model.Building](nil),
		rooms: newTable(func(r *model.Room) *int64 {
			return &r.BuildingID
		}),
		courses: newTable[*model.Course](nil),
		classes: newTable(func(c *model.Class) *int64 {
			return c.DepartmentID
		}),
		classInstances: newTable(func(ci *model.ClassInstance) *int64 {
			return &ci.ClassID
		}),
		turns: newTable(func(t *model.Turn) *int64 {
			return &t.ClassInstanceID
		}),
		turnInstances: newTable(func(ti *model.TurnInstance) *int64 {
			return &ti.TurnID
		}),
		enrollments: newTable(func(e *model.Enrollment) *int64 {
			return &e.ClassInstanceID
		}),
		classEvents: newTable(func(e *model.ClassEvent) *int64 {
			return &e.ClassInstanceID
		}),
		classFiles: newTable(func(f *model.ClassFile) *int64 {
			return &f.ClassInstanceID
		}),
		students: newTable[*model.Student](nil),
		teachers: newTable[*model.Teacher](nil),
	}
	s.links = map[model.Relation]*links{
		model.RelTurnStudents:       newLinks(s.students.externalID),
		model.RelTurnTeachers:       newLinks(s.teachers.externalID),
		model.RelTeacherDepartments: newLinks(s.departments.externalID),
	}
	return s
}

// Departments implements store.Store.
func (s *Store) Departments() store.Repository[*model.Department] { return s.departments }

// Buildings implements store.Store.
func (s *Store) Buildings() store.Repository[*model.Building] { return s.buildings }

// Rooms implements store.Store.
func (s *Store) Rooms() store.Repository[*model.Room] { return s.rooms }

// Courses implements store.Store.
func (s *Store) Courses() store.Repository[*model.Course] { return s.courses }

// Classes implements store.Store.
func (s *Store) Classes() store.Repository[*model.Class] { return s.classes }

// ClassInstances implements store.Store.
func (s *Store) ClassInstances() store.Repository[*model.ClassInstance] { return s.classInstances }

// Turns implements store.Store.
func (s *Store) Turns() store.Repository[*model.Turn] { return s.turns }

// TurnInstances implements store.Store.
func (s *Store) TurnInstances() store.Repository[*model.TurnInstance] { return s.turnInstances }

// Enrollments implements store.Store.
func (s *Store) Enrollments() store.Repository[*model.Enrollment] { return s.enrollments }

// ClassEvents implements store.Store.
func (s *Store) ClassEvents() store.Repository[*model.ClassEvent] { return s.classEvents }

// ClassFiles implements store.Store.
func (s *Store) ClassFiles() store.Repository[*model.ClassFile] { return s.classFiles }

// Students implements store.Store.
func (s *Store) Students() store.Repository[*model.Student] { return s.students }

// Teachers implements store.Store.
func (s *Store) Teachers() store.Repository[*model.Teacher] { return s.teachers }

// Links implements store.Store.
func (s *Store) Links(rel model.Relation) store.Links {
	return s.links[rel]
}

// PropagateDisappearance implements store.Store.
func (s *Store) PropagateDisappearance(_ context.Context, edge model.Ownership) (int64, error) {
	switch edge {
	case model.Ownership{Parent: model.KindClass, Child: model.KindClassInstance}:
		return s.classInstances.cascade(s.classes.disappeared()), nil
	case model.Ownership{Parent: model.KindClassInstance, Child: model.KindTurn}:
		return s.turns.cascade(s.classInstances.disappeared()), nil
	case model.Ownership{Parent: model.KindClassInstance, Child: model.KindEnrollment}:
		return s.enrollments.cascade(s.classInstances.disappeared()), nil
	case model.Ownership{Parent: model.KindClassInstance, Child: model.KindClassEvent}:
		return s.classEvents.cascade(s.classInstances.disappeared()), nil
	case model.Ownership{Parent: model.KindClassInstance, Child: model.KindClassFile}:
		return s.classFiles.cascade(s.classInstances.disappeared()), nil
	case model.Ownership{Parent: model.KindTurn, Child: model.KindTurnInstance}:
		return s.turnInstances.cascade(s.turns.disappeared()), nil
	default:
		return 0, fmt.Errorf("unknown ownership edge %s", edge)
	}
}

// ActiveClassInstances implements store.Store.
func (s *Store) ActiveClassInstances(ctx context.Context, year, period int) ([]*model.ClassInstance, error) {
	busy := s.turns.parents()
	for id := range s.enrollments.parents() {
		busy[id] = true
	}
	all, err := s.classInstances.List(ctx, store.All())
	if err != nil {
		return nil, err
	}
	out := make([]*model.ClassInstance, 0)
	for _, ci := range all {
		if ci.Year == year && ci.Period == period && !ci.Disappeared && busy[ci.ID] {
			out = append(out, ci)
		}
	}
	return out, nil
}

// SaveAggregates implements store.Store.
func (s *Store) SaveAggregates(_ context.Context, agg store.Aggregates) error {
	for id, extinguished := range agg.ExtinguishedClasses {
		s.classes.mutate(id, func(c *model.Class) {
			c.Extinguished = extinguished
		})
	}
	for id, cached := range agg.Students {
		s.students.mutate(id, func(st *model.Student) {
			st.Year = cached.Year
			st.Span = cached.Span
			st.Credits = cached.Credits
		})
	}
	for id, span := range agg.Teachers {
		s.teachers.mutate(id, func(t *model.Teacher) {
			t.Span = span
		})
	}
	return nil
}

// Close implements store.Store.
func (*Store) Close() {}

// Seed stores entity as is, keeping Frozen, SameAs and Disappeared. It is meant for
// fixtures that simulate manual edits.
func Seed[T model.Cloner[T]](repo store.Repository[T], entity T) (T, error) {
	t, ok := repo.(*table[T])
	if !ok {
		var zero T
		return zero, fmt.Errorf("repository %T is not an in-memory table", repo)
	}
	return t.insert(entity, true)
}

type links struct {
	mu        sync.RWMutex
	owners    map[int64]map[int64]struct{}
	targetExt func(int64) (int64, bool)
}

func newLinks(targetExt func(int64) (int64, bool)) *links {
	return &links{
		owners:    make(map[int64]map[int64]struct{}),
		targetExt: targetExt,
	}
}

func (l *links) Targets(_ context.Context, ownerID int64) (map[int64]int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[int64]int64)
	for target := range l.owners[ownerID] {
		if ext, ok := l.targetExt(target); ok {
			out[ext] = target
		}
	}
	return out, nil
}

func (l *links) Add(_ context.Context, ownerID int64, targetIDs []int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.owners[ownerID]
	if !ok {
		set = make(map[int64]struct{})
		l.owners[ownerID] = set
	}
	for _, id := range targetIDs {
		set[id] = struct{}{}
	}
	return nil
}

func (l *links) Remove(_ context.Context, ownerID int64, targetIDs []int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range targetIDs {
		delete(l.owners[ownerID], id)
	}
	return nil
}

func (l *links) All(_ context.Context) ([]model.Link, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []model.Link
	for owner, targets := range l.owners {
		for target := range targets {
			out = append(out, model.Link{OwnerID: owner, TargetID: target})
		}
	}
	return out, nil
}
