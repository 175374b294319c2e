package reconcile

import (
	"context"
	"fmt"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
	"github.com/NovaUNL/Supernova-sub000/internal/store"
	pkgsync "github.com/NovaUNL/Supernova-sub000/internal/sync"
	"github.com/NovaUNL/Supernova-sub000/internal/upstream"
)

// Set holds one reconciler per kind, wired into the hierarchy.
type Set struct {
	env *Env

	Departments    Reconciler[upstream.Department, *model.Department]
	Classes        Reconciler[upstream.Class, *model.Class]
	ClassInstances Reconciler[upstream.ClassInstance, *model.ClassInstance]
	Turns          Reconciler[upstream.Turn, *model.Turn]
	TurnInstances  Reconciler[upstream.TurnInstance, *model.TurnInstance]
	Enrollments    Reconciler[upstream.Enrollment, *model.Enrollment]
	ClassEvents    Reconciler[upstream.ClassEvent, *model.ClassEvent]
	Students       Reconciler[upstream.Student, *model.Student]
	Teachers       Reconciler[upstream.Teacher, *model.Teacher]
	Buildings      Reconciler[upstream.Building, *model.Building]
	Rooms          Reconciler[upstream.Room, *model.Room]
	Courses        Reconciler[upstream.Course, *model.Course]

	departments *kind[upstream.Department, *model.Department]
	students    *kind[upstream.Student, *model.Student]
	teachers    *kind[upstream.Teacher, *model.Teacher]
	buildings   *kind[upstream.Building, *model.Building]
	rooms       *kind[upstream.Room, *model.Room]
	courses     *kind[upstream.Course, *model.Course]
}

// New builds the reconcilers of every kind over env.
func New(env *Env) *Set {
	departments := newDepartments(env)
	classes := newClasses(env)
	classInstances := newClassInstances(env)
	turns := newTurns(env)
	turnInstances := newTurnInstances(env)
	students := newStudents(env)
	enrollments := newEnrollments(env, students)
	events := newClassEvents(env)

	wireDepartments(departments, classes)
	wireClasses(classes, classInstances)
	wireClassInstances(classInstances, turns, enrollments, events, &classFiles{env: env})
	wireTurns(turns, turnInstances)

	s := &Set{
		env:         env,
		departments: departments,
		students:    students,
		teachers:    newTeachers(env),
		buildings:   newBuildings(env),
		rooms:       newRooms(env),
		courses:     newCourses(env),
	}
	s.Departments = departments
	s.Classes = classes
	s.ClassInstances = classInstances
	s.Turns = turns
	s.TurnInstances = turnInstances
	s.Enrollments = enrollments
	s.ClassEvents = events
	s.Students = students
	s.Teachers = s.teachers
	s.Buildings = s.buildings
	s.Rooms = s.rooms
	s.Courses = s.courses
	return s
}

// SyncDepartments reconciles the department list, without recursing into classes.
func (s *Set) SyncDepartments(ctx context.Context) (pkgsync.Partition, error) {
	records, err := s.env.Source.Departments(ctx)
	if err != nil {
		return pkgsync.Partition{}, fmt.Errorf("failed to list departments: %w", err)
	}
	return syncCollection(ctx, s.departments, records, func(d *upstream.Department) int64 { return d.ID })
}

// SyncStudents reconciles the student list.
func (s *Set) SyncStudents(ctx context.Context) (pkgsync.Partition, error) {
	records, err := s.env.Source.Students(ctx)
	if err != nil {
		return pkgsync.Partition{}, fmt.Errorf("failed to list students: %w", err)
	}
	return syncCollection(ctx, s.students, records, func(st *upstream.Student) int64 { return st.ID })
}

// SyncTeachers reconciles the teacher list and their departments.
func (s *Set) SyncTeachers(ctx context.Context) (pkgsync.Partition, error) {
	records, err := s.env.Source.Teachers(ctx)
	if err != nil {
		return pkgsync.Partition{}, fmt.Errorf("failed to list teachers: %w", err)
	}
	return syncCollection(ctx, s.teachers, records, func(t *upstream.Teacher) int64 { return t.ID })
}

// SyncBuildings reconciles the building list.
func (s *Set) SyncBuildings(ctx context.Context) (pkgsync.Partition, error) {
	records, err := s.env.Source.Buildings(ctx)
	if err != nil {
		return pkgsync.Partition{}, fmt.Errorf("failed to list buildings: %w", err)
	}
	return syncCollection(ctx, s.buildings, records, func(b *upstream.Building) int64 { return b.ID })
}

// SyncRooms reconciles the room list. Buildings must be synced first.
func (s *Set) SyncRooms(ctx context.Context) (pkgsync.Partition, error) {
	records, err := s.env.Source.Rooms(ctx)
	if err != nil {
		return pkgsync.Partition{}, fmt.Errorf("failed to list rooms: %w", err)
	}
	return syncCollection(ctx, s.rooms, records, func(r *upstream.Room) int64 { return r.ID })
}

// SyncCourses reconciles the course list.
func (s *Set) SyncCourses(ctx context.Context) (pkgsync.Partition, error) {
	records, err := s.env.Source.Courses(ctx)
	if err != nil {
		return pkgsync.Partition{}, fmt.Errorf("failed to list courses: %w", err)
	}
	return syncCollection(ctx, s.courses, records, func(c *upstream.Course) int64 { return c.ID })
}

// AssertBuildings compares upstream buildings with the stored ones without writing.
func (s *Set) AssertBuildings(ctx context.Context) (pkgsync.Partition, error) {
	records, err := s.env.Source.Buildings(ctx)
	if err != nil {
		return pkgsync.Partition{}, fmt.Errorf("failed to list buildings: %w", err)
	}
	listed := model.NewIDSet()
	for _, b := range records {
		listed.Add(b.ID)
	}
	known, active, err := s.env.Store.Buildings().Index(ctx, store.All())
	if err != nil {
		return pkgsync.Partition{}, err
	}
	part := pkgsync.Diff(known, active, listed)
	log := s.env.logger().With("kind", model.KindBuilding)
	for _, id := range part.New {
		log.Warn("Building missing locally", "external_id", id)
	}
	for _, id := range part.Disappeared {
		log.Warn("Building unknown upstream", "external_id", id)
	}
	return part, nil
}
