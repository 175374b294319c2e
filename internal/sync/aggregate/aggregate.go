// Package aggregate recomputes the cached values derived from reconciled data: class
// extinction, student year span, year and credits, and teacher year span.
//
// Compute is a pure function over a Snapshot. Apply loads the snapshot, computes and
// writes back only what changed.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
	"github.com/NovaUNL/Supernova-sub000/internal/store"
)

// RecentEnrollmentYears is how far back enrollments keep a class from being extinguished.
const RecentEnrollmentYears = 2

// Snapshot is the reconciled data aggregates are derived from.
type Snapshot struct {
	Classes        []*model.Class
	ClassInstances []*model.ClassInstance
	Turns          []*model.Turn
	Enrollments    []*model.Enrollment
	Students       []*model.Student
	Teachers       []*model.Teacher

	// TurnTeachers links turns (owner) to teachers (target).
	TurnTeachers []model.Link
}

// Load reads a snapshot from st. Tables are read concurrently.
func Load(ctx context.Context, st store.Store) (*Snapshot, error) {
	s := &Snapshot{}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		s.Classes, err = st.Classes().List(ctx, store.All())
		return err
	})
	g.Go(func() (err error) {
		s.ClassInstances, err = st.ClassInstances().List(ctx, store.All())
		return err
	})
	g.Go(func() (err error) {
		s.Turns, err = st.Turns().List(ctx, store.All())
		return err
	})
	g.Go(func() (err error) {
		s.Enrollments, err = st.Enrollments().List(ctx, store.All())
		return err
	})
	g.Go(func() (err error) {
		s.Students, err = st.Students().List(ctx, store.All())
		return err
	})
	g.Go(func() (err error) {
		s.Teachers, err = st.Teachers().List(ctx, store.All())
		return err
	})
	g.Go(func() (err error) {
		s.TurnTeachers, err = st.Links(model.RelTurnTeachers).All(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load aggregate snapshot: %w", err)
	}
	return s, nil
}

// Compute derives the cached values for currentYear and returns those that differ from
// the snapshot. Disappeared instances and enrollments are ignored.
func Compute(s *Snapshot, currentYear int) store.Aggregates {
	agg := store.Aggregates{
		ExtinguishedClasses: make(map[int64]bool),
		Students:            make(map[int64]store.StudentAggregate),
		Teachers:            make(map[int64]model.YearSpan),
	}

	instances := make(map[int64]*model.ClassInstance, len(s.ClassInstances))
	for _, ci := range s.ClassInstances {
		if !ci.Disappeared {
			instances[ci.ID] = ci
		}
	}
	credits := make(map[int64]int, len(s.Classes))
	for _, c := range s.Classes {
		credits[c.ID] = c.Credits
	}

	lastYear := make(map[int64]int)
	recent := make(map[int64]bool)
	for _, ci := range instances {
		if ci.Year > lastYear[ci.ClassID] {
			lastYear[ci.ClassID] = ci.Year
		}
	}

	type progress struct {
		span     model.YearSpan
		credits  int
		year     *int
		yearSeen int
	}
	students := make(map[int64]*progress)
	for _, e := range s.Enrollments {
		if e.Disappeared {
			continue
		}
		ci, ok := instances[e.ClassInstanceID]
		if !ok {
			continue
		}
		if ci.Year >= currentYear-RecentEnrollmentYears {
			recent[ci.ClassID] = true
		}

		p, ok := students[e.StudentID]
		if !ok {
			p = &progress{}
			students[e.StudentID] = p
		}
		p.span.Include(ci.Year)
		if e.Approved {
			p.credits += credits[ci.ClassID]
		}
		// The student year is the one reported in the latest year enrolled.
		if e.StudentYear != nil && (p.year == nil || ci.Year > p.yearSeen || (ci.Year == p.yearSeen && *e.StudentYear > *p.year)) {
			p.year = model.Ptr(*e.StudentYear)
			p.yearSeen = ci.Year
		}
	}

	for _, c := range s.Classes {
		last, ok := lastYear[c.ID]
		extinguished := !((ok && last == currentYear) || recent[c.ID])
		if extinguished != c.Extinguished {
			agg.ExtinguishedClasses[c.ID] = extinguished
		}
	}

	for _, st := range s.Students {
		want := store.StudentAggregate{}
		if p, ok := students[st.ID]; ok {
			want = store.StudentAggregate{Year: p.year, Span: p.span, Credits: p.credits}
		}
		if !equalPtr(st.Year, want.Year) || !st.Span.Equal(want.Span) || st.Credits != want.Credits {
			agg.Students[st.ID] = want
		}
	}

	instanceOfTurn := make(map[int64]int64, len(s.Turns))
	for _, t := range s.Turns {
		if !t.Disappeared {
			instanceOfTurn[t.ID] = t.ClassInstanceID
		}
	}
	teachers := make(map[int64]*model.YearSpan)
	for _, l := range s.TurnTeachers {
		ci, ok := instances[instanceOfTurn[l.OwnerID]]
		if !ok {
			continue
		}
		span, ok := teachers[l.TargetID]
		if !ok {
			span = &model.YearSpan{}
			teachers[l.TargetID] = span
		}
		span.Include(ci.Year)
	}
	for _, t := range s.Teachers {
		var want model.YearSpan
		if span, ok := teachers[t.ID]; ok {
			want = *span
		}
		if !t.Span.Equal(want) {
			agg.Teachers[t.ID] = want
		}
	}
	return agg
}

// Result counts the rows whose cached values were rewritten.
type Result struct {
	Classes  int
	Students int
	Teachers int
}

// Apply recomputes the aggregates of st for currentYear and saves the changed ones.
func Apply(ctx context.Context, st store.Store, currentYear int, logger *slog.Logger) (Result, error) {
	s, err := Load(ctx, st)
	if err != nil {
		return Result{}, err
	}
	agg := Compute(s, currentYear)
	res := Result{
		Classes:  len(agg.ExtinguishedClasses),
		Students: len(agg.Students),
		Teachers: len(agg.Teachers),
	}
	if err := st.SaveAggregates(ctx, agg); err != nil {
		return res, fmt.Errorf("failed to save aggregates: %w", err)
	}
	logger.Info("Updated cached aggregates",
		"classes", res.Classes, "students", res.Students, "teachers", res.Teachers)
	return res, nil
}

func equalPtr[V comparable](a, b *V) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
