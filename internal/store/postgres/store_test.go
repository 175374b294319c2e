//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NovaUNL/Supernova-sub000/database"
	"github.com/NovaUNL/Supernova-sub000/internal/model"
	"github.com/NovaUNL/Supernova-sub000/internal/store"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	pool, _ := database.SetupTestDB(t)
	return New(pool)
}

func TestRepository_CreateAndLookup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := setupStore(t)
	now := time.Now().UTC().Truncate(time.Microsecond)

	dept, err := s.Departments().Create(ctx, &model.Department{
		Importable: model.NewExternal(10, json.RawMessage(`{"id":10,"name":"DI"}`), now),
		Name:       "DI",
	})
	require.NoError(t, err)
	require.NotZero(t, dept.ID)

	class, err := s.Classes().Create(ctx, &model.Class{
		Importable:   model.NewExternal(100, nil, now),
		Name:         "Algebra",
		Credits:      6,
		DepartmentID: &dept.ID,
	})
	require.NoError(t, err)

	got, found, err := s.Classes().ByExternalID(ctx, 100)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, class.ID, got.ID)
	assert.Equal(t, "Algebra", got.Name)
	assert.Equal(t, dept.ID, *got.DepartmentID)
	assert.False(t, got.Frozen)

	_, found, err = s.Classes().ByExternalID(ctx, 999)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = s.Classes().Create(ctx, &model.Class{Importable: model.NewExternal(100, nil, now), Name: "Dup"})
	require.ErrorIs(t, err, store.ErrConflict)

	known, active, err := s.Classes().Index(ctx, store.ChildrenOf(dept.ID))
	require.NoError(t, err)
	assert.True(t, known.Has(100))
	assert.True(t, active.Has(100))
}

func TestRepository_UpdateKeepsFrozen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := setupStore(t)
	now := time.Now().UTC()

	st, err := s.Students().Create(ctx, &model.Student{Importable: model.NewExternal(7, nil, now), Name: "Ana"})
	require.NoError(t, err)
	_, err = s.pool.Exec(ctx, "UPDATE student SET frozen = TRUE WHERE id = $1", st.ID)
	require.NoError(t, err)

	st.Name = "Ana Maria"
	st.Frozen = false
	require.NoError(t, s.Students().Update(ctx, st))

	got, _, err := s.Students().ByID(ctx, st.ID)
	require.NoError(t, err)
	assert.True(t, got.Frozen)
	assert.Equal(t, "Ana Maria", got.Name)
}

func TestStore_PropagateAndActive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := setupStore(t)
	now := time.Now().UTC()

	class, err := s.Classes().Create(ctx, &model.Class{Importable: model.NewExternal(1, nil, now), Name: "C"})
	require.NoError(t, err)
	ci, err := s.ClassInstances().Create(ctx, &model.ClassInstance{
		Importable: model.NewExternal(2, nil, now), ClassID: class.ID, Year: 2024, Period: 1,
	})
	require.NoError(t, err)
	_, err = s.Turns().Create(ctx, &model.Turn{
		Importable: model.NewExternal(3, nil, now), ClassInstanceID: ci.ID, Type: "T", Number: 1,
	})
	require.NoError(t, err)

	active, err := s.ActiveClassInstances(ctx, 2024, 1)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, ci.ID, active[0].ID)

	n, err := s.Classes().MarkDisappeared(ctx, []int64{1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	for _, edge := range model.Hierarchy {
		_, err := s.PropagateDisappearance(ctx, edge)
		require.NoError(t, err)
	}
	turn, _, err := s.Turns().ByExternalID(ctx, 3)
	require.NoError(t, err)
	assert.True(t, turn.Disappeared)

	active, err = s.ActiveClassInstances(ctx, 2024, 1)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestClassInstanceChildren(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := setupStore(t)
	now := time.Now().UTC().Truncate(time.Microsecond)

	class, err := s.Classes().Create(ctx, &model.Class{Importable: model.NewExternal(1, nil, now), Name: "C"})
	require.NoError(t, err)
	ci, err := s.ClassInstances().Create(ctx, &model.ClassInstance{
		Importable: model.NewExternal(2, nil, now), ClassID: class.ID, Year: 2024, Period: 1,
	})
	require.NoError(t, err)
	st, err := s.Students().Create(ctx, &model.Student{Importable: model.NewExternal(3, nil, now), Name: "Ana"})
	require.NoError(t, err)
	teacher, err := s.Teachers().Create(ctx, &model.Teacher{Importable: model.NewExternal(4, nil, now), Name: "Rui"})
	require.NoError(t, err)

	graded := time.Date(2024, 7, 15, 9, 30, 0, 0, time.UTC)
	_, err = s.Enrollments().Create(ctx, &model.Enrollment{
		Importable:      model.NewExternal(5, nil, now),
		ClassInstanceID: ci.ID,
		StudentID:       st.ID,
		Grades:          model.Grades{Normal: model.Ptr(14)},
		Dates:           model.GradeDates{Normal: &graded},
		Grade:           14,
		Approved:        true,
	})
	require.NoError(t, err)
	e, _, err := s.Enrollments().ByExternalID(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, e.Dates.Normal)
	assert.True(t, e.Dates.Normal.Equal(graded))
	assert.Nil(t, e.Dates.Attendance)

	day := time.Date(2024, 10, 15, 0, 0, 0, 0, time.UTC)
	_, err = s.ClassEvents().Create(ctx, &model.ClassEvent{
		Importable:      model.NewExternal(6, nil, now),
		ClassInstanceID: ci.ID,
		Date:            day,
		Time:            model.Ptr(840),
		Duration:        model.Ptr(120),
		Type:            "test",
		Season:          "normal",
		Info:            model.Ptr("Midterm."),
	})
	require.NoError(t, err)
	ev, found, err := s.ClassEvents().ByExternalID(ctx, 6)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, ev.Date.Equal(day))
	assert.Equal(t, model.Ptr(840), ev.Time)
	assert.Equal(t, model.Ptr("Midterm."), ev.Info)

	uploaded := now.Add(-time.Hour)
	_, err = s.ClassFiles().Create(ctx, &model.ClassFile{
		Importable:      model.NewExternal(7, nil, now),
		ClassInstanceID: ci.ID,
		Hash:            "aa",
		Mime:            "application/pdf",
		Size:            1024,
		Category:        "slides",
		Name:            "Week 1.pdf",
		UpstreamName:    "Slides 1.pdf",
		Uploaded:        uploaded,
		UploaderID:      &teacher.ID,
	})
	require.NoError(t, err)
	file, found, err := s.ClassFiles().ByExternalID(ctx, 7)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, file.Renamed())
	assert.True(t, file.Uploaded.Equal(uploaded))
	assert.Equal(t, &teacher.ID, file.UploaderID)

	_, err = s.ClassFiles().Create(ctx, &model.ClassFile{
		Importable: model.NewExternal(8, nil, now), ClassInstanceID: ci.ID, Hash: "aa", Uploaded: uploaded,
	})
	require.ErrorIs(t, err, store.ErrConflict, "a hash is stored once per class instance")

	_, err = s.ClassInstances().MarkDisappeared(ctx, []int64{2})
	require.NoError(t, err)
	for _, edge := range model.Hierarchy {
		_, err := s.PropagateDisappearance(ctx, edge)
		require.NoError(t, err)
	}
	ev, _, err = s.ClassEvents().ByExternalID(ctx, 6)
	require.NoError(t, err)
	assert.True(t, ev.Disappeared)
	file, _, err = s.ClassFiles().ByExternalID(ctx, 7)
	require.NoError(t, err)
	assert.True(t, file.Disappeared)
}

func TestLinks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := setupStore(t)
	now := time.Now().UTC()

	teacher, err := s.Teachers().Create(ctx, &model.Teacher{Importable: model.NewExternal(5, nil, now), Name: "T"})
	require.NoError(t, err)
	dept, err := s.Departments().Create(ctx, &model.Department{Importable: model.NewExternal(6, nil, now), Name: "D"})
	require.NoError(t, err)

	l := s.Links(model.RelTeacherDepartments)
	require.NoError(t, l.Add(ctx, teacher.ID, []int64{dept.ID}))
	require.NoError(t, l.Add(ctx, teacher.ID, []int64{dept.ID}))

	targets, err := l.Targets(ctx, teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{6: dept.ID}, targets)

	require.NoError(t, l.Remove(ctx, teacher.ID, []int64{dept.ID}))
	all, err := l.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSaveAggregates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := setupStore(t)
	now := time.Now().UTC()

	st, err := s.Students().Create(ctx, &model.Student{Importable: model.NewExternal(9, nil, now), Name: "S"})
	require.NoError(t, err)

	require.NoError(t, s.SaveAggregates(ctx, store.Aggregates{
		Students: map[int64]store.StudentAggregate{
			st.ID: {Year: model.Ptr(2), Span: model.YearSpan{First: model.Ptr(2022), Last: model.Ptr(2024)}, Credits: 60},
		},
	}))

	got, _, err := s.Students().ByID(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, *got.Year)
	assert.Equal(t, 60, got.Credits)
	assert.Equal(t, 2022, *got.Span.First)
}
