package reconcile

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
	"github.com/NovaUNL/Supernova-sub000/internal/store"
	pkgsync "github.com/NovaUNL/Supernova-sub000/internal/sync"
	"github.com/NovaUNL/Supernova-sub000/internal/upstream"
	"github.com/NovaUNL/Supernova-sub000/internal/upstream/upstreamtest"
)

// serveInstance serves class instance 100 of class 1 with the given embedded records.
func serveInstance(f *fixture, turns string, events, files []string) {
	f.upstream.Serve("/class_inst/100", upstreamtest.ClassInstance(100, 1, upstreamtest.Fields{
		"turns":  turns,
		"events": "[" + strings.Join(events, ",") + "]",
		"files":  "[" + strings.Join(files, ",") + "]",
	}))
}

func (f *fixture) resync(t *testing.T) *model.ClassInstance {
	t.Helper()
	f.env.Tally = pkgsync.NewTally()
	ci, err := f.set.ClassInstances.Sync(f.ctx(), 100, Parent{}, pkgsync.PolicyFull)
	require.NoError(t, err)
	return ci
}

func TestClassEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	seed(t, f.store.Classes(), &model.Class{Importable: external(1), Name: "C1"})

	serveInstance(f, "[]", []string{
		upstreamtest.Event(1, 100, "2024-10-15", upstreamtest.Fields{
			"from_time": `"14:00"`,
			"to_time":   `"16:00"`,
			"info":      `"Midterm"`,
			"note":      `"Room 127"`,
		}),
		upstreamtest.Event(2, 100, "2024-11-20", upstreamtest.Fields{"to_time": `"10:00"`}),
	}, nil)
	ci := f.resync(t)

	e := mustFind(t, f.store.ClassEvents(), 1)
	assert.Equal(t, ci.ID, e.ClassInstanceID)
	assert.Equal(t, time.Date(2024, 10, 15, 0, 0, 0, 0, time.UTC), e.Date)
	assert.Equal(t, model.Ptr(840), e.Time)
	assert.Equal(t, model.Ptr(120), e.Duration)
	assert.Equal(t, "test", e.Type)
	assert.Equal(t, "normal", e.Season)
	assert.Equal(t, model.Ptr("Midterm. Room 127"), e.Info)
	assert.Equal(t, pkgsync.Counts{Created: 1, Skipped: 1}, f.counts(model.KindClassEvent))

	_, found, err := f.store.ClassEvents().ByExternalID(f.ctx(), 2)
	require.NoError(t, err)
	assert.False(t, found, "an end without a start is not stored")

	t.Log("Upstream moves the event")
	serveInstance(f, "[]", []string{
		upstreamtest.Event(1, 100, "2024-10-15", upstreamtest.Fields{
			"from_time": `"15:00"`,
			"to_time":   `"16:00"`,
			"info":      `"Midterm"`,
		}),
	}, nil)
	f.resync(t)

	e = mustFind(t, f.store.ClassEvents(), 1)
	assert.Equal(t, model.Ptr(900), e.Time)
	assert.Equal(t, model.Ptr(60), e.Duration)
	assert.Equal(t, model.Ptr("Midterm."), e.Info)
	assert.Equal(t, pkgsync.Counts{Updated: 1}, f.counts(model.KindClassEvent))

	t.Log("Upstream drops the event")
	serveInstance(f, "[]", nil, nil)
	f.resync(t)

	assert.True(t, mustFind(t, f.store.ClassEvents(), 1).Disappeared)
	assert.Equal(t, pkgsync.Counts{Disappeared: 1}, f.counts(model.KindClassEvent))
}

func TestClassFiles(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	seed(t, f.store.Classes(), &model.Class{Importable: external(1), Name: "C1"})
	maria := seed(t, f.store.Teachers(), &model.Teacher{Importable: external(7), Name: "Maria João Silva"})
	pedro := seed(t, f.store.Teachers(), &model.Teacher{Importable: external(8), Name: "Pedro Santos"})
	f.upstream.Serve("/turn/1000",
		`{"id":1000,"class_instance_id":100,"type":"T","number":1,"instances":[],"students":[],"teachers":[7,8]}`)

	files := func(ci *model.ClassInstance) map[string]*model.ClassFile {
		t.Helper()
		rows, err := f.store.ClassFiles().List(f.ctx(), store.ChildrenOf(ci.ID))
		require.NoError(t, err)
		byHash := make(map[string]*model.ClassFile, len(rows))
		for _, row := range rows {
			byHash[row.Hash] = row
		}
		return byHash
	}

	serveInstance(f, "[1000]", nil, []string{
		upstreamtest.File(1, "aa", "Slides 1.pdf", "Pedro Santo", nil),
		upstreamtest.File(2, "", "Pending.pdf", "Pedro Santos", upstreamtest.Fields{"hash": "null"}),
	})
	ci := f.resync(t)

	stored := files(ci)
	require.Len(t, stored, 1, "files without a hash are not downloaded yet")
	aa := stored["aa"]
	require.NotNil(t, aa)
	assert.Equal(t, "Slides 1.pdf", aa.Name)
	assert.False(t, aa.Renamed())
	assert.Equal(t, "application/pdf", aa.Mime)
	assert.Equal(t, int64(1024), aa.Size)
	assert.Equal(t, "slides", aa.Category)
	assert.True(t, aa.Uploaded.Equal(time.Date(2024, 9, 20, 10, 0, 0, 0, time.Local)))
	assert.Equal(t, &pedro.ID, aa.UploaderID)
	assert.Equal(t, pkgsync.Counts{Created: 1}, f.counts(model.KindClassFile))

	t.Log("The file is renamed locally, then upstream renames it and lists it under another id")
	aa.Name = "Week 1.pdf"
	require.NoError(t, f.store.ClassFiles().Update(f.ctx(), aa))
	f.now = f.now.Add(time.Hour)
	serveInstance(f, "[1000]", nil, []string{
		upstreamtest.File(3, "aa", "Slides 01.pdf", "Maria Silva", nil),
		upstreamtest.File(4, "bb", "Exam.pdf", "Maria Silva", upstreamtest.Fields{"size": "2048"}),
	})
	f.resync(t)

	stored = files(ci)
	require.Len(t, stored, 2)
	aa = stored["aa"]
	assert.Equal(t, int64(1), aa.ExtID())
	assert.Equal(t, "Week 1.pdf", aa.Name)
	assert.Equal(t, "Slides 01.pdf", aa.UpstreamName)
	assert.Equal(t, &maria.ID, aa.UploaderID)
	assert.Equal(t, f.now, *aa.ExternalUpdate)
	assert.Equal(t, int64(2048), stored["bb"].Size)
	assert.Equal(t, pkgsync.Counts{Created: 1, Updated: 1}, f.counts(model.KindClassFile))

	t.Log("Upstream drops the first file")
	serveInstance(f, "[1000]", nil, []string{
		upstreamtest.File(4, "bb", "Exam.pdf", "Maria Silva", upstreamtest.Fields{"size": "2048"}),
	})
	f.resync(t)

	stored = files(ci)
	assert.True(t, stored["aa"].Disappeared)
	assert.False(t, stored["bb"].Disappeared)
	assert.Equal(t, pkgsync.Counts{Unchanged: 1, Disappeared: 1}, f.counts(model.KindClassFile))
}

func TestClassFileUploaderWithoutTurns(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	seed(t, f.store.Classes(), &model.Class{Importable: external(1), Name: "C1"})
	maria := seed(t, f.store.Teachers(), &model.Teacher{Importable: external(7), Name: "Maria João Silva"})
	seed(t, f.store.Teachers(), &model.Teacher{Importable: external(8), Name: "Maria Santos"})

	serveInstance(f, "[]", nil, []string{
		upstreamtest.File(1, "aa", "a.pdf", "Maria Silva", nil),
		upstreamtest.File(2, "bb", "b.pdf", "Maria", nil),
	})
	f.resync(t)

	assert.Equal(t, &maria.ID, mustFind(t, f.store.ClassFiles(), 1).UploaderID)
	assert.Nil(t, mustFind(t, f.store.ClassFiles(), 2).UploaderID, "ambiguous names resolve to nobody")
}

func TestClosestName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		names  map[int64]string
		target string
		want   int64
		found  bool
	}{
		{
			name:   "abbreviated name",
			names:  map[int64]string{1: "Pedro Santos", 2: "Maria João Silva"},
			target: "Maria Silva",
			want:   2,
			found:  true,
		},
		{
			name:   "case is ignored",
			names:  map[int64]string{1: "PEDRO SANTOS", 2: "Ana Lopes"},
			target: "pedro santos",
			want:   1,
			found:  true,
		},
		{
			name:   "ties go to the lowest id",
			names:  map[int64]string{5: "Rui", 3: "Rui"},
			target: "Rui",
			want:   3,
			found:  true,
		},
		{
			name:   "nothing in common",
			names:  map[int64]string{1: "abc"},
			target: "xyz",
		},
		{
			name:   "no candidates",
			target: "Rui",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, found := closestName(tt.names, tt.target)
			assert.Equal(t, tt.found, found)
			if tt.found {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestEnrollmentDates(t *testing.T) {
	t.Parallel()

	setup := func(t *testing.T) (*fixture, *model.ClassInstance) {
		f := newFixture(t)
		class := seed(t, f.store.Classes(), &model.Class{Importable: external(1)})
		ci := seed(t, f.store.ClassInstances(), &model.ClassInstance{Importable: external(100), ClassID: class.ID})
		student := seed(t, f.store.Students(), &model.Student{Importable: external(77), Name: "Rui"})
		july := time.Date(2024, 7, 1, 0, 0, 0, 0, time.Local)
		seed(t, f.store.Enrollments(), &model.Enrollment{
			Importable:      external(5000),
			ClassInstanceID: ci.ID,
			StudentID:       student.ID,
			Grades:          model.Grades{Normal: model.Ptr(14)},
			Dates:           model.GradeDates{Normal: &july},
			Grade:           14,
			Approved:        true,
		})
		return f, ci
	}

	t.Run("a changed date is overwritten", func(t *testing.T) {
		t.Parallel()
		f, ci := setup(t)
		f.upstream.Serve("/enrollment/5000", upstreamtest.Enrollment(5000, 77, 100, upstreamtest.Fields{
			"normal_grade":      "14",
			"normal_grade_date": `"2024-07-15T09:30:00"`,
		}))

		_, err := f.set.Enrollments.Sync(f.ctx(), 5000, ParentOf(ci), pkgsync.PolicyNone)
		require.NoError(t, err)

		e := mustFind(t, f.store.Enrollments(), 5000)
		require.NotNil(t, e.Dates.Normal)
		assert.True(t, e.Dates.Normal.Equal(time.Date(2024, 7, 15, 9, 30, 0, 0, time.Local)))
		assert.Equal(t, pkgsync.Counts{Updated: 1}, f.counts(model.KindEnrollment))
	})

	t.Run("an unreadable date is a skip", func(t *testing.T) {
		t.Parallel()
		f, ci := setup(t)
		f.upstream.Serve("/enrollment/5000", upstreamtest.Enrollment(5000, 77, 100, upstreamtest.Fields{
			"recourse_grade_date": `"yesterday"`,
		}))

		_, err := f.set.Enrollments.Sync(f.ctx(), 5000, ParentOf(ci), pkgsync.PolicyNone)
		require.Error(t, err)
		assert.True(t, pkgsync.IsSkip(err))
		assert.Equal(t, 14, mustFind(t, f.store.Enrollments(), 5000).Grade)
	})

	t.Run("a record missing keys is rejected", func(t *testing.T) {
		t.Parallel()
		f, ci := setup(t)
		f.upstream.Serve("/enrollment/5001", `{"id":5001,"student":77,"class_instance_id":100}`)

		_, err := f.set.Enrollments.Sync(f.ctx(), 5001, ParentOf(ci), pkgsync.PolicyNone)
		require.ErrorIs(t, err, upstream.ErrInvalidPayload)
		assert.False(t, upstream.IsNetwork(err))
		_, found, err := f.store.Enrollments().ByExternalID(f.ctx(), 5001)
		require.NoError(t, err)
		assert.False(t, found)
	})
}
