package reconcile

import (
	"context"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
	pkgsync "github.com/NovaUNL/Supernova-sub000/internal/sync"
	"github.com/NovaUNL/Supernova-sub000/internal/upstream"
)

func newStudents(env *Env) *kind[upstream.Student, *model.Student] {
	return &kind[upstream.Student, *model.Student]{
		env:   env,
		kind:  model.KindStudent,
		repo:  env.Store.Students(),
		fetch: env.Source.Student,
		raw:   (*upstream.Student).JSON,
		fresh: func() *model.Student { return &model.Student{} },
		apply: func(ctx context.Context, s *model.Student, p *upstream.Student, _ Parent, ch *changes) error {
			course, found, err := lookup(ctx, env.Store.Courses(), p.Course)
			if err != nil {
				return err
			}
			if !found {
				env.logger().Debug("Unknown course, leaving it unset",
					"kind", model.KindStudent, "external_id", p.ID, "course", *p.Course)
			}
			set(ch, "name", &s.Name, p.Name)
			set(ch, "abbreviation", &s.Abbreviation, p.Abbreviation)
			set(ch, "iid", &s.IID, p.IID)
			setPtr(ch, "course", &s.CourseID, course)
			return nil
		},
	}
}

func newTeachers(env *Env) *kind[upstream.Teacher, *model.Teacher] {
	return &kind[upstream.Teacher, *model.Teacher]{
		env:  env,
		kind: model.KindTeacher,
		repo: env.Store.Teachers(),
		fetch: collectionOnly[upstream.Teacher](model.KindTeacher),
		raw:   (*upstream.Teacher).JSON,
		fresh: func() *model.Teacher { return &model.Teacher{} },
		apply: func(ctx context.Context, t *model.Teacher, p *upstream.Teacher, _ Parent, ch *changes) error {
			known, err := knownDepartments(ctx, env, p.Departments)
			if err != nil {
				return err
			}
			if known == 0 {
				return pkgsync.Skip("teacher %d belongs to no known department", p.ID)
			}
			set(ch, "name", &t.Name, p.Name)
			return nil
		},
		after: func(ctx context.Context, t *model.Teacher, p *upstream.Teacher) error {
			log := env.logger().With("kind", model.KindTeacher, "external_id", p.ID)
			return syncLinks(ctx, env, model.RelTeacherDepartments, t.ID, p.Departments, env.Store.Departments(), log)
		},
	}
}

func knownDepartments(ctx context.Context, env *Env, ids []int64) (int, error) {
	n := 0
	for _, id := range ids {
		_, found, err := env.Store.Departments().ByExternalID(ctx, id)
		if err != nil {
			return 0, err
		}
		if found {
			n++
		}
	}
	return n, nil
}
