package reconcile

import (
	"context"
	"time"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
	pkgsync "github.com/NovaUNL/Supernova-sub000/internal/sync"
	"github.com/NovaUNL/Supernova-sub000/internal/upstream"
)

// approvalGrade is the lowest passing grade.
const approvalGrade = 10

func newEnrollments(env *Env, students *kind[upstream.Student, *model.Student]) *kind[upstream.Enrollment, *model.Enrollment] {
	return &kind[upstream.Enrollment, *model.Enrollment]{
		env:   env,
		kind:  model.KindEnrollment,
		repo:  env.Store.Enrollments(),
		fetch: env.Source.Enrollment,
		raw:   (*upstream.Enrollment).JSON,
		fresh: func() *model.Enrollment { return &model.Enrollment{} },
		apply: func(ctx context.Context, e *model.Enrollment, p *upstream.Enrollment, parent Parent, ch *changes) error {
			log := env.logger().With("kind", model.KindEnrollment, "external_id", p.ID)
			instanceID, err := owner(ctx, ch, log, model.KindEnrollment, p.ID, model.KindClassInstance,
				"class_instance_id", p.ClassInstanceID, parent, env.Store.ClassInstances())
			if err != nil {
				return err
			}
			studentID, err := enrolledStudent(ctx, students, p, ch)
			if err != nil {
				return err
			}

			dates, err := gradeDates(p)
			if err != nil {
				return err
			}
			grades := model.Grades{
				Normal:      p.NormalGrade,
				Recourse:    p.RecourseGrade,
				Special:     p.SpecialGrade,
				Improvement: p.ImprovementGrade,
			}
			grade := grades.Best()

			moveTo(ch, log, "class_instance", &e.ClassInstanceID, instanceID)
			set(ch, "student", &e.StudentID, studentID)
			setPtr(ch, "student_year", &e.StudentYear, p.StudentYear)
			setPtr(ch, "attempt", &e.Attempt, p.Attempt)
			set(ch, "statutes", &e.Statutes, p.Statutes)
			setPtr(ch, "attendance", &e.Attendance, p.Attendance)
			setTime(ch, "attendance_date", &e.Dates.Attendance, dates.Attendance)
			setPtr(ch, "normal_grade", &e.Grades.Normal, grades.Normal)
			setTime(ch, "normal_grade_date", &e.Dates.Normal, dates.Normal)
			setPtr(ch, "recourse_grade", &e.Grades.Recourse, grades.Recourse)
			setTime(ch, "recourse_grade_date", &e.Dates.Recourse, dates.Recourse)
			setPtr(ch, "special_grade", &e.Grades.Special, grades.Special)
			setTime(ch, "special_grade_date", &e.Dates.Special, dates.Special)
			setPtr(ch, "improvement_grade", &e.Grades.Improvement, grades.Improvement)
			setTime(ch, "improvement_grade_date", &e.Dates.Improvement, dates.Improvement)
			set(ch, "grade", &e.Grade, grade)
			set(ch, "approved", &e.Approved, grade >= approvalGrade)
			return nil
		},
	}
}

func gradeDates(p *upstream.Enrollment) (model.GradeDates, error) {
	var (
		d   model.GradeDates
		err error
	)
	for _, f := range []struct {
		dst **time.Time
		raw *string
	}{
		{&d.Attendance, p.AttendanceDate},
		{&d.Normal, p.NormalDate},
		{&d.Recourse, p.RecourseDate},
		{&d.Special, p.SpecialDate},
		{&d.Improvement, p.ImprovementDate},
	} {
		if *f.dst, err = parseTimestamp(f.raw); err != nil {
			return d, pkgsync.Skip("enrollment %d: %v", p.ID, err)
		}
	}
	return d, nil
}

// enrolledStudent resolves the student of an enrollment. A student missing locally is
// fetched once; a network failure stays retryable, anything else skips the enrollment.
func enrolledStudent(
	ctx context.Context, students *kind[upstream.Student, *model.Student], p *upstream.Enrollment, ch *changes,
) (int64, error) {
	missing := &pkgsync.MissingParentError{
		Kind:             model.KindEnrollment,
		ExternalID:       p.ID,
		ParentKind:       model.KindStudent,
		ParentExternalID: p.Student,
	}

	st, found, err := students.repo.ByExternalID(ctx, p.Student)
	if err != nil {
		return 0, err
	}
	if found {
		return st.ID, nil
	}
	if ch.dryRun() {
		return 0, missing
	}

	st, err = students.Sync(ctx, p.Student, Parent{}, pkgsync.PolicyNone)
	if err != nil {
		if upstream.IsNetwork(err) {
			return 0, err
		}
		missing.Err = err
		return 0, missing
	}
	return st.ID, nil
}
