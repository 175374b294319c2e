package postgres

import "github.com/NovaUNL/Supernova-sub000/internal/model"

var departments = mapping[*model.Department]{
	table:   "department",
	columns: []string{"name"},
	fresh:   func() *model.Department { return &model.Department{} },
	values:  func(d *model.Department) []any { return []any{d.Name} },
	dests:   func(d *model.Department) []any { return []any{&d.Name} },
}

var buildings = mapping[*model.Building]{
	table:   "building",
	columns: []string{"name", "abbreviation"},
	fresh:   func() *model.Building { return &model.Building{} },
	values:  func(b *model.Building) []any { return []any{b.Name, b.Abbreviation} },
	dests:   func(b *model.Building) []any { return []any{&b.Name, &b.Abbreviation} },
}

var rooms = mapping[*model.Room]{
	table:   "room",
	parent:  "building_id",
	columns: []string{"name", "type", "building_id", "floor", "door_number"},
	fresh:   func() *model.Room { return &model.Room{} },
	values: func(r *model.Room) []any {
		return []any{r.Name, r.Type, r.BuildingID, r.Floor, r.DoorNumber}
	},
	dests: func(r *model.Room) []any {
		return []any{&r.Name, &r.Type, &r.BuildingID, &r.Floor, &r.DoorNumber}
	},
}

var courses = mapping[*model.Course]{
	table:   "course",
	columns: []string{"name", "abbreviation", "degree"},
	fresh:   func() *model.Course { return &model.Course{} },
	values:  func(c *model.Course) []any { return []any{c.Name, c.Abbreviation, c.Degree} },
	dests:   func(c *model.Course) []any { return []any{&c.Name, &c.Abbreviation, &c.Degree} },
}

var classes = mapping[*model.Class]{
	table:   "class",
	parent:  "department_id",
	columns: []string{"name", "abbreviation", "credits", "department_id"},
	cached:  []string{"extinguished"},
	fresh:   func() *model.Class { return &model.Class{} },
	values: func(c *model.Class) []any {
		return []any{c.Name, c.Abbreviation, c.Credits, c.DepartmentID}
	},
	dests: func(c *model.Class) []any {
		return []any{&c.Name, &c.Abbreviation, &c.Credits, &c.DepartmentID, &c.Extinguished}
	},
}

var classInstances = mapping[*model.ClassInstance]{
	table:   "class_instance",
	parent:  "class_id",
	columns: []string{"class_id", "department_id", "year", "period", "information"},
	fresh:   func() *model.ClassInstance { return &model.ClassInstance{} },
	values: func(ci *model.ClassInstance) []any {
		return []any{ci.ClassID, ci.DepartmentID, ci.Year, ci.Period, nullJSON(ci.Information)}
	},
	dests: func(ci *model.ClassInstance) []any {
		return []any{&ci.ClassID, &ci.DepartmentID, &ci.Year, &ci.Period, &ci.Information}
	},
}

var turns = mapping[*model.Turn]{
	table:   "turn",
	parent:  "class_instance_id",
	columns: []string{"class_instance_id", "type", "number", "restrictions", "state"},
	fresh:   func() *model.Turn { return &model.Turn{} },
	values: func(t *model.Turn) []any {
		return []any{t.ClassInstanceID, t.Type, t.Number, t.Restrictions, t.State}
	},
	dests: func(t *model.Turn) []any {
		return []any{&t.ClassInstanceID, &t.Type, &t.Number, &t.Restrictions, &t.State}
	},
}

var turnInstances = mapping[*model.TurnInstance]{
	table:   "turn_instance",
	parent:  "turn_id",
	columns: []string{"turn_id", "weekday", "start", "duration", "room_id"},
	fresh:   func() *model.TurnInstance { return &model.TurnInstance{} },
	values: func(ti *model.TurnInstance) []any {
		return []any{ti.TurnID, ti.Weekday, ti.Start, ti.Duration, ti.RoomID}
	},
	dests: func(ti *model.TurnInstance) []any {
		return []any{&ti.TurnID, &ti.Weekday, &ti.Start, &ti.Duration, &ti.RoomID}
	},
}

var enrollments = mapping[*model.Enrollment]{
	table:  "enrollment",
	parent: "class_instance_id",
	columns: []string{
		"class_instance_id", "student_id", "student_year", "attempt", "statutes", "attendance", "attendance_date",
		"normal_grade", "recourse_grade", "special_grade", "improvement_grade",
		"normal_grade_date", "recourse_grade_date", "special_grade_date", "improvement_grade_date",
		"grade", "approved",
	},
	fresh: func() *model.Enrollment { return &model.Enrollment{} },
	values: func(e *model.Enrollment) []any {
		return []any{
			e.ClassInstanceID, e.StudentID, e.StudentYear, e.Attempt, e.Statutes, e.Attendance, e.Dates.Attendance,
			e.Grades.Normal, e.Grades.Recourse, e.Grades.Special, e.Grades.Improvement,
			e.Dates.Normal, e.Dates.Recourse, e.Dates.Special, e.Dates.Improvement,
			e.Grade, e.Approved,
		}
	},
	dests: func(e *model.Enrollment) []any {
		return []any{
			&e.ClassInstanceID, &e.StudentID, &e.StudentYear, &e.Attempt, &e.Statutes, &e.Attendance, &e.Dates.Attendance,
			&e.Grades.Normal, &e.Grades.Recourse, &e.Grades.Special, &e.Grades.Improvement,
			&e.Dates.Normal, &e.Dates.Recourse, &e.Dates.Special, &e.Dates.Improvement,
			&e.Grade, &e.Approved,
		}
	},
}

var classEvents = mapping[*model.ClassEvent]{
	table:   "class_event",
	parent:  "class_instance_id",
	columns: []string{"class_instance_id", "date", "start", "duration", "type", "season", "info"},
	fresh:   func() *model.ClassEvent { return &model.ClassEvent{} },
	values: func(e *model.ClassEvent) []any {
		return []any{e.ClassInstanceID, e.Date, e.Time, e.Duration, e.Type, e.Season, e.Info}
	},
	dests: func(e *model.ClassEvent) []any {
		return []any{&e.ClassInstanceID, &e.Date, &e.Time, &e.Duration, &e.Type, &e.Season, &e.Info}
	},
}

var classFiles = mapping[*model.ClassFile]{
	table:  "class_file",
	parent: "class_instance_id",
	columns: []string{
		"class_instance_id", "hash", "mime", "size", "category", "name", "upstream_name", "uploaded", "uploader_id",
	},
	fresh: func() *model.ClassFile { return &model.ClassFile{} },
	values: func(f *model.ClassFile) []any {
		return []any{
			f.ClassInstanceID, f.Hash, f.Mime, f.Size, f.Category, f.Name, f.UpstreamName, f.Uploaded, f.UploaderID,
		}
	},
	dests: func(f *model.ClassFile) []any {
		return []any{
			&f.ClassInstanceID, &f.Hash, &f.Mime, &f.Size, &f.Category, &f.Name, &f.UpstreamName, &f.Uploaded, &f.UploaderID,
		}
	},
}

var students = mapping[*model.Student]{
	table:   "student",
	columns: []string{"name", "abbreviation", "course_id"},
	cached:  []string{"year", "first_year", "last_year", "credits"},
	fresh:   func() *model.Student { return &model.Student{} },
	values: func(s *model.Student) []any {
		return []any{s.Name, s.Abbreviation, s.CourseID}
	},
	dests: func(s *model.Student) []any {
		return []any{&s.Name, &s.Abbreviation, &s.CourseID, &s.Year, &s.Span.First, &s.Span.Last, &s.Credits}
	},
}

var teachers = mapping[*model.Teacher]{
	table:   "teacher",
	columns: []string{"name"},
	cached:  []string{"first_year", "last_year"},
	fresh:   func() *model.Teacher { return &model.Teacher{} },
	values:  func(t *model.Teacher) []any { return []any{t.Name} },
	dests:   func(t *model.Teacher) []any { return []any{&t.Name, &t.Span.First, &t.Span.Last} },
}

// linkTables maps each relation to its join table, owner column, target column and target table.
var linkTables = map[model.Relation][4]string{
	model.RelTurnStudents:       {"turn_student", "turn_id", "student_id", "student"},
	model.RelTurnTeachers:       {"turn_teacher", "turn_id", "teacher_id", "teacher"},
	model.RelTeacherDepartments: {"teacher_department", "teacher_id", "department_id", "department"},
}

// edgeTables maps an ownership edge to the child table, its foreign key and the parent table.
var edgeTables = map[model.Ownership][3]string{
	{Parent: model.KindClass, Child: model.KindClassInstance}:      {"class_instance", "class_id", "class"},
	{Parent: model.KindClassInstance, Child: model.KindTurn}:       {"turn", "class_instance_id", "class_instance"},
	{Parent: model.KindClassInstance, Child: model.KindEnrollment}: {"enrollment", "class_instance_id", "class_instance"},
	{Parent: model.KindClassInstance, Child: model.KindClassEvent}: {"class_event", "class_instance_id", "class_instance"},
	{Parent: model.KindClassInstance, Child: model.KindClassFile}:  {"class_file", "class_instance_id", "class_instance"},
	{Parent: model.KindTurn, Child: model.KindTurnInstance}:        {"turn_instance", "turn_id", "turn"},
}
