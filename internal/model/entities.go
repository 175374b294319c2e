package model

import (
	"encoding/json"
	"slices"
	"time"
)

// Department is the sync root. It owns classes.
type Department struct {
	Importable
	Name string
}

// Kind implements Entity.
func (*Department) Kind() Kind { return KindDepartment }

// Clone returns a deep copy.
func (d *Department) Clone() *Department {
	c := *d
	c.Importable = d.Importable.clone()
	return &c
}

// Building holds rooms.
type Building struct {
	Importable
	Name         string
	Abbreviation string
}

// Kind implements Entity.
func (*Building) Kind() Kind { return KindBuilding }

// Clone returns a deep copy.
func (b *Building) Clone() *Building {
	c := *b
	c.Importable = b.Importable.clone()
	return &c
}

// Room is a place inside a building where turns take place.
type Room struct {
	Importable
	Name       string
	Type       int
	BuildingID int64
	Floor      *int
	DoorNumber *int
}

// Kind implements Entity.
func (*Room) Kind() Kind { return KindRoom }

// Clone returns a deep copy.
func (r *Room) Clone() *Room {
	c := *r
	c.Importable = r.Importable.clone()
	c.Floor = clonePtr(r.Floor)
	c.DoorNumber = clonePtr(r.DoorNumber)
	return &c
}

// Course is a degree programme students enroll into.
type Course struct {
	Importable
	Name         string
	Abbreviation string
	Degree       string
}

// Kind implements Entity.
func (*Course) Kind() Kind { return KindCourse }

// Clone returns a deep copy.
func (c *Course) Clone() *Course {
	n := *c
	n.Importable = c.Importable.clone()
	return &n
}

// Class is a curricular unit. Its department is an attribute, not part of its identity.
type Class struct {
	Importable
	Name         string
	Abbreviation string
	Credits      int
	DepartmentID *int64

	// Extinguished is a cached aggregate.
	Extinguished bool
}

// Kind implements Entity.
func (*Class) Kind() Kind { return KindClass }

// Clone returns a deep copy.
func (c *Class) Clone() *Class {
	n := *c
	n.Importable = c.Importable.clone()
	n.DepartmentID = clonePtr(c.DepartmentID)
	return &n
}

// ClassInstance is the occurrence of a class in a given year and period.
type ClassInstance struct {
	Importable
	ClassID      int64
	DepartmentID *int64
	Year         int
	Period       int
	Information  json.RawMessage
}

// Kind implements Entity.
func (*ClassInstance) Kind() Kind { return KindClassInstance }

// Clone returns a deep copy.
func (ci *ClassInstance) Clone() *ClassInstance {
	n := *ci
	n.Importable = ci.Importable.clone()
	n.DepartmentID = clonePtr(ci.DepartmentID)
	n.Information = slices.Clone(ci.Information)
	return &n
}

// Turn is a shift of a class instance (theoretical, practical, ...).
type Turn struct {
	Importable
	ClassInstanceID int64
	Type            string
	Number          int
	Restrictions    string
	State           string
}

// Kind implements Entity.
func (*Turn) Kind() Kind { return KindTurn }

// Clone returns a deep copy.
func (t *Turn) Clone() *Turn {
	n := *t
	n.Importable = t.Importable.clone()
	return &n
}

// TurnInstance is a weekly slot of a turn. Start and Duration are in minutes.
type TurnInstance struct {
	Importable
	TurnID   int64
	Weekday  *int
	Start    *int
	Duration *int
	RoomID   *int64
}

// Kind implements Entity.
func (*TurnInstance) Kind() Kind { return KindTurnInstance }

// Clone returns a deep copy.
func (ti *TurnInstance) Clone() *TurnInstance {
	n := *ti
	n.Importable = ti.Importable.clone()
	n.Weekday = clonePtr(ti.Weekday)
	n.Start = clonePtr(ti.Start)
	n.Duration = clonePtr(ti.Duration)
	n.RoomID = clonePtr(ti.RoomID)
	return &n
}

// ClassEvent is a dated occurrence of a class instance, such as a test or an exam.
// Time and Duration are in minutes.
type ClassEvent struct {
	Importable
	ClassInstanceID int64
	Date            time.Time
	Time            *int
	Duration        *int
	Type            string
	Season          string
	Info            *string
}

// Kind implements Entity.
func (*ClassEvent) Kind() Kind { return KindClassEvent }

// Clone returns a deep copy.
func (e *ClassEvent) Clone() *ClassEvent {
	n := *e
	n.Importable = e.Importable.clone()
	n.Time = clonePtr(e.Time)
	n.Duration = clonePtr(e.Duration)
	n.Info = clonePtr(e.Info)
	return &n
}

// ClassFile is a document published to a class instance. Within an instance a file is
// identified by its content hash.
type ClassFile struct {
	Importable
	ClassInstanceID int64
	Hash            string
	Mime            string
	Size            int64
	Category        string
	Name            string

	// UpstreamName is the last name seen upstream. Name differs from it once renamed locally.
	UpstreamName string

	Uploaded   time.Time
	UploaderID *int64
}

// Kind implements Entity.
func (*ClassFile) Kind() Kind { return KindClassFile }

// Clone returns a deep copy.
func (f *ClassFile) Clone() *ClassFile {
	n := *f
	n.Importable = f.Importable.clone()
	n.UploaderID = clonePtr(f.UploaderID)
	return &n
}

// Renamed reports whether the name was changed locally.
func (f *ClassFile) Renamed() bool {
	return f.Name != f.UpstreamName
}

// Grades groups the partial grades of an enrollment.
type Grades struct {
	Normal      *int
	Recourse    *int
	Special     *int
	Improvement *int
}

// Best returns the highest known grade, or zero.
func (g Grades) Best() int {
	best := 0
	for _, v := range []*int{g.Normal, g.Recourse, g.Special, g.Improvement} {
		if v != nil && *v > best {
			best = *v
		}
	}
	return best
}

// GradeDates holds when the attendance and each partial grade were published.
type GradeDates struct {
	Attendance  *time.Time
	Normal      *time.Time
	Recourse    *time.Time
	Special     *time.Time
	Improvement *time.Time
}

func (d GradeDates) clone() GradeDates {
	return GradeDates{
		Attendance:  clonePtr(d.Attendance),
		Normal:      clonePtr(d.Normal),
		Recourse:    clonePtr(d.Recourse),
		Special:     clonePtr(d.Special),
		Improvement: clonePtr(d.Improvement),
	}
}

// Enrollment binds a student to a class instance.
type Enrollment struct {
	Importable
	ClassInstanceID int64
	StudentID       int64
	StudentYear     *int
	Attempt         *int
	Statutes        string
	Attendance      *bool
	Grades          Grades
	Dates           GradeDates
	Grade           int
	Approved        bool
}

// Kind implements Entity.
func (*Enrollment) Kind() Kind { return KindEnrollment }

// Clone returns a deep copy.
func (e *Enrollment) Clone() *Enrollment {
	n := *e
	n.Importable = e.Importable.clone()
	n.StudentYear = clonePtr(e.StudentYear)
	n.Attempt = clonePtr(e.Attempt)
	n.Attendance = clonePtr(e.Attendance)
	n.Grades = Grades{
		Normal:      clonePtr(e.Grades.Normal),
		Recourse:    clonePtr(e.Grades.Recourse),
		Special:     clonePtr(e.Grades.Special),
		Improvement: clonePtr(e.Grades.Improvement),
	}
	n.Dates = e.Dates.clone()
	return &n
}

// YearSpan is the first and last academic year an entity was active.
type YearSpan struct {
	First *int
	Last  *int
}

// Include widens the span to cover year.
func (s *YearSpan) Include(year int) {
	if s.First == nil || year < *s.First {
		s.First = Ptr(year)
	}
	if s.Last == nil || year > *s.Last {
		s.Last = Ptr(year)
	}
}

// Equal reports whether both spans cover the same years.
func (s YearSpan) Equal(o YearSpan) bool {
	return equalPtr(s.First, o.First) && equalPtr(s.Last, o.Last)
}

func (s YearSpan) clone() YearSpan {
	return YearSpan{First: clonePtr(s.First), Last: clonePtr(s.Last)}
}

// Student is reconciled from the flat students collection.
type Student struct {
	Importable
	Name         string
	Abbreviation string
	CourseID     *int64

	// Cached aggregates.
	Year    *int
	Span    YearSpan
	Credits int
}

// Kind implements Entity.
func (*Student) Kind() Kind { return KindStudent }

// Clone returns a deep copy.
func (s *Student) Clone() *Student {
	n := *s
	n.Importable = s.Importable.clone()
	n.CourseID = clonePtr(s.CourseID)
	n.Year = clonePtr(s.Year)
	n.Span = s.Span.clone()
	return &n
}

// Teacher is reconciled from the flat teachers collection.
type Teacher struct {
	Importable
	Name string

	// Span is a cached aggregate.
	Span YearSpan
}

// Kind implements Entity.
func (*Teacher) Kind() Kind { return KindTeacher }

// Clone returns a deep copy.
func (t *Teacher) Clone() *Teacher {
	n := *t
	n.Importable = t.Importable.clone()
	n.Span = t.Span.clone()
	return &n
}

func equalPtr[V comparable](a, b *V) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
