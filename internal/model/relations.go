package model

import (
	"maps"
	"slices"
)

// IDSet is a set of external ids.
type IDSet map[int64]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id.
func (s IDSet) Add(id int64) {
	s[id] = struct{}{}
}

// Has reports whether id is in the set.
func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order.
func (s IDSet) Sorted() []int64 {
	return slices.Sorted(maps.Keys(s))
}

// Relation names a many-to-many association.
type Relation string

// Known associations.
const (
	RelTurnStudents       Relation = "turn_students"
	RelTurnTeachers       Relation = "turn_teachers"
	RelTeacherDepartments Relation = "teacher_departments"
)

// Link is one association row between two local ids.
type Link struct {
	OwnerID  int64
	TargetID int64
}

// Ownership is a parent to child edge along which disappearance propagates.
type Ownership struct {
	Parent Kind
	Child  Kind
}

// Hierarchy lists the ownership edges top-down.
var Hierarchy = []Ownership{
	{Parent: KindClass, Child: KindClassInstance},
	{Parent: KindClassInstance, Child: KindTurn},
	{Parent: KindClassInstance, Child: KindEnrollment},
	{Parent: KindClassInstance, Child: KindClassEvent},
	{Parent: KindClassInstance, Child: KindClassFile},
	{Parent: KindTurn, Child: KindTurnInstance},
}

func (o Ownership) String() string {
	return string(o.Parent) + "->" + string(o.Child)
}
