// Package model defines the academic entities kept in sync with upstream.
package model

import (
	"encoding/json"
	"slices"
	"time"
)

// Kind identifies an entity kind.
type Kind string

// Entity kinds known to the synchronization engine.
const (
	KindDepartment    Kind = "department"
	KindBuilding      Kind = "building"
	KindRoom          Kind = "room"
	KindCourse        Kind = "course"
	KindClass         Kind = "class"
	KindClassInstance Kind = "class_instance"
	KindTurn          Kind = "turn"
	KindTurnInstance  Kind = "turn_instance"
	KindClassEvent    Kind = "class_event"
	KindClassFile     Kind = "class_file"
	KindEnrollment    Kind = "enrollment"
	KindStudent       Kind = "student"
	KindTeacher       Kind = "teacher"
)

// Importable is the bookkeeping shared by every synchronizable entity.
type Importable struct {
	// ID is the local primary key. Zero until the row is stored.
	ID int64

	// ExternalID is the upstream key. Unique per kind across every row ever seen.
	ExternalID *int64

	// IID is a looser identifier carried over from upstream.
	IID string

	// ExternalUpdate is when the row was last reconciled from upstream.
	ExternalUpdate *time.Time

	// Frozen rows keep their content regardless of upstream.
	Frozen bool

	// SameAs points at the row this one duplicates. Never used for ownership.
	SameAs *int64

	// Disappeared is the soft-delete marker.
	Disappeared bool

	// ExternalData holds the upstream record as received.
	ExternalData json.RawMessage
}

// Base gives access to the bookkeeping of an embedding entity.
func (i *Importable) Base() *Importable {
	return i
}

// ExtID returns the external id, or zero when the row has none.
func (i *Importable) ExtID() int64 {
	if i.ExternalID == nil {
		return 0
	}
	return *i.ExternalID
}

// Touch records a successful reconciliation at the given time.
func (i *Importable) Touch(at time.Time) {
	i.ExternalUpdate = &at
	i.Disappeared = false
}

// UpdatedWithin reports whether the row was reconciled less than d before now.
func (i *Importable) UpdatedWithin(d time.Duration, now time.Time) bool {
	if i.ExternalUpdate == nil {
		return false
	}
	return now.Sub(*i.ExternalUpdate) < d
}

func (i Importable) clone() Importable {
	c := i
	c.ExternalID = clonePtr(i.ExternalID)
	c.ExternalUpdate = clonePtr(i.ExternalUpdate)
	c.SameAs = clonePtr(i.SameAs)
	c.ExternalData = slices.Clone(i.ExternalData)
	return c
}

// Entity is implemented by every synchronizable model.
type Entity interface {
	Base() *Importable
	Kind() Kind
}

// Cloner is an entity able to produce a deep copy of itself.
type Cloner[T any] interface {
	Entity
	Clone() T
}

// NewExternal builds the bookkeeping of a row first seen upstream at the given time.
func NewExternal(extID int64, raw json.RawMessage, at time.Time) Importable {
	return Importable{
		ExternalID:     &extID,
		IID:            "",
		ExternalUpdate: &at,
		ExternalData:   raw,
	}
}

func clonePtr[V any](p *V) *V {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v.
func Ptr[V any](v V) *V {
	return &v
}
