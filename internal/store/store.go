// Package store defines the persistence boundary of the sync engine.
//
// Two implementations exist: store/postgres backed by pgx, and store/memory used by
// tests and ephemeral runs. Workers commit independently, so every implementation
// must be safe for concurrent use.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
)

// ErrConflict is returned by Create when the external id is already stored.
var ErrConflict = errors.New("external id already stored")

// Scope restricts a listing to the children of one parent row.
type Scope struct {
	ParentID *int64
}

// All is the unrestricted scope.
func All() Scope {
	return Scope{}
}

// ChildrenOf restricts a listing to rows owned by parent.
func ChildrenOf(parent int64) Scope {
	return Scope{ParentID: &parent}
}

// Repository is the per-kind persistence contract.
type Repository[T model.Entity] interface {
	// ByExternalID looks a row up by upstream key. found is false when absent.
	ByExternalID(ctx context.Context, extID int64) (entity T, found bool, err error)

	// ByID looks a row up by local key.
	ByID(ctx context.Context, id int64) (entity T, found bool, err error)

	// List returns the rows in scope ordered by local id.
	List(ctx context.Context, scope Scope) ([]T, error)

	// Index returns the external ids in scope, and the subset not marked disappeared.
	Index(ctx context.Context, scope Scope) (known, active model.IDSet, err error)

	// Create inserts a row and returns it with its local id set.
	Create(ctx context.Context, entity T) (T, error)

	// Update writes content, parentage and reconciliation bookkeeping.
	// Frozen and SameAs are never written by this path.
	Update(ctx context.Context, entity T) error

	// Touch records a reconciliation without changing content and clears the
	// disappeared flag.
	Touch(ctx context.Context, extIDs []int64, at time.Time) (int64, error)

	// MarkDisappeared sets the disappeared flag on rows that do not have it yet.
	MarkDisappeared(ctx context.Context, extIDs []int64) (int64, error)
}

// Links is a many-to-many association keyed by local ids.
type Links interface {
	// Targets maps the external id of every linked target to its local id.
	Targets(ctx context.Context, ownerID int64) (map[int64]int64, error)
	Add(ctx context.Context, ownerID int64, targetIDs []int64) error
	Remove(ctx context.Context, ownerID int64, targetIDs []int64) error
	All(ctx context.Context) ([]model.Link, error)
}

// StudentAggregate is the cached state of one student.
type StudentAggregate struct {
	Year    *int
	Span    model.YearSpan
	Credits int
}

// Aggregates is the outcome of recomputing cached values, keyed by local id.
type Aggregates struct {
	ExtinguishedClasses map[int64]bool
	Students            map[int64]StudentAggregate
	Teachers            map[int64]model.YearSpan
}

// Store groups every repository.
type Store interface {
	Departments() Repository[*model.Department]
	Buildings() Repository[*model.Building]
	Rooms() Repository[*model.Room]
	Courses() Repository[*model.Course]
	Classes() Repository[*model.Class]
	ClassInstances() Repository[*model.ClassInstance]
	Turns() Repository[*model.Turn]
	TurnInstances() Repository[*model.TurnInstance]
	Enrollments() Repository[*model.Enrollment]
	ClassEvents() Repository[*model.ClassEvent]
	ClassFiles() Repository[*model.ClassFile]
	Students() Repository[*model.Student]
	Teachers() Repository[*model.Teacher]

	Links(rel model.Relation) Links

	// PropagateDisappearance marks active children of disappeared parents along edge.
	PropagateDisappearance(ctx context.Context, edge model.Ownership) (int64, error)

	// ActiveClassInstances returns the active instances of year and period that own at
	// least one turn or enrollment.
	ActiveClassInstances(ctx context.Context, year, period int) ([]*model.ClassInstance, error)

	// SaveAggregates writes recomputed cached values. Rows whose value is unchanged are left alone.
	SaveAggregates(ctx context.Context, agg Aggregates) error

	Close()
}
