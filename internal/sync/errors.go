package sync

import (
	"errors"
	"fmt"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
)

// ErrSkipped marks a record that is deliberately left out of the store.
var ErrSkipped = errors.New("record skipped")

// Skip wraps ErrSkipped with a reason.
func Skip(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSkipped, fmt.Sprintf(format, args...))
}

// MissingParentError is returned when a payload references a row that is not stored locally.
type MissingParentError struct {
	Kind             model.Kind
	ExternalID       int64
	ParentKind       model.Kind
	ParentExternalID int64
	Err              error
}

func (e *MissingParentError) Error() string {
	msg := fmt.Sprintf("%s %d references unknown %s %d", e.Kind, e.ExternalID, e.ParentKind, e.ParentExternalID)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MissingParentError) Unwrap() error {
	return e.Err
}

// IllegalReparentError describes a payload whose embedded parent contradicts the
// hierarchy being walked. It is logged, never returned to the pool.
type IllegalReparentError struct {
	Kind       model.Kind
	ExternalID int64
	Field      string
	Claimed    int64
	Context    int64
}

func (e *IllegalReparentError) Error() string {
	return fmt.Sprintf("%s %d claims %s=%d but is being reconciled under %d",
		e.Kind, e.ExternalID, e.Field, e.Claimed, e.Context)
}

// IsSkip reports whether err means the item was skipped rather than failed.
func IsSkip(err error) bool {
	var missing *MissingParentError
	return errors.Is(err, ErrSkipped) || errors.As(err, &missing)
}
