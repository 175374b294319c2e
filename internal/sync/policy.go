package sync

import "fmt"

// Policy is the recursion depth of a reconciliation.
type Policy int

// Recursion policies.
const (
	PolicyNone Policy = iota
	PolicyCreation
	PolicyFull
)

func (p Policy) String() string {
	switch p {
	case PolicyNone:
		return "none"
	case PolicyCreation:
		return "creation"
	case PolicyFull:
		return "full"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Recurses reports whether children are visited at all.
func (p Policy) Recurses() bool {
	return p != PolicyNone
}

// UpdatesMirrored reports whether children known on both sides are reconciled.
func (p Policy) UpdatesMirrored() bool {
	return p == PolicyFull
}
