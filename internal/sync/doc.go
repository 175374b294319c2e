// Package sync holds the building blocks of upstream synchronization that every
// entity kind shares.
//
// # Set difference
//
// Diff partitions external ids into new, disappeared and mirrored. Every level of the
// hierarchy delegates to it:
//
//   - new = upstream \ known
//   - disappeared = active \ upstream
//   - mirrored = known ∩ upstream
//
// Known ids include rows already marked disappeared, so a reappearing id lands in
// mirrored and is restored rather than recreated.
//
// # Recursion policy
//
// Policy controls how far a reconciliation walks into child collections:
//
//   - PolicyNone: the entity only
//   - PolicyCreation: create children that are new
//   - PolicyFull: create new children and fully reconcile mirrored ones
//
// # Errors
//
//   - MissingParentError: a required referenced row is absent locally; the child is skipped
//   - IllegalReparentError: a payload names a parent that contradicts the hierarchy being
//     walked; the field is ignored
//   - ErrSkipped: the record is deliberately not imported
//
// # Propagation
//
// Propagator cascades the disappeared flag down model.Hierarchy after a round of
// reconciliation. It never clears the flag.
//
// The reconcile, pool, orchestrator and coordinator subpackages build on these types.
package sync
