package domain

import "errors"

// Error taxonomy for the mutation pipeline. Callers match with
// errors.Is; reasons are attached by wrapping, e.g.
// fmt.Errorf("%w: entry price must be positive", ErrValidation).
var (
	// ErrValidation: bad input, rejected before any state change or
	// network call.
	ErrValidation = errors.New("validation failed")

	// ErrImmutableField: attempted edit of a locked field on a closed
	// trade.
	ErrImmutableField = errors.New("field is immutable on a closed trade")

	// ErrConflict: a second mutation was attempted on an entity whose
	// previous mutation is still in flight.
	ErrConflict = errors.New("mutation already in flight")

	// ErrSync: the remote write failed after the optimistic apply. By
	// the time this surfaces, local state has already been rolled back.
	ErrSync = errors.New("remote sync failed")

	// ErrSubscription: the live snapshot stream failed. Local state is
	// untouched; delivery stops until a new subscription is made.
	ErrSubscription = errors.New("live subscription failed")

	// ErrNotFound: the target entity does not exist locally.
	ErrNotFound = errors.New("not found")
)
