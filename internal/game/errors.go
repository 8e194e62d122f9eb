package game

import "errors"

// Error taxonomy for session operations. All are local, recoverable
// conditions reported to the caller; none terminate the process.
var (
	// ErrInvalidPlay covers turn, possession and legality violations.
	// Session state is unchanged when it is returned.
	ErrInvalidPlay = errors.New("invalid play")

	// ErrCapacityExceeded is returned when a fifth seat is requested.
	ErrCapacityExceeded = errors.New("room is full")

	// ErrNotFound is returned for unknown room, player or card lookups.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfiguration rejects bad settings or an unrecognized
	// round type selector; prior configuration is kept.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)
