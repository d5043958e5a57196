// Package apperr defines the error taxonomy shared across the core.
// Callers classify failures with errors.Is and decide whether a retry
// makes sense (Conflict, InFlight, PoolExhausted) or not (Validation,
// NotFound, UnknownAction).
package apperr

import "errors"

var (
	// ErrValidation marks malformed or missing input. No database work
	// has happened when it is returned.
	ErrValidation = errors.New("validation error")

	// ErrInvalidTenant marks a workspace id that could not be bound to
	// a connection. The connection is released without use.
	ErrInvalidTenant = errors.New("invalid workspace")

	// ErrPoolExhausted is returned when no connection became available
	// within the configured acquire timeout.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrConflict marks a domain conflict, e.g. a double-booked slot.
	// The request is well-formed; retrying the same payload will fail
	// the same way.
	ErrConflict = errors.New("conflict")

	// ErrInFlight marks a duplicate request whose original execution is
	// still in progress. Retry later; do not re-issue with a new key.
	ErrInFlight = errors.New("request already in flight")

	// ErrNotFound marks a referenced entity that does not exist in the
	// bound workspace.
	ErrNotFound = errors.New("not found")

	// ErrUnknownAction marks an action name the executor does not know.
	ErrUnknownAction = errors.New("unknown action")
)
