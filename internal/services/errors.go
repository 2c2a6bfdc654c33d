// Package services implements the completion core: progress projection,
// streak calculation, daily rewards, and reconciliation. This file
// centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the
// handler layer. Note the error taxonomy split: validation failures and
// persistence failures surface to callers, while duplicate operations and
// lost lock races are absorbed internally and never bubble up.
package services

import "errors"

var (
	// ErrInvalidEventType is returned when a progress mutation names an
	// unknown operation type.
	ErrInvalidEventType = errors.New("invalid event type")

	// ErrInvalidOperationID is returned when the client-supplied idempotency
	// key is empty or malformed.
	ErrInvalidOperationID = errors.New("operation id is required")

	// ErrDeltaTooLarge is returned when a mutation's magnitude exceeds the
	// configured cap. Oversized deltas are rejected rather than clamped:
	// guessing at intent corrupts the ledger.
	ErrDeltaTooLarge = errors.New("progress delta exceeds maximum")

	// ErrHabitNotFound indicates that the requested habit does not exist or
	// is not accessible to the current user.
	ErrHabitNotFound = errors.New("habit not found")

	// ErrRecordNotFound indicates that no completion record exists for the
	// requested (habit, day) key.
	ErrRecordNotFound = errors.New("completion record not found")
)
