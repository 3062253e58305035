package models

import "errors"

// Error taxonomy shared by every layer. Callers wrap these with fmt.Errorf("...: %w")
// and match them with errors.Is.
var (
	// ErrConfiguration marks restaurant data that blocks booking until an operator fixes it,
	// e.g. a malformed operating hours string.
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation marks input rejected locally and never persisted.
	ErrValidation = errors.New("validation error")

	// ErrNoSuitableTable is the business rejection of an allocation request.
	ErrNoSuitableTable = errors.New("no suitable table")

	// ErrInvalidTransition is returned for an illegal booking status move.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrConcurrencyConflict is returned when a write detects that a concurrent booking
	// already consumed the capacity or changed the row. Callers retry from a fresh read.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited is returned when a customer exceeds the booking attempt rate.
	ErrRateLimited = errors.New("rate limited")
)

// IsRetryable reports whether the caller may repeat the operation from a fresh read.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
