package spaced_repetition

import "errors"

// Sentinel errors returned by the review scheduler.
// Use errors.Is to check: errors.Is(err, spaced_repetition.ErrAlreadyComplete)
var (
	// ErrAlreadyComplete is returned when a review is attempted on a record
	// whose schedule has already terminated. The record is left untouched.
	ErrAlreadyComplete = errors.New("spaced_repetition: reviews already complete")
	// ErrPersistence wraps any failure to store a review. The record is rolled back.
	ErrPersistence = errors.New("spaced_repetition: failed to persist review")
	// ErrInvariant reports a record state that breaks the schedule invariants.
	ErrInvariant = errors.New("spaced_repetition: schedule invariant violated")
	// ErrConflict is returned by a ReviewSaver when another review of the same
	// record was stored first.
	ErrConflict = errors.New("spaced_repetition: concurrent review conflict")
)
