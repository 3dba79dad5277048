/*
errors.go - Centralized error types for the settlement engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer maps these onto HTTP statuses and user-facing codes.

ERROR CATEGORIES:
  1. Not-found errors - Missing settlements, items, stars, videos
  2. State-guard errors - Lifecycle transitions from the wrong status
  3. Validation errors - Bad periods, negative amounts
  4. Concurrency errors - Conflicting writes, retryable

USAGE:
  Callers branch on sentinels:

    if errors.Is(err, settlement.ErrSettlementCompleted) {
        // surface the guard message verbatim to the admin
    }

SEE ALSO:
  - lifecycle.go: Produces TransitionError
  - generator.go: Uses ErrSettlementCompleted for racing completions
*/
package settlement

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSettlementNotFound is returned when a settlement ID does not exist.
	ErrSettlementNotFound = errors.New("settlement not found")

	// ErrItemNotFound is returned when a settlement item ID does not exist.
	ErrItemNotFound = errors.New("settlement item not found")

	// ErrStarNotFound is returned when a referenced creator does not exist.
	ErrStarNotFound = errors.New("star not found")

	// ErrVideoNotFound is returned when a referenced video does not exist.
	ErrVideoNotFound = errors.New("video not found")

	// ErrSettlementCompleted is returned when a mutation targets a
	// completed settlement. Completed settlements are immutable.
	ErrSettlementCompleted = errors.New("settlement is completed and immutable")

	// ErrInvalidTransition is returned when a lifecycle action is not
	// allowed from the settlement's current status.
	ErrInvalidTransition = errors.New("invalid settlement transition")

	// ErrInvalidPeriod is returned for a malformed (year, month) target.
	ErrInvalidPeriod = errors.New("invalid settlement period")

	// ErrNegativeAmount is returned when an adjustment would make an
	// item's final amount negative.
	ErrNegativeAmount = errors.New("amount must not be negative")

	// ErrConcurrentModification is returned when a write conflicts with
	// a concurrent generation or edit. Safe to retry after a re-fetch.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TransitionError reports a lifecycle action rejected by the status
// guard table. Its message is intended for direct display to the admin.
type TransitionError struct {
	SettlementID string
	Action       Action
	From         SettlementStatus
}

func (e *TransitionError) Error() string {
	if e.From == StatusCompleted {
		return fmt.Sprintf("cannot %s completed settlement", e.Action)
	}
	return fmt.Sprintf("cannot %s settlement in status %s", e.Action, e.From)
}

func (e *TransitionError) Unwrap() error {
	if e.From == StatusCompleted && e.Action != ActionCancel {
		return ErrSettlementCompleted
	}
	return ErrInvalidTransition
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSettlementNotFound) ||
		errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrStarNotFound) ||
		errors.Is(err, ErrVideoNotFound)
}

// IsStateGuard returns true if the error is a rejected lifecycle
// transition or an attempt to mutate a completed settlement.
func IsStateGuard(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrSettlementCompleted)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid input
// rather than a server-side failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrNegativeAmount)
}
