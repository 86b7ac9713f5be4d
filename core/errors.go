/*
errors.go - Centralized error types for the forecasting core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Store and API packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Construction errors - Malformed intervals and ranges
  2. Arithmetic errors - Amounts in different currencies
  3. Store errors - Missing records and link uniqueness

USAGE:
    if errors.Is(err, core.ErrInvalidInterval) {
        // reject the request with 400
    }

SEE ALSO:
  - interval.go: Raises IntervalError
  - amount.go: Raises CurrencyMismatchError
  - store.go: Store contracts returning the not-found sentinels
*/
package core

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInterval is returned when an interval cannot be built or split.
	ErrInvalidInterval = errors.New("invalid interval")

	// ErrInvalidRange is returned when a planned operation or budget is malformed.
	ErrInvalidRange = errors.New("invalid range")

	// ErrCurrencyMismatch is returned by arithmetic across currencies.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrMissingLinkTarget marks a link whose range no longer exists.
	// Reconciliation treats such links as inert; only stores return it.
	ErrMissingLinkTarget = errors.New("link target not found")

	// ErrDuplicateLink is returned when an operation is already linked.
	ErrDuplicateLink = errors.New("operation already linked")

	// ErrInvalidIteration is returned when a link points at a date that is
	// not an occurrence of its target.
	ErrInvalidIteration = errors.New("invalid iteration date")

	// ErrAccountExists and ErrDuplicateOperation guard store uniqueness.
	ErrAccountExists      = errors.New("account already exists")
	ErrDuplicateOperation = errors.New("operation id already used")

	ErrAccountNotFound   = errors.New("account not found")
	ErrRangeNotFound     = errors.New("range not found")
	ErrOperationNotFound = errors.New("operation not found")
	ErrLinkNotFound      = errors.New("link not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// IntervalError describes why an interval was rejected.
type IntervalError struct {
	Reason string
	Start  Date
}

func (e *IntervalError) Error() string {
	return fmt.Sprintf("invalid interval starting %s: %s", e.Start, e.Reason)
}

func (e *IntervalError) Unwrap() error {
	return ErrInvalidInterval
}

// CurrencyMismatchError reports the two currencies involved.
type CurrencyMismatchError struct {
	Left  string
	Right string
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("currency mismatch: %s vs %s", e.Left, e.Right)
}

func (e *CurrencyMismatchError) Unwrap() error {
	return ErrCurrencyMismatch
}

type IterationError struct {
	TargetKind RangeKind
	TargetID   RangeID
	Date       Date
}

func (e *IterationError) Error() string {
	return fmt.Sprintf("%s %d has no occurrence on %s", e.TargetKind, e.TargetID, e.Date)
}

func (e *IterationError) Unwrap() error {
	return ErrInvalidIteration
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrInvalidIteration)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrRangeNotFound) ||
		errors.Is(err, ErrOperationNotFound) ||
		errors.Is(err, ErrLinkNotFound) ||
		errors.Is(err, ErrMissingLinkTarget)
}

// IsConflict returns true if the error violates a uniqueness constraint.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateLink) ||
		errors.Is(err, ErrAccountExists) ||
		errors.Is(err, ErrDuplicateOperation)
}
