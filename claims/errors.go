/*
errors.go - Error taxonomy for the claim lifecycle

PURPOSE:
  Sentinel errors per failure class, used with errors.Is(). Structured
  errors carry context and Unwrap() to a sentinel. Every error message is
  human-readable and safe for direct display; no internal identifiers or
  stack traces leak through them.

TAXONOMY (matching the callers' expectations):
  not found:        ErrMemberNotFound, ErrClaimNotFound, ErrPaymentNotFound
  transitions:      ErrInvalidTransition (+ InvalidTransitionError)
  identifiers:      ErrDuplicateIdentifier (store-level), ErrIDGenerationExhausted
  categories:       benefit.UnknownCategoryError (from the calculation engine)

SIDE EFFECTS:
  Notification and audit failures are never part of this taxonomy: call
  sites log and discard them.
*/
package claims

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrMemberNotFound is returned when a referenced member does not exist.
	ErrMemberNotFound = errors.New("member not found")

	// ErrClaimNotFound is returned when a referenced claim does not exist.
	ErrClaimNotFound = errors.New("claim not found")

	// ErrPaymentNotFound is returned when a referenced payment does not exist.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrInvalidTransition is returned when a lifecycle operation's status
	// precondition is violated.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDuplicateIdentifier is surfaced by the store when an insert hits
	// the unique index on a claim or payment identifier. The identifier
	// generator relies on this for its bounded retry.
	ErrDuplicateIdentifier = errors.New("duplicate identifier")

	// ErrIDGenerationExhausted is returned after the identifier generator
	// has retried the maximum number of times on uniqueness conflicts.
	ErrIDGenerationExhausted = errors.New("identifier generation exhausted retries")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InvalidTransitionError reports which operation was attempted against which
// current status.
type InvalidTransitionError struct {
	ClaimID   string
	Operation string
	Status    Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a claim in status %q", e.Operation, e.Status)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// IsNotFound reports whether the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrClaimNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}
