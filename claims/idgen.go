/*
idgen.go - Date-scoped claim and payment identifier generation

PURPOSE:
  Produces human-readable, collision-resistant identifiers:

    claims:   A20260828-001   ("A" + submission date + 3-digit sequence)
    payments: P20260828-001   ("P" + approval date + 3-digit sequence)

  The sequence comes from a count query over identifiers sharing the date
  prefix. Two concurrent submissions on the same day can read the same
  count; the unique index on the identifier catches the collision and the
  caller retries with a bumped sequence, up to MaxIDAttempts, then fails
  ErrIDGenerationExhausted. The design accepts the read-then-write race and
  recovers via retry rather than locking.

STRONGER ALTERNATIVE:
  A per-day counter row updated with a compare-and-swap would remove the
  retry loop entirely. Not used here: the unique index plus bounded retry
  meets the contract with less schema.

SEE ALSO:
  - lifecycle.go: owns the retry loops around InsertClaim/InsertPayment
*/
package claims

import (
	"context"
	"fmt"
	"time"
)

// MaxIDAttempts bounds identifier-conflict retries per operation.
const MaxIDAttempts = 5

const idDateFormat = "20060102"

// ClaimID proposes a claim identifier for the given date. attempt skips past
// sequence numbers already lost to a uniqueness conflict.
func ClaimID(ctx context.Context, store Store, date time.Time, attempt int) (string, error) {
	prefix := "A" + date.Format(idDateFormat)
	n, err := store.CountClaimsWithPrefix(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("counting claims for %s: %w", prefix, err)
	}
	return fmt.Sprintf("%s-%03d", prefix, n+1+attempt), nil
}

// PaymentID proposes a payment identifier for the given date.
func PaymentID(ctx context.Context, store Store, date time.Time, attempt int) (string, error) {
	prefix := "P" + date.Format(idDateFormat)
	n, err := store.CountPaymentsWithPrefix(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("counting payments for %s: %w", prefix, err)
	}
	return fmt.Sprintf("%s-%03d", prefix, n+1+attempt), nil
}
