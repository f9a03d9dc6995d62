/*
store.go - Persistence and side-effect interfaces for the claim lifecycle

PURPOSE:
  Defines the contract between the lifecycle and the relational store. The
  sqlite implementation lives in store/sqlite; tests run against it with an
  in-memory database.

UNIQUENESS CONTRACT:
  InsertClaim and InsertPayment MUST surface ErrDuplicateIdentifier when the
  unique index on the identifier is hit. The identifier generator's bounded
  retry depends on it.

CONDITIONAL UPDATES:
  UpdateClaim applies a transition only while the claim's current status is
  one of FromStatus, and reports ErrInvalidTransition otherwise. Two
  concurrent approvals of the same claim therefore cannot both pass: the
  loser's update matches zero rows.

SIDE-EFFECT SINKS:
  Notifier and AuditLog are fire-and-forget collaborators. The lifecycle
  logs and discards their errors; they can never fail a transition.

SEE ALSO:
  - store/sqlite/sqlite.go: the implementation
  - lifecycle.go:           the only writer of claims and payments
*/
package claims

import (
	"context"
	"time"

	"github.com/warp/benefit-engine/member"
)

// =============================================================================
// CLAIM UPDATE - One lifecycle transition's writes
// =============================================================================

// ClaimUpdate carries the fields written by a single transition. Nil fields
// are left untouched. An empty FromStatus makes the update unconditional
// (used only by administrative cancellation).
type ClaimUpdate struct {
	ID         string
	FromStatus []Status
	ToStatus   Status

	CompanyApproval *Approval
	HQApproval      *Approval
	FinalAmount     *int64
	PaidAt          *time.Time
}

// =============================================================================
// STORE
// =============================================================================

// Store is the persistence contract for the lifecycle. All methods are
// usable inside a WithTx callback.
type Store interface {
	GetMember(ctx context.Context, memberID string) (*member.Member, error)

	GetClaim(ctx context.Context, claimID string) (*Claim, error)

	// InsertClaim persists a new claim. Returns ErrDuplicateIdentifier when
	// the identifier already exists.
	InsertClaim(ctx context.Context, c Claim) error

	// CountClaimsWithPrefix counts claims whose identifier starts with the
	// given date prefix. Feeds the sequential part of new identifiers.
	CountClaimsWithPrefix(ctx context.Context, prefix string) (int, error)

	// UpdateClaim applies a conditional transition. Returns ErrClaimNotFound
	// when the claim does not exist and ErrInvalidTransition when the status
	// precondition fails.
	UpdateClaim(ctx context.Context, u ClaimUpdate) error

	// InsertPayment persists a new payment. Returns ErrDuplicateIdentifier
	// when the identifier already exists.
	InsertPayment(ctx context.Context, p Payment) error

	CountPaymentsWithPrefix(ctx context.Context, prefix string) (int, error)

	// MarkPaymentsExported stamps the export marker on the given payments.
	// Already-exported payments keep their original timestamp (idempotent).
	// Returns the number of newly marked payments.
	MarkPaymentsExported(ctx context.Context, paymentIDs []string, when time.Time) (int, error)

	// ListApprovers returns active approvers for a tier; companyID scopes
	// the company tier and is ignored for headquarters.
	ListApprovers(ctx context.Context, tier ApproverTier, companyID string) ([]Approver, error)
}

// TxStore wraps Store with transaction support. Headquarters approval uses
// it to make the status change and the payment insert one unit.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction: rolled back if fn errors,
	// committed otherwise.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// SIDE-EFFECT SINKS
// =============================================================================

// Notifier accepts and stores a notification; delivery is someone else's
// problem and never awaited.
type Notifier interface {
	Notify(ctx context.Context, userID, title, message, kind, linkPath string) error
}

// AuditLog records who did what. Same fire-and-forget contract as Notifier.
type AuditLog interface {
	Record(ctx context.Context, operation, target, details string) error
}
