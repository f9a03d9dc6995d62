/*
Package claims implements the benefit application lifecycle: claim creation,
two-stage approval, rejection, payment-record generation, and payment export
marking.

PURPOSE:
  A Claim moves through a small state machine:

    pending -> company_approved -> hq_approved -> paid

  with `rejected` reachable from either pending tier and `cancelled`
  reachable administratively. `draft` exists in the schema but is reserved:
  no transition here produces or consumes it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Claim:    the central lifecycle entity, calculation results flattened in
  - Approval: one tier's sign-off slot (approver, timestamp, comment)
  - Payment:  bank-transfer record spawned by headquarters approval,
              snapshotting the member's bank attributes at that moment

INVARIANTS:
  - CalculatedAmount is immutable after creation: it is a historical
    computation, never re-derived.
  - FinalAmount equals CalculatedAmount unless explicitly overridden during
    headquarters approval.
  - Exactly one Payment exists per claim once past headquarters approval,
    created in the same store transaction as the status change.

SEE ALSO:
  - lifecycle.go: the transitions
  - store.go:     persistence and side-effect interfaces
  - idgen.go:     date-scoped identifier generation
*/
package claims

import (
	"time"

	"github.com/warp/benefit-engine/benefit"
	"github.com/warp/benefit-engine/member"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusDraft           Status = "draft" // reserved; schema-only
	StatusPending         Status = "pending"
	StatusCompanyApproved Status = "company_approved"
	StatusHQApproved      Status = "hq_approved"
	StatusPaid            Status = "paid"
	StatusRejected        Status = "rejected"
	StatusCancelled       Status = "cancelled"
)

// Terminal reports whether no further transition can leave the status.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusRejected || s == StatusCancelled
}

// =============================================================================
// APPROVAL - One tier's sign-off slot
// =============================================================================

type Approval struct {
	ApproverID string
	ApprovedAt time.Time
	Comment    string
}

// =============================================================================
// CLAIM
// =============================================================================

type Claim struct {
	ID          string // date-scoped, sequential, unique
	MemberID    string
	CompanyID   string // denormalized from the member for approver scoping
	SubmittedAt time.Time

	Category   benefit.Category
	Label      string
	ParamsJSON string // the category-specific parameter bag as submitted

	// Flattened calculation result. CalculatedAmount never changes after
	// creation; FinalAmount may be overridden at headquarters approval.
	CalculatedAmount int64
	FinalAmount      int64
	Attributes       map[string]string
	Derivation       string

	Status          Status
	CompanyApproval *Approval
	HQApproval      *Approval

	ScheduledPaymentAt *time.Time
	PaidAt             *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// PAYMENT - Bank-transfer record created by headquarters approval
// =============================================================================

type Payment struct {
	ID       string // timestamp-scoped, sequential, unique
	ClaimID  string
	MemberID string
	Amount   int64

	PayoutDate time.Time

	// Bank is a snapshot of the member's payout attributes at approval time;
	// later changes to the member never alter an existing Payment.
	Bank member.BankAccount

	// ExportedAt is nil until a funds-transfer batch consumes this payment.
	// Marking is idempotent: re-marking an exported payment is a no-op.
	ExportedAt *time.Time

	CreatedAt time.Time
}

// =============================================================================
// APPROVER - Registry entry used for notification fan-out
// =============================================================================

type ApproverTier string

const (
	TierCompany      ApproverTier = "company"
	TierHeadquarters ApproverTier = "headquarters"
)

type Approver struct {
	UserID    string
	CompanyID string // empty for headquarters-tier approvers
	Tier      ApproverTier
	Active    bool
}
