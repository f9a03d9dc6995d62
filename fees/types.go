/*
Package fees implements monthly membership-fee aggregation and the simple
invoicing/payment operations on the resulting rows.

PURPOSE:
  Once a month, every active or on-leave member is reclassified by company
  and fee tier, the prior rows for that month are replaced wholesale, and a
  per-company total is computed from the live rate table. Regeneration is a
  recomputation, not an incremental merge: any payments manually recorded
  against a regenerated month must be re-applied deliberately.

KEY CONCEPTS IN THIS FILE (types.go):
  - MonthlyFee: one row per (year-month, company), tier counts + total +
    invoicing/payment status
  - Status:     uninvoiced -> invoiced, and partially/fully paid as money
    is recorded

SEE ALSO:
  - aggregate.go: generation and the companion operations
*/
package fees

import (
	"errors"
	"time"

	"github.com/warp/benefit-engine/member"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusUninvoiced    Status = "uninvoiced"
	StatusInvoiced      Status = "invoiced"
	StatusPartiallyPaid Status = "partially_paid"
	StatusFullyPaid     Status = "fully_paid"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoEligibleMembers is returned when a generation run finds no
	// active or on-leave member at all.
	ErrNoEligibleMembers = errors.New("no eligible members for fee aggregation")

	// ErrFeeNotFound is returned when no row exists for a (month, company).
	ErrFeeNotFound = errors.New("monthly fee row not found")

	// ErrInvalidYearMonth is returned for a malformed year-month argument.
	ErrInvalidYearMonth = errors.New("invalid year-month, expected YYYY-MM")

	// ErrInvalidPaymentAmount is returned for a non-positive payment.
	ErrInvalidPaymentAmount = errors.New("payment amount must be positive")
)

// =============================================================================
// MONTHLY FEE
// =============================================================================

// MonthlyFee is one company's dues for one month. Active members are counted
// per tier and rated; on-leave members are counted separately and excluded
// from the monetary total.
type MonthlyFee struct {
	YearMonth string // "2026-08"
	CompanyID string

	TierCounts   map[member.FeeTier]int
	OnLeaveCount int

	Total      int64
	PaidAmount int64
	Status     Status

	InvoicedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Outstanding returns the unpaid remainder, floored at zero.
func (f MonthlyFee) Outstanding() int64 {
	if f.PaidAmount >= f.Total {
		return 0
	}
	return f.Total - f.PaidAmount
}

// =============================================================================
// RATES
// =============================================================================

// DefaultRates are the hard-coded fallbacks used when the live rate table
// has no entry for a tier.
var DefaultRates = map[member.FeeTier]int64{
	member.TierA: 500,
	member.TierB: 1000,
	member.TierC: 1500,
}
