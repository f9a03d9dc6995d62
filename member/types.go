/*
Package member defines the membership data model shared by the benefit
calculation engine, the claim lifecycle, and the fee aggregation routine.

PURPOSE:
  Members are read-mostly reference data owned by an upstream HR system.
  This package holds the entity shape and the small derived values the
  engine needs (membership duration, fee classification). It performs no
  persistence itself; see store/sqlite for the backing tables.

KEY INVARIANTS:
  - EnrolledAt is immutable once claims exist against the member.
  - EmploymentStatus drives both claim eligibility and fee classification:
    active and on-leave members appear in fee aggregation, withdrawn
    members do not.
  - Bank attributes arrive already decrypted; this package treats them as
    opaque plaintext and never logs them.

SEE ALSO:
  - benefit/calculate.go: consumes Member for duration and salary lookups
  - fees/aggregate.go: classifies members into fee tiers
  - claims/lifecycle.go: snapshots bank attributes into Payments
*/
package member

import "time"

// =============================================================================
// EMPLOYMENT STATUS
// =============================================================================

type EmploymentStatus string

const (
	StatusActive    EmploymentStatus = "active"
	StatusOnLeave   EmploymentStatus = "on_leave"
	StatusWithdrawn EmploymentStatus = "withdrawn"
)

// =============================================================================
// FEE TIER - One of three membership classes used to rate monthly dues
// =============================================================================

type FeeTier string

const (
	TierA FeeTier = "A"
	TierB FeeTier = "B"
	TierC FeeTier = "C"
)

// Tiers lists all fee tiers in rating order.
func Tiers() []FeeTier { return []FeeTier{TierA, TierB, TierC} }

// =============================================================================
// BANK ATTRIBUTES - Payout destination, snapshotted into Payments
// =============================================================================

// BankAccount holds the member's payout attributes. Payments copy these
// values at approval time; a later change to the member must not alter an
// already-created Payment.
type BankAccount struct {
	BankCode      string `json:"bank_code"`
	BranchCode    string `json:"branch_code"`
	AccountType   string `json:"account_type"` // ordinary / checking
	AccountNumber string `json:"account_number"`
	AccountHolder string `json:"account_holder"`
}

// =============================================================================
// MEMBER
// =============================================================================

type Member struct {
	ID        string
	Name      string
	CompanyID string
	UserID    string // linked identity used for notifications

	EnrolledAt       time.Time
	EmploymentStatus EmploymentStatus
	FeeTier          FeeTier

	// MonthlySalary is the standard monthly remuneration basis used by the
	// illness/injury benefit. Zero means not on file.
	MonthlySalary int64

	Bank BankAccount

	CreatedAt time.Time
	UpdatedAt time.Time
}

// YearsOfMembership returns whole elapsed years between enrollment and the
// given date. An anniversary counts from the day it is reached, so exactly
// three years in is three, and the day before is two. Dates before
// enrollment yield zero.
func (m Member) YearsOfMembership(at time.Time) int {
	if at.Before(m.EnrolledAt) {
		return 0
	}
	years := at.Year() - m.EnrolledAt.Year()
	anniversary := m.EnrolledAt.AddDate(years, 0, 0)
	if at.Before(anniversary) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// FeeEligible reports whether the member participates in monthly fee
// aggregation at all (active and on-leave members do).
func (m Member) FeeEligible() bool {
	return m.EmploymentStatus == StatusActive || m.EmploymentStatus == StatusOnLeave
}
