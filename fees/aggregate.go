/*
aggregate.go - Monthly fee aggregation and companion operations

PURPOSE:
  GenerateMonthly reclassifies the membership for one month and replaces
  that month's rows wholesale. RecordPayment and MarkInvoiced mutate the
  rows incrementally afterwards.

REPLACE SEMANTICS:
  The delete and the bulk insert run in ONE store transaction. The
  reference behavior left a window where a failure between the two steps
  emptied the month; this implementation is deliberately stricter.

PAYMENT STATUS:
  paid >= total   -> fully_paid
  0 < paid < total -> partially_paid
  A row never regresses from fully_paid on a smaller later payment.

SEE ALSO:
  - types.go: entities, errors, default rates
  - api/scheduler.go: runs GenerateMonthly on a cron schedule
*/
package fees

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/warp/benefit-engine/member"
)

// =============================================================================
// STORE
// =============================================================================

// Store is the persistence contract for fee aggregation.
type Store interface {
	// ListFeeMembers returns every member whose status is active or on-leave.
	ListFeeMembers(ctx context.Context) ([]member.Member, error)

	// GetFeeRates returns the live per-tier rates. Tiers absent from the
	// table fall back to DefaultRates.
	GetFeeRates(ctx context.Context) (map[member.FeeTier]int64, error)

	// ReplaceMonth deletes all rows for the month and inserts the given
	// rows, atomically.
	ReplaceMonth(ctx context.Context, yearMonth string, rows []MonthlyFee) error

	GetFee(ctx context.Context, yearMonth, companyID string) (*MonthlyFee, error)

	// UpdateFeePayment writes the cumulative paid amount and status.
	UpdateFeePayment(ctx context.Context, yearMonth, companyID string, paid int64, status Status) error

	// MarkInvoiced stamps the given companies' rows for the month. Rows
	// already carrying an invoice date keep it.
	MarkInvoiced(ctx context.Context, yearMonth string, companyIDs []string, when time.Time) error

	ListFees(ctx context.Context, yearMonth string) ([]MonthlyFee, error)
}

// Service runs fee aggregation against a Store.
type Service struct {
	Store Store

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// =============================================================================
// GENERATION
// =============================================================================

// GenerateMonthly recomputes one month's fee rows and returns the number of
// companies billed. Fails ErrNoEligibleMembers when nothing qualifies;
// other months are never touched.
func (s *Service) GenerateMonthly(ctx context.Context, yearMonth string) (int, error) {
	if _, err := time.Parse("2006-01", yearMonth); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidYearMonth, yearMonth)
	}

	members, err := s.Store.ListFeeMembers(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing members: %w", err)
	}
	if len(members) == 0 {
		return 0, ErrNoEligibleMembers
	}

	rates := s.effectiveRates(ctx)

	// Group by company: active members count per tier, on-leave members
	// count separately and stay out of the total.
	byCompany := make(map[string]*MonthlyFee)
	for _, m := range members {
		if !m.FeeEligible() {
			continue
		}
		row, ok := byCompany[m.CompanyID]
		if !ok {
			row = &MonthlyFee{
				YearMonth:  yearMonth,
				CompanyID:  m.CompanyID,
				TierCounts: make(map[member.FeeTier]int),
				Status:     StatusUninvoiced,
			}
			byCompany[m.CompanyID] = row
		}
		if m.EmploymentStatus == member.StatusOnLeave {
			row.OnLeaveCount++
			continue
		}
		row.TierCounts[m.FeeTier]++
	}
	if len(byCompany) == 0 {
		return 0, ErrNoEligibleMembers
	}

	now := s.now()
	rows := make([]MonthlyFee, 0, len(byCompany))
	for _, row := range byCompany {
		var total int64
		for _, tier := range member.Tiers() {
			total += int64(row.TierCounts[tier]) * rates[tier]
		}
		row.Total = total
		row.CreatedAt = now
		row.UpdatedAt = now
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CompanyID < rows[j].CompanyID })

	if err := s.Store.ReplaceMonth(ctx, yearMonth, rows); err != nil {
		return 0, fmt.Errorf("replacing fee rows for %s: %w", yearMonth, err)
	}

	log.Printf("[Fees] generated %s: %d companies, %d members", yearMonth, len(rows), len(members))
	return len(rows), nil
}

// effectiveRates merges the live rate table over the hard-coded fallbacks.
// A rate-table read failure degrades to the fallbacks rather than failing
// the run.
func (s *Service) effectiveRates(ctx context.Context) map[member.FeeTier]int64 {
	rates := make(map[member.FeeTier]int64, len(DefaultRates))
	for tier, rate := range DefaultRates {
		rates[tier] = rate
	}
	live, err := s.Store.GetFeeRates(ctx)
	if err != nil {
		log.Printf("[Fees] rate table unavailable, using defaults: %v", err)
		return rates
	}
	for tier, rate := range live {
		if rate > 0 {
			rates[tier] = rate
		}
	}
	return rates
}

// =============================================================================
// COMPANION OPERATIONS
// =============================================================================

// RecordPayment adds a payment against one company's month. Status becomes
// fully_paid when the cumulative amount covers the total, else
// partially_paid; fully_paid never regresses.
func (s *Service) RecordPayment(ctx context.Context, yearMonth, companyID string, amount int64) (*MonthlyFee, error) {
	if amount <= 0 {
		return nil, ErrInvalidPaymentAmount
	}

	fee, err := s.Store.GetFee(ctx, yearMonth, companyID)
	if err != nil {
		return nil, err
	}

	fee.PaidAmount += amount
	switch {
	case fee.Status == StatusFullyPaid:
		// No regression: keep fully_paid whatever the new payment size.
	case fee.PaidAmount >= fee.Total:
		fee.Status = StatusFullyPaid
	default:
		fee.Status = StatusPartiallyPaid
	}

	if err := s.Store.UpdateFeePayment(ctx, yearMonth, companyID, fee.PaidAmount, fee.Status); err != nil {
		return nil, err
	}
	return fee, nil
}

// MarkInvoiced stamps the selected companies' rows with an invoice date.
// when zero defaults to today. Idempotent: an already-invoiced row keeps
// its original date.
func (s *Service) MarkInvoiced(ctx context.Context, yearMonth string, companyIDs []string, when time.Time) error {
	if when.IsZero() {
		when = s.now()
	}
	return s.Store.MarkInvoiced(ctx, yearMonth, companyIDs, when)
}

// PreviousMonth returns the year-month immediately before the given time,
// the month the scheduler aggregates. Anchored to the first of the month so
// end-of-month dates cannot skip a month through date normalization.
func PreviousMonth(t time.Time) string {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return first.AddDate(0, -1, 0).Format("2006-01")
}
