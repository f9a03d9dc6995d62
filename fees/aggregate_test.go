package fees_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/benefit-engine/fees"
	"github.com/warp/benefit-engine/member"
	"github.com/warp/benefit-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestFeeService(t *testing.T) (*fees.Service, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := &fees.Service{
		Store: store,
		Now:   func() time.Time { return time.Date(2026, time.August, 28, 9, 0, 0, 0, time.UTC) },
	}
	return svc, store
}

func seedFeeMember(t *testing.T, store *sqlite.Store, id, companyID string, tier member.FeeTier, status member.EmploymentStatus) {
	t.Helper()
	require.NoError(t, store.SaveMember(context.Background(), member.Member{
		ID:               id,
		Name:             id,
		CompanyID:        companyID,
		EnrolledAt:       time.Date(2020, time.April, 1, 0, 0, 0, 0, time.UTC),
		EmploymentStatus: status,
		FeeTier:          tier,
	}))
}

// seedRoster: company c-a has 2xA + 1xB active and one on leave; company
// c-b has 1xC active; one withdrawn member must not appear anywhere.
func seedRoster(t *testing.T, store *sqlite.Store) {
	seedFeeMember(t, store, "m-1", "c-a", member.TierA, member.StatusActive)
	seedFeeMember(t, store, "m-2", "c-a", member.TierA, member.StatusActive)
	seedFeeMember(t, store, "m-3", "c-a", member.TierB, member.StatusActive)
	seedFeeMember(t, store, "m-4", "c-a", member.TierB, member.StatusOnLeave)
	seedFeeMember(t, store, "m-5", "c-b", member.TierC, member.StatusActive)
	seedFeeMember(t, store, "m-6", "c-b", member.TierC, member.StatusWithdrawn)
}

// =============================================================================
// GENERATION
// =============================================================================

func TestGenerateMonthly_AggregatesByCompanyAndTier(t *testing.T) {
	svc, store := newTestFeeService(t)
	ctx := context.Background()
	seedRoster(t, store)

	count, err := svc.GenerateMonthly(ctx, "2026-08")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	rows, err := store.ListFees(ctx, "2026-08")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Default rates: A=500, B=1000, C=1500.
	companyA := rows[0]
	assert.Equal(t, "c-a", companyA.CompanyID)
	assert.Equal(t, 2, companyA.TierCounts[member.TierA])
	assert.Equal(t, 1, companyA.TierCounts[member.TierB])
	assert.Equal(t, 1, companyA.OnLeaveCount)
	assert.Equal(t, int64(2*500+1*1000), companyA.Total,
		"on-leave members are counted but stay out of the total")
	assert.Equal(t, fees.StatusUninvoiced, companyA.Status)

	companyB := rows[1]
	assert.Equal(t, "c-b", companyB.CompanyID)
	assert.Equal(t, 1, companyB.TierCounts[member.TierC])
	assert.Equal(t, int64(1500), companyB.Total)
	assert.Equal(t, 0, companyB.OnLeaveCount, "withdrawn members never appear")
}

func TestGenerateMonthly_InvalidYearMonth(t *testing.T) {
	svc, _ := newTestFeeService(t)
	_, err := svc.GenerateMonthly(context.Background(), "August 2026")
	assert.ErrorIs(t, err, fees.ErrInvalidYearMonth)
}

func TestGenerateMonthly_EmptyRoster(t *testing.T) {
	svc, _ := newTestFeeService(t)
	_, err := svc.GenerateMonthly(context.Background(), "2026-08")
	assert.ErrorIs(t, err, fees.ErrNoEligibleMembers)
}

func TestGenerateMonthly_LiveRatesOverrideDefaults(t *testing.T) {
	svc, store := newTestFeeService(t)
	ctx := context.Background()
	seedRoster(t, store)
	require.NoError(t, store.SetFeeRate(ctx, member.TierA, 800))

	_, err := svc.GenerateMonthly(ctx, "2026-08")
	require.NoError(t, err)

	fee, err := store.GetFee(ctx, "2026-08", "c-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2*800+1*1000), fee.Total)
}

func TestGenerateMonthly_RegenerationReplacesWholesale(t *testing.T) {
	// GIVEN: a generated month with a payment recorded against it
	svc, store := newTestFeeService(t)
	ctx := context.Background()
	seedRoster(t, store)

	_, err := svc.GenerateMonthly(ctx, "2026-07")
	require.NoError(t, err)
	_, err = svc.GenerateMonthly(ctx, "2026-08")
	require.NoError(t, err)
	_, err = svc.RecordPayment(ctx, "2026-08", "c-a", 2000)
	require.NoError(t, err)

	// WHEN: membership changes and the month is regenerated
	seedFeeMember(t, store, "m-7", "c-a", member.TierC, member.StatusActive)
	_, err = svc.GenerateMonthly(ctx, "2026-08")
	require.NoError(t, err)

	// THEN: the month reflects only current membership, payments reset
	fee, err := store.GetFee(ctx, "2026-08", "c-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2*500+1*1000+1*1500), fee.Total)
	assert.Equal(t, int64(0), fee.PaidAmount)
	assert.Equal(t, fees.StatusUninvoiced, fee.Status)

	// AND: the neighboring month was never touched
	july, err := store.GetFee(ctx, "2026-07", "c-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2*500+1*1000), july.Total)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestRecordPayment_PartialThenFull(t *testing.T) {
	svc, store := newTestFeeService(t)
	ctx := context.Background()
	seedRoster(t, store)
	_, err := svc.GenerateMonthly(ctx, "2026-08")
	require.NoError(t, err)

	// c-a total is 2000
	fee, err := svc.RecordPayment(ctx, "2026-08", "c-a", 1500)
	require.NoError(t, err)
	assert.Equal(t, fees.StatusPartiallyPaid, fee.Status)
	assert.Equal(t, int64(500), fee.Outstanding())

	fee, err = svc.RecordPayment(ctx, "2026-08", "c-a", 500)
	require.NoError(t, err)
	assert.Equal(t, fees.StatusFullyPaid, fee.Status)
	assert.Equal(t, int64(0), fee.Outstanding())
}

func TestRecordPayment_FullyPaidNeverRegresses(t *testing.T) {
	svc, store := newTestFeeService(t)
	ctx := context.Background()
	seedRoster(t, store)
	_, err := svc.GenerateMonthly(ctx, "2026-08")
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, "2026-08", "c-a", 2000)
	require.NoError(t, err)

	// An overpayment after full settlement keeps fully_paid.
	fee, err := svc.RecordPayment(ctx, "2026-08", "c-a", 100)
	require.NoError(t, err)
	assert.Equal(t, fees.StatusFullyPaid, fee.Status)
	assert.Equal(t, int64(2100), fee.PaidAmount)
}

func TestRecordPayment_Validation(t *testing.T) {
	svc, store := newTestFeeService(t)
	ctx := context.Background()
	seedRoster(t, store)
	_, err := svc.GenerateMonthly(ctx, "2026-08")
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, "2026-08", "c-a", 0)
	assert.ErrorIs(t, err, fees.ErrInvalidPaymentAmount)

	_, err = svc.RecordPayment(ctx, "2026-08", "c-a", -50)
	assert.ErrorIs(t, err, fees.ErrInvalidPaymentAmount)

	_, err = svc.RecordPayment(ctx, "2026-08", "c-zzz", 100)
	assert.ErrorIs(t, err, fees.ErrFeeNotFound)
}

// =============================================================================
// INVOICING
// =============================================================================

func TestMarkInvoiced_StampsAndKeepsOriginalDate(t *testing.T) {
	svc, store := newTestFeeService(t)
	ctx := context.Background()
	seedRoster(t, store)
	_, err := svc.GenerateMonthly(ctx, "2026-08")
	require.NoError(t, err)

	first := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.MarkInvoiced(ctx, "2026-08", []string{"c-a"}, first))

	fee, err := store.GetFee(ctx, "2026-08", "c-a")
	require.NoError(t, err)
	assert.Equal(t, fees.StatusInvoiced, fee.Status)
	require.NotNil(t, fee.InvoicedAt)
	assert.Equal(t, first, *fee.InvoicedAt)

	// Re-invoicing keeps the original date.
	later := first.AddDate(0, 0, 10)
	require.NoError(t, svc.MarkInvoiced(ctx, "2026-08", []string{"c-a"}, later))

	fee, err = store.GetFee(ctx, "2026-08", "c-a")
	require.NoError(t, err)
	assert.Equal(t, first, *fee.InvoicedAt)
}

func TestMarkInvoiced_DoesNotClobberPaymentStatus(t *testing.T) {
	svc, store := newTestFeeService(t)
	ctx := context.Background()
	seedRoster(t, store)
	_, err := svc.GenerateMonthly(ctx, "2026-08")
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, "2026-08", "c-a", 500)
	require.NoError(t, err)

	require.NoError(t, svc.MarkInvoiced(ctx, "2026-08", []string{"c-a"}, time.Time{}))

	fee, err := store.GetFee(ctx, "2026-08", "c-a")
	require.NoError(t, err)
	assert.Equal(t, fees.StatusPartiallyPaid, fee.Status,
		"a row that already moved to a payment status keeps it")
	require.NotNil(t, fee.InvoicedAt)
}

// =============================================================================
// SCHEDULE HELPERS
// =============================================================================

func TestPreviousMonth(t *testing.T) {
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2026, time.August, 28, 0, 0, 0, 0, time.UTC), "2026-07"},
		{time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC), "2026-02"},
		{time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC), "2025-12"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fees.PreviousMonth(tt.at))
	}
}
