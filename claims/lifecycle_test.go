package claims_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/benefit-engine/benefit"
	"github.com/warp/benefit-engine/claims"
	"github.com/warp/benefit-engine/member"
	"github.com/warp/benefit-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2026, time.August, 28, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*claims.Service, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := &claims.Service{
		Store:    store,
		Notifier: store,
		Audit:    store,
		Now:      func() time.Time { return testNow },
	}
	return svc, store
}

func seedMember(t *testing.T, store *sqlite.Store, id string) member.Member {
	t.Helper()
	m := member.Member{
		ID:               id,
		Name:             "Sato",
		CompanyID:        "c-001",
		UserID:           "user-" + id,
		EnrolledAt:       testNow.AddDate(-6, 0, 0),
		EmploymentStatus: member.StatusActive,
		FeeTier:          member.TierB,
		MonthlySalary:    200000,
		Bank: member.BankAccount{
			BankCode:      "0001",
			BranchCode:    "123",
			AccountType:   "ordinary",
			AccountNumber: "7654321",
			AccountHolder: "Sato",
		},
	}
	require.NoError(t, store.SaveMember(context.Background(), m))
	return m
}

func createClaim(t *testing.T, svc *claims.Service, memberID string) *claims.Claim {
	t.Helper()
	c, err := svc.Create(context.Background(), memberID, benefit.RetirementParams{})
	require.NoError(t, err)
	return c
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_PendingClaimWithCalculation(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedMember(t, store, "m-001")

	c, err := svc.Create(ctx, "m-001", benefit.MarriageParams{})
	require.NoError(t, err)

	assert.Equal(t, "A20260828-001", c.ID)
	assert.Equal(t, claims.StatusPending, c.Status)
	assert.Equal(t, int64(20000), c.CalculatedAmount, "6 years of membership rates the top band")
	assert.Equal(t, c.CalculatedAmount, c.FinalAmount)
	assert.NotEmpty(t, c.Derivation)

	stored, err := store.GetClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Status, stored.Status)
	assert.Equal(t, c.CalculatedAmount, stored.CalculatedAmount)
	assert.Equal(t, "c-001", stored.CompanyID)
	assert.NotEmpty(t, stored.ParamsJSON)
}

func TestCreate_SequentialIdentifiers(t *testing.T) {
	svc, store := newTestService(t)
	seedMember(t, store, "m-001")

	first := createClaim(t, svc, "m-001")
	second := createClaim(t, svc, "m-001")

	assert.Equal(t, "A20260828-001", first.ID)
	assert.Equal(t, "A20260828-002", second.ID)
}

func TestCreate_UnknownMember(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Create(context.Background(), "nobody", benefit.RetirementParams{})
	assert.ErrorIs(t, err, claims.ErrMemberNotFound)
}

func TestCreate_NotifiesCompanyApprovers(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedMember(t, store, "m-001")
	require.NoError(t, store.SaveApprover(ctx, claims.Approver{
		UserID: "approver-1", CompanyID: "c-001", Tier: claims.TierCompany, Active: true,
	}))

	createClaim(t, svc, "m-001")

	inbox, err := store.ListNotifications(ctx, "approver-1", 0)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "New benefit claim", inbox[0].Title)
}

// =============================================================================
// IDENTIFIER RETRIES
// =============================================================================

func TestCreate_RetriesPastIdentifierConflict(t *testing.T) {
	// GIVEN: a claim whose identifier skews the count (002 exists but 001
	// does not), so the first proposal collides
	svc, store := newTestService(t)
	ctx := context.Background()
	seedMember(t, store, "m-001")

	squatter := claims.Claim{
		ID: "A20260828-002", MemberID: "m-001", CompanyID: "c-001",
		SubmittedAt: testNow, Category: benefit.CategoryRetirement,
		Label: "squatter", Status: claims.StatusPending,
		CreatedAt: testNow, UpdatedAt: testNow,
	}
	require.NoError(t, store.InsertClaim(ctx, squatter))

	// WHEN: creating a claim (count=1 proposes 002, conflicts, retries)
	c, err := svc.Create(ctx, "m-001", benefit.RetirementParams{})

	// THEN: the bounded retry lands on the next free number
	require.NoError(t, err)
	assert.Equal(t, "A20260828-003", c.ID)
}

func TestCreate_ExhaustsIdentifierRetries(t *testing.T) {
	// Five squatters occupy every number the generator can propose
	// (count=5 -> proposals 006..010).
	svc, store := newTestService(t)
	ctx := context.Background()
	seedMember(t, store, "m-001")

	for i := 6; i <= 10; i++ {
		squatter := claims.Claim{
			ID: fmt.Sprintf("A20260828-%03d", i), MemberID: "m-001", CompanyID: "c-001",
			SubmittedAt: testNow, Category: benefit.CategoryRetirement,
			Label: "squatter", Status: claims.StatusPending,
			CreatedAt: testNow, UpdatedAt: testNow,
		}
		require.NoError(t, store.InsertClaim(ctx, squatter))
	}

	_, err := svc.Create(ctx, "m-001", benefit.RetirementParams{})
	assert.ErrorIs(t, err, claims.ErrIDGenerationExhausted)
}

// =============================================================================
// APPROVAL FLOW
// =============================================================================

func TestApprovalFlow_PendingToPaid(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	m := seedMember(t, store, "m-001")
	c := createClaim(t, svc, "m-001")

	// Company tier
	c, err := svc.ApproveByCompany(ctx, c.ID, "mgr-1", "looks right")
	require.NoError(t, err)
	assert.Equal(t, claims.StatusCompanyApproved, c.Status)
	require.NotNil(t, c.CompanyApproval)
	assert.Equal(t, "mgr-1", c.CompanyApproval.ApproverID)

	// Headquarters tier: spawns the payment atomically
	c, err = svc.ApproveByHQ(ctx, c.ID, "hq-1", "", nil)
	require.NoError(t, err)
	assert.Equal(t, claims.StatusHQApproved, c.Status)
	assert.Equal(t, c.CalculatedAmount, c.FinalAmount)

	p, err := store.GetPaymentByClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "P20260828-001", p.ID)
	assert.Equal(t, c.FinalAmount, p.Amount)
	assert.Equal(t, m.Bank, p.Bank, "payment snapshots the member's bank attributes")
	assert.Nil(t, p.ExportedAt)

	// Payout completion
	c, err = svc.MarkPaid(ctx, c.ID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, claims.StatusPaid, c.Status)
	require.NotNil(t, c.PaidAt)
}

func TestApproveByHQ_OverrideAmount(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedMember(t, store, "m-001")
	c := createClaim(t, svc, "m-001")
	calculated := c.CalculatedAmount

	_, err := svc.ApproveByCompany(ctx, c.ID, "mgr-1", "")
	require.NoError(t, err)

	override := int64(7777)
	c, err = svc.ApproveByHQ(ctx, c.ID, "hq-1", "special case", &override)
	require.NoError(t, err)

	assert.Equal(t, override, c.FinalAmount)
	assert.Equal(t, calculated, c.CalculatedAmount, "calculated amount is immutable")

	p, err := store.GetPaymentByClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, override, p.Amount)

	stored, err := store.GetClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, override, stored.FinalAmount)
	assert.Equal(t, calculated, stored.CalculatedAmount)
}

func TestApproveByHQ_RequiresCompanyApproval(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedMember(t, store, "m-001")
	c := createClaim(t, svc, "m-001")

	_, err := svc.ApproveByHQ(ctx, c.ID, "hq-1", "", nil)
	assert.ErrorIs(t, err, claims.ErrInvalidTransition)

	// The failed transition must not leave a payment behind.
	_, err = store.GetPaymentByClaim(ctx, c.ID)
	assert.ErrorIs(t, err, claims.ErrPaymentNotFound)

	stored, err := store.GetClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, claims.StatusPending, stored.Status)
}

func TestApproveByCompany_RequiresPending(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedMember(t, store, "m-001")
	c := createClaim(t, svc, "m-001")

	_, err := svc.ApproveByCompany(ctx, c.ID, "mgr-1", "")
	require.NoError(t, err)

	// Second approval at the same tier
	_, err = svc.ApproveByCompany(ctx, c.ID, "mgr-2", "")
	assert.ErrorIs(t, err, claims.ErrInvalidTransition)

	var tErr *claims.InvalidTransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, claims.StatusCompanyApproved, tErr.Status)
}

func TestApproveByHQ_PaymentInsertFailureRollsBackApproval(t *testing.T) {
	// GIVEN: a payment already occupies the claim's unique claim_id slot,
	// so the insert inside the approval transaction must fail every attempt
	svc, store := newTestService(t)
	ctx := context.Background()
	m := seedMember(t, store, "m-001")
	c := createClaim(t, svc, "m-001")
	_, err := svc.ApproveByCompany(ctx, c.ID, "mgr-1", "")
	require.NoError(t, err)

	require.NoError(t, store.InsertPayment(ctx, claims.Payment{
		ID: "P-squatter", ClaimID: c.ID, MemberID: m.ID, Amount: 1,
		PayoutDate: testNow, Bank: m.Bank, CreatedAt: testNow,
	}))

	// WHEN: headquarters approval runs
	_, err = svc.ApproveByHQ(ctx, c.ID, "hq-1", "", nil)

	// THEN: it fails, and the status update rolled back with the insert
	require.Error(t, err)
	stored, err := store.GetClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, claims.StatusCompanyApproved, stored.Status,
		"approval must not persist without its payment")
}

// =============================================================================
// REJECT
// =============================================================================

func TestReject_FromPending(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedMember(t, store, "m-001")
	c := createClaim(t, svc, "m-001")

	c, err := svc.Reject(ctx, c.ID, "mgr-1", "duplicate filing")
	require.NoError(t, err)
	assert.Equal(t, claims.StatusRejected, c.Status)
	require.NotNil(t, c.CompanyApproval, "pending-stage rejection lands in the company slot")
	assert.Equal(t, "[Rejected] duplicate filing", c.CompanyApproval.Comment)
	assert.Nil(t, c.HQApproval)

	stored, err := store.GetClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, claims.StatusRejected, stored.Status)
}

func TestReject_FromCompanyApproved(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedMember(t, store, "m-001")
	c := createClaim(t, svc, "m-001")
	_, err := svc.ApproveByCompany(ctx, c.ID, "mgr-1", "")
	require.NoError(t, err)

	c, err = svc.Reject(ctx, c.ID, "hq-1", "insufficient documentation")
	require.NoError(t, err)
	assert.Equal(t, claims.StatusRejected, c.Status)
	require.NotNil(t, c.HQApproval, "second-stage rejection lands in the headquarters slot")
	assert.Equal(t, "[Rejected] insufficient documentation", c.HQApproval.Comment)

	_, err = store.GetPaymentByClaim(ctx, c.ID)
	assert.ErrorIs(t, err, claims.ErrPaymentNotFound)
}

func TestReject_TerminalStatus(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedMember(t, store, "m-001")
	c := createClaim(t, svc, "m-001")

	_, err := svc.Reject(ctx, c.ID, "mgr-1", "first")
	require.NoError(t, err)

	_, err = svc.Reject(ctx, c.ID, "mgr-1", "again")
	assert.ErrorIs(t, err, claims.ErrInvalidTransition)
}

// =============================================================================
// MARK PAID / CANCEL
// =============================================================================

func TestMarkPaid_RequiresHQApproval(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedMember(t, store, "m-001")
	c := createClaim(t, svc, "m-001")

	_, err := svc.MarkPaid(ctx, c.ID, time.Time{})
	assert.ErrorIs(t, err, claims.ErrInvalidTransition)
}

func TestCancel_AnyStatus(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedMember(t, store, "m-001")
	c := createClaim(t, svc, "m-001")

	require.NoError(t, svc.Cancel(ctx, c.ID))

	stored, err := store.GetClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, claims.StatusCancelled, stored.Status)
	assert.True(t, stored.Status.Terminal())
}

func TestCancel_UnknownClaim(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.Cancel(context.Background(), "A99999999-999")
	assert.ErrorIs(t, err, claims.ErrClaimNotFound)
}

// =============================================================================
// PAYMENT EXPORT MARKING
// =============================================================================

func TestMarkPaymentsExported_Idempotent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedMember(t, store, "m-001")
	c := createClaim(t, svc, "m-001")
	_, err := svc.ApproveByCompany(ctx, c.ID, "mgr-1", "")
	require.NoError(t, err)
	_, err = svc.ApproveByHQ(ctx, c.ID, "hq-1", "", nil)
	require.NoError(t, err)

	p, err := store.GetPaymentByClaim(ctx, c.ID)
	require.NoError(t, err)

	marked, err := svc.MarkPaymentsExported(ctx, []string{p.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	exported, err := store.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, exported.ExportedAt)
	firstStamp := *exported.ExportedAt

	// Re-marking is a no-op and keeps the original timestamp.
	marked, err = svc.MarkPaymentsExported(ctx, []string{p.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, marked)

	again, err := store.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, firstStamp, *again.ExportedAt)
}

// =============================================================================
// ERROR SHAPE
// =============================================================================

func TestInvalidTransitionError_Unwraps(t *testing.T) {
	err := &claims.InvalidTransitionError{
		ClaimID: "A20260828-001", Operation: "mark paid", Status: claims.StatusPending,
	}
	assert.True(t, errors.Is(err, claims.ErrInvalidTransition))
}
