/*
lifecycle.go - The claim state machine

PURPOSE:
  Implements the five lifecycle transitions plus administrative
  cancellation. Every transition:
    1. loads the claim and checks the status precondition (typed
       InvalidTransitionError on violation),
    2. applies a conditional update so a concurrent transition cannot slip
       past the check,
    3. fires notifications and audit entries, logging and discarding their
       failures.

TRANSACTIONAL GUARANTEE:
  Headquarters approval is the critical one: the status change and the
  Payment insert happen inside a single store transaction. A failed payment
  insert rolls back the approval; an approved-but-unpaid claim cannot
  persist. Retries of the transition cannot create a second Payment because
  the conditional update no longer matches.

IDENTIFIER RETRIES:
  Claim and payment inserts retry up to MaxIDAttempts on uniqueness
  conflicts (see idgen.go), then fail ErrIDGenerationExhausted.

SEE ALSO:
  - store.go: the interfaces this service drives
  - benefit/calculate.go: invoked once, at creation
*/
package claims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/warp/benefit-engine/benefit"
)

// rejectionPrefix distinguishes rejection reasons from ordinary approval
// comments in the audit trail.
const rejectionPrefix = "[Rejected] "

// Service drives the claim lifecycle.
type Service struct {
	Store    TxStore
	Notifier Notifier // optional
	Audit    AuditLog // optional

	// Now is the clock; nil means time.Now. Tests pin it.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// =============================================================================
// CREATE
// =============================================================================

// Create submits a new claim: calculates the benefit amount, generates a
// date-scoped identifier, and persists the claim in pending status with
// FinalAmount equal to CalculatedAmount.
func (s *Service) Create(ctx context.Context, memberID string, params benefit.Params) (*Claim, error) {
	m, err := s.Store.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	submittedAt := s.now()

	result, err := benefit.Calculate(params, *m, submittedAt)
	if err != nil {
		return nil, err
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encoding claim parameters: %w", err)
	}

	claim := Claim{
		MemberID:         m.ID,
		CompanyID:        m.CompanyID,
		SubmittedAt:      submittedAt,
		Category:         result.Category,
		Label:            result.Label,
		ParamsJSON:       string(paramsJSON),
		CalculatedAmount: result.Amount,
		FinalAmount:      result.Amount,
		Attributes:       result.Attributes,
		Derivation:       result.Derivation,
		Status:           StatusPending,
		CreatedAt:        submittedAt,
		UpdatedAt:        submittedAt,
	}

	inserted := false
	for attempt := 0; attempt < MaxIDAttempts; attempt++ {
		id, err := ClaimID(ctx, s.Store, submittedAt, attempt)
		if err != nil {
			return nil, err
		}
		claim.ID = id

		err = s.Store.InsertClaim(ctx, claim)
		if err == nil {
			inserted = true
			break
		}
		if errors.Is(err, ErrDuplicateIdentifier) {
			continue
		}
		return nil, err
	}
	if !inserted {
		return nil, ErrIDGenerationExhausted
	}

	s.audit(ctx, "claim.create", claim.ID,
		fmt.Sprintf("%s for member %s, calculated %d", claim.Label, claim.MemberID, claim.CalculatedAmount))
	s.notifyApprovers(ctx, TierCompany, claim.CompanyID,
		"New benefit claim",
		fmt.Sprintf("%s submitted a claim for %s.", m.Name, claim.Label),
		claim.ID)

	return &claim, nil
}

// =============================================================================
// COMPANY APPROVAL
// =============================================================================

// ApproveByCompany records the first-tier approval. Requires pending status.
func (s *Service) ApproveByCompany(ctx context.Context, claimID, approverID, comment string) (*Claim, error) {
	claim, err := s.Store.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status != StatusPending {
		return nil, &InvalidTransitionError{ClaimID: claimID, Operation: "approve at company level", Status: claim.Status}
	}

	approval := &Approval{ApproverID: approverID, ApprovedAt: s.now(), Comment: comment}
	err = s.Store.UpdateClaim(ctx, ClaimUpdate{
		ID:              claimID,
		FromStatus:      []Status{StatusPending},
		ToStatus:        StatusCompanyApproved,
		CompanyApproval: approval,
	})
	if err != nil {
		return nil, err
	}
	claim.Status = StatusCompanyApproved
	claim.CompanyApproval = approval

	s.audit(ctx, "claim.approve_company", claimID, fmt.Sprintf("approved by %s", approverID))
	s.notifyApprovers(ctx, TierHeadquarters, "",
		"Claim awaiting headquarters approval",
		fmt.Sprintf("Claim %s (%s) passed company approval.", claimID, claim.Label),
		claimID)

	return claim, nil
}

// =============================================================================
// HEADQUARTERS APPROVAL - Atomic with payment creation
// =============================================================================

// ApproveByHQ records the final approval and creates exactly one Payment in
// the same store transaction. overrideAmount, when non-nil, becomes the
// final amount; CalculatedAmount is untouched either way.
func (s *Service) ApproveByHQ(ctx context.Context, claimID, approverID, comment string, overrideAmount *int64) (*Claim, error) {
	claim, err := s.Store.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status != StatusCompanyApproved {
		return nil, &InvalidTransitionError{ClaimID: claimID, Operation: "approve at headquarters level", Status: claim.Status}
	}

	m, err := s.Store.GetMember(ctx, claim.MemberID)
	if err != nil {
		return nil, err
	}

	finalAmount := claim.CalculatedAmount
	if overrideAmount != nil {
		finalAmount = *overrideAmount
	}

	approvedAt := s.now()
	approval := &Approval{ApproverID: approverID, ApprovedAt: approvedAt, Comment: comment}

	payment := Payment{
		ClaimID:    claim.ID,
		MemberID:   m.ID,
		Amount:     finalAmount,
		PayoutDate: approvedAt,
		Bank:       m.Bank, // snapshot at approval time
		CreatedAt:  approvedAt,
	}

	// Status update and payment insert are one unit: if either fails, both
	// roll back. Retrying after an identifier conflict re-runs the whole
	// transaction; once the status has moved, the conditional update stops
	// matching and no second payment can appear.
	inserted := false
	for attempt := 0; attempt < MaxIDAttempts; attempt++ {
		err = s.Store.WithTx(ctx, func(tx Store) error {
			id, err := PaymentID(ctx, tx, approvedAt, attempt)
			if err != nil {
				return err
			}
			payment.ID = id

			if err := tx.UpdateClaim(ctx, ClaimUpdate{
				ID:          claimID,
				FromStatus:  []Status{StatusCompanyApproved},
				ToStatus:    StatusHQApproved,
				HQApproval:  approval,
				FinalAmount: &finalAmount,
			}); err != nil {
				return err
			}
			return tx.InsertPayment(ctx, payment)
		})
		if err == nil {
			inserted = true
			break
		}
		if errors.Is(err, ErrDuplicateIdentifier) {
			continue
		}
		return nil, err
	}
	if !inserted {
		return nil, ErrIDGenerationExhausted
	}

	claim.Status = StatusHQApproved
	claim.HQApproval = approval
	claim.FinalAmount = finalAmount

	s.audit(ctx, "claim.approve_hq", claimID,
		fmt.Sprintf("approved by %s, final amount %d, payment %s", approverID, finalAmount, payment.ID))
	s.notifyMember(ctx, m.UserID,
		"Claim approved",
		fmt.Sprintf("Your claim for %s was approved. Payment of %d is scheduled.", claim.Label, finalAmount),
		claimID)

	return claim, nil
}

// =============================================================================
// REJECT
// =============================================================================

// Reject refuses a claim from either pending tier. The reason lands,
// prefixed, in the comment slot of whichever tier rejected.
func (s *Service) Reject(ctx context.Context, claimID, approverID, reason string) (*Claim, error) {
	claim, err := s.Store.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status != StatusPending && claim.Status != StatusCompanyApproved {
		return nil, &InvalidTransitionError{ClaimID: claimID, Operation: "reject", Status: claim.Status}
	}

	slot := &Approval{ApproverID: approverID, ApprovedAt: s.now(), Comment: rejectionPrefix + reason}
	update := ClaimUpdate{
		ID:         claimID,
		FromStatus: []Status{claim.Status},
		ToStatus:   StatusRejected,
	}
	if claim.Status == StatusPending {
		update.CompanyApproval = slot
		claim.CompanyApproval = slot
	} else {
		update.HQApproval = slot
		claim.HQApproval = slot
	}

	if err := s.Store.UpdateClaim(ctx, update); err != nil {
		return nil, err
	}
	claim.Status = StatusRejected

	m, err := s.Store.GetMember(ctx, claim.MemberID)
	if err == nil {
		s.notifyMember(ctx, m.UserID,
			"Claim rejected",
			fmt.Sprintf("Your claim for %s was rejected: %s", claim.Label, reason),
			claimID)
	}
	s.audit(ctx, "claim.reject", claimID, fmt.Sprintf("rejected by %s: %s", approverID, reason))

	return claim, nil
}

// =============================================================================
// MARK PAID
// =============================================================================

// MarkPaid records payout completion. paidAt zero defaults to now.
func (s *Service) MarkPaid(ctx context.Context, claimID string, paidAt time.Time) (*Claim, error) {
	claim, err := s.Store.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status != StatusHQApproved {
		return nil, &InvalidTransitionError{ClaimID: claimID, Operation: "mark paid", Status: claim.Status}
	}

	if paidAt.IsZero() {
		paidAt = s.now()
	}
	if err := s.Store.UpdateClaim(ctx, ClaimUpdate{
		ID:         claimID,
		FromStatus: []Status{StatusHQApproved},
		ToStatus:   StatusPaid,
		PaidAt:     &paidAt,
	}); err != nil {
		return nil, err
	}
	claim.Status = StatusPaid
	claim.PaidAt = &paidAt

	m, err := s.Store.GetMember(ctx, claim.MemberID)
	if err == nil {
		s.notifyMember(ctx, m.UserID,
			"Benefit paid",
			fmt.Sprintf("Your benefit for %s was paid out.", claim.Label),
			claimID)
	}
	s.audit(ctx, "claim.mark_paid", claimID, fmt.Sprintf("paid at %s", paidAt.Format("2006-01-02")))

	return claim, nil
}

// =============================================================================
// CANCEL - Administrative direct status write
// =============================================================================

// Cancel sets the cancelled status. Unlike the approval transitions this is
// a plain administrative write; cancellation is a status, not a deletion.
func (s *Service) Cancel(ctx context.Context, claimID string) error {
	if err := s.Store.UpdateClaim(ctx, ClaimUpdate{
		ID:       claimID,
		ToStatus: StatusCancelled,
	}); err != nil {
		return err
	}
	s.audit(ctx, "claim.cancel", claimID, "cancelled administratively")
	return nil
}

// =============================================================================
// PAYMENT EXPORT MARKING
// =============================================================================

// MarkPaymentsExported stamps the export marker on the given payments on
// behalf of a funds-transfer batch. Idempotent per payment.
func (s *Service) MarkPaymentsExported(ctx context.Context, paymentIDs []string) (int, error) {
	n, err := s.Store.MarkPaymentsExported(ctx, paymentIDs, s.now())
	if err != nil {
		return 0, err
	}
	s.audit(ctx, "payment.export", fmt.Sprintf("%d payments", n), "marked exported")
	return n, nil
}

// =============================================================================
// SIDE EFFECTS - Logged and discarded, never propagated
// =============================================================================

func (s *Service) notifyMember(ctx context.Context, userID, title, message, claimID string) {
	if s.Notifier == nil || userID == "" {
		return
	}
	if err := s.Notifier.Notify(ctx, userID, title, message, "claim", "/claims/"+claimID); err != nil {
		log.Printf("[Claims] notification failed for %s: %v", userID, err)
	}
}

func (s *Service) notifyApprovers(ctx context.Context, tier ApproverTier, companyID, title, message, claimID string) {
	if s.Notifier == nil {
		return
	}
	approvers, err := s.Store.ListApprovers(ctx, tier, companyID)
	if err != nil {
		log.Printf("[Claims] approver lookup failed: %v", err)
		return
	}
	for _, a := range approvers {
		if err := s.Notifier.Notify(ctx, a.UserID, title, message, "approval", "/claims/"+claimID); err != nil {
			log.Printf("[Claims] notification failed for %s: %v", a.UserID, err)
		}
	}
}

func (s *Service) audit(ctx context.Context, operation, target, details string) {
	if s.Audit == nil {
		return
	}
	if err := s.Audit.Record(ctx, operation, target, details); err != nil {
		log.Printf("[Claims] audit record failed for %s %s: %v", operation, target, err)
	}
}
