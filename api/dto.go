/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - benefit/types.go: the category parameter bags carried in params
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/warp/benefit-engine/claims"
	"github.com/warp/benefit-engine/fees"
	"github.com/warp/benefit-engine/member"
	"github.com/warp/benefit-engine/store/sqlite"
)

// =============================================================================
// MEMBERS
// =============================================================================

// MemberDTO represents a member in API responses.
type MemberDTO struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	CompanyID        string             `json:"company_id"`
	UserID           string             `json:"user_id"`
	EnrolledAt       string             `json:"enrolled_at"` // YYYY-MM-DD
	EmploymentStatus string             `json:"employment_status"`
	FeeTier          string             `json:"fee_tier"`
	MonthlySalary    int64              `json:"monthly_salary"`
	Bank             member.BankAccount `json:"bank"`
}

// SaveMemberRequest creates or updates a member.
type SaveMemberRequest struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	CompanyID        string             `json:"company_id"`
	UserID           string             `json:"user_id"`
	EnrolledAt       string             `json:"enrolled_at"` // YYYY-MM-DD
	EmploymentStatus string             `json:"employment_status"`
	FeeTier          string             `json:"fee_tier"`
	MonthlySalary    int64              `json:"monthly_salary"`
	Bank             member.BankAccount `json:"bank"`
}

func toMemberDTO(m member.Member) MemberDTO {
	return MemberDTO{
		ID:               m.ID,
		Name:             m.Name,
		CompanyID:        m.CompanyID,
		UserID:           m.UserID,
		EnrolledAt:       m.EnrolledAt.Format("2006-01-02"),
		EmploymentStatus: string(m.EmploymentStatus),
		FeeTier:          string(m.FeeTier),
		MonthlySalary:    m.MonthlySalary,
		Bank:             m.Bank,
	}
}

// =============================================================================
// CLAIMS
// =============================================================================

// SubmitClaimRequest creates a new claim. Params is the category-specific
// parameter bag, decoded by benefit.DecodeParams.
type SubmitClaimRequest struct {
	MemberID string          `json:"member_id"`
	Category string          `json:"category"`
	Params   json.RawMessage `json:"params"`
}

// ApproveRequest carries one tier's sign-off.
type ApproveRequest struct {
	Comment        string `json:"comment"`
	OverrideAmount *int64 `json:"override_amount,omitempty"` // headquarters tier only
}

// RejectRequest carries a rejection reason.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// MarkPaidRequest optionally pins the completion timestamp.
type MarkPaidRequest struct {
	PaidAt string `json:"paid_at,omitempty"` // RFC3339; empty means now
}

// ApprovalDTO is one tier's recorded sign-off.
type ApprovalDTO struct {
	ApproverID string `json:"approver_id"`
	ApprovedAt string `json:"approved_at"`
	Comment    string `json:"comment,omitempty"`
}

// ClaimDTO represents a claim in API responses.
type ClaimDTO struct {
	ID               string            `json:"id"`
	MemberID         string            `json:"member_id"`
	CompanyID        string            `json:"company_id"`
	SubmittedAt      string            `json:"submitted_at"`
	Category         string            `json:"category"`
	Label            string            `json:"label"`
	CalculatedAmount int64             `json:"calculated_amount"`
	FinalAmount      int64             `json:"final_amount"`
	Attributes       map[string]string `json:"attributes,omitempty"`
	Derivation       string            `json:"derivation,omitempty"`
	Status           string            `json:"status"`
	CompanyApproval  *ApprovalDTO      `json:"company_approval,omitempty"`
	HQApproval       *ApprovalDTO      `json:"hq_approval,omitempty"`
	PaidAt           *string           `json:"paid_at,omitempty"`
}

func toApprovalDTO(a *claims.Approval) *ApprovalDTO {
	if a == nil {
		return nil
	}
	return &ApprovalDTO{
		ApproverID: a.ApproverID,
		ApprovedAt: a.ApprovedAt.Format(time.RFC3339),
		Comment:    a.Comment,
	}
}

func toClaimDTO(c claims.Claim) ClaimDTO {
	dto := ClaimDTO{
		ID:               c.ID,
		MemberID:         c.MemberID,
		CompanyID:        c.CompanyID,
		SubmittedAt:      c.SubmittedAt.Format(time.RFC3339),
		Category:         string(c.Category),
		Label:            c.Label,
		CalculatedAmount: c.CalculatedAmount,
		FinalAmount:      c.FinalAmount,
		Attributes:       c.Attributes,
		Derivation:       c.Derivation,
		Status:           string(c.Status),
		CompanyApproval:  toApprovalDTO(c.CompanyApproval),
		HQApproval:       toApprovalDTO(c.HQApproval),
	}
	if c.PaidAt != nil {
		s := c.PaidAt.Format(time.RFC3339)
		dto.PaidAt = &s
	}
	return dto
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentDTO represents a bank-transfer record in API responses.
type PaymentDTO struct {
	ID         string             `json:"id"`
	ClaimID    string             `json:"claim_id"`
	MemberID   string             `json:"member_id"`
	Amount     int64              `json:"amount"`
	PayoutDate string             `json:"payout_date"`
	Bank       member.BankAccount `json:"bank"`
	ExportedAt *string            `json:"exported_at,omitempty"`
}

// MarkExportedRequest marks a batch of payments as consumed by an export.
type MarkExportedRequest struct {
	PaymentIDs []string `json:"payment_ids"`
}

func toPaymentDTO(p claims.Payment) PaymentDTO {
	dto := PaymentDTO{
		ID:         p.ID,
		ClaimID:    p.ClaimID,
		MemberID:   p.MemberID,
		Amount:     p.Amount,
		PayoutDate: p.PayoutDate.Format("2006-01-02"),
		Bank:       p.Bank,
	}
	if p.ExportedAt != nil {
		s := p.ExportedAt.Format(time.RFC3339)
		dto.ExportedAt = &s
	}
	return dto
}

// =============================================================================
// FEES
// =============================================================================

// GenerateFeesRequest triggers aggregation for one month.
type GenerateFeesRequest struct {
	YearMonth string `json:"year_month"` // "2006-01"
}

// FeePaymentRequest records a (possibly partial) remittance.
type FeePaymentRequest struct {
	Amount int64 `json:"amount"`
}

// InvoiceFeesRequest marks companies' monthly rows invoiced.
type InvoiceFeesRequest struct {
	YearMonth  string   `json:"year_month"`
	CompanyIDs []string `json:"company_ids"`
}

// SetFeeRateRequest updates one tier's live rate.
type SetFeeRateRequest struct {
	Tier string `json:"tier"`
	Rate int64  `json:"rate"`
}

// MonthlyFeeDTO represents one company's month in API responses.
type MonthlyFeeDTO struct {
	YearMonth    string         `json:"year_month"`
	CompanyID    string         `json:"company_id"`
	TierCounts   map[string]int `json:"tier_counts"`
	OnLeaveCount int            `json:"on_leave_count"`
	Total        int64          `json:"total"`
	PaidAmount   int64          `json:"paid_amount"`
	Outstanding  int64          `json:"outstanding"`
	Status       string         `json:"status"`
	InvoicedAt   *string        `json:"invoiced_at,omitempty"`
}

func toFeeDTO(f fees.MonthlyFee) MonthlyFeeDTO {
	counts := make(map[string]int, len(f.TierCounts))
	for tier, n := range f.TierCounts {
		counts[string(tier)] = n
	}
	dto := MonthlyFeeDTO{
		YearMonth:    f.YearMonth,
		CompanyID:    f.CompanyID,
		TierCounts:   counts,
		OnLeaveCount: f.OnLeaveCount,
		Total:        f.Total,
		PaidAmount:   f.PaidAmount,
		Outstanding:  f.Outstanding(),
		Status:       string(f.Status),
	}
	if f.InvoicedAt != nil {
		s := f.InvoicedAt.Format(time.RFC3339)
		dto.InvoicedAt = &s
	}
	return dto
}

// =============================================================================
// APPROVERS / NOTIFICATIONS / ERRORS
// =============================================================================

// SaveApproverRequest registers or deactivates an approver.
type SaveApproverRequest struct {
	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id,omitempty"`
	Tier      string `json:"tier"`
	Active    bool   `json:"active"`
}

// NotificationDTO is one stored inbox entry.
type NotificationDTO struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Kind      string `json:"kind,omitempty"`
	LinkPath  string `json:"link_path,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toNotificationDTO(n sqlite.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Kind:      n.Kind,
		LinkPath:  n.LinkPath,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
