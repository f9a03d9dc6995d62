/*
handlers.go - HTTP API handlers for the benefit engine

PURPOSE:
  Exposes claim lifecycle, fee aggregation, member management, and payment
  export over REST. Handles HTTP request/response, JSON serialization, and
  delegates to domain logic.

ENDPOINTS:
  Members:
    GET    /api/members                List members (admin)
    POST   /api/members                Create/update member (admin)
    GET    /api/members/{id}           Get member details

  Claims:
    POST   /api/claims                 Submit a claim
    GET    /api/claims                 List claims (scoped by session)
    GET    /api/claims/{id}            Get claim with calculation detail
    POST   /api/claims/{id}/approve-company
    POST   /api/claims/{id}/approve-hq
    POST   /api/claims/{id}/reject
    POST   /api/claims/{id}/paid
    POST   /api/claims/{id}/cancel

  Payments:
    GET    /api/payments               List payments (?unexported=true)
    POST   /api/payments/mark-exported

  Fees:
    GET    /api/fees?month=YYYY-MM     List a month's rows
    POST   /api/fees/generate          Aggregate one month
    POST   /api/fees/{companyID}/payments
    POST   /api/fees/invoice

  Misc:
    GET    /api/notifications          Session user's inbox
    POST   /api/admin/approvers        Approver registry
    POST   /api/admin/fee-rates        Live rate table

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, unknown category, bad month format
  - 403: Caller's role or company does not cover the target
  - 404: Member/claim/payment/fee not found
  - 409: Invalid status transition, identifier conflicts
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Session extraction and role gates
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/benefit-engine/benefit"
	"github.com/warp/benefit-engine/claims"
	"github.com/warp/benefit-engine/fees"
	"github.com/warp/benefit-engine/member"
	"github.com/warp/benefit-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Claims *claims.Service
	Fees   *fees.Service
}

// NewHandler wires the handler with the store and domain services.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:  store,
		Claims: &claims.Service{Store: store, Notifier: store, Audit: store},
		Fees:   &fees.Service{Store: store},
	}
}

// =============================================================================
// MEMBER ENDPOINTS
// =============================================================================

// ListMembers returns all members.
// GET /api/members
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Store.ListMembers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list members", err)
		return
	}

	dtos := make([]MemberDTO, 0, len(members))
	for _, m := range members {
		dtos = append(dtos, toMemberDTO(m))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMember returns one member.
// GET /api/members/{id}
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	m, err := h.Store.GetMember(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get member", err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*m))
}

// SaveMember creates or updates a member.
// POST /api/members
func (h *Handler) SaveMember(w http.ResponseWriter, r *http.Request) {
	var req SaveMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.CompanyID == "" {
		writeError(w, http.StatusBadRequest, "id and company_id are required", nil)
		return
	}

	enrolledAt, err := time.Parse("2006-01-02", req.EnrolledAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid enrolled_at format (use YYYY-MM-DD)", err)
		return
	}
	status := member.EmploymentStatus(req.EmploymentStatus)
	switch status {
	case member.StatusActive, member.StatusOnLeave, member.StatusWithdrawn:
	default:
		writeError(w, http.StatusBadRequest, "Invalid employment_status", nil)
		return
	}
	tier := member.FeeTier(req.FeeTier)
	if !validTier(tier) {
		writeError(w, http.StatusBadRequest, "Invalid fee_tier", nil)
		return
	}

	m := member.Member{
		ID:               req.ID,
		Name:             req.Name,
		CompanyID:        req.CompanyID,
		UserID:           req.UserID,
		EnrolledAt:       enrolledAt,
		EmploymentStatus: status,
		FeeTier:          tier,
		MonthlySalary:    req.MonthlySalary,
		Bank:             req.Bank,
	}
	if err := h.Store.SaveMember(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save member", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(m))
}

func validTier(t member.FeeTier) bool {
	for _, known := range member.Tiers() {
		if t == known {
			return true
		}
	}
	return false
}

// =============================================================================
// CLAIM ENDPOINTS
// =============================================================================

// SubmitClaim creates a claim: decodes the category params, runs the
// calculation, and stores the result as a pending claim.
// POST /api/claims
func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	var req SubmitClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	session, _ := SessionFrom(r.Context())
	if session.Role == RoleMember {
		// Members may only file for themselves.
		if req.MemberID == "" {
			req.MemberID = session.MemberID
		}
		if req.MemberID != session.MemberID {
			writeError(w, http.StatusForbidden, "Cannot submit for another member", nil)
			return
		}
	}
	if req.MemberID == "" {
		writeError(w, http.StatusBadRequest, "member_id is required", nil)
		return
	}

	params, err := benefit.DecodeParams(req.Category, req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid claim parameters", err)
		return
	}

	claim, err := h.Claims.Create(r.Context(), req.MemberID, params)
	if err != nil {
		writeDomainError(w, "Failed to create claim", err)
		return
	}
	writeJSON(w, http.StatusCreated, toClaimDTO(*claim))
}

// ListClaims returns claims visible to the session: members see their own,
// company approvers see their company, admins and HQ approvers see all.
// GET /api/claims?status=pending
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFrom(r.Context())

	filter := sqlite.ClaimFilter{Status: claims.Status(r.URL.Query().Get("status"))}
	switch session.Role {
	case RoleMember:
		filter.MemberID = session.MemberID
	case RoleApprover:
		filter.CompanyID = session.CompanyID // empty for HQ approvers: all companies
	}

	list, err := h.Store.ListClaims(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list claims", err)
		return
	}

	dtos := make([]ClaimDTO, 0, len(list))
	for _, c := range list {
		dtos = append(dtos, toClaimDTO(c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetClaim returns one claim with its calculation detail.
// GET /api/claims/{id}
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	c, err := h.Store.GetClaim(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get claim", err)
		return
	}

	session, _ := SessionFrom(r.Context())
	if session.Role == RoleMember && c.MemberID != session.MemberID {
		writeError(w, http.StatusForbidden, "Not your claim", nil)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTO(*c))
}

// ApproveCompany records the company-tier sign-off.
// POST /api/claims/{id}/approve-company
func (h *Handler) ApproveCompany(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	session, _ := SessionFrom(r.Context())
	c, err := h.Claims.ApproveByCompany(r.Context(), chi.URLParam(r, "id"), session.UserID, req.Comment)
	if err != nil {
		writeDomainError(w, "Failed to approve claim", err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTO(*c))
}

// ApproveHQ records the headquarters sign-off, optionally overriding the
// payable amount, and spawns the payment record.
// POST /api/claims/{id}/approve-hq
func (h *Handler) ApproveHQ(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.OverrideAmount != nil && *req.OverrideAmount < 0 {
		writeError(w, http.StatusBadRequest, "override_amount cannot be negative", nil)
		return
	}

	session, _ := SessionFrom(r.Context())
	c, err := h.Claims.ApproveByHQ(r.Context(), chi.URLParam(r, "id"), session.UserID, req.Comment, req.OverrideAmount)
	if err != nil {
		writeDomainError(w, "Failed to approve claim", err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTO(*c))
}

// RejectClaim rejects a claim at either approval tier.
// POST /api/claims/{id}/reject
func (h *Handler) RejectClaim(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required", nil)
		return
	}

	session, _ := SessionFrom(r.Context())
	c, err := h.Claims.Reject(r.Context(), chi.URLParam(r, "id"), session.UserID, req.Reason)
	if err != nil {
		writeDomainError(w, "Failed to reject claim", err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTO(*c))
}

// MarkClaimPaid records completion of the bank transfer.
// POST /api/claims/{id}/paid
func (h *Handler) MarkClaimPaid(w http.ResponseWriter, r *http.Request) {
	var req MarkPaidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var paidAt time.Time
	if req.PaidAt != "" {
		var err error
		paidAt, err = time.Parse(time.RFC3339, req.PaidAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid paid_at format (use RFC3339)", err)
			return
		}
	}

	c, err := h.Claims.MarkPaid(r.Context(), chi.URLParam(r, "id"), paidAt)
	if err != nil {
		writeDomainError(w, "Failed to mark claim paid", err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTO(*c))
}

// CancelClaim administratively cancels a claim.
// POST /api/claims/{id}/cancel
func (h *Handler) CancelClaim(w http.ResponseWriter, r *http.Request) {
	if err := h.Claims.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, "Failed to cancel claim", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// =============================================================================
// PAYMENT ENDPOINTS
// =============================================================================

// ListPayments returns bank-transfer records.
// GET /api/payments?unexported=true
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	unexportedOnly := r.URL.Query().Get("unexported") == "true"
	payments, err := h.Store.ListPayments(r.Context(), unexportedOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}

	dtos := make([]PaymentDTO, 0, len(payments))
	for _, p := range payments {
		dtos = append(dtos, toPaymentDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// MarkPaymentsExported marks a batch as consumed by a funds-transfer export.
// POST /api/payments/mark-exported
func (h *Handler) MarkPaymentsExported(w http.ResponseWriter, r *http.Request) {
	var req MarkExportedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.PaymentIDs) == 0 {
		writeError(w, http.StatusBadRequest, "payment_ids is required", nil)
		return
	}

	marked, err := h.Claims.MarkPaymentsExported(r.Context(), req.PaymentIDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to mark payments exported", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": marked})
}

// =============================================================================
// FEE ENDPOINTS
// =============================================================================

// ListFees returns one month's per-company rows.
// GET /api/fees?month=2026-08
func (h *Handler) ListFees(w http.ResponseWriter, r *http.Request) {
	yearMonth := r.URL.Query().Get("month")
	if yearMonth == "" {
		writeError(w, http.StatusBadRequest, "month query parameter is required", nil)
		return
	}

	list, err := h.Store.ListFees(r.Context(), yearMonth)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list fees", err)
		return
	}

	session, _ := SessionFrom(r.Context())
	dtos := make([]MonthlyFeeDTO, 0, len(list))
	for _, f := range list {
		if session.Role == RoleApprover && session.CompanyID != "" && f.CompanyID != session.CompanyID {
			continue
		}
		dtos = append(dtos, toFeeDTO(f))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GenerateFees regenerates one month's aggregation from current membership.
// POST /api/fees/generate
func (h *Handler) GenerateFees(w http.ResponseWriter, r *http.Request) {
	var req GenerateFeesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	count, err := h.Fees.GenerateMonthly(r.Context(), req.YearMonth)
	if err != nil {
		writeDomainError(w, "Failed to generate fees", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"year_month": req.YearMonth, "companies": count})
}

// RecordFeePayment records a remittance against one company's month.
// POST /api/fees/{companyID}/payments?month=2026-08
func (h *Handler) RecordFeePayment(w http.ResponseWriter, r *http.Request) {
	yearMonth := r.URL.Query().Get("month")
	if yearMonth == "" {
		writeError(w, http.StatusBadRequest, "month query parameter is required", nil)
		return
	}

	var req FeePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	fee, err := h.Fees.RecordPayment(r.Context(), yearMonth, chi.URLParam(r, "companyID"), req.Amount)
	if err != nil {
		writeDomainError(w, "Failed to record fee payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toFeeDTO(*fee))
}

// InvoiceFees marks company rows invoiced for a month.
// POST /api/fees/invoice
func (h *Handler) InvoiceFees(w http.ResponseWriter, r *http.Request) {
	var req InvoiceFeesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.YearMonth == "" || len(req.CompanyIDs) == 0 {
		writeError(w, http.StatusBadRequest, "year_month and company_ids are required", nil)
		return
	}

	if err := h.Fees.MarkInvoiced(r.Context(), req.YearMonth, req.CompanyIDs, time.Time{}); err != nil {
		writeDomainError(w, "Failed to invoice fees", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "invoiced"})
}

// SetFeeRate updates one tier's live rate.
// POST /api/admin/fee-rates
func (h *Handler) SetFeeRate(w http.ResponseWriter, r *http.Request) {
	var req SetFeeRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	tier := member.FeeTier(req.Tier)
	if !validTier(tier) {
		writeError(w, http.StatusBadRequest, "Invalid tier", nil)
		return
	}
	if req.Rate <= 0 {
		writeError(w, http.StatusBadRequest, "rate must be positive", nil)
		return
	}

	if err := h.Store.SetFeeRate(r.Context(), tier, req.Rate); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to set fee rate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tier": req.Tier, "rate": req.Rate})
}

// =============================================================================
// NOTIFICATION / APPROVER ENDPOINTS
// =============================================================================

// ListNotifications returns the session user's inbox, newest first.
// GET /api/notifications
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFrom(r.Context())
	list, err := h.Store.ListNotifications(r.Context(), session.UserID, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list notifications", err)
		return
	}

	dtos := make([]NotificationDTO, 0, len(list))
	for _, n := range list {
		dtos = append(dtos, toNotificationDTO(n))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveApprover registers or deactivates an approver.
// POST /api/admin/approvers
func (h *Handler) SaveApprover(w http.ResponseWriter, r *http.Request) {
	var req SaveApproverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	tier := claims.ApproverTier(req.Tier)
	if tier != claims.TierCompany && tier != claims.TierHeadquarters {
		writeError(w, http.StatusBadRequest, "Invalid tier", nil)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	if tier == claims.TierCompany && req.CompanyID == "" {
		writeError(w, http.StatusBadRequest, "company_id is required for company-tier approvers", nil)
		return
	}

	a := claims.Approver{
		UserID:    req.UserID,
		CompanyID: req.CompanyID,
		Tier:      tier,
		Active:    req.Active,
	}
	if err := h.Store.SaveApprover(r.Context(), a); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save approver", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	var unknownCategory *benefit.UnknownCategoryError
	switch {
	case claims.IsNotFound(err), errors.Is(err, fees.ErrFeeNotFound):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, claims.ErrInvalidTransition),
		errors.Is(err, claims.ErrDuplicateIdentifier),
		errors.Is(err, claims.ErrIDGenerationExhausted):
		writeError(w, http.StatusConflict, message, err)
	case errors.As(err, &unknownCategory),
		errors.Is(err, fees.ErrInvalidYearMonth),
		errors.Is(err, fees.ErrInvalidPaymentAmount),
		errors.Is(err, fees.ErrNoEligibleMembers):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
