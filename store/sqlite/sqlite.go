/*
Package sqlite provides the SQLite-backed implementation of every storage
interface in the benefit engine.

PURPOSE:
  One store, all tables: members, claims, payments, approvers, monthly
  fees, fee rates, notifications, audit log. Implements claims.TxStore,
  fees.Store, claims.Notifier, and claims.AuditLog. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

UNIQUENESS:
  The claim and payment identifier columns are PRIMARY KEYs; inserts that
  collide surface claims.ErrDuplicateIdentifier, which the identifier
  generator's bounded retry depends on. payments.claim_id carries its own
  UNIQUE constraint: the schema itself forbids a second payment for a claim.

CONDITIONAL UPDATES:
  UpdateClaim guards transitions with `WHERE id = ? AND status IN (...)`
  and inspects rows-affected, so two concurrent transitions cannot both
  pass the same precondition.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety within the process. SQLite is opened
  with WAL (Write-Ahead Logging) for better reader concurrency and crash
  recovery.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

USAGE:
  store, err := sqlite.New("./data/benefit.db")  // ":memory:" for tests
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  lifecycle := &claims.Service{Store: store, Notifier: store, Audit: store}

SEE ALSO:
  - claims/store.go: interface definitions and the uniqueness contract
  - fees/aggregate.go: the fee store contract
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/benefit-engine/benefit"
	"github.com/warp/benefit-engine/claims"
	"github.com/warp/benefit-engine/fees"
	"github.com/warp/benefit-engine/member"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		company_id TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		enrolled_at TEXT NOT NULL,
		employment_status TEXT NOT NULL,
		fee_tier TEXT NOT NULL,
		monthly_salary INTEGER NOT NULL DEFAULT 0,
		bank_code TEXT NOT NULL DEFAULT '',
		branch_code TEXT NOT NULL DEFAULT '',
		account_type TEXT NOT NULL DEFAULT '',
		account_number TEXT NOT NULL DEFAULT '',
		account_holder TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_members_company
		ON members(company_id);
	CREATE INDEX IF NOT EXISTS idx_members_status
		ON members(employment_status);

	-- The PRIMARY KEY doubles as the uniqueness constraint the identifier
	-- generator retries against.
	CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		company_id TEXT NOT NULL,
		submitted_at TEXT NOT NULL,
		category TEXT NOT NULL,
		label TEXT NOT NULL,
		params_json TEXT NOT NULL DEFAULT '{}',
		attributes_json TEXT NOT NULL DEFAULT '{}',
		derivation TEXT NOT NULL DEFAULT '',
		calculated_amount INTEGER NOT NULL,
		final_amount INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		company_approver_id TEXT,
		company_approved_at TEXT,
		company_comment TEXT,
		hq_approver_id TEXT,
		hq_approved_at TEXT,
		hq_comment TEXT,
		scheduled_payment_at TEXT,
		paid_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_claims_member
		ON claims(member_id);
	CREATE INDEX IF NOT EXISTS idx_claims_company_status
		ON claims(company_id, status);
	CREATE INDEX IF NOT EXISTS idx_claims_status
		ON claims(status);

	-- claim_id is UNIQUE: one payment per claim, enforced by the schema,
	-- not just the lifecycle.
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		claim_id TEXT NOT NULL UNIQUE,
		member_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		payout_date TEXT NOT NULL,
		bank_code TEXT NOT NULL DEFAULT '',
		branch_code TEXT NOT NULL DEFAULT '',
		account_type TEXT NOT NULL DEFAULT '',
		account_number TEXT NOT NULL DEFAULT '',
		account_holder TEXT NOT NULL DEFAULT '',
		exported_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_member
		ON payments(member_id);

	CREATE TABLE IF NOT EXISTS approvers (
		user_id TEXT NOT NULL,
		company_id TEXT NOT NULL DEFAULT '',
		tier TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		PRIMARY KEY (user_id, tier, company_id)
	);

	CREATE INDEX IF NOT EXISTS idx_approvers_tier_company
		ON approvers(tier, company_id);

	CREATE TABLE IF NOT EXISTS monthly_fees (
		year_month TEXT NOT NULL,
		company_id TEXT NOT NULL,
		tier_a_count INTEGER NOT NULL DEFAULT 0,
		tier_b_count INTEGER NOT NULL DEFAULT 0,
		tier_c_count INTEGER NOT NULL DEFAULT 0,
		on_leave_count INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL DEFAULT 0,
		paid_amount INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'uninvoiced',
		invoiced_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (year_month, company_id)
	);

	CREATE TABLE IF NOT EXISTS fee_rates (
		tier TEXT PRIMARY KEY,
		rate INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT '',
		link_path TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		read_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_user
		ON notifications(user_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		target TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_operation
		ON audit_log(operation, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so the same helpers serve
// direct calls and WithTx callbacks.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// MEMBERS
// =============================================================================

// SaveMember inserts or updates a member.
func (s *Store) SaveMember(ctx context.Context, m member.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members
		(id, name, company_id, user_id, enrolled_at, employment_status, fee_tier,
		 monthly_salary, bank_code, branch_code, account_type, account_number,
		 account_holder, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			company_id = excluded.company_id,
			user_id = excluded.user_id,
			enrolled_at = excluded.enrolled_at,
			employment_status = excluded.employment_status,
			fee_tier = excluded.fee_tier,
			monthly_salary = excluded.monthly_salary,
			bank_code = excluded.bank_code,
			branch_code = excluded.branch_code,
			account_type = excluded.account_type,
			account_number = excluded.account_number,
			account_holder = excluded.account_holder,
			updated_at = excluded.updated_at
	`,
		m.ID, m.Name, m.CompanyID, m.UserID,
		m.EnrolledAt.UTC().Format(time.RFC3339),
		string(m.EmploymentStatus), string(m.FeeTier), m.MonthlySalary,
		m.Bank.BankCode, m.Bank.BranchCode, m.Bank.AccountType,
		m.Bank.AccountNumber, m.Bank.AccountHolder,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save member: %w", err)
	}
	return nil
}

// GetMember implements claims.Store.
func (s *Store) GetMember(ctx context.Context, memberID string) (*member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getMember(ctx, s.db, memberID)
}

const memberColumns = `
	id, name, company_id, user_id, enrolled_at, employment_status, fee_tier,
	monthly_salary, bank_code, branch_code, account_type, account_number,
	account_holder, created_at, updated_at`

func getMember(ctx context.Context, db dbtx, memberID string) (*member.Member, error) {
	row := db.QueryRowContext(ctx,
		`SELECT`+memberColumns+` FROM members WHERE id = ?`, memberID)

	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, claims.ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

// ListMembers returns all members ordered by id.
func (s *Store) ListMembers(ctx context.Context) ([]member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryMembers(ctx, `SELECT`+memberColumns+` FROM members ORDER BY id`)
}

// ListFeeMembers implements fees.Store: every active or on-leave member.
// Withdrawn members never contribute to a month's aggregation.
func (s *Store) ListFeeMembers(ctx context.Context) ([]member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryMembers(ctx, `
		SELECT`+memberColumns+`
		FROM members
		WHERE employment_status IN (?, ?)
		ORDER BY company_id, id
	`, string(member.StatusActive), string(member.StatusOnLeave))
}

func (s *Store) queryMembers(ctx context.Context, query string, args ...any) ([]member.Member, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []member.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func scanMember(r rowScanner) (*member.Member, error) {
	var (
		m                    member.Member
		enrolledAt           string
		status, tier         string
		createdAt, updatedAt string
	)
	err := r.Scan(
		&m.ID, &m.Name, &m.CompanyID, &m.UserID, &enrolledAt, &status, &tier,
		&m.MonthlySalary, &m.Bank.BankCode, &m.Bank.BranchCode,
		&m.Bank.AccountType, &m.Bank.AccountNumber, &m.Bank.AccountHolder,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.EnrolledAt = parseTime(enrolledAt)
	m.EmploymentStatus = member.EmploymentStatus(status)
	m.FeeTier = member.FeeTier(tier)
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return &m, nil
}

// =============================================================================
// CLAIMS (claims.Store)
// =============================================================================

// InsertClaim implements claims.Store.
func (s *Store) InsertClaim(ctx context.Context, c claims.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertClaim(ctx, s.db, c)
}

func insertClaim(ctx context.Context, db dbtx, c claims.Claim) error {
	attributesJSON, err := json.Marshal(c.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode claim attributes: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO claims
		(id, member_id, company_id, submitted_at, category, label, params_json,
		 attributes_json, derivation, calculated_amount, final_amount, status,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.MemberID, c.CompanyID,
		c.SubmittedAt.UTC().Format(time.RFC3339),
		string(c.Category), c.Label, c.ParamsJSON,
		string(attributesJSON), c.Derivation,
		c.CalculatedAmount, c.FinalAmount, string(c.Status),
		c.CreatedAt.UTC().Format(time.RFC3339),
		c.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return claims.ErrDuplicateIdentifier
		}
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	return nil
}

const claimColumns = `
	id, member_id, company_id, submitted_at, category, label, params_json,
	attributes_json, derivation, calculated_amount, final_amount, status,
	company_approver_id, company_approved_at, company_comment,
	hq_approver_id, hq_approved_at, hq_comment,
	scheduled_payment_at, paid_at, created_at, updated_at`

// GetClaim implements claims.Store.
func (s *Store) GetClaim(ctx context.Context, claimID string) (*claims.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getClaim(ctx, s.db, claimID)
}

func getClaim(ctx context.Context, db dbtx, claimID string) (*claims.Claim, error) {
	row := db.QueryRowContext(ctx,
		`SELECT`+claimColumns+` FROM claims WHERE id = ?`, claimID)

	c, err := scanClaim(row)
	if err == sql.ErrNoRows {
		return nil, claims.ErrClaimNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	return c, nil
}

func scanClaim(r rowScanner) (*claims.Claim, error) {
	var (
		c                           claims.Claim
		submittedAt                 string
		category, status            string
		attributesJSON              string
		companyApprover, hqApprover sql.NullString
		companyAt, hqAt             sql.NullString
		companyComment, hqComment   sql.NullString
		scheduledAt, paidAt         sql.NullString
		createdAt, updatedAt        string
	)
	err := r.Scan(
		&c.ID, &c.MemberID, &c.CompanyID, &submittedAt, &category, &c.Label,
		&c.ParamsJSON, &attributesJSON, &c.Derivation,
		&c.CalculatedAmount, &c.FinalAmount, &status,
		&companyApprover, &companyAt, &companyComment,
		&hqApprover, &hqAt, &hqComment,
		&scheduledAt, &paidAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.SubmittedAt = parseTime(submittedAt)
	c.Category = benefit.Category(category)
	c.Status = claims.Status(status)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)

	if attributesJSON != "" && attributesJSON != "null" {
		if err := json.Unmarshal([]byte(attributesJSON), &c.Attributes); err != nil {
			return nil, fmt.Errorf("failed to decode claim attributes: %w", err)
		}
	}
	if companyApprover.Valid {
		c.CompanyApproval = &claims.Approval{
			ApproverID: companyApprover.String,
			ApprovedAt: parseTime(companyAt.String),
			Comment:    companyComment.String,
		}
	}
	if hqApprover.Valid {
		c.HQApproval = &claims.Approval{
			ApproverID: hqApprover.String,
			ApprovedAt: parseTime(hqAt.String),
			Comment:    hqComment.String,
		}
	}
	if scheduledAt.Valid {
		t := parseTime(scheduledAt.String)
		c.ScheduledPaymentAt = &t
	}
	if paidAt.Valid {
		t := parseTime(paidAt.String)
		c.PaidAt = &t
	}
	return &c, nil
}

// CountClaimsWithPrefix implements claims.Store.
func (s *Store) CountClaimsWithPrefix(ctx context.Context, prefix string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countWithPrefix(ctx, s.db, "claims", prefix)
}

// CountPaymentsWithPrefix implements claims.Store.
func (s *Store) CountPaymentsWithPrefix(ctx context.Context, prefix string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countWithPrefix(ctx, s.db, "payments", prefix)
}

func countWithPrefix(ctx context.Context, db dbtx, table, prefix string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+table+` WHERE id LIKE ? || '%'`,
		prefix,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return count, nil
}

// UpdateClaim implements claims.Store: a conditional transition guarded by
// the current status.
func (s *Store) UpdateClaim(ctx context.Context, u claims.ClaimUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateClaim(ctx, s.db, u)
}

func updateClaim(ctx context.Context, db dbtx, u claims.ClaimUpdate) error {
	set := []string{"status = ?", "updated_at = ?"}
	args := []any{string(u.ToStatus), time.Now().UTC().Format(time.RFC3339)}

	if u.CompanyApproval != nil {
		set = append(set, "company_approver_id = ?", "company_approved_at = ?", "company_comment = ?")
		args = append(args, u.CompanyApproval.ApproverID,
			u.CompanyApproval.ApprovedAt.UTC().Format(time.RFC3339),
			u.CompanyApproval.Comment)
	}
	if u.HQApproval != nil {
		set = append(set, "hq_approver_id = ?", "hq_approved_at = ?", "hq_comment = ?")
		args = append(args, u.HQApproval.ApproverID,
			u.HQApproval.ApprovedAt.UTC().Format(time.RFC3339),
			u.HQApproval.Comment)
	}
	if u.FinalAmount != nil {
		set = append(set, "final_amount = ?")
		args = append(args, *u.FinalAmount)
	}
	if u.PaidAt != nil {
		set = append(set, "paid_at = ?")
		args = append(args, u.PaidAt.UTC().Format(time.RFC3339))
	}

	query := "UPDATE claims SET " + strings.Join(set, ", ") + " WHERE id = ?"
	args = append(args, u.ID)
	if len(u.FromStatus) > 0 {
		query += " AND status IN (" + placeholders(len(u.FromStatus)) + ")"
		for _, st := range u.FromStatus {
			args = append(args, string(st))
		}
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update claim: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update claim: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Nothing matched: missing claim, or the precondition lost a race.
	var current string
	err = db.QueryRowContext(ctx, "SELECT status FROM claims WHERE id = ?", u.ID).Scan(&current)
	if err == sql.ErrNoRows {
		return claims.ErrClaimNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update claim: %w", err)
	}
	return fmt.Errorf("claim %s is in status %q: %w", u.ID, current, claims.ErrInvalidTransition)
}

// ClaimFilter narrows ListClaims. Zero values match everything.
type ClaimFilter struct {
	MemberID  string
	CompanyID string
	Status    claims.Status
}

// ListClaims returns claims matching the filter, newest first.
func (s *Store) ListClaims(ctx context.Context, f ClaimFilter) ([]claims.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT` + claimColumns + ` FROM claims WHERE 1=1`
	var args []any
	if f.MemberID != "" {
		query += " AND member_id = ?"
		args = append(args, f.MemberID)
	}
	if f.CompanyID != "" {
		query += " AND company_id = ?"
		args = append(args, f.CompanyID)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	query += " ORDER BY submitted_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims: %w", err)
	}
	defer rows.Close()

	var result []claims.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

// =============================================================================
// PAYMENTS
// =============================================================================

// InsertPayment implements claims.Store.
func (s *Store) InsertPayment(ctx context.Context, p claims.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertPayment(ctx, s.db, p)
}

func insertPayment(ctx context.Context, db dbtx, p claims.Payment) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO payments
		(id, claim_id, member_id, amount, payout_date, bank_code, branch_code,
		 account_type, account_number, account_holder, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.ClaimID, p.MemberID, p.Amount,
		p.PayoutDate.UTC().Format(time.RFC3339),
		p.Bank.BankCode, p.Bank.BranchCode, p.Bank.AccountType,
		p.Bank.AccountNumber, p.Bank.AccountHolder,
		p.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return claims.ErrDuplicateIdentifier
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

const paymentColumns = `
	id, claim_id, member_id, amount, payout_date, bank_code, branch_code,
	account_type, account_number, account_holder, exported_at, created_at`

// GetPayment returns a payment by id.
func (s *Store) GetPayment(ctx context.Context, paymentID string) (*claims.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT`+paymentColumns+` FROM payments WHERE id = ?`, paymentID)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, claims.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// GetPaymentByClaim returns the payment spawned by a claim's approval.
func (s *Store) GetPaymentByClaim(ctx context.Context, claimID string) (*claims.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT`+paymentColumns+` FROM payments WHERE claim_id = ?`, claimID)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, claims.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// ListPayments returns payments, optionally only those not yet exported.
// Oldest first: export batches consume in creation order.
func (s *Store) ListPayments(ctx context.Context, unexportedOnly bool) ([]claims.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT` + paymentColumns + ` FROM payments`
	if unexportedOnly {
		query += " WHERE exported_at IS NULL"
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var result []claims.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func scanPayment(r rowScanner) (*claims.Payment, error) {
	var (
		p                     claims.Payment
		payoutDate, createdAt string
		exportedAt            sql.NullString
	)
	err := r.Scan(
		&p.ID, &p.ClaimID, &p.MemberID, &p.Amount, &payoutDate,
		&p.Bank.BankCode, &p.Bank.BranchCode, &p.Bank.AccountType,
		&p.Bank.AccountNumber, &p.Bank.AccountHolder,
		&exportedAt, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	p.PayoutDate = parseTime(payoutDate)
	p.CreatedAt = parseTime(createdAt)
	if exportedAt.Valid {
		t := parseTime(exportedAt.String)
		p.ExportedAt = &t
	}
	return &p, nil
}

// MarkPaymentsExported implements claims.Store. Already-exported payments
// keep their original timestamp.
func (s *Store) MarkPaymentsExported(ctx context.Context, paymentIDs []string, when time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markPaymentsExported(ctx, s.db, paymentIDs, when)
}

func markPaymentsExported(ctx context.Context, db dbtx, paymentIDs []string, when time.Time) (int, error) {
	if len(paymentIDs) == 0 {
		return 0, nil
	}
	args := []any{when.UTC().Format(time.RFC3339)}
	for _, id := range paymentIDs {
		args = append(args, id)
	}

	res, err := db.ExecContext(ctx,
		`UPDATE payments SET exported_at = ?
		 WHERE id IN (`+placeholders(len(paymentIDs))+`) AND exported_at IS NULL`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark payments exported: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to mark payments exported: %w", err)
	}
	return int(affected), nil
}

// =============================================================================
// APPROVERS
// =============================================================================

// SaveApprover inserts or updates an approver registry entry.
func (s *Store) SaveApprover(ctx context.Context, a claims.Approver) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approvers (user_id, company_id, tier, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, tier, company_id) DO UPDATE SET active = excluded.active
	`, a.UserID, a.CompanyID, string(a.Tier), a.Active,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save approver: %w", err)
	}
	return nil
}

// ListApprovers implements claims.Store. Headquarters approvers are global;
// company approvers are scoped to the claimant's company.
func (s *Store) ListApprovers(ctx context.Context, tier claims.ApproverTier, companyID string) ([]claims.Approver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listApprovers(ctx, s.db, tier, companyID)
}

func listApprovers(ctx context.Context, db dbtx, tier claims.ApproverTier, companyID string) ([]claims.Approver, error) {
	query := `SELECT user_id, company_id, tier, active FROM approvers WHERE tier = ? AND active`
	args := []any{string(tier)}
	if tier == claims.TierCompany {
		query += " AND company_id = ?"
		args = append(args, companyID)
	}
	query += " ORDER BY user_id"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvers: %w", err)
	}
	defer rows.Close()

	var result []claims.Approver
	for rows.Next() {
		var a claims.Approver
		var t string
		if err := rows.Scan(&a.UserID, &a.CompanyID, &t, &a.Active); err != nil {
			return nil, fmt.Errorf("failed to scan approver: %w", err)
		}
		a.Tier = claims.ApproverTier(t)
		result = append(result, a)
	}
	return result, rows.Err()
}

// =============================================================================
// TRANSACTIONS (claims.TxStore)
// =============================================================================

// WithTx executes a function within a database transaction. The callback's
// store routes every call through the open transaction; returning an error
// rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(store claims.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetMember(ctx context.Context, memberID string) (*member.Member, error) {
	return getMember(ctx, ts.tx, memberID)
}

func (ts *txStore) GetClaim(ctx context.Context, claimID string) (*claims.Claim, error) {
	return getClaim(ctx, ts.tx, claimID)
}

func (ts *txStore) InsertClaim(ctx context.Context, c claims.Claim) error {
	return insertClaim(ctx, ts.tx, c)
}

func (ts *txStore) CountClaimsWithPrefix(ctx context.Context, prefix string) (int, error) {
	return countWithPrefix(ctx, ts.tx, "claims", prefix)
}

func (ts *txStore) UpdateClaim(ctx context.Context, u claims.ClaimUpdate) error {
	return updateClaim(ctx, ts.tx, u)
}

func (ts *txStore) InsertPayment(ctx context.Context, p claims.Payment) error {
	return insertPayment(ctx, ts.tx, p)
}

func (ts *txStore) CountPaymentsWithPrefix(ctx context.Context, prefix string) (int, error) {
	return countWithPrefix(ctx, ts.tx, "payments", prefix)
}

func (ts *txStore) MarkPaymentsExported(ctx context.Context, paymentIDs []string, when time.Time) (int, error) {
	return markPaymentsExported(ctx, ts.tx, paymentIDs, when)
}

func (ts *txStore) ListApprovers(ctx context.Context, tier claims.ApproverTier, companyID string) ([]claims.Approver, error) {
	return listApprovers(ctx, ts.tx, tier, companyID)
}

// =============================================================================
// MONTHLY FEES (fees.Store)
// =============================================================================

// GetFeeRates implements fees.Store: the live rate table, possibly partial.
func (s *Store) GetFeeRates(ctx context.Context) (map[member.FeeTier]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT tier, rate FROM fee_rates")
	if err != nil {
		return nil, fmt.Errorf("failed to query fee rates: %w", err)
	}
	defer rows.Close()

	rates := make(map[member.FeeTier]int64)
	for rows.Next() {
		var tier string
		var rate int64
		if err := rows.Scan(&tier, &rate); err != nil {
			return nil, fmt.Errorf("failed to scan fee rate: %w", err)
		}
		rates[member.FeeTier(tier)] = rate
	}
	return rates, rows.Err()
}

// SetFeeRate upserts one tier's live rate.
func (s *Store) SetFeeRate(ctx context.Context, tier member.FeeTier, rate int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fee_rates (tier, rate, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(tier) DO UPDATE SET rate = excluded.rate, updated_at = excluded.updated_at
	`, string(tier), rate, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to set fee rate: %w", err)
	}
	return nil
}

// ReplaceMonth implements fees.Store: delete-then-insert for one month, in
// a single transaction so a failure cannot leave the month empty.
func (s *Store) ReplaceMonth(ctx context.Context, yearMonth string, feeRows []fees.MonthlyFee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx,
		"DELETE FROM monthly_fees WHERE year_month = ?", yearMonth); err != nil {
		return fmt.Errorf("failed to clear month %s: %w", yearMonth, err)
	}

	for _, f := range feeRows {
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO monthly_fees
			(year_month, company_id, tier_a_count, tier_b_count, tier_c_count,
			 on_leave_count, total, paid_amount, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			f.YearMonth, f.CompanyID,
			f.TierCounts[member.TierA], f.TierCounts[member.TierB], f.TierCounts[member.TierC],
			f.OnLeaveCount, f.Total, f.PaidAmount, string(f.Status),
			f.CreatedAt.UTC().Format(time.RFC3339),
			f.UpdatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to insert fee row for %s: %w", f.CompanyID, err)
		}
	}

	return sqlTx.Commit()
}

const feeColumns = `
	year_month, company_id, tier_a_count, tier_b_count, tier_c_count,
	on_leave_count, total, paid_amount, status, invoiced_at,
	created_at, updated_at`

// GetFee implements fees.Store.
func (s *Store) GetFee(ctx context.Context, yearMonth, companyID string) (*fees.MonthlyFee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT`+feeColumns+` FROM monthly_fees WHERE year_month = ? AND company_id = ?`,
		yearMonth, companyID)

	f, err := scanFee(row)
	if err == sql.ErrNoRows {
		return nil, fees.ErrFeeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fee: %w", err)
	}
	return f, nil
}

// ListFees implements fees.Store: one month's rows ordered by company.
func (s *Store) ListFees(ctx context.Context, yearMonth string) ([]fees.MonthlyFee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT`+feeColumns+` FROM monthly_fees WHERE year_month = ? ORDER BY company_id`,
		yearMonth)
	if err != nil {
		return nil, fmt.Errorf("failed to query fees: %w", err)
	}
	defer rows.Close()

	var result []fees.MonthlyFee
	for rows.Next() {
		f, err := scanFee(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fee: %w", err)
		}
		result = append(result, *f)
	}
	return result, rows.Err()
}

func scanFee(r rowScanner) (*fees.MonthlyFee, error) {
	var (
		f                    fees.MonthlyFee
		tierA, tierB, tierC  int
		status               string
		invoicedAt           sql.NullString
		createdAt, updatedAt string
	)
	err := r.Scan(
		&f.YearMonth, &f.CompanyID, &tierA, &tierB, &tierC,
		&f.OnLeaveCount, &f.Total, &f.PaidAmount, &status, &invoicedAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.TierCounts = map[member.FeeTier]int{
		member.TierA: tierA,
		member.TierB: tierB,
		member.TierC: tierC,
	}
	f.Status = fees.Status(status)
	f.CreatedAt = parseTime(createdAt)
	f.UpdatedAt = parseTime(updatedAt)
	if invoicedAt.Valid {
		t := parseTime(invoicedAt.String)
		f.InvoicedAt = &t
	}
	return &f, nil
}

// UpdateFeePayment implements fees.Store.
func (s *Store) UpdateFeePayment(ctx context.Context, yearMonth, companyID string, paid int64, status fees.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE monthly_fees SET paid_amount = ?, status = ?, updated_at = ?
		WHERE year_month = ? AND company_id = ?
	`, paid, string(status), time.Now().UTC().Format(time.RFC3339), yearMonth, companyID)
	if err != nil {
		return fmt.Errorf("failed to update fee payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update fee payment: %w", err)
	}
	if affected == 0 {
		return fees.ErrFeeNotFound
	}
	return nil
}

// MarkInvoiced implements fees.Store. Re-invoicing keeps the original date,
// and rows that already moved to a payment status keep it.
func (s *Store) MarkInvoiced(ctx context.Context, yearMonth string, companyIDs []string, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(companyIDs) == 0 {
		return nil
	}
	args := []any{
		when.UTC().Format(time.RFC3339),
		string(fees.StatusUninvoiced), string(fees.StatusInvoiced),
		time.Now().UTC().Format(time.RFC3339),
		yearMonth,
	}
	for _, id := range companyIDs {
		args = append(args, id)
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE monthly_fees SET
			invoiced_at = COALESCE(invoiced_at, ?),
			status = CASE WHEN status = ? THEN ? ELSE status END,
			updated_at = ?
		WHERE year_month = ? AND company_id IN (`+placeholders(len(companyIDs))+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to mark fees invoiced: %w", err)
	}
	return nil
}

// =============================================================================
// NOTIFICATION SINK (claims.Notifier)
// =============================================================================

// Notification is a stored inbox entry. Delivery is someone else's job.
type Notification struct {
	ID        string
	UserID    string
	Title     string
	Message   string
	Kind      string
	LinkPath  string
	CreatedAt time.Time
	ReadAt    *time.Time
}

// Notify implements claims.Notifier: accepts and stores, never delivers.
func (s *Store) Notify(ctx context.Context, userID, title, message, kind, linkPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message, kind, link_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), userID, title, message, kind, linkPath,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, message, kind, link_path, created_at, read_at
		FROM notifications WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var result []Notification
	for rows.Next() {
		var n Notification
		var createdAt string
		var readAt sql.NullString
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Kind,
			&n.LinkPath, &createdAt, &readAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.CreatedAt = parseTime(createdAt)
		if readAt.Valid {
			t := parseTime(readAt.String)
			n.ReadAt = &t
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

// =============================================================================
// AUDIT SINK (claims.AuditLog)
// =============================================================================

// Record implements claims.AuditLog.
func (s *Store) Record(ctx context.Context, operation, target, details string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, operation, target, details, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.NewString(), operation, target, details,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to store audit entry: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
