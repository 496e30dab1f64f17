/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. All balance, loan and payment mutations run inside explicit
 * transactions with row-level locks: the account (or loan, or payment) row is
 * taken FOR UPDATE, invariants are checked against the locked row, and every
 * write of the operation commits together or not at all.
 *
 * The account balance update is additionally guarded with
 * `WHERE balance = $before`; a writer whose captured balance went stale fails
 * with ErrInconsistentBalance instead of overwriting a concurrent commit.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and transaction support.
 * - github.com/jackc/pgerrcode: classification of unique-violation errors.
 * - internal/domain: domain models.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koperasi/coop-core-service/internal/domain"
)

// PostgresRepository is the pgx-backed implementation of Repository.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository on the given pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

// CreateMember inserts a new member in pending status.
func (r *PostgresRepository) CreateMember(ctx context.Context, m *domain.Member) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO members (id, member_number, full_name, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		m.ID, m.MemberNumber, m.FullName, m.Status,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrMemberExists, m.MemberNumber)
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// FindMemberByID retrieves a member by id.
func (r *PostgresRepository) FindMemberByID(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	var m domain.Member
	err := r.db.QueryRow(ctx, `
		SELECT id, member_number, full_name, status, joined_at, created_at, updated_at
		FROM members WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.MemberNumber, &m.FullName, &m.Status, &m.JoinedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("select member: %w", err)
	}
	return &m, nil
}

// ---------------------------------------------------------------------------
// Account ledger
// ---------------------------------------------------------------------------

// CreateAccount opens a new savings account for a member.
func (r *PostgresRepository) CreateAccount(ctx context.Context, a *domain.Account) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO accounts (id, member_id, type, balance, rate_percent, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		a.ID, a.MemberID, a.Type, a.Balance, a.RatePercent, a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s/%s", ErrAccountExists, a.MemberID, a.Type)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return ErrMemberNotFound
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// FindAccountByID retrieves an account by id.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return r.scanAccount(r.db.QueryRow(ctx, `
		SELECT id, member_id, type, balance, rate_percent, status, created_at, updated_at
		FROM accounts WHERE id = $1`, id))
}

// FindAccountsByMember retrieves all accounts of a member.
func (r *PostgresRepository) FindAccountsByMember(ctx context.Context, memberID uuid.UUID) ([]domain.Account, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, member_id, type, balance, rate_percent, status, created_at, updated_at
		FROM accounts WHERE member_id = $1 ORDER BY created_at`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("select accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.MemberID, &a.Type, &a.Balance, &a.RatePercent, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scanAccount(row rowScanner) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.MemberID, &a.Type, &a.Balance, &a.RatePercent, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("select account: %w", err)
	}
	return &a, nil
}

// lockAccountTx takes the account row FOR UPDATE, serializing all writers of
// the same account for the duration of the transaction.
func (r *PostgresRepository) lockAccountTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (*domain.Account, error) {
	var a domain.Account
	err := tx.QueryRow(ctx, `
		SELECT id, member_id, type, balance, rate_percent, status, created_at, updated_at
		FROM accounts WHERE id = $1 FOR UPDATE`,
		accountID,
	).Scan(&a.ID, &a.MemberID, &a.Type, &a.Balance, &a.RatePercent, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lock account: %w", err)
	}
	return &a, nil
}

// applyTransactionTx posts one ledger entry inside an existing transaction:
// lock account, check invariants, insert the immutable entry with captured
// before/after balances, update the cached balance with a stale-write guard,
// and append the audit record.
func (r *PostgresRepository) applyTransactionTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, req domain.ApplyTransactionRequest, actor domain.Actor) (*domain.Transaction, error) {
	account, err := r.lockAccountTx(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	entry, err := buildLedgerEntry(account, req, actor, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO transactions (id, account_id, type, amount, balance_before, balance_after, description, effective_date, recorded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		entry.ID, entry.AccountID, entry.Type, entry.Amount, entry.BalanceBefore,
		entry.BalanceAfter, entry.Description, entry.EffectiveDate, entry.RecordedBy,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	// Guard against a stale captured balance. With the FOR UPDATE lock above
	// this should never fire, but it is the invariant that detects lost
	// updates if a writer ever bypasses the lock.
	tag, err := tx.Exec(ctx, `
		UPDATE accounts SET balance = $1, updated_at = now()
		WHERE id = $2 AND balance = $3`,
		entry.BalanceAfter, account.ID, entry.BalanceBefore,
	)
	if err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, ErrInconsistentBalance
	}

	if err := r.insertAuditTx(ctx, tx, actor, "account", account.ID, "transaction."+string(req.Type),
		fmt.Sprintf("amount=%d balance_before=%d balance_after=%d", entry.Amount, entry.BalanceBefore, entry.BalanceAfter)); err != nil {
		return nil, err
	}

	return entry, nil
}

// ApplyTransaction posts one ledger entry as its own atomic unit.
func (r *PostgresRepository) ApplyTransaction(ctx context.Context, accountID uuid.UUID, req domain.ApplyTransactionRequest, actor domain.Actor) (*domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err := r.applyTransactionTx(ctx, tx, accountID, req, actor)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return entry, nil
}

// Transfer applies a debit leg and a credit leg in one atomic unit. Both
// account rows are locked up front in id order so concurrent opposite
// transfers cannot deadlock. If the debit would drive the source balance
// negative, neither leg is written.
func (r *PostgresRepository) Transfer(ctx context.Context, req domain.TransferRequest, actor domain.Actor) (*domain.Transaction, *domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT id FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`,
		[]uuid.UUID{req.FromAccountID, req.ToAccountID},
	)
	if err != nil {
		return nil, nil, fmt.Errorf("lock accounts: %w", err)
	}
	locked := 0
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("scan locked account: %w", err)
		}
		locked++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("lock accounts: %w", err)
	}
	if locked != 2 {
		return nil, nil, ErrAccountNotFound
	}

	debit, err := r.applyTransactionTx(ctx, tx, req.FromAccountID, domain.ApplyTransactionRequest{
		Type:        domain.TxTransferDebit,
		Amount:      req.Amount,
		Description: req.Description,
	}, actor)
	if err != nil {
		return nil, nil, err
	}

	credit, err := r.applyTransactionTx(ctx, tx, req.ToAccountID, domain.ApplyTransactionRequest{
		Type:        domain.TxTransferCredit,
		Amount:      req.Amount,
		Description: req.Description,
	}, actor)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit tx: %w", err)
	}
	return debit, credit, nil
}

// CloseAccount marks a zero-balance account closed. Closed accounts are kept
// for their transaction history.
func (r *PostgresRepository) CloseAccount(ctx context.Context, accountID uuid.UUID, actor domain.Actor) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	account, err := r.lockAccountTx(ctx, tx, accountID)
	if err != nil {
		return err
	}
	if account.Status == domain.AccountStatusClosed {
		return ErrAccountClosed
	}
	if account.Balance != 0 {
		return ErrAccountNotEmpty
	}

	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET status = $1, updated_at = now() WHERE id = $2`,
		domain.AccountStatusClosed, accountID,
	); err != nil {
		return fmt.Errorf("close account: %w", err)
	}

	if err := r.insertAuditTx(ctx, tx, actor, "account", accountID, "account.closed", ""); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListTransactionsByAccount returns the ledger history of an account, newest
// first.
func (r *PostgresRepository) ListTransactionsByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, account_id, type, amount, balance_before, balance_after, description, effective_date, recorded_by, created_at
		FROM transactions WHERE account_id = $1 ORDER BY created_at DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var entries []domain.Transaction
	for rows.Next() {
		var e domain.Transaction
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Type, &e.Amount, &e.BalanceBefore, &e.BalanceAfter,
			&e.Description, &e.EffectiveDate, &e.RecordedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// TotalBalanceByMember sums the balances of a member's open accounts.
func (r *PostgresRepository) TotalBalanceByMember(ctx context.Context, memberID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(balance), 0) FROM accounts
		WHERE member_id = $1 AND status = $2`,
		memberID, domain.AccountStatusActive,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum member balances: %w", err)
	}
	return total, nil
}

// TotalBalanceByType sums the balances of all open accounts of one product
// type.
func (r *PostgresRepository) TotalBalanceByType(ctx context.Context, accountType domain.AccountType) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(balance), 0) FROM accounts
		WHERE type = $1 AND status = $2`,
		accountType, domain.AccountStatusActive,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum type balances: %w", err)
	}
	return total, nil
}

// ---------------------------------------------------------------------------
// Loans
// ---------------------------------------------------------------------------

// CreateLoan inserts a new loan in draft status.
func (r *PostgresRepository) CreateLoan(ctx context.Context, l *domain.Loan) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO loans (id, member_id, product_id, principal, annual_rate_percent, tenor_months, status, outstanding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		l.ID, l.MemberID, l.ProductID, l.Principal, l.AnnualRatePercent, l.TenorMonths, l.Status, l.Outstanding,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return ErrMemberNotFound
		}
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

const loanColumns = `id, member_id, product_id, principal, annual_rate_percent, tenor_months, status, outstanding,
		surveyed_by, reviewed_by, approved_by, disbursed_by, created_at, updated_at`

func scanLoan(row rowScanner) (*domain.Loan, error) {
	var l domain.Loan
	err := row.Scan(&l.ID, &l.MemberID, &l.ProductID, &l.Principal, &l.AnnualRatePercent, &l.TenorMonths,
		&l.Status, &l.Outstanding, &l.SurveyedBy, &l.ReviewedBy, &l.ApprovedBy, &l.DisbursedBy,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("select loan: %w", err)
	}
	return &l, nil
}

// FindLoanByID retrieves a loan by id.
func (r *PostgresRepository) FindLoanByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	return scanLoan(r.db.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id))
}

func (r *PostgresRepository) lockLoanTx(ctx context.Context, tx pgx.Tx, loanID uuid.UUID) (*domain.Loan, error) {
	return scanLoan(tx.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, loanID))
}

// roleColumnForTransition maps a target status to the role column populated
// during that transition. Role columns are write-once; they are never
// cleared.
func roleColumnForTransition(target domain.LoanStatus) string {
	switch target {
	case domain.LoanStatusSurvey:
		return "surveyed_by"
	case domain.LoanStatusReview:
		return "reviewed_by"
	case domain.LoanStatusApproved:
		return "approved_by"
	case domain.LoanStatusDisbursed:
		return "disbursed_by"
	}
	return ""
}

// transitionLoanTx validates and applies one status transition inside an
// existing transaction. The status update is guarded on the current status so
// a concurrent transition fails instead of being overwritten.
func (r *PostgresRepository) transitionLoanTx(ctx context.Context, tx pgx.Tx, loan *domain.Loan, target domain.LoanStatus, actor domain.Actor) (*domain.Loan, error) {
	if !domain.CanTransition(loan.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, loan.Status, target)
	}

	var (
		updated *domain.Loan
		err     error
	)
	if col := roleColumnForTransition(target); col != "" {
		updated, err = scanLoan(tx.QueryRow(ctx, `
			UPDATE loans SET status = $1, `+col+` = $2, updated_at = now()
			WHERE id = $3 AND status = $4
			RETURNING `+loanColumns,
			target, actor.ID, loan.ID, loan.Status,
		))
	} else {
		updated, err = scanLoan(tx.QueryRow(ctx, `
			UPDATE loans SET status = $1, updated_at = now()
			WHERE id = $2 AND status = $3
			RETURNING `+loanColumns,
			target, loan.ID, loan.Status,
		))
	}
	if err != nil {
		if errors.Is(err, ErrLoanNotFound) {
			// Guard failed: the status moved under us.
			return nil, fmt.Errorf("%w: loan status changed concurrently", ErrInvalidTransition)
		}
		return nil, err
	}

	if err := r.insertAuditTx(ctx, tx, actor, "loan", loan.ID, "loan.transition",
		fmt.Sprintf("old_status=%s new_status=%s", loan.Status, target)); err != nil {
		return nil, err
	}
	return updated, nil
}

// TransitionLoan applies one non-disbursement status transition as its own
// atomic unit. Disbursement goes through DisburseLoan, which also posts the
// opening ledger entries and persists the schedule.
func (r *PostgresRepository) TransitionLoan(ctx context.Context, loanID uuid.UUID, target domain.LoanStatus, actor domain.Actor) (*domain.Loan, error) {
	if target == domain.LoanStatusDisbursed {
		return nil, fmt.Errorf("%w: disbursement requires a repayment schedule", ErrInvalidTransition)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	loan, err := r.lockLoanTx(ctx, tx, loanID)
	if err != nil {
		return nil, err
	}
	updated, err := r.transitionLoanTx(ctx, tx, loan, target, actor)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return updated, nil
}

// disburseLoanTx moves an approved loan to disbursed inside an existing
// transaction: sets disbursed_by, persists the repayment schedule, opens the
// outstanding balance, and posts the principal to the member's voluntary
// deposit account.
func (r *PostgresRepository) disburseLoanTx(ctx context.Context, tx pgx.Tx, loanID uuid.UUID, schedule []domain.RepaymentScheduleEntry, actor domain.Actor) (*domain.Loan, *domain.Transaction, error) {
	loan, err := r.lockLoanTx(ctx, tx, loanID)
	if err != nil {
		return nil, nil, err
	}
	updated, err := r.transitionLoanTx(ctx, tx, loan, domain.LoanStatusDisbursed, actor)
	if err != nil {
		return nil, nil, err
	}

	// The outstanding opens at the schedule's total due, principal plus all
	// interest, so repaying every installment drives it to exactly zero.
	totalDue := scheduleTotal(schedule)
	tag, err := tx.Exec(ctx, `
		UPDATE loans SET outstanding = $1, updated_at = now()
		WHERE id = $2 AND outstanding = 0`,
		totalDue, loan.ID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("open outstanding: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, nil, ErrInconsistentBalance
	}
	updated.Outstanding = totalDue

	for _, entry := range schedule {
		if _, err := tx.Exec(ctx, `
			INSERT INTO repayments (id, loan_id, sequence, due_date, principal_due, interest_due, amount_due)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New(), loan.ID, entry.Sequence, entry.DueDate, entry.Principal, entry.Interest, entry.Payment,
		); err != nil {
			return nil, nil, fmt.Errorf("insert repayment %d: %w", entry.Sequence, err)
		}
	}

	// Disbursement proceeds land on the member's voluntary deposit account.
	var accountID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM accounts
		WHERE member_id = $1 AND type = $2 AND status = $3`,
		loan.MemberID, domain.AccountVoluntaryDeposit, domain.AccountStatusActive,
	).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: member has no open voluntary deposit account", ErrAccountNotFound)
		}
		return nil, nil, fmt.Errorf("select disbursement account: %w", err)
	}

	opening, err := r.applyTransactionTx(ctx, tx, accountID, domain.ApplyTransactionRequest{
		Type:        domain.TxDeposit,
		Amount:      loan.Principal,
		Description: fmt.Sprintf("Loan disbursement %s", loan.ID),
	}, actor)
	if err != nil {
		return nil, nil, err
	}

	return updated, opening, nil
}

// DisburseLoan performs the disbursement transition as its own atomic unit.
func (r *PostgresRepository) DisburseLoan(ctx context.Context, loanID uuid.UUID, schedule []domain.RepaymentScheduleEntry, actor domain.Actor) (*domain.Loan, *domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	loan, opening, err := r.disburseLoanTx(ctx, tx, loanID, schedule, actor)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit tx: %w", err)
	}
	return loan, opening, nil
}

// ListRepaymentsByLoan returns a loan's installments in sequence order.
func (r *PostgresRepository) ListRepaymentsByLoan(ctx context.Context, loanID uuid.UUID) ([]domain.Repayment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, loan_id, sequence, due_date, principal_due, interest_due, amount_due, amount_paid, status, paid_at, created_at
		FROM repayments WHERE loan_id = $1 ORDER BY sequence`,
		loanID,
	)
	if err != nil {
		return nil, fmt.Errorf("select repayments: %w", err)
	}
	defer rows.Close()

	var repayments []domain.Repayment
	for rows.Next() {
		var rp domain.Repayment
		if err := rows.Scan(&rp.ID, &rp.LoanID, &rp.Sequence, &rp.DueDate, &rp.PrincipalDue, &rp.InterestDue,
			&rp.AmountDue, &rp.AmountPaid, &rp.Status, &rp.PaidAt, &rp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan repayment: %w", err)
		}
		repayments = append(repayments, rp)
	}
	return repayments, rows.Err()
}

// ---------------------------------------------------------------------------
// Payments
// ---------------------------------------------------------------------------

// CreatePayment registers a pending payment intake record.
func (r *PostgresRepository) CreatePayment(ctx context.Context, p *domain.Payment) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO payments (id, reference_type, reference_id, member_id, amount, method, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		p.ID, p.ReferenceType, p.ReferenceID, p.MemberID, p.Amount, p.Method, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return ErrMemberNotFound
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

const paymentColumns = `id, reference_type, reference_id, member_id, amount, method, status,
		external_ref, payment_date, processed_by, created_at, updated_at`

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.ReferenceType, &p.ReferenceID, &p.MemberID, &p.Amount, &p.Method, &p.Status,
		&p.ExternalRef, &p.PaymentDate, &p.ProcessedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("select payment: %w", err)
	}
	return &p, nil
}

// FindPaymentByID retrieves a payment by id.
func (r *PostgresRepository) FindPaymentByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

// claimPaymentTx locks a payment row and flips it from pending to paid.
// A payment that is not pending fails with ErrAlreadyProcessed; because the
// flip happens inside the caller's transaction, a handler failure rolls it
// back and the payment stays pending.
func (r *PostgresRepository) claimPaymentTx(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID, settlement domain.Settlement, actor domain.Actor) (*domain.Payment, error) {
	payment, err := scanPayment(tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, paymentID))
	if err != nil {
		return nil, err
	}
	if payment.Status != domain.PaymentStatusPending {
		return nil, fmt.Errorf("%w: status=%s", ErrAlreadyProcessed, payment.Status)
	}

	updated, err := scanPayment(tx.QueryRow(ctx, `
		UPDATE payments
		SET status = $1, external_ref = $2, payment_date = $3, processed_by = $4, updated_at = now()
		WHERE id = $5
		RETURNING `+paymentColumns,
		domain.PaymentStatusPaid, settlement.ExternalRef, settlement.PaidAt, actor.ID, paymentID,
	))
	if err != nil {
		return nil, err
	}

	if err := r.insertAuditTx(ctx, tx, actor, "payment", paymentID, "payment.paid",
		fmt.Sprintf("reference_type=%s amount=%d external_ref=%s", payment.ReferenceType, payment.Amount, settlement.ExternalRef)); err != nil {
		return nil, err
	}
	return updated, nil
}

// SettleSavingsDepositPayment claims the payment and posts the deposit to the
// referenced account in one atomic unit.
func (r *PostgresRepository) SettleSavingsDepositPayment(ctx context.Context, paymentID uuid.UUID, settlement domain.Settlement, actor domain.Actor) (*domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	payment, err := r.claimPaymentTx(ctx, tx, paymentID, settlement, actor)
	if err != nil {
		return nil, err
	}

	effective := settlement.PaidAt
	entry, err := r.applyTransactionTx(ctx, tx, payment.ReferenceID, domain.ApplyTransactionRequest{
		Type:          domain.TxDeposit,
		Amount:        payment.Amount,
		Description:   fmt.Sprintf("Savings deposit via %s", payment.Method),
		EffectiveDate: &effective,
	}, actor)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return entry, nil
}

// SettleRepaymentPayment claims the payment and posts the installment in one
// atomic unit: the referenced repayment row accrues the paid amount, the loan
// outstanding is decremented under a stale-write guard, and a fully repaid
// loan transitions to closed.
func (r *PostgresRepository) SettleRepaymentPayment(ctx context.Context, paymentID uuid.UUID, settlement domain.Settlement, actor domain.Actor) (*domain.RepaymentReceipt, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	payment, err := r.claimPaymentTx(ctx, tx, paymentID, settlement, actor)
	if err != nil {
		return nil, err
	}

	var rp domain.Repayment
	err = tx.QueryRow(ctx, `
		SELECT id, loan_id, sequence, amount_due, amount_paid, status
		FROM repayments WHERE id = $1 FOR UPDATE`,
		payment.ReferenceID,
	).Scan(&rp.ID, &rp.LoanID, &rp.Sequence, &rp.AmountDue, &rp.AmountPaid, &rp.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRepaymentNotFound
		}
		return nil, fmt.Errorf("lock repayment: %w", err)
	}

	loan, err := r.lockLoanTx(ctx, tx, rp.LoanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != domain.LoanStatusDisbursed {
		return nil, fmt.Errorf("%w: loan is %s, not disbursed", ErrInvalidTransition, loan.Status)
	}
	if payment.Amount > loan.Outstanding {
		return nil, fmt.Errorf("%w: payment %d exceeds outstanding %d", ErrInsufficientBalance, payment.Amount, loan.Outstanding)
	}

	newPaid := rp.AmountPaid + payment.Amount
	status := domain.RepaymentStatusPartial
	var paidAt *time.Time
	if newPaid >= rp.AmountDue {
		status = domain.RepaymentStatusPaid
		paidAt = &settlement.PaidAt
	}
	if _, err := tx.Exec(ctx, `
		UPDATE repayments SET amount_paid = $1, status = $2, paid_at = COALESCE(paid_at, $3)
		WHERE id = $4`,
		newPaid, status, paidAt, rp.ID,
	); err != nil {
		return nil, fmt.Errorf("update repayment: %w", err)
	}

	newOutstanding := loan.Outstanding - payment.Amount
	tag, err := tx.Exec(ctx, `
		UPDATE loans SET outstanding = $1, updated_at = now()
		WHERE id = $2 AND outstanding = $3`,
		newOutstanding, loan.ID, loan.Outstanding,
	)
	if err != nil {
		return nil, fmt.Errorf("update outstanding: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, ErrInconsistentBalance
	}

	if err := r.insertAuditTx(ctx, tx, actor, "loan", loan.ID, "loan.repayment",
		fmt.Sprintf("repayment=%s sequence=%d amount=%d outstanding=%d", rp.ID, rp.Sequence, payment.Amount, newOutstanding)); err != nil {
		return nil, err
	}

	closed := false
	if newOutstanding == 0 {
		loan.Outstanding = newOutstanding
		if _, err := r.transitionLoanTx(ctx, tx, loan, domain.LoanStatusClosed, actor); err != nil {
			return nil, err
		}
		closed = true
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &domain.RepaymentReceipt{
		LoanID:        loan.ID,
		RepaymentID:   rp.ID,
		AmountApplied: payment.Amount,
		Outstanding:   newOutstanding,
		LoanClosed:    closed,
	}, nil
}

// SettleLoanFeePayment claims the payment and disburses the referenced loan
// in one atomic unit. The loan must currently be approved.
func (r *PostgresRepository) SettleLoanFeePayment(ctx context.Context, paymentID uuid.UUID, schedule []domain.RepaymentScheduleEntry, settlement domain.Settlement, actor domain.Actor) (*domain.Loan, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	payment, err := r.claimPaymentTx(ctx, tx, paymentID, settlement, actor)
	if err != nil {
		return nil, err
	}

	loan, _, err := r.disburseLoanTx(ctx, tx, payment.ReferenceID, schedule, actor)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return loan, nil
}

// SettleMembershipFeePayment claims the payment, activates the referenced
// member, and books the fee as the member's principal deposit, all in one
// atomic unit.
func (r *PostgresRepository) SettleMembershipFeePayment(ctx context.Context, paymentID uuid.UUID, settlement domain.Settlement, actor domain.Actor) (*domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	payment, err := r.claimPaymentTx(ctx, tx, paymentID, settlement, actor)
	if err != nil {
		return nil, err
	}

	var status domain.MemberStatus
	err = tx.QueryRow(ctx, `SELECT status FROM members WHERE id = $1 FOR UPDATE`, payment.ReferenceID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("lock member: %w", err)
	}
	if status != domain.MemberStatusPending {
		return nil, fmt.Errorf("%w: status=%s", ErrMemberNotPending, status)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE members SET status = $1, joined_at = $2, updated_at = now() WHERE id = $3`,
		domain.MemberStatusActive, settlement.PaidAt, payment.ReferenceID,
	); err != nil {
		return nil, fmt.Errorf("activate member: %w", err)
	}

	// The membership fee doubles as the member's principal deposit; open the
	// account if this is their first settlement attempt.
	var accountID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM accounts
		WHERE member_id = $1 AND type = $2 AND status = $3 FOR UPDATE`,
		payment.ReferenceID, domain.AccountPrincipalDeposit, domain.AccountStatusActive,
	).Scan(&accountID)
	if errors.Is(err, pgx.ErrNoRows) {
		accountID = uuid.New()
		if _, err := tx.Exec(ctx, `
			INSERT INTO accounts (id, member_id, type, balance, status)
			VALUES ($1, $2, $3, 0, $4)`,
			accountID, payment.ReferenceID, domain.AccountPrincipalDeposit, domain.AccountStatusActive,
		); err != nil {
			return nil, fmt.Errorf("open principal deposit account: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("select principal deposit account: %w", err)
	}

	effective := settlement.PaidAt
	entry, err := r.applyTransactionTx(ctx, tx, accountID, domain.ApplyTransactionRequest{
		Type:          domain.TxDeposit,
		Amount:        payment.Amount,
		Description:   "Membership fee / principal deposit",
		EffectiveDate: &effective,
	}, actor)
	if err != nil {
		return nil, err
	}

	if err := r.insertAuditTx(ctx, tx, actor, "member", payment.ReferenceID, "member.activated", ""); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return entry, nil
}

// ---------------------------------------------------------------------------
// Audit trail
// ---------------------------------------------------------------------------

// insertAuditTx appends one audit record inside an existing transaction. The
// audit trail is append-only; nothing in this service ever updates or deletes
// its rows.
func (r *PostgresRepository) insertAuditTx(ctx context.Context, tx pgx.Tx, actor domain.Actor, entityType string, entityID uuid.UUID, action, detail string) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO audit_trail (id, tenant, entity_type, entity_id, action, detail, actor)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), actor.Tenant, entityType, entityID, action, detail, actor.ID,
	); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListAuditTrail returns the audit history of one entity, newest first.
func (r *PostgresRepository) ListAuditTrail(ctx context.Context, entityType string, entityID uuid.UUID) ([]domain.AuditEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant, entity_type, entity_id, action, detail, actor, created_at
		FROM audit_trail WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC`,
		entityType, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("select audit trail: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.Tenant, &e.EntityType, &e.EntityID, &e.Action, &e.Detail, &e.Actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
