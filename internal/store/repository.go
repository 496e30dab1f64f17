/**
 * @description
 * This file defines the `Repository` interface: the contract for all data
 * access the coop-core-service needs. The interface keeps the business logic
 * independent of PostgreSQL and lets tests substitute stubs.
 *
 * Every method that mutates a balance, a loan status, or a payment status is
 * a single atomic unit: it commits all of its writes or none of them.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/koperasi/coop-core-service/internal/domain"
)

var (
	// ErrMemberNotFound is returned when a member id does not resolve.
	ErrMemberNotFound = errors.New("member not found")
	// ErrMemberNotPending is returned when activating a member that is not pending.
	ErrMemberNotPending = errors.New("member is not pending activation")
	// ErrMemberExists is returned when a member number is already registered.
	ErrMemberExists = errors.New("member number already registered")
	// ErrAccountNotFound is returned when an account id does not resolve.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountClosed is returned when mutating a closed account.
	ErrAccountClosed = errors.New("account is closed")
	// ErrAccountExists is returned when the member already holds an open account of that type.
	ErrAccountExists = errors.New("account of this type already open for member")
	// ErrAccountNotEmpty is returned when closing an account with a non-zero balance.
	ErrAccountNotEmpty = errors.New("account balance must be zero to close")
	// ErrInsufficientBalance is returned when a withdrawal or transfer would
	// drive the balance negative.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInconsistentBalance is returned when the captured balance_before no
	// longer matches the stored balance. Callers are expected to re-read and
	// retry; every other error is terminal for the request.
	ErrInconsistentBalance = errors.New("stored balance changed concurrently")
	// ErrLoanNotFound is returned when a loan id does not resolve.
	ErrLoanNotFound = errors.New("loan not found")
	// ErrInvalidTransition is returned for a loan status change that is not
	// permitted from the current status. The loan is left untouched.
	ErrInvalidTransition = errors.New("loan status transition not permitted")
	// ErrRepaymentNotFound is returned when a repayment id does not resolve.
	ErrRepaymentNotFound = errors.New("repayment not found")
	// ErrPaymentNotFound is returned when a payment id does not resolve.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrAlreadyProcessed is returned when settling a payment that is no
	// longer pending.
	ErrAlreadyProcessed = errors.New("payment already processed")
)

// Repository defines the persistence operations for the cooperative core.
type Repository interface {
	// Member methods
	CreateMember(ctx context.Context, m *domain.Member) error
	FindMemberByID(ctx context.Context, id uuid.UUID) (*domain.Member, error)

	// Account ledger methods
	CreateAccount(ctx context.Context, a *domain.Account) error
	FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	FindAccountsByMember(ctx context.Context, memberID uuid.UUID) ([]domain.Account, error)
	ApplyTransaction(ctx context.Context, accountID uuid.UUID, req domain.ApplyTransactionRequest, actor domain.Actor) (*domain.Transaction, error)
	Transfer(ctx context.Context, req domain.TransferRequest, actor domain.Actor) (debit *domain.Transaction, credit *domain.Transaction, err error)
	CloseAccount(ctx context.Context, accountID uuid.UUID, actor domain.Actor) error
	ListTransactionsByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error)
	TotalBalanceByMember(ctx context.Context, memberID uuid.UUID) (int64, error)
	TotalBalanceByType(ctx context.Context, accountType domain.AccountType) (int64, error)

	// Loan methods
	CreateLoan(ctx context.Context, l *domain.Loan) error
	FindLoanByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	TransitionLoan(ctx context.Context, loanID uuid.UUID, target domain.LoanStatus, actor domain.Actor) (*domain.Loan, error)
	DisburseLoan(ctx context.Context, loanID uuid.UUID, schedule []domain.RepaymentScheduleEntry, actor domain.Actor) (*domain.Loan, *domain.Transaction, error)
	ListRepaymentsByLoan(ctx context.Context, loanID uuid.UUID) ([]domain.Repayment, error)

	// Payment methods
	CreatePayment(ctx context.Context, p *domain.Payment) error
	FindPaymentByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	SettleSavingsDepositPayment(ctx context.Context, paymentID uuid.UUID, settlement domain.Settlement, actor domain.Actor) (*domain.Transaction, error)
	SettleRepaymentPayment(ctx context.Context, paymentID uuid.UUID, settlement domain.Settlement, actor domain.Actor) (*domain.RepaymentReceipt, error)
	SettleLoanFeePayment(ctx context.Context, paymentID uuid.UUID, schedule []domain.RepaymentScheduleEntry, settlement domain.Settlement, actor domain.Actor) (*domain.Loan, error)
	SettleMembershipFeePayment(ctx context.Context, paymentID uuid.UUID, settlement domain.Settlement, actor domain.Actor) (*domain.Transaction, error)

	// Audit trail methods
	ListAuditTrail(ctx context.Context, entityType string, entityID uuid.UUID) ([]domain.AuditEntry, error)
}
