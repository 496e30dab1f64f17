/**
 * @description
 * This file contains the core business logic for the coop-core-service. The
 * `Service` struct orchestrates the savings ledger, the loan lifecycle, and
 * the payment dispatcher, coordinating between the repository (which owns the
 * atomic units) and the message broker (which carries integration events).
 *
 * Key features:
 * - Validates all inputs at this boundary; the store assumes clean values.
 * - Dispatches a settled payment to exactly one side-effect handler, selected
 *   by an exhaustive match over the payment's reference type.
 * - Computes amortization schedules with the pure scheduler and hands them to
 *   the store for persistence at disbursement time.
 * - Publishes events to RabbitMQ after a unit commits; publishing failures
 *   are logged, never propagated.
 *
 * @dependencies
 * - internal/domain, internal/store: domain models and data access.
 * - pkg/rabbitmq: event publication.
 * - go.uber.org/zap: structured logging.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/koperasi/coop-core-service/internal/domain"
	"github.com/koperasi/coop-core-service/internal/store"
	"github.com/koperasi/coop-core-service/pkg/rabbitmq"
	"go.uber.org/zap"
)

// ErrValidation is returned for malformed input: non-positive amounts, bad
// rates or tenors, unknown enum values. The request is rejected before any
// write happens.
var ErrValidation = errors.New("validation failed")

// MaxTenorMonths bounds loan tenors; the original products top out at twenty
// years.
const MaxTenorMonths = 240

// Service provides the core business logic for the cooperative.
type Service struct {
	repo     store.Repository
	events   rabbitmq.Publisher
	logger   *zap.SugaredLogger
	exchange string
}

// NewService creates a new Service instance. events may be nil when no broker
// is configured.
func NewService(repo store.Repository, events rabbitmq.Publisher, logger *zap.SugaredLogger, exchange string) *Service {
	return &Service{repo: repo, events: events, logger: logger, exchange: exchange}
}

func (s *Service) publish(ctx context.Context, routingKey string, body interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, s.exchange, routingKey, body); err != nil {
		s.logger.Warnw("event publish failed", "component", "service",
			"routing_key", routingKey, "err", err)
	}
}

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

// RegisterMember registers a new member in pending status.
func (s *Service) RegisterMember(ctx context.Context, req domain.RegisterMemberRequest, actor domain.Actor) (*domain.Member, error) {
	if strings.TrimSpace(req.MemberNumber) == "" {
		return nil, fmt.Errorf("%w: member number is required", ErrValidation)
	}
	if strings.TrimSpace(req.FullName) == "" {
		return nil, fmt.Errorf("%w: full name is required", ErrValidation)
	}

	member := &domain.Member{
		ID:           uuid.New(),
		MemberNumber: strings.TrimSpace(req.MemberNumber),
		FullName:     strings.TrimSpace(req.FullName),
		Status:       domain.MemberStatusPending,
	}
	if err := s.repo.CreateMember(ctx, member); err != nil {
		return nil, err
	}

	s.logger.Infow("member registered", "component", "service",
		"member_id", member.ID, "member_number", member.MemberNumber, "actor", actor.ID)
	return member, nil
}

// GetMember retrieves a member by id.
func (s *Service) GetMember(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	return s.repo.FindMemberByID(ctx, id)
}

// ---------------------------------------------------------------------------
// Account ledger
// ---------------------------------------------------------------------------

// CreateAccount opens a savings product for a member.
func (s *Service) CreateAccount(ctx context.Context, memberID uuid.UUID, req domain.CreateAccountRequest, actor domain.Actor) (*domain.Account, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown account type %q", ErrValidation, req.Type)
	}
	if req.RatePercent.IsNegative() {
		return nil, fmt.Errorf("%w: rate must not be negative", ErrValidation)
	}

	account := &domain.Account{
		ID:          uuid.New(),
		MemberID:    memberID,
		Type:        req.Type,
		Balance:     0,
		RatePercent: req.RatePercent,
		Status:      domain.AccountStatusActive,
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Infow("account opened", "component", "service",
		"account_id", account.ID, "member_id", memberID, "type", account.Type, "actor", actor.ID)
	return account, nil
}

// ListAccounts returns all accounts of a member, open and closed.
func (s *Service) ListAccounts(ctx context.Context, memberID uuid.UUID) ([]domain.Account, error) {
	if _, err := s.repo.FindMemberByID(ctx, memberID); err != nil {
		return nil, err
	}
	return s.repo.FindAccountsByMember(ctx, memberID)
}

// ApplyTransaction posts one ledger entry to an account.
func (s *Service) ApplyTransaction(ctx context.Context, accountID uuid.UUID, req domain.ApplyTransactionRequest, actor domain.Actor) (*domain.Transaction, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown transaction type %q", ErrValidation, req.Type)
	}
	if req.Type == domain.TxTransferDebit || req.Type == domain.TxTransferCredit {
		return nil, fmt.Errorf("%w: transfer legs are posted via transfer", ErrValidation)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	entry, err := s.repo.ApplyTransaction(ctx, accountID, req, actor)
	if err != nil {
		return nil, err
	}

	s.logger.Infow("transaction applied", "component", "service",
		"account_id", accountID, "type", req.Type, "amount", req.Amount,
		"balance_after", entry.BalanceAfter, "actor", actor.ID)
	return entry, nil
}

// Transfer moves funds between two accounts atomically.
func (s *Service) Transfer(ctx context.Context, req domain.TransferRequest, actor domain.Actor) (*domain.Transaction, *domain.Transaction, error) {
	if req.Amount <= 0 {
		return nil, nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if req.FromAccountID == req.ToAccountID {
		return nil, nil, fmt.Errorf("%w: cannot transfer to the same account", ErrValidation)
	}

	debit, credit, err := s.repo.Transfer(ctx, req, actor)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Infow("transfer completed", "component", "service",
		"from", req.FromAccountID, "to", req.ToAccountID, "amount", req.Amount, "actor", actor.ID)
	return debit, credit, nil
}

// CloseAccount closes a zero-balance account.
func (s *Service) CloseAccount(ctx context.Context, accountID uuid.UUID, actor domain.Actor) error {
	return s.repo.CloseAccount(ctx, accountID, actor)
}

// GetAccount retrieves an account by id.
func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.repo.FindAccountByID(ctx, id)
}

// ListTransactions returns an account's ledger history.
func (s *Service) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	if _, err := s.repo.FindAccountByID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactionsByAccount(ctx, accountID)
}

// MemberBalance aggregates a member's open-account balances.
func (s *Service) MemberBalance(ctx context.Context, memberID uuid.UUID) (int64, error) {
	if _, err := s.repo.FindMemberByID(ctx, memberID); err != nil {
		return 0, err
	}
	return s.repo.TotalBalanceByMember(ctx, memberID)
}

// TypeBalance aggregates all open balances of one account type.
func (s *Service) TypeBalance(ctx context.Context, accountType domain.AccountType) (int64, error) {
	if !accountType.Valid() {
		return 0, fmt.Errorf("%w: unknown account type %q", ErrValidation, accountType)
	}
	return s.repo.TotalBalanceByType(ctx, accountType)
}

// ---------------------------------------------------------------------------
// Loans
// ---------------------------------------------------------------------------

// CreateLoan originates a loan in draft status.
func (s *Service) CreateLoan(ctx context.Context, req domain.CreateLoanRequest, actor domain.Actor) (*domain.Loan, error) {
	if req.Principal <= 0 {
		return nil, fmt.Errorf("%w: principal must be positive", ErrValidation)
	}
	if req.TenorMonths <= 0 || req.TenorMonths > MaxTenorMonths {
		return nil, fmt.Errorf("%w: tenor must be between 1 and %d months", ErrValidation, MaxTenorMonths)
	}
	if req.AnnualRatePercent.IsNegative() {
		return nil, fmt.Errorf("%w: rate must not be negative", ErrValidation)
	}

	loan := &domain.Loan{
		ID:                uuid.New(),
		MemberID:          req.MemberID,
		ProductID:         req.ProductID,
		Principal:         req.Principal,
		AnnualRatePercent: req.AnnualRatePercent,
		TenorMonths:       req.TenorMonths,
		Status:            domain.LoanStatusDraft,
	}
	if err := s.repo.CreateLoan(ctx, loan); err != nil {
		return nil, err
	}

	s.logger.Infow("loan created", "component", "service",
		"loan_id", loan.ID, "member_id", loan.MemberID, "principal", loan.Principal, "actor", actor.ID)
	return loan, nil
}

// GetLoan retrieves a loan and its installments (empty before disbursement).
func (s *Service) GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, []domain.Repayment, error) {
	loan, err := s.repo.FindLoanByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	repayments, err := s.repo.ListRepaymentsByLoan(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return loan, repayments, nil
}

// PreviewSchedule computes the amortization schedule for a loan's terms
// without persisting anything.
func (s *Service) PreviewSchedule(ctx context.Context, loanID uuid.UUID, start time.Time) ([]domain.RepaymentScheduleEntry, error) {
	loan, err := s.repo.FindLoanByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	schedule, err := domain.BuildSchedule(loan.Principal, loan.AnnualRatePercent, loan.TenorMonths, start)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return schedule, nil
}

// TransitionLoan applies one loan status transition. A transition to
// disbursed also persists the repayment schedule and posts the opening ledger
// entry, all in the same atomic unit.
func (s *Service) TransitionLoan(ctx context.Context, loanID uuid.UUID, target domain.LoanStatus, actor domain.Actor) (*domain.Loan, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown loan status %q", ErrValidation, target)
	}

	if target == domain.LoanStatusDisbursed {
		loan, err := s.disburse(ctx, loanID, time.Now().UTC(), actor)
		if err != nil {
			return nil, err
		}
		return loan, nil
	}

	loan, err := s.repo.TransitionLoan(ctx, loanID, target, actor)
	if err != nil {
		return nil, err
	}

	s.logger.Infow("loan transitioned", "component", "service",
		"loan_id", loanID, "status", target, "actor", actor.ID)
	return loan, nil
}

// disburse computes the schedule from the loan's terms and hands it to the
// store's atomic disbursement, then emits the accounting-journal event.
func (s *Service) disburse(ctx context.Context, loanID uuid.UUID, start time.Time, actor domain.Actor) (*domain.Loan, error) {
	current, err := s.repo.FindLoanByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	schedule, err := domain.BuildSchedule(current.Principal, current.AnnualRatePercent, current.TenorMonths, start)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	loan, _, err := s.repo.DisburseLoan(ctx, loanID, schedule, actor)
	if err != nil {
		return nil, err
	}

	s.logger.Infow("loan disbursed", "component", "service",
		"loan_id", loanID, "principal", loan.Principal, "actor", actor.ID)
	s.publish(ctx, "loan.disbursed", rabbitmq.LoanDisbursedEvent{
		LoanID:      loan.ID,
		MemberID:    loan.MemberID,
		Principal:   loan.Principal,
		DisbursedBy: actor.ID,
		Timestamp:   time.Now().UTC(),
	})
	return loan, nil
}

// ---------------------------------------------------------------------------
// Payments
// ---------------------------------------------------------------------------

// CreatePayment registers a pending payment intake record.
func (s *Service) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest, actor domain.Actor) (*domain.Payment, error) {
	if !req.ReferenceType.Valid() {
		return nil, fmt.Errorf("%w: unknown reference type %q", ErrValidation, req.ReferenceType)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if strings.TrimSpace(req.Method) == "" {
		return nil, fmt.Errorf("%w: method is required", ErrValidation)
	}

	payment := &domain.Payment{
		ID:            uuid.New(),
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		MemberID:      req.MemberID,
		Amount:        req.Amount,
		Method:        strings.TrimSpace(req.Method),
		Status:        domain.PaymentStatusPending,
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	s.logger.Infow("payment created", "component", "service",
		"payment_id", payment.ID, "reference_type", payment.ReferenceType,
		"amount", payment.Amount, "actor", actor.ID)
	return payment, nil
}

// GetPayment retrieves a payment by id.
func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return s.repo.FindPaymentByID(ctx, id)
}

// ProcessPayment settles a pending payment, applying exactly one side effect
// selected by the payment's reference type. The status flip and the side
// effect share one atomic unit in the store: a handler failure leaves the
// payment pending.
func (s *Service) ProcessPayment(ctx context.Context, paymentID uuid.UUID, req domain.ProcessPaymentRequest, actor domain.Actor) (*domain.ProcessPaymentResult, error) {
	if strings.TrimSpace(req.ExternalRef) == "" {
		return nil, fmt.Errorf("%w: external reference is required", ErrValidation)
	}

	settlement := domain.Settlement{
		ExternalRef: strings.TrimSpace(req.ExternalRef),
		PaidAt:      time.Now().UTC(),
	}
	if req.PaidAt != nil {
		settlement.PaidAt = req.PaidAt.UTC()
	}

	payment, err := s.repo.FindPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	// Reject early so a settled payment fails the same way regardless of its
	// reference type; the authoritative guard stays in the store's claim.
	if payment.Status != domain.PaymentStatusPending {
		return nil, fmt.Errorf("%w: status=%s", store.ErrAlreadyProcessed, payment.Status)
	}

	result := &domain.ProcessPaymentResult{}

	switch payment.ReferenceType {
	case domain.PaymentRefSavingsDeposit:
		entry, err := s.repo.SettleSavingsDepositPayment(ctx, paymentID, settlement, actor)
		if err != nil {
			return nil, err
		}
		result.Transaction = entry

	case domain.PaymentRefRepayment:
		receipt, err := s.repo.SettleRepaymentPayment(ctx, paymentID, settlement, actor)
		if err != nil {
			return nil, err
		}
		result.Receipt = receipt
		s.publish(ctx, "repayment.recorded", rabbitmq.RepaymentRecordedEvent{
			LoanID:      receipt.LoanID,
			PaymentID:   paymentID,
			Amount:      receipt.AmountApplied,
			Outstanding: receipt.Outstanding,
			Timestamp:   settlement.PaidAt,
		})

	case domain.PaymentRefLoanFee:
		loan, err := s.settleLoanFee(ctx, payment, settlement, actor)
		if err != nil {
			return nil, err
		}
		result.Loan = loan

	case domain.PaymentRefMembershipFee:
		entry, err := s.repo.SettleMembershipFeePayment(ctx, paymentID, settlement, actor)
		if err != nil {
			return nil, err
		}
		result.Transaction = entry
		s.publish(ctx, "member.activated", rabbitmq.MemberActivatedEvent{
			MemberID:  payment.ReferenceID,
			Timestamp: settlement.PaidAt,
		})

	default:
		return nil, fmt.Errorf("%w: unknown reference type %q", ErrValidation, payment.ReferenceType)
	}

	settled, err := s.repo.FindPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	result.Payment = settled

	s.logger.Infow("payment processed", "component", "service",
		"payment_id", paymentID, "reference_type", payment.ReferenceType,
		"amount", payment.Amount, "actor", actor.ID)
	return result, nil
}

// settleLoanFee computes the schedule for the referenced loan and runs the
// combined claim-and-disburse unit, then emits the disbursement event.
func (s *Service) settleLoanFee(ctx context.Context, payment *domain.Payment, settlement domain.Settlement, actor domain.Actor) (*domain.Loan, error) {
	current, err := s.repo.FindLoanByID(ctx, payment.ReferenceID)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.LoanStatusApproved {
		return nil, fmt.Errorf("%w: loan is %s, not approved", store.ErrInvalidTransition, current.Status)
	}
	schedule, err := domain.BuildSchedule(current.Principal, current.AnnualRatePercent, current.TenorMonths, settlement.PaidAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	loan, err := s.repo.SettleLoanFeePayment(ctx, payment.ID, schedule, settlement, actor)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, "loan.disbursed", rabbitmq.LoanDisbursedEvent{
		LoanID:      loan.ID,
		MemberID:    loan.MemberID,
		Principal:   loan.Principal,
		DisbursedBy: actor.ID,
		Timestamp:   settlement.PaidAt,
	})
	return loan, nil
}

// ---------------------------------------------------------------------------
// Audit trail
// ---------------------------------------------------------------------------

// AuditTrail returns the audit history of one entity.
func (s *Service) AuditTrail(ctx context.Context, entityType string, entityID uuid.UUID) ([]domain.AuditEntry, error) {
	switch entityType {
	case "account", "loan", "payment", "member":
	default:
		return nil, fmt.Errorf("%w: unknown entity type %q", ErrValidation, entityType)
	}
	return s.repo.ListAuditTrail(ctx, entityType, entityID)
}
