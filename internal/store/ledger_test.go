package store

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/koperasi/coop-core-service/internal/domain"
)

func openAccount(balance int64) *domain.Account {
	return &domain.Account{
		ID:       uuid.New(),
		MemberID: uuid.New(),
		Type:     domain.AccountVoluntaryDeposit,
		Balance:  balance,
		Status:   domain.AccountStatusActive,
	}
}

func TestBuildLedgerEntry_DepositCapturesBalances(t *testing.T) {
	account := openAccount(250_000)

	entry, err := buildLedgerEntry(account, domain.ApplyTransactionRequest{
		Type:   domain.TxDeposit,
		Amount: 500_000,
	}, domain.Actor{ID: "teller-1"}, time.Now().UTC())
	if err != nil {
		t.Fatalf("buildLedgerEntry returned error: %v", err)
	}
	if entry.Amount != 500_000 {
		t.Fatalf("expected amount +500000, got %d", entry.Amount)
	}
	if entry.BalanceBefore != 250_000 || entry.BalanceAfter != 750_000 {
		t.Fatalf("expected balances 250000 -> 750000, got %d -> %d", entry.BalanceBefore, entry.BalanceAfter)
	}
	if entry.RecordedBy != "teller-1" {
		t.Fatalf("expected recorded_by teller-1, got %q", entry.RecordedBy)
	}
}

func TestBuildLedgerEntry_WithdrawalSignsAmount(t *testing.T) {
	account := openAccount(500_000)

	entry, err := buildLedgerEntry(account, domain.ApplyTransactionRequest{
		Type:   domain.TxWithdrawal,
		Amount: 200_000,
	}, domain.Actor{ID: "teller-1"}, time.Now().UTC())
	if err != nil {
		t.Fatalf("buildLedgerEntry returned error: %v", err)
	}
	if entry.Amount != -200_000 {
		t.Fatalf("expected amount -200000, got %d", entry.Amount)
	}
	if entry.BalanceBefore != 500_000 || entry.BalanceAfter != 300_000 {
		t.Fatalf("expected balances 500000 -> 300000, got %d -> %d", entry.BalanceBefore, entry.BalanceAfter)
	}
}

func TestBuildLedgerEntry_OverWithdrawalLeavesBalanceUntouched(t *testing.T) {
	account := openAccount(0)
	now := time.Now().UTC()

	// Deposit 500,000 then try to withdraw 600,000. The withdrawal must be
	// rejected with no entry and no balance change.
	deposit, err := buildLedgerEntry(account, domain.ApplyTransactionRequest{
		Type:   domain.TxDeposit,
		Amount: 500_000,
	}, domain.Actor{ID: "teller-1"}, now)
	if err != nil {
		t.Fatalf("deposit returned error: %v", err)
	}
	account.Balance = deposit.BalanceAfter

	entry, err := buildLedgerEntry(account, domain.ApplyTransactionRequest{
		Type:   domain.TxWithdrawal,
		Amount: 600_000,
	}, domain.Actor{ID: "teller-1"}, now)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if entry != nil {
		t.Fatal("expected no entry for a rejected withdrawal")
	}
	if account.Balance != 500_000 {
		t.Fatalf("expected balance unchanged at 500000, got %d", account.Balance)
	}
}

func TestBuildLedgerEntry_ExactBalanceWithdrawalAllowed(t *testing.T) {
	account := openAccount(500_000)

	entry, err := buildLedgerEntry(account, domain.ApplyTransactionRequest{
		Type:   domain.TxWithdrawal,
		Amount: 500_000,
	}, domain.Actor{ID: "teller-1"}, time.Now().UTC())
	if err != nil {
		t.Fatalf("buildLedgerEntry returned error: %v", err)
	}
	if entry.BalanceAfter != 0 {
		t.Fatalf("expected balance after 0, got %d", entry.BalanceAfter)
	}
}

func TestBuildLedgerEntry_ClosedAccountRejected(t *testing.T) {
	account := openAccount(100_000)
	account.Status = domain.AccountStatusClosed

	_, err := buildLedgerEntry(account, domain.ApplyTransactionRequest{
		Type:   domain.TxDeposit,
		Amount: 100,
	}, domain.Actor{ID: "teller-1"}, time.Now().UTC())
	if !errors.Is(err, ErrAccountClosed) {
		t.Fatalf("expected ErrAccountClosed, got %v", err)
	}
}

func TestScheduleTotal_LoanRepayableThroughOwnSchedule(t *testing.T) {
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	schedule, err := domain.BuildSchedule(5_000_000, decimal.NewFromInt(12), 12, start)
	if err != nil {
		t.Fatalf("BuildSchedule returned error: %v", err)
	}

	// Settling every installment in order must drive the opening outstanding
	// to exactly zero without any installment exceeding what remains.
	outstanding := scheduleTotal(schedule)
	for _, entry := range schedule {
		if entry.Payment > outstanding {
			t.Fatalf("installment %d payment %d exceeds outstanding %d", entry.Sequence, entry.Payment, outstanding)
		}
		outstanding -= entry.Payment
	}
	if outstanding != 0 {
		t.Fatalf("expected outstanding to reach zero, got %d", outstanding)
	}
}

func TestScheduleTotal_IsPrincipalPlusInterest(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	schedule, err := domain.BuildSchedule(2_400_000, decimal.RequireFromString("9.5"), 24, start)
	if err != nil {
		t.Fatalf("BuildSchedule returned error: %v", err)
	}

	var principal, interest int64
	for _, entry := range schedule {
		principal += entry.Principal
		interest += entry.Interest
	}
	if got := scheduleTotal(schedule); got != principal+interest {
		t.Fatalf("scheduleTotal = %d, want principal %d + interest %d", got, principal, interest)
	}
	if principal != 2_400_000 {
		t.Fatalf("expected schedule principal to sum to 2400000, got %d", principal)
	}
}
