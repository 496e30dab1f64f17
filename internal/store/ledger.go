/**
 * @description
 * This file holds the pure ledger arithmetic shared by the repository's
 * atomic units: validating one balance mutation against the locked account
 * state, and totaling a repayment schedule. Keeping the computation free of
 * SQL lets the invariants be tested without a database.
 */

package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/koperasi/coop-core-service/internal/domain"
)

// buildLedgerEntry validates one mutation against the locked account state
// and computes the resulting immutable entry. It never mutates the account;
// the caller persists the entry and the new balance together.
func buildLedgerEntry(account *domain.Account, req domain.ApplyTransactionRequest, actor domain.Actor, now time.Time) (*domain.Transaction, error) {
	if account.Status == domain.AccountStatusClosed {
		return nil, ErrAccountClosed
	}

	signed := req.Amount * req.Type.Sign()
	newBalance := account.Balance + signed
	if newBalance < 0 {
		return nil, ErrInsufficientBalance
	}

	effective := now
	if req.EffectiveDate != nil {
		effective = *req.EffectiveDate
	}

	return &domain.Transaction{
		ID:            uuid.New(),
		AccountID:     account.ID,
		Type:          req.Type,
		Amount:        signed,
		BalanceBefore: account.Balance,
		BalanceAfter:  newBalance,
		Description:   req.Description,
		EffectiveDate: effective,
		RecordedBy:    actor.ID,
	}, nil
}

// scheduleTotal sums the amount due across a repayment schedule. A loan's
// outstanding opens at this total (principal plus all interest) so that
// settling every installment lands it on exactly zero.
func scheduleTotal(schedule []domain.RepaymentScheduleEntry) int64 {
	var total int64
	for _, entry := range schedule {
		total += entry.Payment
	}
	return total
}
