/**
 * @description
 * This file defines the savings-side domain models for the coop-core-service:
 * accounts and the immutable ledger transactions applied to them.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit, which avoids
 *   floating-point drift across the thousands of entries a long-lived account
 *   accumulates.
 * - A Transaction captures balance_before/balance_after at write time. The
 *   account balance is a derived cache that must always equal the
 *   balance_after of the account's most recent transaction.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates the savings products a member can hold.
type AccountType string

const (
	AccountPrincipalDeposit AccountType = "principal_deposit"
	AccountMandatoryDeposit AccountType = "mandatory_deposit"
	AccountVoluntaryDeposit AccountType = "voluntary_deposit"
	AccountTermDeposit      AccountType = "term_deposit"
)

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	switch t {
	case AccountPrincipalDeposit, AccountMandatoryDeposit, AccountVoluntaryDeposit, AccountTermDeposit:
		return true
	}
	return false
}

// AccountStatus enumerates the lifecycle states of an account.
// Accounts are closed, never deleted.
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusClosed AccountStatus = "closed"
)

// Account represents one savings-type ledger for one member.
// The balance is only ever mutated by applying a Transaction.
type Account struct {
	ID          uuid.UUID       `json:"id"`
	MemberID    uuid.UUID       `json:"member_id"`
	Type        AccountType     `json:"type"`
	Balance     int64           `json:"balance"` // minor currency units
	RatePercent decimal.Decimal `json:"rate_percent"`
	Status      AccountStatus   `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TransactionType enumerates the kinds of ledger entries.
type TransactionType string

const (
	TxDeposit        TransactionType = "deposit"
	TxWithdrawal     TransactionType = "withdrawal"
	TxInterestCredit TransactionType = "interest_credit"
	TxTransferDebit  TransactionType = "transfer_debit"
	TxTransferCredit TransactionType = "transfer_credit"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TxDeposit, TxWithdrawal, TxInterestCredit, TxTransferDebit, TxTransferCredit:
		return true
	}
	return false
}

// Sign returns +1 for credit entries and -1 for debit entries.
func (t TransactionType) Sign() int64 {
	switch t {
	case TxWithdrawal, TxTransferDebit:
		return -1
	default:
		return 1
	}
}

// Transaction is an immutable, append-only ledger entry. Once written it is
// never updated or deleted; corrections are made with compensating entries.
type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	AccountID     uuid.UUID       `json:"account_id"`
	Type          TransactionType `json:"type"`
	Amount        int64           `json:"amount"` // signed, minor currency units
	BalanceBefore int64           `json:"balance_before"`
	BalanceAfter  int64           `json:"balance_after"`
	Description   string          `json:"description"`
	EffectiveDate time.Time       `json:"effective_date"`
	RecordedBy    string          `json:"recorded_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Actor identifies who performs a core operation and on behalf of which
// tenant. The core never reads ambient session state; every operation takes
// an explicit Actor.
type Actor struct {
	ID     string `json:"id"`
	Tenant string `json:"tenant"`
}

// ApplyTransactionRequest is the DTO for posting a ledger entry to an account.
type ApplyTransactionRequest struct {
	Type          TransactionType `json:"type"`
	Amount        int64           `json:"amount"` // positive, minor currency units
	Description   string          `json:"description"`
	EffectiveDate *time.Time      `json:"effective_date,omitempty"`
}

// TransferRequest is the DTO for moving funds between two accounts.
type TransferRequest struct {
	FromAccountID uuid.UUID `json:"from_account_id"`
	ToAccountID   uuid.UUID `json:"to_account_id"`
	Amount        int64     `json:"amount"`
	Description   string    `json:"description"`
}

// CreateAccountRequest is the DTO for opening a savings product.
type CreateAccountRequest struct {
	Type        AccountType     `json:"type"`
	RatePercent decimal.Decimal `json:"rate_percent"`
}
