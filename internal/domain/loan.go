/**
 * @description
 * This file defines the loan domain models and the loan status transition
 * rules. The transition rules are pure data, shared by the service layer and
 * the store so both validate against the same partial order.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanStatus enumerates the loan lifecycle states.
type LoanStatus string

const (
	LoanStatusDraft     LoanStatus = "draft"
	LoanStatusSurvey    LoanStatus = "survey"
	LoanStatusReview    LoanStatus = "review"
	LoanStatusApproved  LoanStatus = "approved"
	LoanStatusDisbursed LoanStatus = "disbursed"
	LoanStatusClosed    LoanStatus = "closed"
	LoanStatusDefault   LoanStatus = "default"
)

// loanSuccessors encodes the fixed partial order of loan statuses. A
// transition is legal only if the target is an immediate successor of the
// current status; closed and default are terminal.
var loanSuccessors = map[LoanStatus][]LoanStatus{
	LoanStatusDraft:     {LoanStatusSurvey},
	LoanStatusSurvey:    {LoanStatusReview},
	LoanStatusReview:    {LoanStatusApproved},
	LoanStatusApproved:  {LoanStatusDisbursed},
	LoanStatusDisbursed: {LoanStatusClosed, LoanStatusDefault},
}

// Valid reports whether s is a known loan status.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanStatusDraft, LoanStatusSurvey, LoanStatusReview, LoanStatusApproved,
		LoanStatusDisbursed, LoanStatusClosed, LoanStatusDefault:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s LoanStatus) Terminal() bool {
	return s == LoanStatusClosed || s == LoanStatusDefault
}

// CanTransition reports whether target is a legal immediate successor of
// current.
func CanTransition(current, target LoanStatus) bool {
	for _, next := range loanSuccessors[current] {
		if next == target {
			return true
		}
	}
	return false
}

// Loan represents one borrowing relationship. Role fields are set during the
// transition that requires them and never cleared afterwards.
type Loan struct {
	ID                uuid.UUID       `json:"id"`
	MemberID          uuid.UUID       `json:"member_id"`
	ProductID         *uuid.UUID      `json:"product_id,omitempty"`
	Principal         int64           `json:"principal"` // minor currency units
	AnnualRatePercent decimal.Decimal `json:"annual_rate_percent"`
	TenorMonths       int             `json:"tenor_months"`
	Status            LoanStatus      `json:"status"`
	Outstanding       int64           `json:"outstanding"` // unpaid amount due, minor units
	SurveyedBy        *string         `json:"surveyed_by,omitempty"`
	ReviewedBy        *string         `json:"reviewed_by,omitempty"`
	ApprovedBy        *string         `json:"approved_by,omitempty"`
	DisbursedBy       *string         `json:"disbursed_by,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// RepaymentStatus enumerates the settlement state of one installment.
type RepaymentStatus string

const (
	RepaymentStatusScheduled RepaymentStatus = "scheduled"
	RepaymentStatusPartial   RepaymentStatus = "partial"
	RepaymentStatusPaid      RepaymentStatus = "paid"
)

// Repayment is one persisted installment of a disbursed loan. Rows are
// created from the amortization schedule at disbursement time.
type Repayment struct {
	ID           uuid.UUID       `json:"id"`
	LoanID       uuid.UUID       `json:"loan_id"`
	Sequence     int             `json:"sequence"`
	DueDate      time.Time       `json:"due_date"`
	PrincipalDue int64           `json:"principal_due"`
	InterestDue  int64           `json:"interest_due"`
	AmountDue    int64           `json:"amount_due"`
	AmountPaid   int64           `json:"amount_paid"`
	Status       RepaymentStatus `json:"status"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// CreateLoanRequest is the DTO for originating a loan in draft status.
type CreateLoanRequest struct {
	MemberID          uuid.UUID       `json:"member_id"`
	ProductID         *uuid.UUID      `json:"product_id,omitempty"`
	Principal         int64           `json:"principal"`
	AnnualRatePercent decimal.Decimal `json:"annual_rate_percent"`
	TenorMonths       int             `json:"tenor_months"`
}

// TransitionLoanRequest is the DTO for requesting a status change.
type TransitionLoanRequest struct {
	Target LoanStatus `json:"target"`
}

// RepaymentReceipt summarizes the effect of a settled repayment payment.
type RepaymentReceipt struct {
	LoanID        uuid.UUID `json:"loan_id"`
	RepaymentID   uuid.UUID `json:"repayment_id"`
	AmountApplied int64     `json:"amount_applied"`
	Outstanding   int64     `json:"outstanding"`
	LoanClosed    bool      `json:"loan_closed"`
}
