/**
 * @description
 * This file defines the payment intake models. A Payment bridges an external
 * payment event to exactly one domain side effect, selected by its reference
 * type. Reference types form a closed enumeration that the dispatcher matches
 * exhaustively; adding a purpose means adding a constant and a handler, not a
 * new string comparison scattered through the code.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentReferenceType selects the side effect a settled payment triggers.
type PaymentReferenceType string

const (
	PaymentRefRepayment      PaymentReferenceType = "repayment"
	PaymentRefSavingsDeposit PaymentReferenceType = "savings_deposit"
	PaymentRefLoanFee        PaymentReferenceType = "loan_fee"
	PaymentRefMembershipFee  PaymentReferenceType = "membership_fee"
)

// Valid reports whether t is a known reference type.
func (t PaymentReferenceType) Valid() bool {
	switch t {
	case PaymentRefRepayment, PaymentRefSavingsDeposit, PaymentRefLoanFee, PaymentRefMembershipFee:
		return true
	}
	return false
}

// PaymentStatus enumerates the payment lifecycle. A payment moves from
// pending to paid at most once; paid and failed are terminal.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Payment is the intake record for an external payment event. The side
// effect is applied if and only if the status transitions to paid, and the
// two happen in one atomic unit.
type Payment struct {
	ID            uuid.UUID            `json:"id"`
	ReferenceType PaymentReferenceType `json:"reference_type"`
	ReferenceID   uuid.UUID            `json:"reference_id"`
	MemberID      uuid.UUID            `json:"member_id"`
	Amount        int64                `json:"amount"` // minor currency units
	Method        string               `json:"method"`
	Status        PaymentStatus        `json:"status"`
	ExternalRef   *string              `json:"external_ref,omitempty"`
	PaymentDate   *time.Time           `json:"payment_date,omitempty"`
	ProcessedBy   *string              `json:"processed_by,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// Settlement carries the metadata recorded when a payment is marked paid.
type Settlement struct {
	ExternalRef string    `json:"external_ref"`
	PaidAt      time.Time `json:"paid_at"`
}

// CreatePaymentRequest is the DTO for registering a pending payment.
type CreatePaymentRequest struct {
	ReferenceType PaymentReferenceType `json:"reference_type"`
	ReferenceID   uuid.UUID            `json:"reference_id"`
	MemberID      uuid.UUID            `json:"member_id"`
	Amount        int64                `json:"amount"`
	Method        string               `json:"method"`
}

// ProcessPaymentRequest is the DTO for settling a pending payment.
type ProcessPaymentRequest struct {
	ExternalRef string     `json:"external_ref"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

// ProcessPaymentResult reports what a settled payment did.
type ProcessPaymentResult struct {
	Payment     *Payment          `json:"payment"`
	Transaction *Transaction      `json:"transaction,omitempty"`
	Loan        *Loan             `json:"loan,omitempty"`
	Receipt     *RepaymentReceipt `json:"receipt,omitempty"`
}
