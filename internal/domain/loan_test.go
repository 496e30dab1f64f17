package domain

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name    string
		current LoanStatus
		target  LoanStatus
		want    bool
	}{
		{"draft to survey", LoanStatusDraft, LoanStatusSurvey, true},
		{"survey to review", LoanStatusSurvey, LoanStatusReview, true},
		{"review to approved", LoanStatusReview, LoanStatusApproved, true},
		{"approved to disbursed", LoanStatusApproved, LoanStatusDisbursed, true},
		{"disbursed to closed", LoanStatusDisbursed, LoanStatusClosed, true},
		{"disbursed to default", LoanStatusDisbursed, LoanStatusDefault, true},
		{"no skipping draft to approved", LoanStatusDraft, LoanStatusApproved, false},
		{"no skipping draft to disbursed", LoanStatusDraft, LoanStatusDisbursed, false},
		{"no skipping survey to approved", LoanStatusSurvey, LoanStatusApproved, false},
		{"no default before disbursement", LoanStatusApproved, LoanStatusDefault, false},
		{"no going backwards", LoanStatusReview, LoanStatusSurvey, false},
		{"closed is terminal", LoanStatusClosed, LoanStatusDefault, false},
		{"default is terminal", LoanStatusDefault, LoanStatusClosed, false},
		{"self transition rejected", LoanStatusDraft, LoanStatusDraft, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanTransition(tc.current, tc.target); got != tc.want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.current, tc.target, got, tc.want)
			}
		})
	}
}

func TestLoanStatusTerminal(t *testing.T) {
	for _, status := range []LoanStatus{LoanStatusClosed, LoanStatusDefault} {
		if !status.Terminal() {
			t.Fatalf("expected %s to be terminal", status)
		}
	}
	for _, status := range []LoanStatus{LoanStatusDraft, LoanStatusSurvey, LoanStatusReview, LoanStatusApproved, LoanStatusDisbursed} {
		if status.Terminal() {
			t.Fatalf("expected %s not to be terminal", status)
		}
	}
}

func TestTransactionTypeSign(t *testing.T) {
	cases := []struct {
		txType TransactionType
		want   int64
	}{
		{TxDeposit, 1},
		{TxInterestCredit, 1},
		{TxTransferCredit, 1},
		{TxWithdrawal, -1},
		{TxTransferDebit, -1},
	}
	for _, tc := range cases {
		if got := tc.txType.Sign(); got != tc.want {
			t.Fatalf("Sign(%s) = %d, want %d", tc.txType, got, tc.want)
		}
	}
}
