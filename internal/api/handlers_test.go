package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/koperasi/coop-core-service/internal/app"
	"github.com/koperasi/coop-core-service/internal/store"
)

func TestWriteError_StatusMapping(t *testing.T) {
	h := &Handlers{logger: zap.NewNop().Sugar()}

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", fmt.Errorf("%w: amount must be positive", app.ErrValidation), http.StatusBadRequest},
		{"member not found", store.ErrMemberNotFound, http.StatusNotFound},
		{"account not found", store.ErrAccountNotFound, http.StatusNotFound},
		{"loan not found", store.ErrLoanNotFound, http.StatusNotFound},
		{"payment not found", store.ErrPaymentNotFound, http.StatusNotFound},
		{"member exists", store.ErrMemberExists, http.StatusConflict},
		{"account exists", store.ErrAccountExists, http.StatusConflict},
		{"insufficient balance", store.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{"account closed", store.ErrAccountClosed, http.StatusUnprocessableEntity},
		{"account not empty", store.ErrAccountNotEmpty, http.StatusUnprocessableEntity},
		{"member not pending", store.ErrMemberNotPending, http.StatusUnprocessableEntity},
		{"invalid transition", store.ErrInvalidTransition, http.StatusConflict},
		{"already processed", store.ErrAlreadyProcessed, http.StatusConflict},
		{"inconsistent balance", store.ErrInconsistentBalance, http.StatusConflict},
		{"wrapped invalid transition", fmt.Errorf("%w: loan is draft, not approved", store.ErrInvalidTransition), http.StatusConflict},
		{"unknown", fmt.Errorf("connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeError(rec, tc.err)
			if rec.Code != tc.want {
				t.Fatalf("writeError(%v) = %d, want %d", tc.err, rec.Code, tc.want)
			}
		})
	}
}

func TestWriteError_InconsistentBalanceIsRetryable(t *testing.T) {
	h := &Handlers{logger: zap.NewNop().Sugar()}

	rec := httptest.NewRecorder()
	h.writeError(rec, store.ErrInconsistentBalance)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, `"retryable":true`) {
		t.Fatalf("expected retryable marker in body, got %q", body)
	}
}
