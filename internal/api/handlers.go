/**
 * @description
 * This file contains the HTTP handlers for the coop-core-service API.
 * Handlers parse and validate incoming requests, call the application
 * service, and map the store's typed failures onto HTTP statuses. They are
 * the bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: service logic, models,
 *   and typed errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/koperasi/coop-core-service/internal/app"
	"github.com/koperasi/coop-core-service/internal/domain"
	"github.com/koperasi/coop-core-service/internal/store"
	"go.uber.org/zap"
)

// Handlers holds the application service the HTTP layer delegates to.
type Handlers struct {
	service *app.Service
	logger  *zap.SugaredLogger

	limiter          app.RateLimiter
	processRateLimit int
	processWindow    time.Duration
}

// NewHandlers creates a new Handlers instance. limiter may be nil.
func NewHandlers(service *app.Service, logger *zap.SugaredLogger, limiter app.RateLimiter, processRateLimit int) *Handlers {
	return &Handlers{
		service:          service,
		logger:           logger,
		limiter:          limiter,
		processRateLimit: processRateLimit,
		processWindow:    time.Minute,
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			h.logger.Errorw("response encode failed", "component", "api", "err", err)
		}
	}
}

// writeError maps the service's typed failures onto HTTP statuses.
// ErrInconsistentBalance is the one error a caller is expected to retry.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrValidation):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrMemberNotFound),
		errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrLoanNotFound),
		errors.Is(err, store.ErrRepaymentNotFound),
		errors.Is(err, store.ErrPaymentNotFound):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrMemberExists),
		errors.Is(err, store.ErrAccountExists):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrInsufficientBalance),
		errors.Is(err, store.ErrAccountClosed),
		errors.Is(err, store.ErrAccountNotEmpty),
		errors.Is(err, store.ErrMemberNotPending):
		h.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, store.ErrAlreadyProcessed):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrInconsistentBalance):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Retryable: true})
	default:
		h.logger.Errorw("request failed", "component", "api", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (h *Handlers) actor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Could not get actor from context", http.StatusInternalServerError)
		return domain.Actor{}, false
	}
	return actor, true
}

func (h *Handlers) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// RegisterMemberHandler handles POST /members.
func (h *Handlers) RegisterMemberHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req domain.RegisterMemberRequest
	if !h.decode(w, r, &req) {
		return
	}
	member, err := h.service.RegisterMember(r.Context(), req, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, member)
}

// GetMemberHandler handles GET /members/{memberID}.
func (h *Handlers) GetMemberHandler(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.pathID(w, r, "memberID")
	if !ok {
		return
	}
	member, err := h.service.GetMember(r.Context(), memberID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, member)
}

// CreateAccountHandler handles POST /members/{memberID}/accounts.
func (h *Handlers) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	memberID, ok := h.pathID(w, r, "memberID")
	if !ok {
		return
	}
	var req domain.CreateAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	account, err := h.service.CreateAccount(r.Context(), memberID, req, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, account)
}

// ApplyTransactionHandler handles POST /accounts/{accountID}/transactions.
func (h *Handlers) ApplyTransactionHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	accountID, ok := h.pathID(w, r, "accountID")
	if !ok {
		return
	}
	var req domain.ApplyTransactionRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.service.ApplyTransaction(r.Context(), accountID, req, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, entry)
}

// ListAccountsHandler handles GET /members/{memberID}/accounts.
func (h *Handlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.pathID(w, r, "memberID")
	if !ok {
		return
	}
	accounts, err := h.service.ListAccounts(r.Context(), memberID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

// GetAccountHandler handles GET /accounts/{accountID}.
func (h *Handlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.pathID(w, r, "accountID")
	if !ok {
		return
	}
	account, err := h.service.GetAccount(r.Context(), accountID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// ListTransactionsHandler handles GET /accounts/{accountID}/transactions.
func (h *Handlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.pathID(w, r, "accountID")
	if !ok {
		return
	}
	entries, err := h.service.ListTransactions(r.Context(), accountID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// CloseAccountHandler handles POST /accounts/{accountID}/close.
func (h *Handlers) CloseAccountHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	accountID, ok := h.pathID(w, r, "accountID")
	if !ok {
		return
	}
	if err := h.service.CloseAccount(r.Context(), accountID, actor); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// TransferHandler handles POST /transfers.
func (h *Handlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req domain.TransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	debit, credit, err := h.service.Transfer(r.Context(), req, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]*domain.Transaction{
		"debit":  debit,
		"credit": credit,
	})
}

// MemberBalanceHandler handles GET /members/{memberID}/balance.
func (h *Handlers) MemberBalanceHandler(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.pathID(w, r, "memberID")
	if !ok {
		return
	}
	total, err := h.service.MemberBalance(r.Context(), memberID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"total_balance": total})
}

// TypeBalanceHandler handles GET /reports/balance-by-type.
func (h *Handlers) TypeBalanceHandler(w http.ResponseWriter, r *http.Request) {
	accountType := domain.AccountType(r.URL.Query().Get("type"))
	total, err := h.service.TypeBalance(r.Context(), accountType)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_type":  accountType,
		"total_balance": total,
	})
}

// CreateLoanHandler handles POST /loans.
func (h *Handlers) CreateLoanHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req domain.CreateLoanRequest
	if !h.decode(w, r, &req) {
		return
	}
	loan, err := h.service.CreateLoan(r.Context(), req, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, loan)
}

type loanResponse struct {
	Loan       *domain.Loan       `json:"loan"`
	Repayments []domain.Repayment `json:"repayments"`
}

// GetLoanHandler handles GET /loans/{loanID}.
func (h *Handlers) GetLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := h.pathID(w, r, "loanID")
	if !ok {
		return
	}
	loan, repayments, err := h.service.GetLoan(r.Context(), loanID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loanResponse{Loan: loan, Repayments: repayments})
}

// PreviewScheduleHandler handles GET /loans/{loanID}/schedule. The schedule
// is computed on the fly and never persisted here.
func (h *Handlers) PreviewScheduleHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := h.pathID(w, r, "loanID")
	if !ok {
		return
	}
	start := time.Now().UTC()
	if raw := r.URL.Query().Get("start"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid start date, want YYYY-MM-DD"})
			return
		}
		start = parsed
	}
	schedule, err := h.service.PreviewSchedule(r.Context(), loanID, start)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, schedule)
}

// TransitionLoanHandler handles POST /loans/{loanID}/transition.
func (h *Handlers) TransitionLoanHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	loanID, ok := h.pathID(w, r, "loanID")
	if !ok {
		return
	}
	var req domain.TransitionLoanRequest
	if !h.decode(w, r, &req) {
		return
	}
	loan, err := h.service.TransitionLoan(r.Context(), loanID, req.Target, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loan)
}

// CreatePaymentHandler handles POST /payments.
func (h *Handlers) CreatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req domain.CreatePaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	payment, err := h.service.CreatePayment(r.Context(), req, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, payment)
}

// GetPaymentHandler handles GET /payments/{paymentID}.
func (h *Handlers) GetPaymentHandler(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := h.pathID(w, r, "paymentID")
	if !ok {
		return
	}
	payment, err := h.service.GetPayment(r.Context(), paymentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, payment)
}

// ProcessPaymentHandler handles POST /payments/{paymentID}/process.
func (h *Handlers) ProcessPaymentHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	paymentID, ok := h.pathID(w, r, "paymentID")
	if !ok {
		return
	}

	if h.limiter != nil && h.processRateLimit > 0 {
		allowed, err := h.limiter.Allow(r.Context(), actor.ID, h.processRateLimit, h.processWindow)
		if err != nil {
			h.logger.Warnw("rate limiter unavailable; allowing request", "component", "api", "err", err)
		} else if !allowed {
			h.writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many payment submissions, slow down"})
			return
		}
	}

	var req domain.ProcessPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.ProcessPayment(r.Context(), paymentID, req, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// AuditTrailHandler handles GET /audit?entity_type=...&entity_id=...
func (h *Handlers) AuditTrailHandler(w http.ResponseWriter, r *http.Request) {
	entityType := r.URL.Query().Get("entity_type")
	entityID, err := uuid.Parse(r.URL.Query().Get("entity_id"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid entity_id"})
		return
	}
	entries, err := h.service.AuditTrail(r.Context(), entityType, entityID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}
