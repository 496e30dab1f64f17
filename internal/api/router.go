/**
 * @description
 * This file sets up the HTTP router for the coop-core-service using the
 * go-chi/chi router. It defines the API routes, applies middleware for
 * logging, CORS, and authentication, and maps the routes to their
 * corresponding handler functions.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the coop-core-service
// routes. Every route except /health requires a valid staff token.
func NewRouter(h *Handlers, authSecret string) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Coop core service is healthy"))
	})

	// Protected routes that require authentication
	r.Group(func(r chi.Router) {
		r.Use(ActorAuthMiddleware(authSecret))

		r.Route("/members", func(r chi.Router) {
			r.Post("/", h.RegisterMemberHandler)
			r.Get("/{memberID}", h.GetMemberHandler)
			r.Post("/{memberID}/accounts", h.CreateAccountHandler)
			r.Get("/{memberID}/accounts", h.ListAccountsHandler)
			r.Get("/{memberID}/balance", h.MemberBalanceHandler)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/{accountID}", h.GetAccountHandler)
			r.Post("/{accountID}/transactions", h.ApplyTransactionHandler)
			r.Get("/{accountID}/transactions", h.ListTransactionsHandler)
			r.Post("/{accountID}/close", h.CloseAccountHandler)
		})

		r.Post("/transfers", h.TransferHandler)

		r.Route("/loans", func(r chi.Router) {
			r.Post("/", h.CreateLoanHandler)
			r.Get("/{loanID}", h.GetLoanHandler)
			r.Get("/{loanID}/schedule", h.PreviewScheduleHandler)
			r.Post("/{loanID}/transition", h.TransitionLoanHandler)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.CreatePaymentHandler)
			r.Get("/{paymentID}", h.GetPaymentHandler)
			r.Post("/{paymentID}/process", h.ProcessPaymentHandler)
		})

		r.Get("/reports/balance-by-type", h.TypeBalanceHandler)
		r.Get("/audit", h.AuditTrailHandler)
	})

	return r
}
