/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend
  5. Session:    JWT bearer validation (everything under /api)

ROUTE GROUPS:
  /api/members/*        Member management (admin writes)
  /api/claims/*         Claim lifecycle
  /api/payments/*       Bank-transfer records and export marking
  /api/fees/*           Monthly fee aggregation
  /api/notifications    Session user's inbox
  /api/admin/*          Approver registry, fee rates
  /healthz              Liveness probe (unauthenticated)

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Session middleware and role gates
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, jwtSecret string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes: everything requires a session.
	r.Route("/api", func(r chi.Router) {
		r.Use(SessionMiddleware(jwtSecret))

		// Member routes
		r.Route("/members", func(r chi.Router) {
			r.Get("/{id}", h.GetMember)
			r.With(RequireRole(RoleAdmin)).Get("/", h.ListMembers)
			r.With(RequireRole(RoleAdmin)).Post("/", h.SaveMember)
		})

		// Claim routes
		r.Route("/claims", func(r chi.Router) {
			r.Get("/", h.ListClaims)
			r.Post("/", h.SubmitClaim)
			r.Get("/{id}", h.GetClaim)
			r.With(RequireRole(RoleApprover, RoleAdmin)).Group(func(r chi.Router) {
				r.Post("/{id}/approve-company", h.ApproveCompany)
				r.Post("/{id}/approve-hq", h.ApproveHQ)
				r.Post("/{id}/reject", h.RejectClaim)
			})
			r.With(RequireRole(RoleAdmin)).Post("/{id}/paid", h.MarkClaimPaid)
			r.With(RequireRole(RoleAdmin)).Post("/{id}/cancel", h.CancelClaim)
		})

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Use(RequireRole(RoleAdmin))
			r.Get("/", h.ListPayments)
			r.Post("/mark-exported", h.MarkPaymentsExported)
		})

		// Fee routes
		r.Route("/fees", func(r chi.Router) {
			r.Get("/", h.ListFees)
			r.With(RequireRole(RoleAdmin)).Post("/generate", h.GenerateFees)
			r.With(RequireRole(RoleAdmin)).Post("/invoice", h.InvoiceFees)
			r.With(RequireRole(RoleAdmin)).Post("/{companyID}/payments", h.RecordFeePayment)
		})

		// Notification routes
		r.Get("/notifications", h.ListNotifications)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireRole(RoleAdmin))
			r.Post("/approvers", h.SaveApprover)
			r.Post("/fee-rates", h.SetFeeRate)
		})
	})

	return r
}
