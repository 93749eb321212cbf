/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. Logger:     Structured request log (zap)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the back-office frontend

ROUTE GROUPS:
  /api/sellers/*         Period records, statements, lifecycle actions
  /api/commissions       Sale feed ingress
  /api/adjustments       Manual credits/debits
  /api/payments          Payments
  /api/entries/*         Entry reads, edits and transfers
  /api/reconciliation/*  Drift sweeps
  /api/scenarios/*       Demo scenarios
  /healthz               Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", ActorHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/sellers", func(r chi.Router) {
			r.Get("/", h.ListSellers)
			r.Get("/{seller}/periods", h.ListPeriods)
			r.Route("/{seller}/periods/{period}", func(r chi.Router) {
				r.Get("/", h.GetStatement)
				r.Get("/audit", h.GetPeriodAudit)
				r.Post("/close", h.ClosePeriod)
				r.Post("/reopen", h.ReopenPeriod)
				r.Post("/mark-paid", h.MarkPeriodPaid)
				r.Post("/recalculate", h.RecalculatePeriod)
				r.Post("/carry-over", h.RefreshCarryOver)
			})
		})

		r.Post("/commissions", h.RecordCommission)
		r.Post("/adjustments", h.CreateAdjustment)
		r.Post("/payments", h.RegisterPayment)

		r.Route("/entries/{id}", func(r chi.Router) {
			r.Get("/", h.GetEntry)
			r.Patch("/", h.UpdateEntry)
			r.Post("/transfer", h.TransferEntry)
		})

		r.Route("/reconciliation", func(r chi.Router) {
			r.Get("/runs", h.ListReconciliationRuns)
			r.Post("/run", h.RunReconciliation)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// requestLogger logs one line per request through zap.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("http request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("actor", r.Header.Get(ActorHeader)))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
