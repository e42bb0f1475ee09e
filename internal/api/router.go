package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/fastprodman/tokenledger/internal/infra/metrics"
)

type RouterConfig struct {
	CORSOrigins []string
	// RateLimitRPS <= 0 disables the per-user limit on spend and cancel.
	RateLimitRPS   float64
	RateLimitBurst int
	Logger         *slog.Logger
}

// NewRouter constructs the chi router with all API endpoints registered.
func NewRouter(svc LedgerService, cfg RouterConfig) http.Handler {
	h := NewHandler(svc, cfg.Logger)
	limiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", HeaderUserID, HeaderRole, HeaderTier},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/me", func(r chi.Router) {
		r.Use(RequirePrincipal)

		r.Get("/balance", h.GetBalanceHandler)
		r.Get("/transactions", h.GetHistoryHandler)
		r.Get("/reconcile", h.ReconcileHandler)

		r.Group(func(r chi.Router) {
			r.Use(limiter.Handler)

			r.Post("/spend", h.SpendHandler)
			r.Post("/cancel", h.CancelHandler)
		})
	})

	r.Route("/internal", func(r chi.Router) {
		r.Post("/accounts", h.OpenAccountHandler)
		r.Post("/purchases", h.CreditPurchaseHandler)
		r.Post("/verifications", h.VerificationRewardHandler)
		r.Post("/earnings", h.EarnHandler)
	})

	return r
}
