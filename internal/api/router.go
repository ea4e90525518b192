package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fastprodman/coinsync/internal/metrics"
)

type RouterOptions struct {
	// JWTSecret enables bearer auth on account routes when non-empty.
	JWTSecret []byte
	// RateLimit is requests per second per account; zero disables limiting.
	RateLimit float64
	Burst     int
	Registry  *prometheus.Registry
}

// NewRouter constructs a chi router with all API endpoints registered.
func NewRouter(svc Ledger, opts RouterOptions) http.Handler {
	h := NewHandler(svc)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	if opts.Registry != nil {
		r.Use(metrics.NewHTTP(opts.Registry).Middleware)
		r.Handle("/metrics", metrics.Handler(opts.Registry))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/accounts/{accountId}", func(r chi.Router) {
		if len(opts.JWTSecret) > 0 {
			r.Use(requireAccountToken(opts.JWTSecret))
		}

		if opts.RateLimit > 0 {
			r.Use(newAccountLimiter(opts.RateLimit, max(opts.Burst, 1)).Handler)
		}

		r.Get("/balance", h.GetBalanceHandler)
		r.Get("/inventory", h.GetInventoryHandler)
		r.Post("/inventory", h.ProcessItemChangeHandler)
		r.Get("/transactions", h.GetHistoryHandler)
		r.Post("/transactions", h.ProcessTransactionHandler)
	})

	return r
}
