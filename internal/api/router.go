package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/pledge/internal/market"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// limiter, if non-nil, throttles every route.
func NewRouter(engine *market.Engine, authEnabled bool, token string, sseHandler http.Handler, limiter *RateLimiter) chi.Router {
	h := NewHandler(engine)

	r := chi.NewRouter()
	if limiter != nil {
		r.Use(limiter.Middleware)
	}
	r.Use(AuthMiddleware(authEnabled, token))

	// Protocol registry.
	r.Post("/protocol", h.Initialize)
	r.Get("/protocol", h.GetProtocol)

	// Loan lifecycle.
	r.Route("/loans", func(r chi.Router) {
		r.Get("/", h.ListLoans)
		r.Post("/", h.CreateLoan)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetLoan)
			r.Get("/health", h.LoanHealth)
			r.Post("/vault", h.CreateVault)
			r.Post("/collateral", h.DepositCollateral)
			r.Post("/repay", h.RepayLoan)
			r.Post("/liquidate", h.Liquidate)
		})
	})

	// Liquidation auctions.
	r.Route("/auctions", func(r chi.Router) {
		r.Get("/", h.ListAuctions)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetAuction)
			r.Get("/bids", h.ListBids)
			r.Post("/bids", h.PlaceBid)
			r.Post("/settle", h.SettleAuction)
		})
	})

	// Ledger administration.
	r.Get("/accounts/{addr}", h.GetAccount)
	r.Post("/accounts/{addr}/credit", h.Credit)
	r.Post("/assets", h.MintAsset)
	r.Get("/assets/{asset}", h.GetAsset)

	r.Get("/events/recent", h.RecentEvents)
	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
