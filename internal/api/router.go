// Package api serves the market data proxy and the small authenticated
// surface the dashboard uses over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/felixgeelhaar/finhub/internal/auth"
	"github.com/felixgeelhaar/finhub/internal/config"
	"github.com/felixgeelhaar/finhub/internal/health"
	"github.com/felixgeelhaar/finhub/internal/log"
	"github.com/felixgeelhaar/finhub/internal/market"
	"github.com/felixgeelhaar/finhub/internal/metrics"
	"github.com/felixgeelhaar/finhub/internal/roles"
)

// MarketSource provides the dashboard's market data. *market.Client fetches
// it from the vendors; *Client fetches it from a running finhub API.
type MarketSource interface {
	Coins(ctx context.Context) ([]market.Coin, error)
	Forex(ctx context.Context) (*market.Rates, error)
	OHLC(ctx context.Context, symbol string) ([]market.Candle, error)
	Stocks(ctx context.Context) ([]market.Stock, error)
}

// Config wires the router.
type Config struct {
	Market MarketSource

	// Verifier authenticates /api/me and /api/admin. Nil leaves those
	// routes unregistered.
	Verifier      auth.TokenVerifier
	Roles         roles.Store
	LookupTimeout time.Duration
	Audit         roles.AuditLogger

	// Health backs /api/admin/status.
	Health *health.Manager

	RateLimit config.RateLimitConfig
	CORS      config.CORSConfig
	Metrics   *metrics.Metrics
	Logger    *log.Logger
}

// NewRouter builds the /api routes.
func NewRouter(ctx context.Context, cfg Config) (chi.Router, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.DefaultLogger()
	}
	logger = logger.With("component", "api")

	spec, err := openapiJSON(ctx)
	if err != nil {
		return nil, err
	}

	h := &handlers{
		market:        cfg.Market,
		roles:         cfg.Roles,
		lookupTimeout: cfg.LookupTimeout,
		health:        cfg.Health,
		metrics:       cfg.Metrics,
		logger:        logger,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(echoRequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(instrument(logger, cfg.Metrics))
	r.Use(chimiddleware.Recoverer)
	if len(cfg.CORS.AllowedOrigins) > 0 {
		r.Use(corsHandler(cfg.CORS))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/openapi.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Cache-Control", "public, max-age=3600")
			_, _ = w.Write(spec)
		})

		r.Group(func(r chi.Router) {
			if cfg.RateLimit.Requests > 0 && cfg.RateLimit.Window > 0 {
				r.Use(rateLimit(cfg.RateLimit))
			}
			r.Get("/crypto", h.crypto)
			r.Get("/forex", h.forex)
			r.Get("/ohlc", h.ohlc)
			r.Get("/stocks", h.stocks)
		})

		if cfg.Verifier == nil || cfg.Roles == nil {
			logger.Info("no token verifier or role store, authenticated routes disabled")
			return
		}

		authn := auth.NewMiddleware(cfg.Verifier)
		r.Group(func(r chi.Router) {
			r.Use(authn.RequireAuth)
			r.Get("/me", h.me)

			r.With(roles.RequireRole(roles.RoleAdmin, roles.MiddlewareConfig{
				Store:         cfg.Roles,
				LookupTimeout: cfg.LookupTimeout,
				Audit:         cfg.Audit,
				Logger:        logger,
			})).Get("/admin/status", h.adminStatus)
		})
	})

	return r, nil
}
