package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/felixgeelhaar/finhub/internal/auth"
	"github.com/felixgeelhaar/finhub/internal/errors"
	"github.com/felixgeelhaar/finhub/internal/health"
	"github.com/felixgeelhaar/finhub/internal/log"
	"github.com/felixgeelhaar/finhub/internal/metrics"
	"github.com/felixgeelhaar/finhub/internal/roles"
)

// Cache-Control values per route.
const (
	cacheCrypto = "public, max-age=60"
	cacheForex  = "public, max-age=300"
	noStore     = "no-store"
)

type errorBody struct {
	Error string `json:"error"`
}

// Me is the body of /api/me.
type Me struct {
	UID   string     `json:"uid"`
	Email string     `json:"email"`
	Role  roles.Role `json:"role"`
}

// StatusReport is the body of /api/admin/status.
type StatusReport struct {
	Status health.Status             `json:"status"`
	Checks map[string]*health.Result `json:"checks"`
	Role   roles.Role                `json:"role,omitempty"`
}

type handlers struct {
	market        MarketSource
	roles         roles.Store
	lookupTimeout time.Duration
	health        *health.Manager
	metrics       *metrics.Metrics
	logger        *log.Logger
}

func (h *handlers) crypto(w http.ResponseWriter, r *http.Request) {
	coins, err := h.market.Coins(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cacheCrypto, coins)
}

func (h *handlers) forex(w http.ResponseWriter, r *http.Request) {
	rates, err := h.market.Forex(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cacheForex, rates)
}

func (h *handlers) ohlc(w http.ResponseWriter, r *http.Request) {
	candles, err := h.market.OHLC(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, noStore, candles)
}

func (h *handlers) stocks(w http.ResponseWriter, r *http.Request) {
	stocks, err := h.market.Stocks(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, noStore, stocks)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := auth.GetSession(ctx)
	if session == nil {
		writeJSON(w, http.StatusUnauthorized, noStore, errorBody{Error: "unauthorized"})
		return
	}

	lookupCtx := ctx
	if h.lookupTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, h.lookupTimeout)
		defer cancel()
	}
	role, _, err := roles.Lookup(lookupCtx, h.roles, session.UserID)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Warn("role lookup failed, using default role", "user_id", session.UserID)
	}

	writeJSON(w, http.StatusOK, noStore, Me{UID: session.UserID, Email: session.Email, Role: role})
}

func (h *handlers) adminStatus(w http.ResponseWriter, r *http.Request) {
	report := Report(r.Context(), h.health)
	report.Role, _ = roles.FromContext(r.Context())
	writeJSON(w, http.StatusOK, noStore, report)
}

// Report runs every check registered with hm. A nil manager reports healthy
// with no checks.
func Report(ctx context.Context, hm *health.Manager) *StatusReport {
	report := &StatusReport{Status: health.StatusHealthy, Checks: map[string]*health.Result{}}
	if hm != nil {
		report.Checks = hm.Check(ctx)
		report.Status = hm.OverallStatus(report.Checks)
	}
	return report
}

// fail answers 500 with the error's message. Upstream failures never leak
// vendor response bodies.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	if h.metrics != nil {
		h.metrics.RecordError(err)
	}
	h.logger.WithContext(r.Context()).WithError(err).Error("market request failed", "path", r.URL.Path)

	msg := err.Error()
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		msg = appErr.Message
	}
	writeJSON(w, http.StatusInternalServerError, noStore, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, cacheControl string, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if cacheControl != "" {
		w.Header().Set("Cache-Control", cacheControl)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
