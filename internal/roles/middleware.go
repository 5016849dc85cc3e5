package roles

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/felixgeelhaar/finhub/internal/auth"
	"github.com/felixgeelhaar/finhub/internal/log"
)

type contextKey string

const roleContextKey contextKey = "roles:role"

// MiddlewareConfig holds configuration for role enforcement.
type MiddlewareConfig struct {
	// Store resolves the caller's role.
	Store Store

	// LookupTimeout bounds the role lookup. Zero means no extra bound.
	LookupTimeout time.Duration

	// Audit records every decision. Nil disables auditing.
	Audit AuditLogger

	Logger *log.Logger
}

// RequireRole creates middleware that only lets callers with the given role
// through. It must run after auth.Middleware.RequireAuth.
//
// A failed lookup resolves to DefaultRole, so a store outage denies access to
// admin routes rather than granting it.
func RequireRole(required Role, cfg MiddlewareConfig) func(http.Handler) http.Handler {
	if cfg.Store == nil {
		panic("roles: MiddlewareConfig.Store cannot be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.DefaultLogger()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			start := time.Now()

			session := auth.GetSession(ctx)
			if session == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "no authenticated session")
				return
			}

			lookupCtx := ctx
			if cfg.LookupTimeout > 0 {
				var cancel context.CancelFunc
				lookupCtx, cancel = context.WithTimeout(ctx, cfg.LookupTimeout)
				defer cancel()
			}

			role, _, err := Lookup(lookupCtx, cfg.Store, session.UserID)
			if err != nil {
				logger.WithContext(ctx).WithError(err).Warn("role lookup failed, using default role",
					"user_id", session.UserID)
			}

			allowed := role == required
			if cfg.Audit != nil {
				entry := &AuditEntry{
					Timestamp: start,
					Allowed:   allowed,
					UserID:    session.UserID,
					Email:     session.Email,
					Role:      role,
					Required:  required,
					Method:    r.Method,
					Path:      r.URL.Path,
					RequestID: log.RequestIDFromContext(ctx),
					Duration:  time.Since(start),
				}
				if err != nil {
					entry.ErrorMsg = err.Error()
				}
				if auditErr := cfg.Audit.LogDecision(ctx, entry); auditErr != nil {
					logger.WithError(auditErr).Warn("failed to write audit entry")
				}
			}

			if !allowed {
				writeError(w, http.StatusForbidden, "forbidden", "role "+required.String()+" required")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithRole(ctx, role)))
		})
	}
}

// ContextWithRole stores the resolved role in ctx.
func ContextWithRole(ctx context.Context, role Role) context.Context {
	return context.WithValue(ctx, roleContextKey, role)
}

// FromContext returns the role stored by RequireRole, if any.
func FromContext(ctx context.Context) (Role, bool) {
	role, ok := ctx.Value(roleContextKey).(Role)
	return role, ok
}

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: code, Message: message})
}
