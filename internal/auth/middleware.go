package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type contextKey string

const sessionContextKey contextKey = "auth_session"

// Middleware authenticates API requests with a TokenVerifier.
type Middleware struct {
	verifier TokenVerifier
}

// NewMiddleware creates a new authentication middleware.
func NewMiddleware(verifier TokenVerifier) *Middleware {
	return &Middleware{verifier: verifier}
}

// RequireAuth rejects requests without a valid ID token and attaches the
// verified session to the request context.
//
// Missing tokens get 401. Invalid, expired or unverified-email tokens get 401
// as well, with the error code in the body.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractTokenFromRequest(r)
		if token == "" {
			writeAuthError(w, NewError(ErrTokenMissing, "no authentication token provided", nil))
			return
		}

		session, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		if !session.EmailVerified {
			writeAuthError(w, NewError(ErrEmailNotVerified, "email address is not verified", nil))
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
	})
}

func writeAuthError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":   "authentication_failed",
			"message": err.Error(),
		})
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   authErr.Code,
		"message": authErr.Message,
	})
}

// ExtractTokenFromRequest extracts the ID token from an HTTP request.
//
// Checks in order:
//  1. Authorization header (Bearer token)
//  2. Cookie named "session_token"
//
// Returns empty string if no token found.
func ExtractTokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	if cookie, err := r.Cookie("session_token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	return ""
}

// ContextWithSession attaches session to ctx.
func ContextWithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// GetSession retrieves the session from the request context, or nil.
func GetSession(ctx context.Context) *Session {
	session, _ := ctx.Value(sessionContextKey).(*Session)
	return session
}
