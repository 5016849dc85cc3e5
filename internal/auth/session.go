package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// IDTokenClaims are the claims carried by an ID token.
//
// The field names follow the hosted identity provider's tokens so that tokens
// minted by SessionManager and tokens from the hosted provider decode the same way.
type IDTokenClaims struct {
	jwt.RegisteredClaims

	UserID string `json:"user_id"`

	Email string `json:"email"`

	EmailVerified bool `json:"email_verified"`
}

// Session builds a Session from the claims. token is kept as the session's ID token.
func (c *IDTokenClaims) Session(provider, token string) *Session {
	s := &Session{
		UserID:        c.UserID,
		Email:         c.Email,
		EmailVerified: c.EmailVerified,
		Provider:      provider,
		Token:         token,
	}
	if s.UserID == "" {
		s.UserID = c.Subject
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	if c.IssuedAt != nil {
		s.CreatedAt = c.IssuedAt.Time
	}
	return s
}

// SessionManager mints and validates HS256 ID tokens for the memory provider.
type SessionManager struct {
	signingKey []byte

	// issuer is the JWT issuer and audience
	issuer string

	// tokenDuration is how long ID tokens are valid (default: 1 hour)
	tokenDuration time.Duration
}

// NewSessionManager creates a new session manager.
func NewSessionManager(signingKey []byte, issuer string) *SessionManager {
	return &SessionManager{
		signingKey:    signingKey,
		issuer:        issuer,
		tokenDuration: time.Hour,
	}
}

// WithTokenDuration sets a custom token lifetime.
func (sm *SessionManager) WithTokenDuration(d time.Duration) *SessionManager {
	if d > 0 {
		sm.tokenDuration = d
	}
	return sm
}

// TokenDuration returns the configured token lifetime.
func (sm *SessionManager) TokenDuration() time.Duration {
	return sm.tokenDuration
}

// CreateSession signs an ID token for s and stores it in s.Token.
func (sm *SessionManager) CreateSession(s *Session) (string, error) {
	if s.UserID == "" {
		return "", NewError(ErrSessionInvalid, "user ID cannot be empty", nil)
	}
	if s.Email == "" {
		return "", NewError(ErrSessionInvalid, "email cannot be empty", nil)
	}

	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = s.CreatedAt.Add(sm.tokenDuration)
	}

	claims := IDTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sm.issuer,
			Subject:   s.UserID,
			Audience:  jwt.ClaimStrings{sm.issuer},
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
			NotBefore: jwt.NewNumericDate(s.CreatedAt),
			IssuedAt:  jwt.NewNumericDate(s.CreatedAt),
			ID:        uuid.NewString(),
		},
		UserID:        s.UserID,
		Email:         s.Email,
		EmailVerified: s.EmailVerified,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(sm.signingKey)
	if err != nil {
		return "", WrapError(ErrTokenSigningFailed, "failed to sign token", err, map[string]interface{}{
			"user_id": s.UserID,
		})
	}

	s.Token = tokenString
	return tokenString, nil
}

// ValidateSessionToken verifies signature, issuer, audience and expiry.
func (sm *SessionManager) ValidateSessionToken(tokenString string) (*IDTokenClaims, error) {
	if tokenString == "" {
		return nil, NewError(ErrTokenMissing, "token cannot be empty", nil)
	}

	token, err := jwt.ParseWithClaims(tokenString, &IDTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, NewError(ErrTokenInvalid, "invalid signing method", map[string]interface{}{
				"method": token.Header["alg"],
			})
		}
		return sm.signingKey, nil
	}, jwt.WithIssuer(sm.issuer), jwt.WithAudience(sm.issuer))

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, WrapError(ErrTokenExpired, "token has expired", err, nil)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, WrapError(ErrTokenInvalid, "invalid token signature", err, nil)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, WrapError(ErrTokenMalformed, "failed to parse token", err, nil)
		default:
			return nil, WrapError(ErrTokenInvalid, "token rejected", err, nil)
		}
	}

	claims, ok := token.Claims.(*IDTokenClaims)
	if !ok || !token.Valid {
		return nil, NewError(ErrTokenInvalid, "invalid token claims", nil)
	}
	return claims, nil
}

// Verify implements TokenVerifier.
func (sm *SessionManager) Verify(_ context.Context, tokenString string) (*Session, error) {
	claims, err := sm.ValidateSessionToken(tokenString)
	if err != nil {
		return nil, err
	}
	return claims.Session("memory", tokenString), nil
}

// ParseIDToken extracts claims without verifying the signature. It is only
// for tokens received directly from the identity provider over TLS.
func ParseIDToken(tokenString string) (*IDTokenClaims, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, &IDTokenClaims{})
	if err != nil {
		return nil, WrapError(ErrTokenMalformed, "failed to parse token", err, nil)
	}

	claims, ok := token.Claims.(*IDTokenClaims)
	if !ok {
		return nil, NewError(ErrTokenInvalid, "invalid token claims", nil)
	}
	return claims, nil
}
