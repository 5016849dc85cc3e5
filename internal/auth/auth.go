// Package auth provides identity for finhub.
//
// An identity provider owns the signed-in session and publishes every change
// to it as an Event on a channel. The first event delivered to a new
// subscriber is always the current state, present or absent, so consumers
// never need a separate "who is signed in" query.
//
// Two providers are available:
//   - firebase: the hosted Identity Toolkit REST API (package auth/firebase)
//   - memory: an offline provider with seeded accounts for development
package auth

import (
	"context"
	"time"
)

// IdentityProvider is the minimal surface the session resolver consumes.
type IdentityProvider interface {
	// Subscribe opens a session-change stream. The channel is closed when ctx
	// is cancelled or the provider is closed. Events are delivered in order.
	Subscribe(ctx context.Context) (<-chan Event, error)

	// SignOut ends the current session. The provider publishes an absent
	// session event to every subscriber.
	SignOut(ctx context.Context) error
}

// Provider is a complete identity provider with credential flows.
type Provider interface {
	IdentityProvider

	// Name returns the provider name (e.g., "firebase", "memory").
	Name() string

	// SignIn authenticates with email and password. Accounts whose email is
	// not verified are rejected with ErrEmailNotVerified and no session is
	// published.
	SignIn(ctx context.Context, email, password string) (*Session, error)

	// SignUp creates an account and sends a verification email. It never
	// signs the new account in.
	SignUp(ctx context.Context, email, password string) error

	// SendPasswordReset sends a password reset email.
	SendPasswordReset(ctx context.Context, email string) error

	// IDToken returns a currently valid ID token for the signed-in user.
	IDToken(ctx context.Context) (string, error)

	// Close stops background work and closes all subscriptions.
	Close() error
}

// TokenVerifier validates bearer tokens presented to the HTTP API.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Session, error)
}

// Session represents an authenticated user session.
type Session struct {
	// UserID is the unique identifier for the user and the role record key.
	UserID string

	Email string

	EmailVerified bool

	// Provider is the identity provider that created this session.
	Provider string

	// Token is the ID token presented to downstream services.
	Token string

	// RefreshToken obtains a new ID token when the current one expires.
	RefreshToken string

	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Clone returns a copy that subscribers may keep without sharing memory
// with the provider.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Event is one session change. A nil Session means signed out.
type Event struct {
	Session *Session
	At      time.Time
}

// Present reports whether the event carries a signed-in session.
func (e Event) Present() bool {
	return e.Session != nil
}

// Kind returns "present" or "absent" for logs and metrics.
func (e Event) Kind() string {
	if e.Present() {
		return "present"
	}
	return "absent"
}
