package auth

import (
	"errors"
	"fmt"
)

// Error codes for authentication failures
const (
	// Credential errors
	ErrInvalidCredentials  = "AUTH_INVALID_CREDENTIALS"
	ErrEmailNotVerified    = "AUTH_EMAIL_NOT_VERIFIED"
	ErrEmailExists         = "AUTH_EMAIL_EXISTS"
	ErrUserNotFound        = "AUTH_USER_NOT_FOUND"
	ErrCodeInvalid         = "AUTH_CODE_INVALID"
	ErrEmailRequired       = "AUTH_EMAIL_REQUIRED"
	ErrWeakPassword        = "AUTH_WEAK_PASSWORD"
	ErrTooManyAttempts     = "AUTH_TOO_MANY_ATTEMPTS"
	ErrUserDisabled        = "AUTH_USER_DISABLED"
	ErrProviderUnavailable = "AUTH_PROVIDER_UNAVAILABLE"
	ErrProviderClosed      = "AUTH_PROVIDER_CLOSED"

	// Session errors
	ErrSessionExpired  = "AUTH_SESSION_EXPIRED"
	ErrSessionInvalid  = "AUTH_SESSION_INVALID"
	ErrSessionNotFound = "AUTH_SESSION_NOT_FOUND"
	ErrNotSignedIn     = "AUTH_NOT_SIGNED_IN"
	ErrRefreshFailed   = "AUTH_REFRESH_FAILED"

	// Token errors
	ErrTokenInvalid       = "AUTH_TOKEN_INVALID"
	ErrTokenExpired       = "AUTH_TOKEN_EXPIRED"
	ErrTokenMalformed     = "AUTH_TOKEN_MALFORMED"
	ErrTokenSigningFailed = "AUTH_TOKEN_SIGNING_FAILED"
	ErrTokenMissing       = "AUTH_TOKEN_MISSING"
)

// AuthError represents an authentication error with code and context.
type AuthError struct {
	// Code is the error code (e.g., AUTH_SESSION_EXPIRED)
	Code string

	// Message is a human-readable error message
	Message string

	// Context provides additional details about the error
	Context map[string]interface{}

	Cause error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// NewError creates a new AuthError.
func NewError(code, message string, context map[string]interface{}) *AuthError {
	return &AuthError{
		Code:    code,
		Message: message,
		Context: context,
	}
}

// WrapError wraps an existing error with an AuthError.
func WrapError(code, message string, cause error, context map[string]interface{}) *AuthError {
	return &AuthError{
		Code:    code,
		Message: message,
		Context: context,
		Cause:   cause,
	}
}

// IsAuthError checks if err or anything it wraps is an AuthError with the given code.
func IsAuthError(err error, code string) bool {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Code == code
	}
	return false
}

// UserMessage returns text suitable for showing to the person signing in.
// Unknown errors get a generic message so provider internals stay hidden.
func UserMessage(err error) string {
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		return "Something went wrong. Please try again."
	}
	switch authErr.Code {
	case ErrInvalidCredentials:
		return "Invalid email or password."
	case ErrEmailNotVerified:
		return "Please verify your email first."
	case ErrEmailExists:
		return "An account with this email already exists."
	case ErrUserNotFound:
		return "No account found for this email."
	case ErrCodeInvalid:
		return "The link is invalid or has expired."
	case ErrEmailRequired:
		return "Please enter your email address."
	case ErrWeakPassword:
		return PasswordRequirement
	case ErrTooManyAttempts:
		return "Too many attempts. Please try again later."
	case ErrUserDisabled:
		return "This account has been disabled."
	default:
		return authErr.Message
	}
}
