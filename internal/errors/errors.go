package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigNotFound ErrorCode = "CONFIG-001"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG-002"
	ErrCodeConfigParse    ErrorCode = "CONFIG-003"

	// Upstream vendor errors (UPSTREAM-001 to UPSTREAM-099)
	ErrCodeUpstreamRequest  ErrorCode = "UPSTREAM-001"
	ErrCodeUpstreamStatus   ErrorCode = "UPSTREAM-002"
	ErrCodeUpstreamDecode   ErrorCode = "UPSTREAM-003"
	ErrCodeUpstreamNoData   ErrorCode = "UPSTREAM-004"
	ErrCodeUpstreamTimeout  ErrorCode = "UPSTREAM-005"
	ErrCodeUnknownCurrency  ErrorCode = "UPSTREAM-006"

	// Identity errors (AUTH-001 to AUTH-099)
	ErrCodeIdentityConfig   ErrorCode = "AUTH-001"
	ErrCodeIdentityProvider ErrorCode = "AUTH-002"

	// Role lookup errors (ROLE-001 to ROLE-099)
	ErrCodeRoleLookup  ErrorCode = "ROLE-001"
	ErrCodeRoleTimeout ErrorCode = "ROLE-002"
	ErrCodeRoleInvalid ErrorCode = "ROLE-003"

	// Role store errors (STORE-001 to STORE-099)
	ErrCodeStoreUnknown     ErrorCode = "STORE-001"
	ErrCodeStoreUnavailable ErrorCode = "STORE-002"
	ErrCodeStoreSeed        ErrorCode = "STORE-003"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"
	ErrCodeFileUnmarshal   ErrorCode = "IO-005"
)

// AppError represents an enhanced error with code, suggestions, and documentation
type AppError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Summary returns the code and message without suggestions, suitable for
// one-line contexts such as JSON error bodies and status bars.
func (e *AppError) Summary() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new AppError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *AppError) WithSuggestion(suggestion string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *AppError) WithDocs(url string) *AppError {
	e.DocsURL = url
	return e
}

// CodeOf returns the code of the first AppError in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if ae, ok := err.(*AppError); ok {
			return ae.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// Common error constructors for frequently used errors

// NewConfigInvalidError creates a configuration validation error
func NewConfigInvalidError(details string) *AppError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", details)).
		WithSuggestion("Run 'finhub config show' to inspect the effective configuration").
		WithSuggestion("Override values with FINHUB_* environment variables").
		WithDocs("https://github.com/felixgeelhaar/finhub#configuration")
}

// NewUpstreamStatusError creates an error for a non-2xx vendor response
func NewUpstreamStatusError(vendor string, status int) *AppError {
	return New(ErrCodeUpstreamStatus, fmt.Sprintf("%s responded with status %d", vendor, status)).
		WithSuggestion("Check the vendor status page").
		WithSuggestion("Verify the upstream base URL in the configuration")
}

// NewUpstreamRequestError creates an error for a failed vendor request
func NewUpstreamRequestError(vendor string, cause error) *AppError {
	return Wrap(ErrCodeUpstreamRequest, fmt.Sprintf("request to %s failed", vendor), cause).
		WithSuggestion("Check network connectivity to the vendor")
}

// NewUpstreamDecodeError creates an error for an unparsable vendor payload
func NewUpstreamDecodeError(vendor string, cause error) *AppError {
	return Wrap(ErrCodeUpstreamDecode, fmt.Sprintf("failed to decode %s response", vendor), cause)
}

// NewUpstreamNoDataError creates an error for an empty vendor payload
func NewUpstreamNoDataError(vendor string, subject string) *AppError {
	return New(ErrCodeUpstreamNoData, fmt.Sprintf("%s returned no data for %s", vendor, subject)).
		WithSuggestion("Check that the symbol exists on the vendor")
}

// NewUnknownCurrencyError creates an error for a currency missing from the rate table
func NewUnknownCurrencyError(code string) *AppError {
	return New(ErrCodeUnknownCurrency, fmt.Sprintf("unknown currency: %s", code)).
		WithSuggestion("Use a three-letter ISO 4217 code present in the forex table")
}

// NewRoleLookupError creates a role lookup failure error
func NewRoleLookupError(userID string, cause error) *AppError {
	return Wrap(ErrCodeRoleLookup, fmt.Sprintf("role lookup failed for user %s", userID), cause)
}

// NewStoreUnavailableError creates an error for an unreachable role store
func NewStoreUnavailableError(kind string, cause error) *AppError {
	return Wrap(ErrCodeStoreUnavailable, fmt.Sprintf("%s role store is unavailable", kind), cause).
		WithSuggestion("Check the roles.* connection settings").
		WithSuggestion("Run 'finhub roles get <uid>' to verify connectivity")
}

// NewStoreUnknownError creates an error for an unsupported role store kind
func NewStoreUnknownError(kind string) *AppError {
	return New(ErrCodeStoreUnknown, fmt.Sprintf("unknown role store: %s", kind)).
		WithSuggestion("Use one of: firestore, postgres, redis, memory")
}

// NewFileNotFoundError creates a file not found error
func NewFileNotFoundError(path string) *AppError {
	return New(ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", path)).
		WithSuggestion("Check if the file path is correct").
		WithSuggestion("Verify the file exists and you have read permissions")
}

// NewFileUnmarshalError creates an unmarshal error
func NewFileUnmarshalError(path string, format string, cause error) *AppError {
	return Wrap(ErrCodeFileUnmarshal, fmt.Sprintf("failed to parse %s file: %s", format, path), cause).
		WithSuggestion("Check the file syntax and format").
		WithSuggestion(fmt.Sprintf("Ensure the file is valid %s", format))
}
