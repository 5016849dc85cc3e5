package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeConfigInvalid, "test error message")

	if err.Code != ErrCodeConfigInvalid {
		t.Errorf("expected code %s, got %s", ErrCodeConfigInvalid, err.Code)
	}

	if err.Message != "test error message" {
		t.Errorf("expected message 'test error message', got '%s'", err.Message)
	}

	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := Wrap(ErrCodeFileReadFailed, "failed to read file", cause)

	if err.Code != ErrCodeFileReadFailed {
		t.Errorf("expected code %s, got %s", ErrCodeFileReadFailed, err.Code)
	}

	if !errors.Is(err, cause) {
		t.Errorf("Wrap should support errors.Is")
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		wantCode string
		wantMsg  string
	}{
		{
			name:     "simple error",
			err:      New(ErrCodeConfigInvalid, "invalid config"),
			wantCode: "CONFIG-002",
			wantMsg:  "invalid config",
		},
		{
			name:     "error with cause",
			err:      Wrap(ErrCodeFileReadFailed, "read failed", fmt.Errorf("permission denied")),
			wantCode: "IO-002",
			wantMsg:  "permission denied",
		},
		{
			name:     "upstream status",
			err:      NewUpstreamStatusError("coingecko", 503),
			wantCode: "UPSTREAM-002",
			wantMsg:  "coingecko responded with status 503",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()

			if !strings.Contains(errStr, tt.wantCode) {
				t.Errorf("error string should contain code %s, got: %s", tt.wantCode, errStr)
			}

			if !strings.Contains(errStr, tt.wantMsg) {
				t.Errorf("error string should contain message '%s', got: %s", tt.wantMsg, errStr)
			}
		})
	}
}

func TestSummaryOmitsSuggestions(t *testing.T) {
	err := NewUpstreamStatusError("stooq", 502)

	summary := err.Summary()
	if summary != "[UPSTREAM-002] stooq responded with status 502" {
		t.Errorf("unexpected summary: %s", summary)
	}
	if strings.Contains(summary, "Suggestions") {
		t.Errorf("summary should not include suggestions")
	}

	wrapped := Wrap(ErrCodeUpstreamRequest, "request failed", fmt.Errorf("dial tcp: refused"))
	if !strings.HasSuffix(wrapped.Summary(), ": dial tcp: refused") {
		t.Errorf("summary should include cause, got %s", wrapped.Summary())
	}
}

func TestWithSuggestion(t *testing.T) {
	err := New(ErrCodeFileNotFound, "seed not found").
		WithSuggestion("Check the file path")

	if len(err.Suggestions) != 1 {
		t.Errorf("expected 1 suggestion, got %d", len(err.Suggestions))
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "Suggestions:") {
		t.Errorf("error string should contain suggestions section")
	}
	if !strings.Contains(errStr, "Check the file path") {
		t.Errorf("error string should contain suggestion text")
	}
}

func TestWithSuggestions(t *testing.T) {
	err := New(ErrCodeRoleInvalid, "role invalid").
		WithSuggestions("Suggestion 1", "Suggestion 2", "Suggestion 3")

	if len(err.Suggestions) != 3 {
		t.Errorf("expected 3 suggestions, got %d", len(err.Suggestions))
	}

	errStr := err.Error()
	for _, suggestion := range err.Suggestions {
		if !strings.Contains(errStr, suggestion) {
			t.Errorf("error string should contain suggestion: %s", suggestion)
		}
	}
}

func TestWithDocs(t *testing.T) {
	docsURL := "https://github.com/felixgeelhaar/finhub#docs"
	err := New(ErrCodeConfigInvalid, "invalid config").WithDocs(docsURL)

	if err.DocsURL != docsURL {
		t.Errorf("expected DocsURL %s, got %s", docsURL, err.DocsURL)
	}
	if !strings.Contains(err.Error(), "Documentation: "+docsURL) {
		t.Errorf("error string should contain docs URL")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, ""},
		{"plain", fmt.Errorf("boom"), ""},
		{"direct", NewStoreUnknownError("mongo"), ErrCodeStoreUnknown},
		{"wrapped by fmt", fmt.Errorf("ctx: %w", NewRoleLookupError("u1", fmt.Errorf("x"))), ErrCodeRoleLookup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConstructors(t *testing.T) {
	cause := fmt.Errorf("connection refused")

	tests := []struct {
		name           string
		err            *AppError
		wantCode       ErrorCode
		wantSuggestion bool
	}{
		{"config invalid", NewConfigInvalidError("server.address is empty"), ErrCodeConfigInvalid, true},
		{"upstream request", NewUpstreamRequestError("frankfurter", cause), ErrCodeUpstreamRequest, true},
		{"upstream decode", NewUpstreamDecodeError("coingecko", cause), ErrCodeUpstreamDecode, false},
		{"no data", NewUpstreamNoDataError("stooq", "ZZZZ"), ErrCodeUpstreamNoData, true},
		{"unknown currency", NewUnknownCurrencyError("XYZ"), ErrCodeUnknownCurrency, true},
		{"role lookup", NewRoleLookupError("uid-1", cause), ErrCodeRoleLookup, false},
		{"store unavailable", NewStoreUnavailableError("redis", cause), ErrCodeStoreUnavailable, true},
		{"store unknown", NewStoreUnknownError("mongo"), ErrCodeStoreUnknown, true},
		{"file not found", NewFileNotFoundError("/tmp/roles.yaml"), ErrCodeFileNotFound, true},
		{"unmarshal", NewFileUnmarshalError("/tmp/roles.yaml", "YAML", cause), ErrCodeFileUnmarshal, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, tt.err.Code)
			}
			if tt.wantSuggestion && len(tt.err.Suggestions) == 0 {
				t.Errorf("expected suggestions")
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := NewStoreUnavailableError("postgres", cause)

	if errors.Unwrap(err) != cause {
		t.Errorf("Unwrap should return the cause")
	}

	var appErr *AppError
	wrapped := fmt.Errorf("outer: %w", err)
	if !errors.As(wrapped, &appErr) {
		t.Fatalf("errors.As should find AppError")
	}
	if appErr.Code != ErrCodeStoreUnavailable {
		t.Errorf("unexpected code %s", appErr.Code)
	}
}
