package cmd

import (
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with actionable recovery suggestions
type ErrorWithSuggestion struct {
	Message     string
	Suggestions []string
	err         error
}

func (e *ErrorWithSuggestion) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, s := range e.Suggestions {
			b.WriteString("\n  • ")
			b.WriteString(s)
		}
	}

	if e.err != nil {
		b.WriteString("\n\nDetails: ")
		b.WriteString(e.err.Error())
	}

	return b.String()
}

func (e *ErrorWithSuggestion) Unwrap() error {
	return e.err
}

// NewErrorWithSuggestions creates an error with recovery suggestions
func NewErrorWithSuggestions(msg string, err error, suggestions ...string) error {
	return &ErrorWithSuggestion{
		Message:     msg,
		Suggestions: suggestions,
		err:         err,
	}
}

// ConfigLoadError creates a helpful error for configuration loading failures
func ConfigLoadError(path string, err error) error {
	where := "the default locations"
	if path != "" {
		where = fmt.Sprintf("%q", path)
	}
	return NewErrorWithSuggestions(
		"Failed to load configuration from "+where,
		err,
		"Check the YAML syntax of the config file",
		"Inspect the effective configuration: finhub config show",
		"Override single values with FINHUB_* environment variables",
	)
}

// IdentityError creates a helpful error for identity provider setup failures
func IdentityError(provider string, err error) error {
	return NewErrorWithSuggestions(
		fmt.Sprintf("Failed to start the %s identity provider", provider),
		err,
		"Set identity.firebase.api_key and identity.firebase.project_id for firebase",
		"Use identity.provider: memory with a seed file for offline use",
	)
}

// RoleStoreError creates a helpful error for role store connection failures
func RoleStoreError(store string, err error) error {
	return NewErrorWithSuggestions(
		fmt.Sprintf("Failed to open the %s role store", store),
		err,
		"Check roles.postgres.dsn or roles.redis.addr",
		"Use roles.store: memory for local development",
	)
}
