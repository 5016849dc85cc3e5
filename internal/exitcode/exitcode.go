// Package exitcode maps errors to process exit statuses.
package exitcode

import (
	stderrors "errors"
	"os"
	"strings"

	"github.com/felixgeelhaar/finhub/internal/auth"
	"github.com/felixgeelhaar/finhub/internal/errors"
)

const (
	Success      = 0
	GeneralError = 1
	UsageError   = 2
	ConfigError  = 3
	AuthError    = 5
	NetworkError = 6
	Interrupted  = 130
)

// Exit terminates the process with code.
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError terminates with the code for err.
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode classifies err. Coded errors are classified by their
// code; anything else falls back to matching the message.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	var authErr *auth.AuthError
	if stderrors.As(err, &authErr) {
		return AuthError
	}

	switch code := string(errors.CodeOf(err)); {
	case strings.HasPrefix(code, "CONFIG-"), code == string(errors.ErrCodeStoreUnknown):
		return ConfigError
	case strings.HasPrefix(code, "AUTH-"):
		return AuthError
	case strings.HasPrefix(code, "UPSTREAM-"), code == string(errors.ErrCodeStoreUnavailable), code == string(errors.ErrCodeRoleTimeout):
		return NetworkError
	case code != "":
		return GeneralError
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unknown command"), strings.Contains(msg, "unknown flag"),
		strings.Contains(msg, "invalid argument"), strings.Contains(msg, "accepts"),
		strings.Contains(msg, "required flag"):
		return UsageError
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "authentication"):
		return AuthError
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "timeout"),
		strings.Contains(msg, "no such host"):
		return NetworkError
	}
	return GeneralError
}

// Description names an exit code.
func Description(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case ConfigError:
		return "Configuration error"
	case AuthError:
		return "Authentication error"
	case NetworkError:
		return "Network error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
