// Package firebase implements auth.Provider on top of the hosted Identity
// Toolkit and Secure Token REST APIs.
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/finhub/internal/auth"
)

// Endpoints holds the REST base URLs. Zero values use the public endpoints.
type Endpoints struct {
	Identity    string // e.g. https://identitytoolkit.googleapis.com/v1
	SecureToken string // e.g. https://securetoken.googleapis.com/v1
	Certs       string // public signing certificates for ID tokens
}

const (
	defaultIdentityURL    = "https://identitytoolkit.googleapis.com/v1"
	defaultSecureTokenURL = "https://securetoken.googleapis.com/v1"
	defaultCertsURL       = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"
)

func (e Endpoints) withDefaults() Endpoints {
	if e.Identity == "" {
		e.Identity = defaultIdentityURL
	}
	if e.SecureToken == "" {
		e.SecureToken = defaultSecureTokenURL
	}
	if e.Certs == "" {
		e.Certs = defaultCertsURL
	}
	e.Identity = strings.TrimRight(e.Identity, "/")
	e.SecureToken = strings.TrimRight(e.SecureToken, "/")
	return e
}

// client is a thin REST client; it knows nothing about session state.
type client struct {
	apiKey    string
	endpoints Endpoints
	http      *http.Client
}

type tokenResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *client) signInWithPassword(ctx context.Context, email, password string) (*tokenResponse, error) {
	var out tokenResponse
	err := c.postJSON(ctx, c.endpoints.Identity+"/accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &out)
	return &out, err
}

func (c *client) signUp(ctx context.Context, email, password string) (*tokenResponse, error) {
	var out tokenResponse
	err := c.postJSON(ctx, c.endpoints.Identity+"/accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &out)
	return &out, err
}

func (c *client) sendVerification(ctx context.Context, idToken string) error {
	return c.postJSON(ctx, c.endpoints.Identity+"/accounts:sendOobCode", map[string]any{
		"requestType": "VERIFY_EMAIL",
		"idToken":     idToken,
	}, nil)
}

func (c *client) sendPasswordReset(ctx context.Context, email string) error {
	return c.postJSON(ctx, c.endpoints.Identity+"/accounts:sendOobCode", map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}, nil)
}

func (c *client) refresh(ctx context.Context, refreshToken string) (*refreshResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.withKey(c.endpoints.SecureToken+"/token"), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, auth.WrapError(auth.ErrRefreshFailed, "failed to build refresh request", err, nil)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out refreshResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) postJSON(ctx context.Context, endpoint string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return auth.WrapError(auth.ErrProviderUnavailable, "failed to encode request", err, nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.withKey(endpoint), bytes.NewReader(payload))
	if err != nil {
		return auth.WrapError(auth.ErrProviderUnavailable, "failed to build request", err, nil)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *client) withKey(endpoint string) string {
	return endpoint + "?key=" + url.QueryEscape(c.apiKey)
}

func (c *client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return auth.WrapError(auth.ErrProviderUnavailable, "identity provider unreachable", err, map[string]interface{}{
			"endpoint": req.URL.Path,
		})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return auth.WrapError(auth.ErrProviderUnavailable, "failed to read response", err, nil)
	}

	if resp.StatusCode/100 != 2 {
		var e errorResponse
		if jsonErr := json.Unmarshal(data, &e); jsonErr != nil || e.Error.Message == "" {
			return auth.NewError(auth.ErrProviderUnavailable, fmt.Sprintf("identity provider returned status %d", resp.StatusCode), nil)
		}
		return mapError(e.Error.Message)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return auth.WrapError(auth.ErrProviderUnavailable, "failed to decode response", err, nil)
	}
	return nil
}

// mapError converts an Identity Toolkit error message such as
// "WEAK_PASSWORD : Password should be at least 6 characters" to an AuthError.
func mapError(message string) *auth.AuthError {
	reason, detail, _ := strings.Cut(message, " : ")
	reason = strings.TrimSpace(reason)
	ctx := map[string]interface{}{"reason": reason}
	if detail != "" {
		ctx["detail"] = detail
	}

	switch reason {
	case "EMAIL_NOT_FOUND":
		return auth.NewError(auth.ErrUserNotFound, "no account for email", ctx)
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "INVALID_EMAIL":
		return auth.NewError(auth.ErrInvalidCredentials, "invalid email or password", ctx)
	case "EMAIL_EXISTS":
		return auth.NewError(auth.ErrEmailExists, "account already exists", ctx)
	case "WEAK_PASSWORD":
		return auth.NewError(auth.ErrWeakPassword, auth.PasswordRequirement, ctx)
	case "MISSING_EMAIL":
		return auth.NewError(auth.ErrEmailRequired, "email is required", ctx)
	case "USER_DISABLED":
		return auth.NewError(auth.ErrUserDisabled, "account disabled", ctx)
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return auth.NewError(auth.ErrTooManyAttempts, "too many attempts", ctx)
	case "TOKEN_EXPIRED", "INVALID_REFRESH_TOKEN", "USER_NOT_FOUND", "INVALID_GRANT_TYPE", "MISSING_REFRESH_TOKEN":
		return auth.NewError(auth.ErrRefreshFailed, "session can no longer be refreshed", ctx)
	case "INVALID_ID_TOKEN":
		return auth.NewError(auth.ErrTokenInvalid, "ID token rejected", ctx)
	default:
		return auth.NewError(auth.ErrProviderUnavailable, "identity provider error: "+reason, ctx)
	}
}

// expiresAt converts an "expiresIn" seconds string into an absolute time.
func expiresAt(now time.Time, expiresIn string) time.Time {
	secs, err := strconv.Atoi(expiresIn)
	if err != nil || secs <= 0 {
		secs = 3600
	}
	return now.Add(time.Duration(secs) * time.Second)
}
