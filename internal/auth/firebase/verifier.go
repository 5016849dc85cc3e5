package firebase

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/felixgeelhaar/finhub/internal/auth"
)

// Verifier checks ID tokens issued by the hosted identity service for one
// project. Public keys are fetched lazily and cached for as long as the
// certificate endpoint's Cache-Control allows.
type Verifier struct {
	projectID string
	certsURL  string
	http      *http.Client
	now       func() time.Time

	mu      sync.Mutex
	keys    map[string]*rsa.PublicKey
	expires time.Time
}

// NewVerifier creates a verifier. An empty certsURL uses the public endpoint.
func NewVerifier(projectID, certsURL string, httpClient *http.Client) *Verifier {
	if certsURL == "" {
		certsURL = defaultCertsURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Verifier{
		projectID: projectID,
		certsURL:  certsURL,
		http:      httpClient,
		now:       time.Now,
	}
}

// Verify implements auth.TokenVerifier.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*auth.Session, error) {
	if v.projectID == "" {
		return nil, auth.NewError(auth.ErrTokenInvalid, "token verification requires a project ID", nil)
	}
	if tokenString == "" {
		return nil, auth.NewError(auth.ErrTokenMissing, "token cannot be empty", nil)
	}

	token, err := jwt.ParseWithClaims(tokenString, &auth.IDTokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodRS256 {
			return nil, auth.NewError(auth.ErrTokenInvalid, "unexpected signing method", map[string]interface{}{
				"method": t.Header["alg"],
			})
		}
		kid, _ := t.Header["kid"].(string)
		return v.key(ctx, kid)
	},
		jwt.WithIssuer("https://securetoken.google.com/"+v.projectID),
		jwt.WithAudience(v.projectID),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		var authErr *auth.AuthError
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, auth.WrapError(auth.ErrTokenExpired, "token has expired", err, nil)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, auth.WrapError(auth.ErrTokenMalformed, "failed to parse token", err, nil)
		case errors.As(err, &authErr) && authErr.Code == auth.ErrProviderUnavailable:
			return nil, authErr
		default:
			return nil, auth.WrapError(auth.ErrTokenInvalid, "token rejected", err, nil)
		}
	}

	claims, ok := token.Claims.(*auth.IDTokenClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, auth.NewError(auth.ErrTokenInvalid, "invalid token claims", nil)
	}
	return claims.Session(ProviderName, tokenString), nil
}

func (v *Verifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys == nil || v.now().After(v.expires) || v.keys[kid] == nil {
		if err := v.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}
	k, ok := v.keys[kid]
	if !ok {
		return nil, auth.NewError(auth.ErrTokenInvalid, "unknown signing key", map[string]interface{}{"kid": kid})
	}
	return k, nil
}

func (v *Verifier) refreshLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return auth.WrapError(auth.ErrProviderUnavailable, "failed to build certificate request", err, nil)
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return auth.WrapError(auth.ErrProviderUnavailable, "failed to fetch signing certificates", err, nil)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return auth.NewError(auth.ErrProviderUnavailable, fmt.Sprintf("certificate endpoint returned status %d", resp.StatusCode), nil)
	}

	var pems map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&pems); err != nil {
		return auth.WrapError(auth.ErrProviderUnavailable, "failed to decode signing certificates", err, nil)
	}

	keys := make(map[string]*rsa.PublicKey, len(pems))
	for kid, pem := range pems {
		k, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			return auth.WrapError(auth.ErrProviderUnavailable, "invalid signing certificate", err, map[string]interface{}{"kid": kid})
		}
		keys[kid] = k
	}

	v.keys = keys
	v.expires = v.now().Add(maxAge(resp.Header.Get("Cache-Control"), time.Hour))
	return nil
}

// maxAge extracts max-age from a Cache-Control header.
func maxAge(header string, fallback time.Duration) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}
