package firebase

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/finhub/internal/auth"
)

const testProject = "finhub-test"

type certServer struct {
	key     *rsa.PrivateKey
	fetches atomic.Int32
	srv     *httptest.Server
}

func newCertServer(t *testing.T) *certServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "securetoken"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	certPEM := string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))

	cs := &certServer{key: key}
	cs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.fetches.Add(1)
		w.Header().Set("Cache-Control", "public, max-age=19000, must-revalidate")
		_ = json.NewEncoder(w).Encode(map[string]string{"kid-1": certPEM})
	}))
	t.Cleanup(cs.srv.Close)
	return cs
}

func (cs *certServer) sign(t *testing.T, kid string, mutate func(*auth.IDTokenClaims)) string {
	t.Helper()
	now := time.Now()
	claims := &auth.IDTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://securetoken.google.com/" + testProject,
			Audience:  jwt.ClaimStrings{testProject},
			Subject:   "uid-ada",
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		UserID:        "uid-ada",
		Email:         "ada@example.com",
		EmailVerified: true,
	}
	if mutate != nil {
		mutate(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(cs.key)
	require.NoError(t, err)
	return signed
}

func TestVerifierAcceptsValidToken(t *testing.T) {
	cs := newCertServer(t)
	v := NewVerifier(testProject, cs.srv.URL, cs.srv.Client())
	ctx := context.Background()

	s, err := v.Verify(ctx, cs.sign(t, "kid-1", nil))
	require.NoError(t, err)
	assert.Equal(t, "uid-ada", s.UserID)
	assert.Equal(t, "ada@example.com", s.Email)
	assert.True(t, s.EmailVerified)
	assert.Equal(t, ProviderName, s.Provider)

	_, err = v.Verify(ctx, cs.sign(t, "kid-1", nil))
	require.NoError(t, err)
	assert.Equal(t, int32(1), cs.fetches.Load(), "certificates are cached")
}

func TestVerifierRejections(t *testing.T) {
	cs := newCertServer(t)
	v := NewVerifier(testProject, cs.srv.URL, cs.srv.Client())
	ctx := context.Background()

	tests := []struct {
		name  string
		token func() string
		code  string
	}{
		{
			name:  "empty",
			token: func() string { return "" },
			code:  auth.ErrTokenMissing,
		},
		{
			name:  "garbage",
			token: func() string { return "not-a-jwt" },
			code:  auth.ErrTokenMalformed,
		},
		{
			name: "expired",
			token: func() string {
				return cs.sign(t, "kid-1", func(c *auth.IDTokenClaims) {
					c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
				})
			},
			code: auth.ErrTokenExpired,
		},
		{
			name: "wrong audience",
			token: func() string {
				return cs.sign(t, "kid-1", func(c *auth.IDTokenClaims) {
					c.Audience = jwt.ClaimStrings{"other-project"}
				})
			},
			code: auth.ErrTokenInvalid,
		},
		{
			name: "wrong issuer",
			token: func() string {
				return cs.sign(t, "kid-1", func(c *auth.IDTokenClaims) {
					c.Issuer = "https://example.com"
				})
			},
			code: auth.ErrTokenInvalid,
		},
		{
			name:  "unknown key",
			token: func() string { return cs.sign(t, "kid-2", nil) },
			code:  auth.ErrTokenInvalid,
		},
		{
			name: "hmac signed",
			token: func() string {
				tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "x"}).SignedString([]byte("k"))
				require.NoError(t, err)
				return tok
			},
			code: auth.ErrTokenInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(ctx, tt.token())
			require.Error(t, err)
			assert.True(t, auth.IsAuthError(err, tt.code), "got %v", err)
		})
	}
}

func TestVerifierRequiresProject(t *testing.T) {
	v := NewVerifier("", "", nil)
	_, err := v.Verify(context.Background(), "x")
	assert.True(t, auth.IsAuthError(err, auth.ErrTokenInvalid))
}

func TestVerifierCertEndpointDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cs := newCertServer(t)
	v := NewVerifier(testProject, srv.URL, srv.Client())
	_, err := v.Verify(context.Background(), cs.sign(t, "kid-1", nil))
	assert.True(t, auth.IsAuthError(err, auth.ErrProviderUnavailable), "got %v", err)
}

func TestMaxAge(t *testing.T) {
	assert.Equal(t, 19000*time.Second, maxAge("public, max-age=19000, must-revalidate", time.Hour))
	assert.Equal(t, time.Hour, maxAge("no-cache", time.Hour))
	assert.Equal(t, time.Hour, maxAge("max-age=abc", time.Hour))
}
