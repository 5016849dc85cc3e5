package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/finhub/internal/errors"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "firebase", cfg.Identity.Provider)
	assert.Equal(t, "firestore", cfg.Roles.Store)
	assert.Equal(t, 5*time.Second, cfg.Roles.LookupTimeout)
	assert.Equal(t, "https://api.coingecko.com/api/v3", cfg.Upstream.CoinGeckoURL)
	assert.Equal(t, 60*time.Second, cfg.Dashboard.CryptoRefresh)
	assert.Equal(t, 300*time.Second, cfg.Dashboard.ForexRefresh)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "finhub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9090"
identity:
  provider: memory
roles:
  store: redis
  lookup_timeout: 2s
  redis:
    addr: "cache:6379"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Identity.Provider)
	assert.Equal(t, "redis", cfg.Roles.Store)
	assert.Equal(t, 2*time.Second, cfg.Roles.LookupTimeout)
	assert.Equal(t, "cache:6379", cfg.Roles.Redis.Addr)
	assert.Equal(t, "finhub:", cfg.Roles.Redis.KeyPrefix, "unset keys keep their defaults")
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FINHUB_SERVER_ADDRESS", ":7070")
	t.Setenv("FINHUB_IDENTITY_FIREBASE_API_KEY", "key-123")
	t.Setenv("FINHUB_IDENTITY_FIREBASE_PROJECT_ID", "finhub-dev")
	t.Setenv("FINHUB_ROLES_POSTGRES_DSN", "postgres://localhost/finhub")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, "key-123", cfg.Identity.Firebase.APIKey)
	assert.Equal(t, "finhub-dev", cfg.Identity.Firebase.ProjectID)
	assert.Equal(t, "postgres://localhost/finhub", cfg.Roles.Postgres.DSN)
	require.NoError(t, cfg.Validate())
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finhub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigParse, errors.CodeOf(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		wantCode errors.ErrorCode
	}{
		{
			name: "memory everything",
			mutate: func(c *Config) {
				c.Identity.Provider = "memory"
				c.Roles.Store = "memory"
			},
		},
		{
			name: "firebase without api key",
			mutate: func(c *Config) {
				c.Identity.Firebase.ProjectID = "p"
			},
			wantCode: errors.ErrCodeConfigInvalid,
		},
		{
			name: "firestore store with memory identity",
			mutate: func(c *Config) {
				c.Identity.Provider = "memory"
			},
			wantCode: errors.ErrCodeConfigInvalid,
		},
		{
			name: "unknown store",
			mutate: func(c *Config) {
				c.Identity.Provider = "memory"
				c.Roles.Store = "mongo"
			},
			wantCode: errors.ErrCodeStoreUnknown,
		},
		{
			name: "postgres without dsn",
			mutate: func(c *Config) {
				c.Identity.Provider = "memory"
				c.Roles.Store = "postgres"
			},
			wantCode: errors.ErrCodeConfigInvalid,
		},
		{
			name: "sample rate out of range",
			mutate: func(c *Config) {
				c.Identity.Provider = "memory"
				c.Roles.Store = "memory"
				c.Telemetry.SampleRate = 2
			},
			wantCode: errors.ErrCodeConfigInvalid,
		},
		{
			name: "empty address",
			mutate: func(c *Config) {
				c.Server.Address = ""
			},
			wantCode: errors.ErrCodeConfigInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))
		})
	}
}
