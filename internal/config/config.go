// Package config provides configuration loading for finhub.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/felixgeelhaar/finhub/internal/errors"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Identity  IdentityConfig  `mapstructure:"identity" yaml:"identity"`
	Roles     RolesConfig     `mapstructure:"roles" yaml:"roles"`
	Upstream  UpstreamConfig  `mapstructure:"upstream" yaml:"upstream"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit" yaml:"ratelimit"`
	CORS      CORSConfig      `mapstructure:"cors" yaml:"cors"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Dashboard DashboardConfig `mapstructure:"dashboard" yaml:"dashboard"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address         string        `mapstructure:"address" yaml:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	// File is where the dashboard writes its logs.
	File string `mapstructure:"file" yaml:"file"`
}

// IdentityConfig selects and configures the identity provider.
type IdentityConfig struct {
	Provider string         `mapstructure:"provider" yaml:"provider"` // firebase, memory
	Firebase FirebaseConfig `mapstructure:"firebase" yaml:"firebase"`
	Memory   MemoryIdentity `mapstructure:"memory" yaml:"memory"`
}

// FirebaseConfig holds the hosted identity and document store settings.
type FirebaseConfig struct {
	APIKey         string `mapstructure:"api_key" yaml:"api_key"`
	ProjectID      string `mapstructure:"project_id" yaml:"project_id"`
	IdentityURL    string `mapstructure:"identity_url" yaml:"identity_url"`
	SecureTokenURL string `mapstructure:"secure_token_url" yaml:"secure_token_url"`
	FirestoreURL   string `mapstructure:"firestore_url" yaml:"firestore_url"`
}

// MemoryIdentity configures the offline identity provider.
type MemoryIdentity struct {
	SeedFile      string        `mapstructure:"seed_file" yaml:"seed_file"`
	SigningSecret string        `mapstructure:"signing_secret" yaml:"signing_secret"`
	SessionTTL    time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`
}

// RolesConfig selects and configures the role store.
type RolesConfig struct {
	Store         string         `mapstructure:"store" yaml:"store"` // firestore, postgres, redis, memory
	LookupTimeout time.Duration  `mapstructure:"lookup_timeout" yaml:"lookup_timeout"`
	Postgres      PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	Redis         RedisConfig    `mapstructure:"redis" yaml:"redis"`
	Memory        MemoryRoles    `mapstructure:"memory" yaml:"memory"`
}

// PostgresConfig holds PostgreSQL role store configuration.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// RedisConfig holds Redis role store configuration.
type RedisConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Password  string `mapstructure:"password" yaml:"password"`
	DB        int    `mapstructure:"db" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// MemoryRoles configures the in-process role store.
type MemoryRoles struct {
	SeedFile string `mapstructure:"seed_file" yaml:"seed_file"`
}

// UpstreamConfig holds the market data vendor endpoints.
type UpstreamConfig struct {
	CoinGeckoURL   string        `mapstructure:"coingecko_url" yaml:"coingecko_url"`
	FrankfurterURL string        `mapstructure:"frankfurter_url" yaml:"frankfurter_url"`
	StooqURL       string        `mapstructure:"stooq_url" yaml:"stooq_url"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// RateLimitConfig limits requests per client IP on the proxy routes.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests" yaml:"requests"`
	Window   time.Duration `mapstructure:"window" yaml:"window"`
}

// CORSConfig holds allowed browser origins for the API.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// TelemetryConfig holds tracing configuration.
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// DashboardConfig holds terminal dashboard settings.
type DashboardConfig struct {
	APIURL        string        `mapstructure:"api_url" yaml:"api_url"`
	Theme         string        `mapstructure:"theme" yaml:"theme"` // dark, light
	CryptoRefresh time.Duration `mapstructure:"crypto_refresh" yaml:"crypto_refresh"`
	ForexRefresh  time.Duration `mapstructure:"forex_refresh" yaml:"forex_refresh"`
}

// Load reads configuration from a .env file, an optional YAML file and
// FINHUB_* environment variables, in increasing order of precedence.
// An empty path searches the default locations.
func Load(path string) (*Config, error) {
	// .env is optional; variables already set in the environment win.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("finhub")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.finhub")
		v.AddConfigPath("/etc/finhub")
	}

	v.SetEnvPrefix("FINHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without defaults are invisible to Unmarshal unless bound explicitly.
	for _, key := range []string{
		"identity.firebase.api_key",
		"identity.firebase.project_id",
		"identity.memory.seed_file",
		"identity.memory.signing_secret",
		"roles.postgres.dsn",
		"roles.redis.password",
		"roles.redis.db",
		"roles.memory.seed_file",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(errors.ErrCodeConfigParse, "failed to read config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigParse, "failed to unmarshal config", err)
	}
	cfg.expandPaths()

	return &cfg, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults are static; a failure here is a programming error.
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	cfg.expandPaths()
	return &cfg
}

func (c *Config) expandPaths() {
	c.Log.File = os.ExpandEnv(c.Log.File)
	c.Roles.Memory.SeedFile = os.ExpandEnv(c.Roles.Memory.SeedFile)
	c.Identity.Memory.SeedFile = os.ExpandEnv(c.Identity.Memory.SeedFile)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "$HOME/.finhub/dashboard.log")

	v.SetDefault("identity.provider", "firebase")
	v.SetDefault("identity.firebase.identity_url", "https://identitytoolkit.googleapis.com/v1")
	v.SetDefault("identity.firebase.secure_token_url", "https://securetoken.googleapis.com/v1")
	v.SetDefault("identity.firebase.firestore_url", "https://firestore.googleapis.com/v1")
	v.SetDefault("identity.memory.session_ttl", "1h")

	v.SetDefault("roles.store", "firestore")
	v.SetDefault("roles.lookup_timeout", "5s")
	v.SetDefault("roles.postgres.max_open_conns", 10)
	v.SetDefault("roles.postgres.max_idle_conns", 2)
	v.SetDefault("roles.postgres.conn_max_lifetime", "5m")
	v.SetDefault("roles.redis.addr", "localhost:6379")
	v.SetDefault("roles.redis.key_prefix", "finhub:")

	v.SetDefault("upstream.coingecko_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("upstream.frankfurter_url", "https://api.frankfurter.app")
	v.SetDefault("upstream.stooq_url", "https://stooq.com")
	v.SetDefault("upstream.timeout", "10s")

	v.SetDefault("ratelimit.requests", 60)
	v.SetDefault("ratelimit.window", "1m")

	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4318")
	v.SetDefault("telemetry.sample_rate", 1.0)

	v.SetDefault("dashboard.api_url", "http://localhost:8080")
	v.SetDefault("dashboard.theme", "dark")
	v.SetDefault("dashboard.crypto_refresh", "60s")
	v.SetDefault("dashboard.forex_refresh", "300s")
}

// Validate checks cross-field constraints that defaults cannot express.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return errors.NewConfigInvalidError("server.address is empty")
	}

	switch c.Identity.Provider {
	case "firebase":
		if c.Identity.Firebase.APIKey == "" {
			return errors.NewConfigInvalidError("identity.firebase.api_key is required for the firebase provider")
		}
	case "memory":
	default:
		return errors.NewConfigInvalidError(fmt.Sprintf("unknown identity provider %q", c.Identity.Provider))
	}

	switch c.Roles.Store {
	case "firestore":
		if c.Identity.Provider != "firebase" {
			return errors.NewConfigInvalidError("roles.store firestore requires identity.provider firebase")
		}
		if c.Identity.Firebase.ProjectID == "" {
			return errors.NewConfigInvalidError("identity.firebase.project_id is required for the firestore role store")
		}
	case "postgres":
		if c.Roles.Postgres.DSN == "" {
			return errors.NewConfigInvalidError("roles.postgres.dsn is required for the postgres role store")
		}
	case "redis":
		if c.Roles.Redis.Addr == "" {
			return errors.NewConfigInvalidError("roles.redis.addr is required for the redis role store")
		}
	case "memory":
	default:
		return errors.NewStoreUnknownError(c.Roles.Store)
	}

	if c.Roles.LookupTimeout < 0 {
		return errors.NewConfigInvalidError("roles.lookup_timeout must not be negative")
	}
	if c.RateLimit.Requests < 0 {
		return errors.NewConfigInvalidError("ratelimit.requests must not be negative")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return errors.NewConfigInvalidError("telemetry.sample_rate must be between 0 and 1")
	}
	return nil
}
