package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/finhub/internal/auth"
	"github.com/felixgeelhaar/finhub/internal/auth/firebase"
	"github.com/felixgeelhaar/finhub/internal/config"
	"github.com/felixgeelhaar/finhub/internal/errors"
	"github.com/felixgeelhaar/finhub/internal/log"
	"github.com/felixgeelhaar/finhub/internal/metrics"
	"github.com/felixgeelhaar/finhub/internal/roles"
	"github.com/felixgeelhaar/finhub/internal/version"
)

const memoryIssuer = "finhub-memory"

// newLogger builds the process logger from cfg.Log and makes it the default.
// With toFile set, records go to cfg.Log.File instead of stderr.
func newLogger(cfg *config.Config, toFile bool) (*log.Logger, func(), error) {
	lc := log.DefaultConfig()
	lc.Level = log.ParseLevel(cfg.Log.Level)
	lc.Format = log.ParseFormat(cfg.Log.Format)
	lc.ServiceVersion = version.GetInfo().Version

	closeFn := func() {}
	if toFile {
		if cfg.Log.File == "" {
			lc.Output = log.NewOutput(io.Discard)
		} else {
			out, err := log.OutputFile(cfg.Log.File)
			if err != nil {
				return nil, nil, errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to open log file", err)
			}
			lc.Output = out
			closeFn = func() { _ = out.Close() }
		}
	}

	logger := log.New(lc)
	log.SetDefaultLogger(logger)
	return logger, closeFn, nil
}

// sessionPath is where the dashboard persists the signed-in session.
func sessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "finhub-session.json")
	}
	return filepath.Join(home, ".finhub", "session.json")
}

// openIdentity builds the configured identity provider. persist keeps the
// session on disk so the next dashboard run starts signed in.
func openIdentity(ctx context.Context, cfg *config.Config, logger *log.Logger, persist bool) (auth.Provider, error) {
	var store auth.SessionStore
	if persist {
		store = auth.NewFileStore(sessionPath())
	}

	switch cfg.Identity.Provider {
	case "memory":
		p := auth.NewMemoryProvider(memorySessions(cfg, logger), store)
		if seed := cfg.Identity.Memory.SeedFile; seed != "" {
			n, err := p.LoadAccounts(seed)
			if err != nil {
				return nil, IdentityError("memory", err)
			}
			logger.Info("loaded seed accounts", "count", n, "path", seed)
		}
		if err := p.Restore(ctx); err != nil {
			logger.WithError(err).Warn("discarding saved session")
		}
		return p, nil

	default:
		fb := cfg.Identity.Firebase
		opts := []firebase.Option{firebase.WithLogger(logger)}
		if store != nil {
			opts = append(opts, firebase.WithSessionStore(store))
		}
		p, err := firebase.New(fb.APIKey, fb.ProjectID, firebase.Endpoints{
			Identity:    fb.IdentityURL,
			SecureToken: fb.SecureTokenURL,
		}, opts...)
		if err != nil {
			return nil, IdentityError("firebase", err)
		}
		if err := p.Restore(ctx); err != nil {
			logger.WithError(err).Warn("discarding saved session")
		}
		return p, nil
	}
}

// openVerifier builds the bearer token verifier for the API.
func openVerifier(cfg *config.Config, logger *log.Logger) auth.TokenVerifier {
	if cfg.Identity.Provider == "memory" {
		return memorySessions(cfg, logger)
	}
	return firebase.NewVerifier(cfg.Identity.Firebase.ProjectID, "", nil)
}

func memorySessions(cfg *config.Config, logger *log.Logger) *auth.SessionManager {
	secret := cfg.Identity.Memory.SigningSecret
	if secret == "" {
		secret = uuid.NewString()
		logger.Warn("identity.memory.signing_secret is not set; tokens are only valid in this process")
	}
	sm := auth.NewSessionManager([]byte(secret), memoryIssuer)
	if ttl := cfg.Identity.Memory.SessionTTL; ttl > 0 {
		sm = sm.WithTokenDuration(ttl)
	}
	return sm
}

// openRoleStore opens the configured role store, instrumented with m.
// tokens authorizes Firestore document reads.
func openRoleStore(ctx context.Context, cfg *config.Config, tokens roles.TokenSource, m *metrics.Metrics) (*roles.Instrumented, error) {
	store, err := roles.Open(ctx, cfg.Roles, cfg.Identity.Firebase, tokens)
	if err != nil {
		return nil, RoleStoreError(cfg.Roles.Store, err)
	}
	return roles.Instrument(store, m), nil
}

// requestToken authorizes a server-side role lookup with the caller's own ID
// token, so document rules see the same user the API authenticated.
func requestToken(ctx context.Context) (string, error) {
	s := auth.GetSession(ctx)
	if s == nil || s.Token == "" {
		return "", auth.NewError(auth.ErrNotSignedIn, "no authenticated request session", nil)
	}
	return s.Token, nil
}

func lookupContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
