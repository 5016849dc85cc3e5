package roles

import (
	"context"
	"strings"
	"time"

	"github.com/felixgeelhaar/finhub/internal/config"
	"github.com/felixgeelhaar/finhub/internal/errors"
	"github.com/felixgeelhaar/finhub/internal/metrics"
	"github.com/felixgeelhaar/finhub/internal/telemetry"
)

// Open builds the store selected by cfg.Store. tokens authorizes Firestore
// reads and is ignored by the other backends.
func Open(ctx context.Context, cfg config.RolesConfig, firebase config.FirebaseConfig, tokens TokenSource) (Store, error) {
	switch strings.ToLower(cfg.Store) {
	case "firestore", "":
		return NewFirestoreStore(firebase.FirestoreURL, firebase.ProjectID, tokens, nil), nil
	case "postgres":
		return OpenPostgres(ctx, cfg.Postgres.DSN, PostgresOptions{
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
	case "redis":
		return OpenRedis(ctx, RedisOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	case "memory":
		if cfg.Memory.SeedFile == "" {
			return NewMemoryStore(), nil
		}
		return LoadMemoryStore(cfg.Memory.SeedFile)
	default:
		return nil, errors.NewStoreUnknownError(cfg.Store)
	}
}

// Instrumented wraps a Store with tracing and lookup metrics.
type Instrumented struct {
	Store
	metrics *metrics.Metrics
}

// Instrument wraps s. A nil m disables metrics.
func Instrument(s Store, m *metrics.Metrics) *Instrumented {
	return &Instrumented{Store: s, metrics: m}
}

// GetRoleRecord implements Store.
func (s *Instrumented) GetRoleRecord(ctx context.Context, userID string) (*Record, error) {
	ctx, span := telemetry.StartRoleLookupSpan(ctx, s.Name())

	start := time.Now()
	rec, err := s.Store.GetRoleRecord(ctx, userID)
	telemetry.EndRoleLookupSpan(span, rec != nil, err)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordError(err)
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RoleLookupDuration.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())
	}
	return rec, nil
}

// Ping implements Pinger when the wrapped store does; otherwise it is a
// no-op.
func (s *Instrumented) Ping(ctx context.Context) error {
	if p, ok := s.Store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
