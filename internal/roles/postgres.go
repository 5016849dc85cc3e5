package roles

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/felixgeelhaar/finhub/internal/errors"
)

// querier is the part of *sqlx.DB the store uses.
type querier interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	PingContext(ctx context.Context) error
	Close() error
}

type roleRow struct {
	UID  string         `db:"uid"`
	Role sql.NullString `db:"role"`
}

// PostgresStore reads roles from a users table:
//
//	CREATE TABLE users (uid TEXT PRIMARY KEY, role TEXT);
type PostgresStore struct {
	db querier
}

// PostgresOptions tunes the connection pool. Zero values keep the driver
// defaults.
type PostgresOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, opts PostgresOptions) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, errors.NewStoreUnavailableError("postgres", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.NewStoreUnavailableError("postgres", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStore wraps an existing connection.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Name implements Store.
func (s *PostgresStore) Name() string { return "postgres" }

// GetRoleRecord implements Store.
func (s *PostgresStore) GetRoleRecord(ctx context.Context, userID string) (*Record, error) {
	if userID == "" {
		return nil, errors.New(errors.ErrCodeRoleInvalid, "user ID is required")
	}

	var row roleRow
	err := s.db.GetContext(ctx, &row, `SELECT uid, role FROM users WHERE uid = $1`, userID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewRoleLookupError(userID, err)
	}
	return &Record{UserID: row.UID, Role: row.Role.String}, nil
}

// Ping implements Pinger.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
