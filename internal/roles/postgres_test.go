package roles

import (
	"context"
	"database/sql"
	stderrors "errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/finhub/internal/errors"
)

type fakeQuerier struct {
	rows  map[string]roleRow
	err   error
	query string
}

func (f *fakeQuerier) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	f.query = query
	if f.err != nil {
		return f.err
	}
	row, ok := f.rows[args[0].(string)]
	if !ok {
		return sql.ErrNoRows
	}
	*dest.(*roleRow) = row
	return nil
}

func (f *fakeQuerier) PingContext(ctx context.Context) error { return f.err }
func (f *fakeQuerier) Close() error                          { return nil }

func TestPostgresStore(t *testing.T) {
	q := &fakeQuerier{rows: map[string]roleRow{
		"admin-1": {UID: "admin-1", Role: sql.NullString{String: "admin", Valid: true}},
		"null":    {UID: "null"},
	}}
	s := &PostgresStore{db: q}
	ctx := context.Background()

	rec, err := s.GetRoleRecord(ctx, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, Resolve(rec))
	assert.Contains(t, q.query, "WHERE uid = $1")

	rec, err = s.GetRoleRecord(ctx, "null")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, RoleUser, Resolve(rec), "NULL role resolves to the default")

	rec, err = s.GetRoleRecord(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)

	q.err = stderrors.New("connection reset")
	_, err = s.GetRoleRecord(ctx, "admin-1")
	assert.Equal(t, errors.ErrCodeRoleLookup, errors.CodeOf(err))
	assert.Error(t, s.Ping(ctx))
}

// TestPostgresStoreIntegration runs against a real database when
// FINHUB_TEST_POSTGRES_DSN is set.
func TestPostgresStoreIntegration(t *testing.T) {
	dsn := os.Getenv("FINHUB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FINHUB_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	s, err := OpenPostgres(ctx, dsn, PostgresOptions{MaxOpenConns: 1})
	require.NoError(t, err)
	defer s.Close()

	db := s.db.(interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	})
	_, err = db.ExecContext(ctx, `CREATE TEMP TABLE users (uid TEXT PRIMARY KEY, role TEXT)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO users (uid, role) VALUES ('pg-admin', 'admin')`)
	require.NoError(t, err)

	rec, err := s.GetRoleRecord(ctx, "pg-admin")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, Resolve(rec))

	rec, err = s.GetRoleRecord(ctx, "pg-missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestOpenPostgresUnreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := OpenPostgres(ctx, "postgres://finhub@127.0.0.1:1/finhub?sslmode=disable&connect_timeout=1", PostgresOptions{})
	assert.Equal(t, errors.ErrCodeStoreUnavailable, errors.CodeOf(err))
}
