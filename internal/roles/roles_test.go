package roles

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/finhub/internal/errors"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want Role
	}{
		{"admin", RoleAdmin},
		{"Admin", DefaultRole},
		{" ADMIN ", DefaultRole},
		{"admin ", DefaultRole},
		{"user", RoleUser},
		{"User", RoleUser},
		{"", DefaultRole},
		{"superuser", DefaultRole},
		{"root", DefaultRole},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestResolve(t *testing.T) {
	assert.Equal(t, DefaultRole, Resolve(nil), "missing record resolves to the default role")
	assert.Equal(t, DefaultRole, Resolve(&Record{UserID: "u1"}), "record without role field")
	assert.Equal(t, RoleAdmin, Resolve(&Record{UserID: "u1", Role: "admin"}))
}

func TestLookup(t *testing.T) {
	store := NewMemoryStore()
	store.Set("admin-1", "admin")
	ctx := context.Background()

	role, rec, err := Lookup(ctx, store, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)
	assert.Equal(t, "admin-1", rec.UserID)

	role, rec, err = Lookup(ctx, store, "nobody")
	require.NoError(t, err)
	assert.Equal(t, RoleUser, role)
	assert.Nil(t, rec)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	role, _, err = Lookup(cancelled, store, "admin-1")
	assert.Error(t, err)
	assert.Equal(t, DefaultRole, role, "failed lookups report the default role")
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	s.Set("u1", "admin")
	s.Set("u2", "user")
	assert.Equal(t, 2, s.Len())

	s.Delete("u1")
	rec, err := s.GetRoleRecord(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, "memory", s.Name())
	assert.NoError(t, s.Close())
}

func TestLoadMemoryStore(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
roles:
  - uid: alice
    role: admin
  - uid: bob
    role: user
  - uid: carol
`), 0o600))

	s, err := LoadMemoryStore(path)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())

	rec, err := s.GetRoleRecord(context.Background(), "carol")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, RoleUser, Resolve(rec))

	_, err = LoadMemoryStore(filepath.Join(dir, "missing.yaml"))
	assert.Equal(t, errors.ErrCodeFileNotFound, errors.CodeOf(err))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("roles: [\n"), 0o600))
	_, err = LoadMemoryStore(bad)
	assert.Equal(t, errors.ErrCodeFileUnmarshal, errors.CodeOf(err))

	noUID := filepath.Join(dir, "nouid.yaml")
	require.NoError(t, os.WriteFile(noUID, []byte("roles:\n  - role: admin\n"), 0o600))
	_, err = LoadMemoryStore(noUID)
	assert.Equal(t, errors.ErrCodeStoreSeed, errors.CodeOf(err))
}
