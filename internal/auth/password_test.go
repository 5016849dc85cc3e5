package auth

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		valid    bool
	}{
		{"abc12!", true},
		{"P@ssw0rd", true},
		{"a1$a1$a1$", true},
		{"ab1!", false},
		{"abcdef!", false},
		{"123456!", false},
		{"abc123", false},
		{"abc123^", false},
		{"ñññ12!", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, IsAuthError(err, ErrWeakPassword))
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Please verify your email first.", UserMessage(NewError(ErrEmailNotVerified, "x", nil)))
	assert.Equal(t, "Invalid email or password.", UserMessage(fmt.Errorf("wrapped: %w", NewError(ErrInvalidCredentials, "x", nil))))
	assert.Equal(t, PasswordRequirement, UserMessage(NewError(ErrWeakPassword, "x", nil)))
	assert.Equal(t, "custom", UserMessage(NewError(ErrRefreshFailed, "custom", nil)))
	assert.Equal(t, "Something went wrong. Please try again.", UserMessage(fmt.Errorf("dial tcp")))
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "state", "session.json"))

	s, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, s, "missing file means no session")

	require.NoError(t, store.Save(ctx, &Session{UserID: "u1", RefreshToken: "r1"}))
	s, err = store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "r1", s.RefreshToken)

	assert.True(t, IsAuthError(store.Save(ctx, &Session{}), ErrSessionInvalid))

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx), "clearing twice is fine")
	s, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
}
