package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_RegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewInMemoryRepository())

	acct, err := svc.Register(ctx, RegisterParams{
		Username: "alice",
		Email:    "alice@example.com",
		Name:     "Alice",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, acct.ID)
	assert.NotEqual(t, "correct-horse", acct.PasswordHash)

	t.Run("valid password", func(t *testing.T) {
		got, err := svc.Authenticate(ctx, "alice", "correct-horse")
		require.NoError(t, err)
		assert.Equal(t, acct.ID, got.ID)
	})

	t.Run("username is case insensitive", func(t *testing.T) {
		got, err := svc.Authenticate(ctx, "ALICE", "correct-horse")
		require.NoError(t, err)
		assert.Equal(t, acct.ID, got.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "alice", "wrong-password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "bob", "correct-horse")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("duplicate username", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterParams{Username: "Alice", Email: "other@example.com", Password: "password1"})
		assert.ErrorIs(t, err, ErrAccountExists)
	})
}

func TestService_RegisterValidation(t *testing.T) {
	svc := NewService(NewInMemoryRepository())

	tests := []struct {
		name   string
		params RegisterParams
	}{
		{"missing username", RegisterParams{Email: "a@example.com", Password: "password1"}},
		{"invalid email", RegisterParams{Username: "a", Email: "not-an-email", Password: "password1"}},
		{"short password", RegisterParams{Username: "a", Email: "a@example.com", Password: "short"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.params)
			assert.ErrorIs(t, err, ErrInvalidAccount)
		})
	}
}
