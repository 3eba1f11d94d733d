package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duahabit/internal/auth"
	"duahabit/internal/storage"
)

func newTestService() *Service {
	return New(storage.NewMemory(), auth.NewManager("test-secret"))
}

func TestRegisterCreatesProfile(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	user, tokens, err := svc.Register(ctx, "amina@example.com", "pw123456", "Amina")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	p, err := svc.Store.GetProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Amina", p.DisplayName)
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, 0, p.TotalXP)
	assert.Nil(t, p.LastActiveDate)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "amina@example.com", "pw123456", "Amina")
	require.NoError(t, err)
	_, _, err = svc.Register(ctx, "amina@example.com", "other", "Other")
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestLogin(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	_, _, err := svc.Register(ctx, "amina@example.com", "pw123456", "Amina")
	require.NoError(t, err)

	user, tokens, err := svc.Login(ctx, "amina@example.com", "pw123456")
	require.NoError(t, err)
	assert.Equal(t, "amina@example.com", user.Email)
	assert.NotEmpty(t, tokens.AccessToken)

	claims, err := svc.Auth.ParseToken(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "Amina", claims.DisplayName)

	_, _, err = svc.Login(ctx, "amina@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "nobody@example.com", "pw123456")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefresh(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	_, tokens, err := svc.Register(ctx, "amina@example.com", "pw123456", "Amina")
	require.NoError(t, err)

	fresh, err := svc.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, fresh.AccessToken)
	assert.NotEqual(t, tokens.RefreshToken, fresh.RefreshToken)

	_, err = svc.Refresh(ctx, "bogus")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
