package services

import (
	"context"
	"testing"

	"livechat/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLogin(t *testing.T) {
	svc := NewUserService(testLogger(), newMemUserRepo())

	u, err := svc.Register(context.Background(), "alice", "correct horse battery")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery", u.PasswordHash)

	got, err := svc.Login(context.Background(), "alice", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestRegisterRejectsWeakInput(t *testing.T) {
	svc := NewUserService(testLogger(), newMemUserRepo())

	_, err := svc.Register(context.Background(), "", "long enough password")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.Register(context.Background(), "bob", "short")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc := NewUserService(testLogger(), newMemUserRepo())

	_, err := svc.Register(context.Background(), "alice", "password123")
	require.NoError(t, err)
	_, err = svc.Register(context.Background(), "alice", "password456")
	assert.ErrorIs(t, err, domain.ErrUserAlreadyExists)
}

func TestLoginWrongPassword(t *testing.T) {
	svc := NewUserService(testLogger(), newMemUserRepo())

	_, err := svc.Register(context.Background(), "alice", "password123")
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "alice", "password999")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "nobody", "password123")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}
