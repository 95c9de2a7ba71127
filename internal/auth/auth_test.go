package auth

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ipdr-backend/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func createService(t *testing.T) *Service {
	t.Helper()

	db, err := database.OpenSqlite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	clock := time.Unix(1000, 0)
	return NewService(db, WithCost(bcrypt.MinCost), WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
}

func TestRegisterAndLogin(t *testing.T) {
	service := createService(t)
	ctx := context.Background()

	user, err := service.Register(ctx, "Ada", "ada@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.NotEqual(t, "secret", user.PasswordHash)

	session, err := service.Login(ctx, "ada@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, Session{Token: "token-ada@example.com", Name: "Ada"}, session)

	_, err = service.Login(ctx, "ada@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = service.Login(ctx, "bob@example.com", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterDuplicate(t *testing.T) {
	service := createService(t)
	ctx := context.Background()

	_, err := service.Register(ctx, "Ada", "ada@example.com", "secret")
	require.NoError(t, err)

	_, err = service.Register(ctx, "Other", "ada@example.com", "other")
	assert.ErrorIs(t, err, ErrUserExists)

	users, err := service.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Ada", users[0].Name)
}

func TestRegisterPasswordTooLong(t *testing.T) {
	service := createService(t)

	_, err := service.Register(context.Background(), "Ada", "ada@example.com", strings.Repeat("x", 100))
	assert.ErrorIs(t, err, ErrInvalidPassword)
}

func TestLoginNameFallsBackToEmail(t *testing.T) {
	service := createService(t)
	ctx := context.Background()

	_, err := service.Register(ctx, "", "anon@example.com", "secret")
	require.NoError(t, err)

	session, err := service.Login(ctx, "anon@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "anon@example.com", session.Name)
}

func TestDisabledUserCannotLogin(t *testing.T) {
	service := createService(t)
	ctx := context.Background()

	_, err := service.Register(ctx, "Ada", "ada@example.com", "secret")
	require.NoError(t, err)
	_, err = service.Register(ctx, "Bob", "bob@example.com", "secret")
	require.NoError(t, err)

	require.NoError(t, service.SetStatus(ctx, "ada@example.com", database.UserDisabled))
	assert.Error(t, service.SetStatus(ctx, "ada@example.com", "banned"))
	assert.Error(t, service.SetStatus(ctx, "nobody@example.com", database.UserActive))

	_, err = service.Login(ctx, "ada@example.com", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	users, err := service.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "ada@example.com", users[0].Email)
	assert.Equal(t, database.UserDisabled, users[0].Status)
	assert.Equal(t, database.UserActive, users[1].Status)
}
