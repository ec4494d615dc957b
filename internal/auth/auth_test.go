package auth

import (
	"context"
	"testing"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123"

func newTestManager(t *testing.T) (*Manager, *repository.MemorySessionRepository) {
	t.Helper()
	store := repository.NewMemorySessionRepository()
	return NewManager(testSecret, "marketplace", time.Hour, store), store
}

func TestIssueAndAuthenticate(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	token, session, err := m.Issue(ctx, "u1", models.RoleProvider, "Paula")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.NotEmpty(t, session.ID)

	got, err := m.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, models.RoleProvider, got.Role)
	assert.Equal(t, "Paula", got.DisplayName)
	assert.Equal(t, session.ID, got.ID)
}

func TestIssueValidation(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, _, err := m.Issue(ctx, "", models.RoleCustomer, "x")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, _, err = m.Issue(ctx, "u1", models.Role("root"), "x")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestAuthenticateRejects(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	token, session, err := m.Issue(ctx, "u1", models.RoleCustomer, "Carla")
	require.NoError(t, err)

	t.Run("Empty", func(t *testing.T) {
		_, err := m.Authenticate(ctx, "")
		assert.ErrorIs(t, err, models.ErrUnauthenticated)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := m.Authenticate(ctx, "not-a-jwt")
		assert.ErrorIs(t, err, models.ErrUnauthenticated)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		other := NewManager("another-secret-value", "marketplace", time.Hour, repository.NewMemorySessionRepository())
		_, err := other.Authenticate(ctx, token)
		assert.ErrorIs(t, err, models.ErrUnauthenticated)
	})

	t.Run("WrongIssuer", func(t *testing.T) {
		claims := Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "u1",
				Issuer:    "elsewhere",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Role:      "customer",
			SessionID: session.ID,
		}
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		_, err = m.Authenticate(ctx, forged)
		assert.ErrorIs(t, err, models.ErrUnauthenticated)
	})

	t.Run("RoleTampered", func(t *testing.T) {
		claims := Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "u1",
				Issuer:    "marketplace",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Role:      "admin",
			SessionID: session.ID,
		}
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		_, err = m.Authenticate(ctx, forged)
		assert.ErrorIs(t, err, models.ErrUnauthenticated)
	})

	t.Run("Expired", func(t *testing.T) {
		m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { m.now = time.Now }()
		_, err := m.Authenticate(ctx, token)
		assert.ErrorIs(t, err, models.ErrUnauthenticated)
	})

	t.Run("Revoked", func(t *testing.T) {
		require.NoError(t, m.Revoke(ctx, session.ID))
		_, err := m.Authenticate(ctx, token)
		assert.ErrorIs(t, err, models.ErrUnauthenticated)
	})
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Empty(t, BearerToken("Basic abc"))
	assert.Empty(t, BearerToken(""))
}
