package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
)

func newTestLocal() *Local {
	return NewLocal(Config{
		Secret:     "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		BCryptCost: bcrypt.MinCost,
	}, zap.NewNop())
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var providerErr *domain.ErrAuthProvider
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, code, providerErr.Code)
}

func TestLocal_SignUpAndSignIn(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal()

	// given
	created, err := l.SignUp(ctx, "Ana@Example.com", "segredo1")
	require.NoError(t, err)

	// when
	session, err := l.SignIn(ctx, "ana@example.com", "segredo1")

	// then
	require.NoError(t, err)
	assert.Equal(t, created.UserID, session.UserID)
	assert.Equal(t, 3600, session.ExpiresIn)
	assert.NotEmpty(t, session.RefreshToken)

	identity, err := l.Verify(ctx, session.IDToken)
	require.NoError(t, err)
	assert.Equal(t, created.UserID, identity.UserID)
	assert.Equal(t, "Ana@Example.com", identity.Email)
}

func TestLocal_SignUpErrors(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal()
	_, err := l.SignUp(ctx, "ana@example.com", "segredo1")
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
		code     string
	}{
		{"duplicate email", "ANA@example.com", "segredo1", CodeEmailExists},
		{"malformed email", "ana.example.com", "segredo1", CodeInvalidEmail},
		{"short password", "bia@example.com", "12345", CodeWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.SignUp(ctx, tt.email, tt.password)
			requireCode(t, err, tt.code)
		})
	}
}

func TestLocal_LocksAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal()
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	_, err := l.SignUp(ctx, "ana@example.com", "segredo1")
	require.NoError(t, err)

	for i := 0; i < maxFailedAttempts-1; i++ {
		_, err = l.SignIn(ctx, "ana@example.com", "errada")
		requireCode(t, err, CodeInvalidCredentials)
	}
	_, err = l.SignIn(ctx, "ana@example.com", "errada")
	requireCode(t, err, CodeTooManyAttempts)

	_, err = l.SignIn(ctx, "ana@example.com", "segredo1")
	requireCode(t, err, CodeTooManyAttempts)

	now = now.Add(lockDuration + time.Second)
	_, err = l.SignIn(ctx, "ana@example.com", "segredo1")
	assert.NoError(t, err)
}

func TestLocal_UnknownAccount(t *testing.T) {
	_, err := newTestLocal().SignIn(context.Background(), "ninguem@example.com", "segredo1")
	requireCode(t, err, CodeInvalidCredentials)
}

func TestLocal_Refresh(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal()
	session, err := l.SignUp(ctx, "ana@example.com", "segredo1")
	require.NoError(t, err)

	t.Run("rotates the refresh token", func(t *testing.T) {
		refreshed, err := l.Refresh(ctx, session.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, session.UserID, refreshed.UserID)
		assert.Equal(t, "ana@example.com", refreshed.Email)
		assert.NotEqual(t, session.RefreshToken, refreshed.RefreshToken)

		_, err = l.Refresh(ctx, session.RefreshToken)
		requireCode(t, err, CodeInvalidRefreshToken)
		session = refreshed
	})

	t.Run("expired", func(t *testing.T) {
		l.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
		defer func() { l.now = time.Now }()

		_, err := l.Refresh(ctx, session.RefreshToken)
		requireCode(t, err, CodeTokenExpired)
	})
}

func TestLocal_Revoke(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal()
	session, err := l.SignUp(ctx, "ana@example.com", "segredo1")
	require.NoError(t, err)

	require.NoError(t, l.Revoke(ctx, session.UserID))

	_, err = l.Refresh(ctx, session.RefreshToken)
	requireCode(t, err, CodeInvalidRefreshToken)
}

func TestLocal_Verify(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal()
	session, err := l.SignUp(ctx, "ana@example.com", "segredo1")
	require.NoError(t, err)

	t.Run("foreign secret", func(t *testing.T) {
		other := newTestLocal()
		other.cfg.Secret = "another"
		_, err := other.Verify(ctx, session.IDToken)

		var unauthorized *domain.ErrUnauthorized
		require.ErrorAs(t, err, &unauthorized)
	})

	t.Run("expired", func(t *testing.T) {
		l.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { l.now = time.Now }()

		_, err := l.Verify(ctx, session.IDToken)

		var unauthorized *domain.ErrUnauthorized
		require.ErrorAs(t, err, &unauthorized)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := l.Verify(ctx, "not-a-token")

		var unauthorized *domain.ErrUnauthorized
		require.ErrorAs(t, err, &unauthorized)
	})
}

func TestLocal_FederatedSignInUnavailable(t *testing.T) {
	_, err := newTestLocal().SignInWithIdP(context.Background(), "google-token")
	requireCode(t, err, CodeOperationNotAllowed)
}
