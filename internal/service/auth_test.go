package service_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/cache"
	"github.com/boddenberg/finanzen-bfa-go/internal/service"
)

// --- Mocks ---

type mockProvider struct {
	session    *domain.AuthSession
	err        error
	lastEmail  string
	lastIDTok  string
	calls      int
	revokedFor string
}

func (m *mockProvider) SignUp(_ context.Context, email, _ string) (*domain.AuthSession, error) {
	m.calls++
	m.lastEmail = email
	return m.session, m.err
}

func (m *mockProvider) SignIn(_ context.Context, email, _ string) (*domain.AuthSession, error) {
	m.calls++
	m.lastEmail = email
	return m.session, m.err
}

func (m *mockProvider) SignInWithIdP(_ context.Context, idToken string) (*domain.AuthSession, error) {
	m.calls++
	m.lastIDTok = idToken
	return m.session, m.err
}

func (m *mockProvider) Refresh(_ context.Context, _ string) (*domain.AuthSession, error) {
	m.calls++
	return m.session, m.err
}

func (m *mockProvider) Revoke(_ context.Context, userID string) error {
	m.revokedFor = userID
	return nil
}

func newAuth(t *testing.T, provider *mockProvider, oauth *oauth2.Config) (*service.AuthService, *fixture) {
	t.Helper()
	f := newFixture(t)
	states := cache.New[string](time.Minute)
	t.Cleanup(states.Close)
	return service.NewAuthService(provider, provider, f.sessions, oauth, states, zap.NewNop()), f
}

// --- Tests ---

func TestAuthService_SignIn(t *testing.T) {
	ctx := context.Background()

	t.Run("should validate locally before calling the provider", func(t *testing.T) {
		provider := &mockProvider{}
		auth, _ := newAuth(t, provider, nil)

		_, err := auth.SignIn(ctx, &domain.Credentials{Email: " ", Password: "x"})
		var verr *domain.ErrValidation
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "Por favor, preencha todos os campos.", verr.Message)

		_, err = auth.SignIn(ctx, &domain.Credentials{Email: "not-an-email", Password: "secret1"})
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "email", verr.Field)
		assert.Zero(t, provider.calls)
	})

	t.Run("should return the provider session", func(t *testing.T) {
		provider := &mockProvider{session: &domain.AuthSession{UserID: "u1", IDToken: "tok"}}
		auth, _ := newAuth(t, provider, nil)

		got, err := auth.SignIn(ctx, &domain.Credentials{Email: " ana@example.com ", Password: "secret1"})

		require.NoError(t, err)
		assert.Equal(t, "u1", got.UserID)
		assert.Equal(t, "ana@example.com", provider.lastEmail)
	})

	t.Run("should translate provider codes", func(t *testing.T) {
		cases := []struct {
			code    string
			check   func(t *testing.T, err error)
			message string
		}{
			{"EMAIL_EXISTS", func(t *testing.T, err error) {
				var e *domain.ErrConflict
				require.ErrorAs(t, err, &e)
			}, "Este e-mail já está em uso por outra conta."},
			{"WEAK_PASSWORD", func(t *testing.T, err error) {
				var e *domain.ErrValidation
				require.ErrorAs(t, err, &e)
			}, "A senha deve ter pelo menos 6 caracteres."},
			{"INVALID_LOGIN_CREDENTIALS", func(t *testing.T, err error) {
				var e *domain.ErrUnauthorized
				require.ErrorAs(t, err, &e)
			}, "E-mail ou senha inválidos."},
			{"SOMETHING_NEW", func(t *testing.T, err error) {
				var e *domain.ErrUnauthorized
				require.ErrorAs(t, err, &e)
			}, service.GenericAuthMessage},
		}
		for _, tc := range cases {
			t.Run(tc.code, func(t *testing.T) {
				provider := &mockProvider{err: &domain.ErrAuthProvider{Code: tc.code}}
				auth, _ := newAuth(t, provider, nil)

				_, err := auth.SignUp(ctx, &domain.Credentials{Email: "ana@example.com", Password: "secret1"})

				tc.check(t, err)
				assert.Equal(t, tc.message, service.AuthMessage(tc.code))
			})
		}
	})
}

func TestAuthService_Google(t *testing.T) {
	ctx := context.Background()

	t.Run("should refuse the code flow when not configured", func(t *testing.T) {
		auth, _ := newAuth(t, &mockProvider{}, nil)

		_, err := auth.GoogleLoginURL()

		var uerr *domain.ErrUnauthorized
		require.ErrorAs(t, err, &uerr)
	})

	t.Run("should exchange the code for an ID token and sign in", func(t *testing.T) {
		// given
		tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer","expires_in":3600,"id_token":"google-id-token"}`))
		}))
		t.Cleanup(tokenSrv.Close)
		oauth := &oauth2.Config{
			ClientID:     "client",
			ClientSecret: "secret",
			RedirectURL:  "http://localhost/v1/auth/google/callback",
			Scopes:       []string{"openid", "email"},
			Endpoint:     oauth2.Endpoint{AuthURL: "https://accounts.example/auth", TokenURL: tokenSrv.URL},
		}
		provider := &mockProvider{session: &domain.AuthSession{UserID: "g1"}}
		auth, _ := newAuth(t, provider, oauth)

		loginURL, err := auth.GoogleLoginURL()
		require.NoError(t, err)
		parsed, err := url.Parse(loginURL)
		require.NoError(t, err)
		state := parsed.Query().Get("state")
		require.NotEmpty(t, state)

		// when
		got, err := auth.GoogleCallback(ctx, state, "auth-code")

		// then
		require.NoError(t, err)
		assert.Equal(t, "g1", got.UserID)
		assert.Equal(t, "google-id-token", provider.lastIDTok)

		_, err = auth.GoogleCallback(ctx, state, "auth-code")
		var uerr *domain.ErrUnauthorized
		require.ErrorAs(t, err, &uerr, "state is single use")
	})
}

func TestAuthService_LogoutAndProfile(t *testing.T) {
	ctx := context.Background()
	provider := &mockProvider{}
	auth, f := newAuth(t, provider, nil)

	profile, err := auth.Profile(ctx, &domain.Identity{UserID: "u1", Email: "ana@example.com"})
	require.NoError(t, err)
	assert.False(t, profile.IsPremium)
	assert.True(t, profile.ShowAds)
	assert.Equal(t, 1, f.sessions.Len())

	require.NoError(t, f.ledger.SetPremium(ctx, "u1", true))
	profile, err = auth.Profile(ctx, &domain.Identity{UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, profile.IsPremium)
	assert.False(t, profile.ShowAds)

	require.NoError(t, auth.Logout(ctx, "u1"))
	assert.Equal(t, 0, f.sessions.Len())
	assert.Equal(t, "u1", provider.revokedFor)
}
