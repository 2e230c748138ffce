package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/port"
)

// GenericAuthMessage is shown for provider codes without a specific message.
const GenericAuthMessage = "Ocorreu um erro inesperado. Tente novamente."

// authMessages maps identity provider codes to user-facing messages.
var authMessages = map[string]string{
	"EMAIL_EXISTS":                "Este e-mail já está em uso por outra conta.",
	"EMAIL_NOT_FOUND":             "E-mail ou senha inválidos.",
	"INVALID_PASSWORD":            "E-mail ou senha inválidos.",
	"INVALID_LOGIN_CREDENTIALS":   "E-mail ou senha inválidos.",
	"USER_DISABLED":               "Esta conta foi desativada.",
	"WEAK_PASSWORD":               "A senha deve ter pelo menos 6 caracteres.",
	"INVALID_EMAIL":               "O e-mail informado não é válido.",
	"TOO_MANY_ATTEMPTS_TRY_LATER": "Muitas tentativas. Tente novamente mais tarde.",
	"OPERATION_NOT_ALLOWED":       "Este método de login não está habilitado.",
	"TOKEN_EXPIRED":               "Sua sessão expirou. Faça login novamente.",
	"INVALID_REFRESH_TOKEN":       "Sua sessão expirou. Faça login novamente.",
	"INVALID_ID_TOKEN":            "Sua sessão expirou. Faça login novamente.",
}

// AuthMessage returns the user-facing message for a provider code.
func AuthMessage(code string) string {
	if msg, ok := authMessages[code]; ok {
		return msg
	}
	return GenericAuthMessage
}

// translateAuthError turns a provider rejection into the domain error the
// handler layer knows how to render. Other errors pass through.
func translateAuthError(err error) error {
	var providerErr *domain.ErrAuthProvider
	if !errors.As(err, &providerErr) {
		return err
	}
	msg := AuthMessage(providerErr.Code)
	switch providerErr.Code {
	case "EMAIL_EXISTS":
		return &domain.ErrConflict{Message: msg}
	case "WEAK_PASSWORD":
		return &domain.ErrValidation{Field: "password", Message: msg}
	case "INVALID_EMAIL":
		return &domain.ErrValidation{Field: "email", Message: msg}
	default:
		return &domain.ErrUnauthorized{Message: msg}
	}
}

// AuthService fronts the identity provider. Only the user id and e-mail of
// a verified token reach the rest of the API.
type AuthService struct {
	provider port.IdentityProvider
	revoker  port.SessionRevoker // nil when the provider cannot revoke
	sessions *Sessions
	oauth    *oauth2.Config // nil when Google sign-in is not configured
	states   port.Cache[string]
	logger   *zap.Logger
}

func NewAuthService(
	provider port.IdentityProvider,
	revoker port.SessionRevoker,
	sessions *Sessions,
	oauth *oauth2.Config,
	states port.Cache[string],
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		provider: provider,
		revoker:  revoker,
		sessions: sessions,
		oauth:    oauth,
		states:   states,
		logger:   logger,
	}
}

func validateCredentials(c *domain.Credentials) error {
	c.Email = strings.TrimSpace(c.Email)
	if c.Email == "" || c.Password == "" {
		return &domain.ErrValidation{Field: "email", Message: "Por favor, preencha todos os campos."}
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return &domain.ErrValidation{Field: "email", Message: AuthMessage("INVALID_EMAIL")}
	}
	return nil
}

func (s *AuthService) SignUp(ctx context.Context, c *domain.Credentials) (*domain.AuthSession, error) {
	ctx, span := tracer.Start(ctx, "AuthService.SignUp")
	defer span.End()

	if err := validateCredentials(c); err != nil {
		return nil, err
	}
	session, err := s.provider.SignUp(ctx, c.Email, c.Password)
	if err != nil {
		s.logger.Info("sign-up rejected", zap.Error(err))
		return nil, translateAuthError(err)
	}
	span.SetAttributes(attribute.String("user.id", session.UserID))
	s.logger.Info("user signed up", zap.String("user_id", session.UserID))
	return session, nil
}

func (s *AuthService) SignIn(ctx context.Context, c *domain.Credentials) (*domain.AuthSession, error) {
	ctx, span := tracer.Start(ctx, "AuthService.SignIn")
	defer span.End()

	if err := validateCredentials(c); err != nil {
		return nil, err
	}
	session, err := s.provider.SignIn(ctx, c.Email, c.Password)
	if err != nil {
		s.logger.Info("sign-in rejected", zap.Error(err))
		return nil, translateAuthError(err)
	}
	span.SetAttributes(attribute.String("user.id", session.UserID))
	s.logger.Info("user signed in", zap.String("user_id", session.UserID))
	return session, nil
}

func (s *AuthService) Refresh(ctx context.Context, req *domain.RefreshRequest) (*domain.AuthSession, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Refresh")
	defer span.End()

	if strings.TrimSpace(req.RefreshToken) == "" {
		return nil, &domain.ErrValidation{Field: "refreshToken", Message: "O token de atualização é obrigatório."}
	}
	session, err := s.provider.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return nil, translateAuthError(err)
	}
	return session, nil
}

// SignInWithGoogle exchanges a Google ID token obtained by the client.
func (s *AuthService) SignInWithGoogle(ctx context.Context, req *domain.FederatedSignIn) (*domain.AuthSession, error) {
	ctx, span := tracer.Start(ctx, "AuthService.SignInWithGoogle")
	defer span.End()

	if strings.TrimSpace(req.IDToken) == "" {
		return nil, &domain.ErrValidation{Field: "idToken", Message: "O token do Google é obrigatório."}
	}
	session, err := s.provider.SignInWithIdP(ctx, req.IDToken)
	if err != nil {
		s.logger.Info("federated sign-in rejected", zap.Error(err))
		return nil, translateAuthError(err)
	}
	span.SetAttributes(attribute.String("user.id", session.UserID))
	return session, nil
}

func (s *AuthService) googleEnabled() error {
	if s.oauth == nil {
		return &domain.ErrUnauthorized{Message: AuthMessage("OPERATION_NOT_ALLOWED")}
	}
	return nil
}

// GoogleLoginURL starts the server-side Google code flow. The returned URL
// carries a single-use state value.
func (s *AuthService) GoogleLoginURL() (string, error) {
	if err := s.googleEnabled(); err != nil {
		return "", err
	}
	state := uuid.NewString()
	s.states.Set(state, state)
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// GoogleCallback completes the code flow: it checks the state, exchanges the
// code and signs in with the returned ID token.
func (s *AuthService) GoogleCallback(ctx context.Context, state, code string) (*domain.AuthSession, error) {
	ctx, span := tracer.Start(ctx, "AuthService.GoogleCallback")
	defer span.End()

	if err := s.googleEnabled(); err != nil {
		return nil, err
	}
	if _, ok := s.states.Take(state); !ok || state == "" {
		return nil, &domain.ErrUnauthorized{Message: "Sessão de login expirada. Tente novamente."}
	}

	if code == "" {
		return nil, &domain.ErrValidation{Field: "code", Message: "Código de autorização ausente."}
	}
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("google code exchange failed", zap.Error(err))
		return nil, &domain.ErrExternalService{Service: "google-oauth", Err: err}
	}
	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return nil, &domain.ErrExternalService{Service: "google-oauth", Err: fmt.Errorf("token response without id_token")}
	}
	return s.SignInWithGoogle(ctx, &domain.FederatedSignIn{IDToken: idToken})
}

// Logout closes the user's session and, when supported, revokes refresh tokens.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "AuthService.Logout")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	s.sessions.Close(userID)
	if s.revoker != nil {
		if err := s.revoker.Revoke(ctx, userID); err != nil {
			return fmt.Errorf("revoke refresh tokens: %w", err)
		}
	}
	s.logger.Info("user logged out", zap.String("user_id", userID))
	return nil
}

// Profile returns the caller's premium and ad flags.
func (s *AuthService) Profile(ctx context.Context, identity *domain.Identity) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Profile")
	defer span.End()

	sess, err := s.sessions.Get(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}
	premium := sess.Snapshot().IsPremium
	return &domain.Profile{
		UserID:    identity.UserID,
		Email:     identity.Email,
		IsPremium: premium,
		ShowAds:   !premium,
	}, nil
}
