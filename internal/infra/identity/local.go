// Package identity provides a self-contained identity provider for local
// development and tests. It answers with the same error codes as the hosted
// provider so that callers cannot tell the two apart.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/port"
)

var tracer = otel.Tracer("identity")

const (
	maxFailedAttempts = 5
	lockDuration      = 30 * time.Minute
	minPasswordLength = 6
	issuer            = "finanzen-local"
)

// Provider error codes, shared with the hosted identity provider.
const (
	CodeEmailExists         = "EMAIL_EXISTS"
	CodeInvalidEmail        = "INVALID_EMAIL"
	CodeWeakPassword        = "WEAK_PASSWORD"
	CodeInvalidCredentials  = "INVALID_LOGIN_CREDENTIALS"
	CodeTooManyAttempts     = "TOO_MANY_ATTEMPTS_TRY_LATER"
	CodeOperationNotAllowed = "OPERATION_NOT_ALLOWED"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeTokenExpired        = "TOKEN_EXPIRED"
)

// Config configures the local provider.
type Config struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// BCryptCost defaults to bcrypt.DefaultCost.
	BCryptCost int
}

type account struct {
	id             string
	email          string
	passwordHash   []byte
	failedAttempts int
	lockedUntil    time.Time
}

type refreshToken struct {
	userID    string
	expiresAt time.Time
}

// AccessClaims are the claims of a locally issued access token.
type AccessClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Local keeps accounts in memory, hashes passwords with bcrypt, signs HS256
// access tokens and stores refresh tokens by their SHA-256 hash.
type Local struct {
	mu       sync.Mutex
	accounts map[string]*account // by lower-cased email
	refresh  map[string]refreshToken
	cfg      Config
	now      func() time.Time
	logger   *zap.Logger
}

var (
	_ port.IdentityProvider = (*Local)(nil)
	_ port.TokenVerifier    = (*Local)(nil)
	_ port.SessionRevoker   = (*Local)(nil)
)

func NewLocal(cfg Config, logger *zap.Logger) *Local {
	if cfg.BCryptCost == 0 {
		cfg.BCryptCost = bcrypt.DefaultCost
	}
	return &Local{
		accounts: make(map[string]*account),
		refresh:  make(map[string]refreshToken),
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
}

func providerError(code string) error {
	return &domain.ErrAuthProvider{Code: code}
}

func (l *Local) SignUp(ctx context.Context, email, password string) (*domain.AuthSession, error) {
	_, span := tracer.Start(ctx, "Local.SignUp")
	defer span.End()

	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return nil, providerError(CodeInvalidEmail)
	}
	if len(password) < minPasswordLength {
		return nil, providerError(CodeWeakPassword)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cfg.BCryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := strings.ToLower(email)
	if _, exists := l.accounts[key]; exists {
		return nil, providerError(CodeEmailExists)
	}
	acc := &account{id: uuid.NewString(), email: email, passwordHash: hash}
	l.accounts[key] = acc

	span.SetAttributes(attribute.String("user.id", acc.id))
	l.logger.Info("local identity: account created", zap.String("user_id", acc.id))
	return l.issue(acc.id, acc.email)
}

func (l *Local) SignIn(ctx context.Context, email, password string) (*domain.AuthSession, error) {
	_, span := tracer.Start(ctx, "Local.SignIn")
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, providerError(CodeInvalidCredentials)
	}
	now := l.now()
	if now.Before(acc.lockedUntil) {
		return nil, providerError(CodeTooManyAttempts)
	}

	if err := bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)); err != nil {
		acc.failedAttempts++
		if acc.failedAttempts >= maxFailedAttempts {
			acc.failedAttempts = 0
			acc.lockedUntil = now.Add(lockDuration)
			l.logger.Warn("local identity: account locked after max attempts",
				zap.String("user_id", acc.id),
				zap.Duration("lock_duration", lockDuration),
			)
			return nil, providerError(CodeTooManyAttempts)
		}
		return nil, providerError(CodeInvalidCredentials)
	}

	acc.failedAttempts = 0
	span.SetAttributes(attribute.String("user.id", acc.id))
	return l.issue(acc.id, acc.email)
}

// SignInWithIdP is not available without the hosted provider.
func (l *Local) SignInWithIdP(ctx context.Context, _ string) (*domain.AuthSession, error) {
	return nil, providerError(CodeOperationNotAllowed)
}

// Refresh rotates the refresh token: the presented one is consumed.
func (l *Local) Refresh(ctx context.Context, token string) (*domain.AuthSession, error) {
	_, span := tracer.Start(ctx, "Local.Refresh")
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	hash := hashToken(token)
	stored, ok := l.refresh[hash]
	if !ok {
		return nil, providerError(CodeInvalidRefreshToken)
	}
	delete(l.refresh, hash)
	if l.now().After(stored.expiresAt) {
		return nil, providerError(CodeTokenExpired)
	}

	email := ""
	for _, acc := range l.accounts {
		if acc.id == stored.userID {
			email = acc.email
			break
		}
	}
	return l.issue(stored.userID, email)
}

// Revoke drops every refresh token of the user. Access tokens stay valid
// until they expire.
func (l *Local) Revoke(ctx context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for hash, rt := range l.refresh {
		if rt.userID == userID {
			delete(l.refresh, hash)
		}
	}
	return nil
}

func (l *Local) Verify(ctx context.Context, raw string) (*domain.Identity, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(l.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(l.now),
	)
	if err != nil || claims.Subject == "" {
		return nil, &domain.ErrUnauthorized{Message: "Sessão inválida ou expirada. Faça login novamente."}
	}
	return &domain.Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

// issue must be called with l.mu held.
func (l *Local) issue(userID, email string) (*domain.AuthSession, error) {
	now := l.now()
	claims := AccessClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(l.cfg.AccessTTL)),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(l.cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	raw := hex.EncodeToString(b)
	l.refresh[hashToken(raw)] = refreshToken{userID: userID, expiresAt: now.Add(l.cfg.RefreshTTL)}

	return &domain.AuthSession{
		UserID:       userID,
		Email:        email,
		IDToken:      access,
		RefreshToken: raw,
		ExpiresIn:    int(l.cfg.AccessTTL.Seconds()),
	}, nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
