package firebase

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/cache"
	"github.com/boddenberg/finanzen-bfa-go/internal/port"
)

const certsCacheKey = "securetoken"

// IDTokenClaims are the claims of a Firebase ID token.
type IDTokenClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates Firebase ID tokens (RS256) against Google's
// published signing certificates, which are cached for their max-age.
type TokenVerifier struct {
	httpClient *http.Client
	certsURL   string
	projectID  string
	certs      *cache.InMemory[map[string]*rsa.PublicKey]
	group      singleflight.Group
	logger     *zap.Logger
}

var _ port.TokenVerifier = (*TokenVerifier)(nil)

func NewTokenVerifier(httpClient *http.Client, certsURL, projectID string, certs *cache.InMemory[map[string]*rsa.PublicKey], logger *zap.Logger) *TokenVerifier {
	return &TokenVerifier{
		httpClient: httpClient,
		certsURL:   certsURL,
		projectID:  projectID,
		certs:      certs,
		logger:     logger,
	}
}

// Verify checks signature, audience, issuer and expiry and returns the uid.
func (v *TokenVerifier) Verify(ctx context.Context, raw string) (*domain.Identity, error) {
	ctx, span := tracer.Start(ctx, "TokenVerifier.Verify")
	defer span.End()

	keys, err := v.keys(ctx)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "securetoken-certs", Err: err}
	}

	claims := &IDTokenClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown signing key %q", kid)
		}
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.projectID),
		jwt.WithIssuer("https://securetoken.google.com/"+v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil || claims.Subject == "" {
		v.logger.Debug("token verification failed", zap.Error(err))
		return nil, &domain.ErrUnauthorized{Message: "Sessão inválida ou expirada. Faça login novamente."}
	}
	return &domain.Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

func (v *TokenVerifier) keys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	if keys, ok := v.certs.Get(certsCacheKey); ok {
		return keys, nil
	}
	res, err, _ := v.group.Do(certsCacheKey, func() (any, error) {
		keys, ttl, err := v.fetch(ctx)
		if err != nil {
			return nil, err
		}
		v.certs.SetWithTTL(certsCacheKey, keys, ttl)
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(map[string]*rsa.PublicKey), nil
}

// fetch downloads the kid -> PEM certificate map and honours Cache-Control max-age.
func (v *TokenVerifier) fetch(ctx context.Context) (map[string]*rsa.PublicKey, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("certificate endpoint returned status %d", resp.StatusCode)
	}

	var pems map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&pems); err != nil {
		return nil, 0, fmt.Errorf("decode certificates: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(pems))
	for kid, pem := range pems {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			v.logger.Warn("skipping unparsable signing certificate", zap.String("kid", kid), zap.Error(err))
			continue
		}
		keys[kid] = key
	}
	return keys, maxAge(resp.Header.Get("Cache-Control")), nil
}

func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || name != "max-age" {
			continue
		}
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
