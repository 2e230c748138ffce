package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/finanzen-bfa-go/internal/port"
)

// Identity implements port.IdentityProvider with the Identity Toolkit and
// Secure Token REST APIs.
type Identity struct {
	httpClient     *http.Client
	identityURL    string
	secureTokenURL string
	apiKey         string
	// requestURI is echoed to signInWithIdp; any authorised origin works.
	requestURI string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	logger     *zap.Logger
}

var _ port.IdentityProvider = (*Identity)(nil)

// NewIdentity creates an identity client. identityURL and secureTokenURL are
// the API roots (https://identitytoolkit.googleapis.com/v1 and
// https://securetoken.googleapis.com/v1).
func NewIdentity(httpClient *http.Client, identityURL, secureTokenURL, apiKey, requestURI string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Identity {
	if requestURI == "" {
		requestURI = "http://localhost"
	}
	return &Identity{
		httpClient:     httpClient,
		identityURL:    strings.TrimRight(identityURL, "/"),
		secureTokenURL: strings.TrimRight(secureTokenURL, "/"),
		apiKey:         apiKey,
		requestURI:     requestURI,
		cb:             cb,
		cfg:            cfg,
		logger:         logger,
	}
}

type signInResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

func (r *signInResponse) session() *domain.AuthSession {
	expires, _ := strconv.Atoi(r.ExpiresIn)
	return &domain.AuthSession{
		UserID:       r.LocalID,
		Email:        r.Email,
		IDToken:      r.IDToken,
		RefreshToken: r.RefreshToken,
		ExpiresIn:    expires,
	}
}

type refreshResponse struct {
	UserID       string `json:"user_id"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// providerCode extracts the error code from a message such as
// "WEAK_PASSWORD : Password should be at least 6 characters".
func providerCode(message string) string {
	code, _, _ := strings.Cut(message, " ")
	return strings.TrimSpace(code)
}

func (i *Identity) SignUp(ctx context.Context, email, password string) (*domain.AuthSession, error) {
	ctx, span := tracer.Start(ctx, "Identity.SignUp")
	defer span.End()

	var resp signInResponse
	err := i.post(ctx, i.identityURL+"/accounts:signUp", "application/json", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", resp.LocalID))
	return resp.session(), nil
}

func (i *Identity) SignIn(ctx context.Context, email, password string) (*domain.AuthSession, error) {
	ctx, span := tracer.Start(ctx, "Identity.SignIn")
	defer span.End()

	var resp signInResponse
	err := i.post(ctx, i.identityURL+"/accounts:signInWithPassword", "application/json", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", resp.LocalID))
	return resp.session(), nil
}

func (i *Identity) SignInWithIdP(ctx context.Context, googleIDToken string) (*domain.AuthSession, error) {
	ctx, span := tracer.Start(ctx, "Identity.SignInWithIdP")
	defer span.End()

	postBody := url.Values{"id_token": {googleIDToken}, "providerId": {"google.com"}}.Encode()
	var resp signInResponse
	err := i.post(ctx, i.identityURL+"/accounts:signInWithIdp", "application/json", map[string]any{
		"postBody":          postBody,
		"requestUri":        i.requestURI,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", resp.LocalID))
	return resp.session(), nil
}

func (i *Identity) Refresh(ctx context.Context, refreshToken string) (*domain.AuthSession, error) {
	ctx, span := tracer.Start(ctx, "Identity.Refresh")
	defer span.End()

	form := url.Values{"grant_type": {"refresh_token"}, "refresh_token": {refreshToken}}
	var resp refreshResponse
	if err := i.post(ctx, i.secureTokenURL+"/token", "application/x-www-form-urlencoded", form, &resp); err != nil {
		return nil, err
	}
	expires, _ := strconv.Atoi(resp.ExpiresIn)
	return &domain.AuthSession{
		UserID:       resp.UserID,
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    expires,
	}, nil
}

// post sends body (JSON or url.Values) to endpoint?key=<apiKey> and decodes
// the answer into out. Provider rejections come back as *domain.ErrAuthProvider.
func (i *Identity) post(ctx context.Context, endpoint, contentType string, body any, out any) error {
	err := resilience.Execute(ctx, i.cb, i.cfg, func() error {
		var payload []byte
		switch b := body.(type) {
		case url.Values:
			payload = []byte(b.Encode())
		default:
			encoded, err := json.Marshal(b)
			if err != nil {
				return resilience.Permanent(err)
			}
			payload = encoded
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?key="+url.QueryEscape(i.apiKey), bytes.NewReader(payload))
		if err != nil {
			return resilience.Permanent(err)
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := i.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			var er errorResponse
			code := "UNKNOWN"
			if json.Unmarshal(respBody, &er) == nil && er.Error.Message != "" {
				code = providerCode(er.Error.Message)
			}
			i.logger.Info("identity: provider rejected request",
				zap.String("endpoint", endpoint),
				zap.Int("status", resp.StatusCode),
				zap.String("code", code),
			)
			return resilience.Permanent(&domain.ErrAuthProvider{Code: code})
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("identity toolkit returned status %d", resp.StatusCode)
		}

		if err := json.Unmarshal(respBody, out); err != nil {
			return resilience.Permanent(fmt.Errorf("decode identity response: %w", err))
		}
		return nil
	})
	if err == nil {
		return nil
	}
	var providerErr *domain.ErrAuthProvider
	var openErr *domain.ErrCircuitOpen
	if errors.As(err, &providerErr) || errors.As(err, &openErr) {
		return err
	}
	return &domain.ErrExternalService{Service: "identity", Err: err}
}
