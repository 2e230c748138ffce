// Package firebase talks to the hosted Firebase services over REST: the
// Realtime Database (records and live snapshots), the Identity Toolkit
// (sign-up and sign-in) and Google's token signing certificates.
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/boddenberg/finanzen-bfa-go/internal/infra/resilience"
)

var tracer = otel.Tracer("firebase")

// databaseScopes are required by service-account tokens for Realtime Database REST.
var databaseScopes = []string{
	"https://www.googleapis.com/auth/firebase.database",
	"https://www.googleapis.com/auth/userinfo.email",
}

// NewAuthorizedHTTPClient returns an HTTP client that signs every request with
// an OAuth2 access token minted from a service-account key file. The base
// client's transport and timeout are kept.
func NewAuthorizedHTTPClient(ctx context.Context, base *http.Client, credentialsFile string) (*http.Client, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read firebase credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, databaseScopes...)
	if err != nil {
		return nil, fmt.Errorf("parse firebase credentials: %w", err)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	authed := oauth2.NewClient(ctx, creds.TokenSource)
	authed.Timeout = base.Timeout
	return authed, nil
}

// Client wraps HTTP calls to the Realtime Database REST API.
type Client struct {
	httpClient *http.Client
	// streamClient has no overall timeout; event streams stay open for hours.
	streamClient *http.Client
	baseURL      string
	secret       string
	cb           *gobreaker.CircuitBreaker
	cfg          resilience.Config
	logger       *zap.Logger
}

// NewClient creates a Realtime Database client. secret is the legacy database
// secret; leave it empty when httpClient already carries OAuth2 credentials.
func NewClient(httpClient *http.Client, databaseURL, secret string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient:   httpClient,
		streamClient: &http.Client{Transport: httpClient.Transport},
		baseURL:      strings.TrimRight(databaseURL, "/"),
		secret:       secret,
		cb:           cb,
		cfg:          cfg,
		logger:       logger,
	}
}

// url builds <base>/<segments...>.json, escaping each segment.
func (c *Client) url(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u := fmt.Sprintf("%s/%s.json", c.baseURL, strings.Join(escaped, "/"))
	if c.secret != "" {
		u += "?auth=" + url.QueryEscape(c.secret)
	}
	return u
}

// statusError is a non-2xx answer from the database.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("firebase returned status %d: %s", e.Status, e.Body)
}

// do executes one authenticated request. 4xx answers (other than 429) are
// marked permanent so they are neither retried nor counted by the breaker.
func (c *Client) do(ctx context.Context, method string, body any, segments ...string) ([]byte, error) {
	path := strings.Join(segments, "/")

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, resilience.Permanent(fmt.Errorf("encode body: %w", err))
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(segments...), reader)
	if err != nil {
		c.logger.Error("firebase: failed to create request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, resilience.Permanent(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// Writes do not need the value echoed back.
	if method != http.MethodGet {
		q := req.URL.Query()
		q.Set("print", "silent")
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("firebase: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("firebase: failed to read response body",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("firebase: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)),
		)
		serr := &statusError{Status: resp.StatusCode, Body: string(respBody)}
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, resilience.Permanent(serr)
		}
		return nil, serr
	}

	c.logger.Debug("firebase: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)
	return respBody, nil
}

// call runs do through the breaker and retry policy.
func (c *Client) call(ctx context.Context, method string, body any, segments ...string) ([]byte, error) {
	var out []byte
	err := resilience.Execute(ctx, c.cb, c.cfg, func() error {
		b, err := c.do(ctx, method, body, segments...)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

// Ping reads the shallow root to check connectivity for readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(".info", "connected"), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 500 {
		return &statusError{Status: resp.StatusCode}
	}
	return nil
}
