// Package client holds HTTP clients for external services that are not
// part of the Firebase or Gemini stacks.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/finanzen-bfa-go/internal/port"
)

var tracer = otel.Tracer("client")

// GreetingClient calls the external greeting API.
type GreetingClient struct {
	httpClient *http.Client
	url        string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

var _ port.GreetingCaller = (*GreetingClient)(nil)

// NewGreetingClient creates a new GreetingClient posting to url.
func NewGreetingClient(httpClient *http.Client, url string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *GreetingClient {
	return &GreetingClient{
		httpClient: httpClient,
		url:        url,
		cb:         cb,
		cfg:        cfg,
	}
}

type greetingRequest struct {
	Mensagem string `json:"mensagem"`
}

type greetingResponse struct {
	Resposta string `json:"resposta"`
}

// Greet asks the API for a greeting for name. An empty answer is returned as
// an empty string without error.
func (c *GreetingClient) Greet(ctx context.Context, name string) (string, error) {
	ctx, span := tracer.Start(ctx, "GreetingClient.Greet")
	defer span.End()

	var out greetingResponse
	err := resilience.Execute(ctx, c.cb, c.cfg, func() error {
		body, err := json.Marshal(greetingRequest{Mensagem: "Crie uma saudação para " + name})
		if err != nil {
			return resilience.Permanent(err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return resilience.Permanent(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("greeting API returned status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	})
	if err != nil {
		return "", &domain.ErrExternalService{Service: "greeting", Err: err}
	}
	return out.Resposta, nil
}
