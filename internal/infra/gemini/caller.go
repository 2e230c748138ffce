// Package gemini calls Google's Gemini models through the genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/finanzen-bfa-go/internal/port"
)

var tracer = otel.Tracer("gemini")

// generator is the subset of *genai.Models used here.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Caller implements port.ModelCaller.
type Caller struct {
	models generator
	model  string
	cb     *gobreaker.CircuitBreaker
	cfg    resilience.Config
	logger *zap.Logger
}

var _ port.ModelCaller = (*Caller)(nil)

// NewClient builds a genai client for the Gemini API.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}

// NewCaller wraps client.Models. cfg.MaxRetries is normally zero: every
// submission is exactly one model request.
func NewCaller(client *genai.Client, model string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Caller {
	return newCaller(client.Models, model, cb, cfg, logger)
}

func newCaller(models generator, model string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Caller {
	return &Caller{models: models, model: model, cb: cb, cfg: cfg, logger: logger}
}

func (c *Caller) Generate(ctx context.Context, req *domain.ModelRequest) (*domain.ModelResponse, error) {
	ctx, span := tracer.Start(ctx, "Gemini.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("model", c.model),
		attribute.String("operation", req.Operation),
	)

	config := &genai.GenerateContentConfig{}
	if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = toGenaiSchema(req.Schema)
	}

	var out *domain.ModelResponse
	err := resilience.Execute(ctx, c.cb, c.cfg, func() error {
		resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), config)
		if err != nil {
			return err
		}
		out = &domain.ModelResponse{Text: resp.Text()}
		if req.Schema != nil {
			out.Text = cleanJSON(out.Text)
		}
		if u := resp.UsageMetadata; u != nil {
			out.PromptTokens = int(u.PromptTokenCount)
			out.CompletionTokens = int(u.CandidatesTokenCount)
		}
		return nil
	})
	if err != nil {
		c.logger.Error("gemini: generate failed",
			zap.String("operation", req.Operation),
			zap.Error(err),
		)
		var openErr *domain.ErrCircuitOpen
		if errors.As(err, &openErr) {
			return nil, err
		}
		return nil, &domain.ErrExternalService{Service: "gemini", Err: err}
	}

	span.SetAttributes(
		attribute.Int("tokens.prompt", out.PromptTokens),
		attribute.Int("tokens.completion", out.CompletionTokens),
	)
	return out, nil
}

var schemaTypes = map[domain.SchemaType]genai.Type{
	domain.SchemaObject:  genai.TypeObject,
	domain.SchemaString:  genai.TypeString,
	domain.SchemaNumber:  genai.TypeNumber,
	domain.SchemaBoolean: genai.TypeBoolean,
	domain.SchemaArray:   genai.TypeArray,
}

func toGenaiSchema(s *domain.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        schemaTypes[s.Type],
		Description: s.Description,
		Required:    s.Required,
		Items:       toGenaiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	return out
}

// cleanJSON strips Markdown fences the model sometimes adds around JSON
// despite the response MIME type.
func cleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
