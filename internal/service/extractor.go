package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/observability"
	"github.com/boddenberg/finanzen-bfa-go/internal/port"
	"github.com/boddenberg/finanzen-bfa-go/internal/validation"
)

const opExtract = "extract"

var extractSchema = &domain.Schema{
	Type: domain.SchemaObject,
	Properties: map[string]*domain.Schema{
		"amount":      {Type: domain.SchemaNumber, Description: "Valor da transação, positivo."},
		"description": {Type: domain.SchemaString, Description: "Descrição concisa da transação."},
		"category":    {Type: domain.SchemaString, Description: "Categoria da transação."},
		"isRecurring": {Type: domain.SchemaBoolean, Description: "Verdadeiro para contas recorrentes."},
	},
	Required: []string{"amount", "description", "category", "isRecurring"},
}

// Extractor turns a Portuguese free-text description into a structured
// transaction with a single model call. Direction is not extracted.
type Extractor struct {
	model   port.ModelCaller
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewExtractor(model port.ModelCaller, metrics *observability.Metrics, logger *zap.Logger) *Extractor {
	return &Extractor{model: model, metrics: metrics, logger: logger}
}

type extractOutput struct {
	Amount      *decimal.Decimal `json:"amount"`
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	IsRecurring *bool            `json:"isRecurring"`
}

// Extract fails with *domain.ErrValidation on blank text (no model call),
// *domain.ErrExtraction on unusable output and the caller's error on
// transport failure. Nothing is defaulted.
func (e *Extractor) Extract(ctx context.Context, text string) (*domain.ExtractedTransaction, error) {
	ctx, span := tracer.Start(ctx, "Extractor.Extract")
	defer span.End()

	clean, err := validation.RequiredText("text", text, "Por favor, insira uma transação.")
	if err != nil {
		return nil, err
	}

	prompt, err := render(extractPrompt, struct{ Text string }{clean})
	if err != nil {
		return nil, fmt.Errorf("render extract prompt: %w", err)
	}

	resp, err := callModel(ctx, e.model, e.metrics, e.logger, &domain.ModelRequest{
		Operation: opExtract,
		Prompt:    prompt,
		Schema:    extractSchema,
	})
	if err != nil {
		return nil, err
	}

	var out extractOutput
	if err := json.Unmarshal([]byte(resp.Text), &out); err != nil {
		return nil, rejectOutput(e.metrics, e.logger, opExtract, "a resposta não é um JSON válido", resp.Text)
	}
	switch {
	case out.Amount == nil || out.Amount.IsZero():
		return nil, rejectOutput(e.metrics, e.logger, opExtract, "valor ausente", resp.Text)
	case out.Description == nil || validation.SanitizeText(*out.Description) == "":
		return nil, rejectOutput(e.metrics, e.logger, opExtract, "descrição ausente", resp.Text)
	case out.Category == nil || validation.SanitizeText(*out.Category) == "":
		return nil, rejectOutput(e.metrics, e.logger, opExtract, "categoria ausente", resp.Text)
	case out.IsRecurring == nil:
		return nil, rejectOutput(e.metrics, e.logger, opExtract, "recorrência ausente", resp.Text)
	}

	e.metrics.IncrModelRequest(opExtract, "success")
	return &domain.ExtractedTransaction{
		Amount:      out.Amount.Abs(),
		Description: validation.SanitizeText(*out.Description),
		Category:    validation.SanitizeText(*out.Category),
		IsRecurring: *out.IsRecurring,
	}, nil
}
