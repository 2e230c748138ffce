package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/observability"
	"github.com/boddenberg/finanzen-bfa-go/internal/port"
	"github.com/boddenberg/finanzen-bfa-go/internal/validation"
)

const (
	opInsights = "insights"
	opShopping = "shopping"

	// NotEnoughDataMessage is returned for an empty transaction list.
	NotEnoughDataMessage = "Não há transações suficientes para gerar insights. Adicione mais algumas e tente novamente!"
)

var shoppingSchema = &domain.Schema{
	Type: domain.SchemaObject,
	Properties: map[string]*domain.Schema{
		"estimatedCost": {Type: domain.SchemaNumber, Description: "Custo total estimado em reais."},
		"suggestions": {
			Type:        domain.SchemaArray,
			Description: "Itens relacionados sugeridos.",
			Items:       &domain.Schema{Type: domain.SchemaString},
		},
	},
	Required: []string{"estimatedCost", "suggestions"},
}

// Advisor produces the model-backed financial insights and shopping-list analysis.
type Advisor struct {
	model    port.ModelCaller
	sessions *Sessions
	metrics  *observability.Metrics
	logger   *zap.Logger
}

func NewAdvisor(model port.ModelCaller, sessions *Sessions, metrics *observability.Metrics, logger *zap.Logger) *Advisor {
	return &Advisor{model: model, sessions: sessions, metrics: metrics, logger: logger}
}

// Insights summarises transactions in markdown. A nil list means the
// session's transactions; an empty one yields NotEnoughDataMessage without
// calling the model.
func (a *Advisor) Insights(ctx context.Context, userID string, req *domain.InsightsRequest) (*domain.InsightsResult, error) {
	ctx, span := tracer.Start(ctx, "Advisor.Insights")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	txs := req.Transactions
	if txs == nil {
		sess, err := a.sessions.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, t := range sess.Snapshot().Transactions {
			txs = append(txs, domain.InsightTransaction{
				Amount:      t.Amount,
				Description: t.Description,
				Category:    t.Category,
				Date:        t.Date,
				Type:        t.Type,
			})
		}
	}
	if len(txs) == 0 {
		return &domain.InsightsResult{Summary: NotEnoughDataMessage}, nil
	}
	for i := range txs {
		txs[i].Description = validation.SanitizeText(txs[i].Description)
		txs[i].Category = validation.SanitizeText(txs[i].Category)
	}
	span.SetAttributes(attribute.Int("transactions", len(txs)))

	prompt, err := render(insightsPrompt, struct{ Transactions []domain.InsightTransaction }{txs})
	if err != nil {
		return nil, fmt.Errorf("render insights prompt: %w", err)
	}
	resp, err := callModel(ctx, a.model, a.metrics, a.logger, &domain.ModelRequest{Operation: opInsights, Prompt: prompt})
	if err != nil {
		return nil, err
	}

	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		return nil, rejectOutput(a.metrics, a.logger, opInsights, "resumo vazio", resp.Text)
	}
	a.metrics.IncrModelRequest(opInsights, "success")
	return &domain.InsightsResult{Summary: summary}, nil
}

type shoppingOutput struct {
	EstimatedCost *decimal.Decimal `json:"estimatedCost"`
	Suggestions   []string         `json:"suggestions"`
}

// AnalyzeShopping estimates the cost of a shopping list and suggests related
// items. Premium only. A nil list means the session's unchecked items; an
// empty list is rejected before any model call.
func (a *Advisor) AnalyzeShopping(ctx context.Context, userID string, req *domain.ShoppingAnalysisRequest) (*domain.ShoppingAnalysis, error) {
	ctx, span := tracer.Start(ctx, "Advisor.AnalyzeShopping")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	sess, err := a.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap := sess.Snapshot()
	if !snap.IsPremium {
		return nil, &domain.ErrForbidden{Action: "shopping analysis"}
	}

	items := req.Items
	if items == nil {
		for _, it := range snap.ShoppingItems {
			if !it.Checked {
				items = append(items, domain.ShoppingAnalysisItem{Name: it.Name})
			}
		}
	}
	names := make([]domain.ShoppingAnalysisItem, 0, len(items))
	for _, it := range items {
		if name := validation.SanitizeText(it.Name); name != "" {
			names = append(names, domain.ShoppingAnalysisItem{Name: name, Checked: it.Checked})
		}
	}
	if len(names) == 0 {
		return nil, &domain.ErrValidation{Field: "items", Message: "A lista de compras está vazia."}
	}

	prompt, err := render(shoppingPrompt, struct{ Items []domain.ShoppingAnalysisItem }{names})
	if err != nil {
		return nil, fmt.Errorf("render shopping prompt: %w", err)
	}
	resp, err := callModel(ctx, a.model, a.metrics, a.logger, &domain.ModelRequest{
		Operation: opShopping,
		Prompt:    prompt,
		Schema:    shoppingSchema,
	})
	if err != nil {
		return nil, err
	}

	var out shoppingOutput
	if err := json.Unmarshal([]byte(resp.Text), &out); err != nil {
		return nil, rejectOutput(a.metrics, a.logger, opShopping, "a resposta não é um JSON válido", resp.Text)
	}
	if out.EstimatedCost == nil || out.EstimatedCost.IsNegative() {
		return nil, rejectOutput(a.metrics, a.logger, opShopping, "custo estimado inválido", resp.Text)
	}
	suggestions := make([]string, 0, len(out.Suggestions))
	for _, s := range out.Suggestions {
		if s = validation.SanitizeText(s); s != "" {
			suggestions = append(suggestions, s)
		}
	}

	a.metrics.IncrModelRequest(opShopping, "success")
	return &domain.ShoppingAnalysis{EstimatedCost: *out.EstimatedCost, Suggestions: suggestions}, nil
}
