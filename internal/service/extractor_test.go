package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/observability"
	"github.com/boddenberg/finanzen-bfa-go/internal/service"
)

func TestExtractor_Extract(t *testing.T) {
	ctx := context.Background()

	newExtractor := func(text string, err error) (*service.Extractor, *mockModel, *observability.Metrics) {
		model := &mockModel{text: text, err: err}
		metrics := observability.NewMetrics()
		return service.NewExtractor(model, metrics, zap.NewNop()), model, metrics
	}

	t.Run("should not call the model for blank text", func(t *testing.T) {
		extractor, model, _ := newExtractor("", nil)

		_, err := extractor.Extract(ctx, "   \n\t ")

		var verr *domain.ErrValidation
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "Por favor, insira uma transação.", verr.Message)
		assert.Zero(t, model.calls())
	})

	t.Run("should parse structured output", func(t *testing.T) {
		extractor, model, metrics := newExtractor(`{"amount": 150, "description": "Conta de luz", "category": "Moradia", "isRecurring": true}`, nil)

		got, err := extractor.Extract(ctx, "paguei 150 de luz")

		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(150).Equal(got.Amount))
		assert.Equal(t, "Conta de luz", got.Description)
		assert.Equal(t, "Moradia", got.Category)
		assert.True(t, got.IsRecurring)

		require.Equal(t, 1, model.calls())
		req := model.requests[0]
		assert.Equal(t, "extract", req.Operation)
		assert.Contains(t, req.Prompt, "paguei 150 de luz")
		require.NotNil(t, req.Schema)
		assert.ElementsMatch(t, []string{"amount", "description", "category", "isRecurring"}, req.Schema.Required)

		snap := metrics.GetModelSnapshot()
		assert.Equal(t, int64(1), snap.TotalRequests)
		assert.Equal(t, int64(10), snap.PromptTokens)
		assert.Equal(t, int64(5), snap.CompletionTokens)
	})

	t.Run("should force negative amounts positive", func(t *testing.T) {
		extractor, _, _ := newExtractor(`{"amount": -20.5, "description": "Uber", "category": "Transporte", "isRecurring": false}`, nil)

		got, err := extractor.Extract(ctx, "uber 20,50")

		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("20.5").Equal(got.Amount))
	})

	t.Run("should reject unusable output", func(t *testing.T) {
		cases := map[string]string{
			"not json":       "Desculpe, não entendi.",
			"zero amount":    `{"amount": 0, "description": "x", "category": "y", "isRecurring": false}`,
			"no amount":      `{"description": "x", "category": "y", "isRecurring": false}`,
			"blank category": `{"amount": 3, "description": "x", "category": "  ", "isRecurring": false}`,
			"no description": `{"amount": 3, "category": "y", "isRecurring": false}`,
			"no isRecurring": `{"amount": 3, "description": "x", "category": "y"}`,
		}
		for name, raw := range cases {
			t.Run(name, func(t *testing.T) {
				extractor, model, _ := newExtractor(raw, nil)

				_, err := extractor.Extract(ctx, "alguma coisa")

				var xerr *domain.ErrExtraction
				require.ErrorAs(t, err, &xerr)
				assert.Equal(t, raw, xerr.Raw)
				assert.Equal(t, 1, model.calls())
			})
		}
	})

	t.Run("should surface transport failures unchanged", func(t *testing.T) {
		cause := &domain.ErrExternalService{Service: "gemini", Err: errors.New("503")}
		extractor, model, _ := newExtractor("", cause)

		_, err := extractor.Extract(ctx, "mercado 30")

		var ext *domain.ErrExternalService
		require.ErrorAs(t, err, &ext)
		assert.Equal(t, 1, model.calls())
	})
}
