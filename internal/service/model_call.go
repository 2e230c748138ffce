package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/observability"
	"github.com/boddenberg/finanzen-bfa-go/internal/port"
)

// callModel sends one request and records duration and token usage. The
// request outcome is counted by the caller once the output has been checked.
func callModel(ctx context.Context, model port.ModelCaller, metrics *observability.Metrics, logger *zap.Logger, req *domain.ModelRequest) (*domain.ModelResponse, error) {
	start := time.Now()
	resp, err := model.Generate(ctx, req)
	metrics.RecordRequestDuration("model_"+req.Operation, time.Since(start))
	if err != nil {
		metrics.IncrModelRequest(req.Operation, "error")
		metrics.IncrExternalError("model")
		logger.Error("model call failed", zap.String("operation", req.Operation), zap.Error(err))
		return nil, err
	}
	metrics.RecordTokens(resp.PromptTokens, resp.CompletionTokens)
	return resp, nil
}

// rejectOutput counts a response that arrived but could not be used.
func rejectOutput(metrics *observability.Metrics, logger *zap.Logger, operation, reason, raw string) error {
	metrics.IncrModelRequest(operation, "error")
	logger.Warn("model output rejected",
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Int("raw_length", len(raw)),
	)
	return &domain.ErrExtraction{Reason: reason, Raw: raw}
}
