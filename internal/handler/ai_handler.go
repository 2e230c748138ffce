package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/service"
)

func extractHandler(extractor *service.Extractor, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/ai/extract")
		defer span.End()

		var req domain.ExtractRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		result, err := extractor.Extract(ctx, req.Text)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// insightsHandler accepts an empty body, which means the session's transactions.
func insightsHandler(advisor *service.Advisor, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/ai/insights")
		defer span.End()

		var req domain.InsightsRequest
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}
		result, err := advisor.Insights(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func shoppingAnalysisHandler(advisor *service.Advisor, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/ai/shopping-analysis")
		defer span.End()

		var req domain.ShoppingAnalysisRequest
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}
		result, err := advisor.AnalyzeShopping(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func greetingHandler(greeting *service.GreetingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/greeting")
		defer span.End()

		var req domain.GreetingRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		result, err := greeting.Greet(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
