package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/service"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON reads the request body into dst. It writes the 400 itself and
// reports whether the handler may continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if err == nil {
		return true
	}
	var verr *domain.ErrValidation
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Message, Field: verr.Field})
		return false
	}
	writeError(w, http.StatusBadRequest, "Corpo da requisição inválido.")
	return false
}

// handleServiceError maps domain errors to HTTP responses. Validation and
// auth messages are user-facing Portuguese text and are passed through.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var circuitOpen *domain.ErrCircuitOpen
	var timeout *domain.ErrTimeout
	var validation *domain.ErrValidation
	var extraction *domain.ErrExtraction
	var forbidden *domain.ErrForbidden
	var unauthorized *domain.ErrUnauthorized
	var conflict *domain.ErrConflict
	var provider *domain.ErrAuthProvider
	var external *domain.ErrExternalService
	var persistence *domain.ErrPersistence

	switch {
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("field", validation.Field), zap.String("error", validation.Message))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validation.Message, Field: validation.Field})
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, "Registro não encontrado.")
	case errors.As(err, &extraction):
		logger.Warn("model output unusable", zap.String("reason", extraction.Reason))
		writeError(w, http.StatusUnprocessableEntity, "Não foi possível entender a resposta da IA. Tente reformular.")
	case errors.As(err, &forbidden):
		logger.Warn("forbidden access", zap.String("error", err.Error()))
		writeError(w, http.StatusForbidden, "Recurso disponível apenas para assinantes Premium.")
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &provider):
		logger.Warn("identity provider rejection", zap.String("code", provider.Code))
		writeError(w, http.StatusUnauthorized, service.AuthMessage(provider.Code))
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Serviço temporariamente indisponível. Tente novamente em instantes.")
	case errors.As(err, &timeout):
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, "A operação demorou demais. Tente novamente.")
	case errors.As(err, &external):
		logger.Error("external service error", zap.String("service", external.Service), zap.Error(err))
		writeError(w, http.StatusBadGateway, "Falha ao contatar um serviço externo. Tente novamente.")
	case errors.As(err, &persistence):
		logger.Error("persistence error", zap.String("op", persistence.Op), zap.String("kind", string(persistence.Kind)), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Não foi possível salvar seus dados. Tente novamente.")
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Ocorreu um erro inesperado. Tente novamente.")
	}
}
