package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/port"
	"github.com/boddenberg/finanzen-bfa-go/internal/validation"
)

// EmptyGreetingMessage is returned when the API answers without a greeting.
const EmptyGreetingMessage = "A API respondeu, mas sem uma saudação."

// GreetingService asks the external greeting API for a personalised welcome.
type GreetingService struct {
	caller port.GreetingCaller
	logger *zap.Logger
}

func NewGreetingService(caller port.GreetingCaller, logger *zap.Logger) *GreetingService {
	return &GreetingService{caller: caller, logger: logger}
}

// Greet falls back to a simulated greeting when the API cannot be reached.
func (s *GreetingService) Greet(ctx context.Context, req *domain.GreetingRequest) (*domain.GreetingResponse, error) {
	ctx, span := tracer.Start(ctx, "GreetingService.Greet")
	defer span.End()

	name := validation.SanitizeText(req.Name)
	if strings.TrimSpace(name) == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "O nome não pode estar vazio."}
	}

	message, err := s.caller.Greet(ctx, name)
	if err != nil {
		s.logger.Warn("greeting api unavailable, using simulated greeting", zap.Error(err))
		return &domain.GreetingResponse{
			Message:   fmt.Sprintf("(Simulação) Olá, %s! Bem-vindo(a) ao FinanZen.", name),
			Simulated: true,
		}, nil
	}
	if strings.TrimSpace(message) == "" {
		message = EmptyGreetingMessage
	}
	return &domain.GreetingResponse{Message: message}, nil
}
