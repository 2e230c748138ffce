package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/validation"
)

// CreateBudget stores a monthly cap. The month defaults to the current one in
// the configured time zone. A second budget for the same category and month
// is allowed.
func (l *Ledger) CreateBudget(ctx context.Context, userID string, in *domain.BudgetInput) (*domain.Budget, error) {
	ctx, span := tracer.Start(ctx, "Ledger.CreateBudget")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	category, err := validation.RequiredText("category", in.Category, "Por favor, preencha todos os campos.")
	if err != nil {
		return nil, err
	}
	budget := domain.Budget{
		Category: category,
		Amount:   in.Amount,
		Month:    in.Month,
	}
	if budget.Month == "" {
		budget.Month = domain.MonthOf(l.clock.Now(), l.loc)
	}
	if err := budget.Validate(); err != nil {
		return nil, err
	}

	id, err := l.store.Create(ctx, userID, domain.KindBudgets, budget)
	if err != nil {
		return nil, err
	}
	budget.ID = id
	return &budget, nil
}

// UpdateBudgetAmount changes the cap. Category and month are fixed.
func (l *Ledger) UpdateBudgetAmount(ctx context.Context, userID, id string, amount decimal.Decimal) (*domain.Budget, error) {
	ctx, span := tracer.Start(ctx, "Ledger.UpdateBudgetAmount")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("record.id", id))

	if !domain.IsPositive(amount) {
		return nil, &domain.ErrValidation{Field: "amount", Message: "O valor do orçamento deve ser maior que zero."}
	}
	snap, err := l.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	budget, ok := snap.Budget(id)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "budget", ID: id}
	}
	budget.Amount = amount
	if err := l.store.Update(ctx, userID, domain.KindBudgets, id, map[string]any{"amount": amount}); err != nil {
		return nil, err
	}
	return &budget, nil
}

func (l *Ledger) DeleteBudget(ctx context.Context, userID, id string) error {
	return l.delete(ctx, userID, domain.KindBudgets, id)
}
