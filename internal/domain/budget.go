package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Budget is a monthly spending cap for one category.
type Budget struct {
	ID       string          `json:"id"`
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	Month    string          `json:"month"`
}

func (b *Budget) Validate() error {
	if strings.TrimSpace(b.Category) == "" {
		return &ErrValidation{Field: "category", Message: "Por favor, preencha todos os campos."}
	}
	if !IsPositive(b.Amount) {
		return &ErrValidation{Field: "amount", Message: "O valor do orçamento deve ser maior que zero."}
	}
	if _, err := ParseMonth(b.Month); err != nil {
		return err
	}
	return nil
}

// ParseMonth parses a YYYY-MM budget period into its first day (UTC).
func ParseMonth(month string) (time.Time, error) {
	t, err := time.Parse(MonthLayout, month)
	if err != nil {
		return time.Time{}, &ErrValidation{Field: "month", Message: "O mês deve estar no formato AAAA-MM."}
	}
	return t, nil
}

// MonthOf formats t as a budget period in loc.
func MonthOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(MonthLayout)
}

// BudgetInput is the payload for creating a budget. Month defaults to the current one.
type BudgetInput struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	Month    string          `json:"month,omitempty"`
}

// BudgetState is the derived spending of a budget.
type BudgetState struct {
	Spent      decimal.Decimal `json:"spent"`
	Remaining  decimal.Decimal `json:"remaining"`
	OverBudget bool            `json:"overBudget"`
}

// BudgetView is a budget with its derived state and usage percentage.
type BudgetView struct {
	Budget
	BudgetState
	UsedPct float64 `json:"usedPct"`
}

// BudgetAmountUpdate is the body for PUT /v1/budgets/{id}. The category and
// month of a budget are fixed once created.
type BudgetAmountUpdate struct {
	Amount decimal.Decimal `json:"amount"`
}
