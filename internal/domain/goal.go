package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Goal is a savings target. CurrentAmount only grows through contributions
// and may exceed TargetAmount.
type Goal struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"targetAmount"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
}

func (g *Goal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return &ErrValidation{Field: "name", Message: "O nome da meta é obrigatório."}
	}
	if !IsPositive(g.TargetAmount) {
		return &ErrValidation{Field: "targetAmount", Message: "O valor da meta deve ser maior que zero."}
	}
	if g.CurrentAmount.IsNegative() {
		return &ErrValidation{Field: "currentAmount", Message: "O valor atual não pode ser negativo."}
	}
	return nil
}

// GoalInput is the payload for creating or editing a goal.
type GoalInput struct {
	Name          string           `json:"name"`
	TargetAmount  decimal.Decimal  `json:"targetAmount"`
	CurrentAmount *decimal.Decimal `json:"currentAmount,omitempty"`
}

// ContributionResult is returned by a goal contribution: the goal after the
// update and the correlated expense transaction.
type ContributionResult struct {
	Goal        Goal        `json:"goal"`
	Transaction Transaction `json:"transaction"`
	Progress    float64     `json:"progress"`
}

// GoalView is a goal with its display progress.
type GoalView struct {
	Goal
	Progress float64 `json:"progress"`
}

// ContributionRequest is the body for POST /v1/goals/{id}/contributions.
type ContributionRequest struct {
	Amount decimal.Decimal `json:"amount"`
}
