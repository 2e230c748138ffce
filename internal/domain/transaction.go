package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the direction of a transaction.
type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

// Valid reports whether t is one of the known directions.
func (t TransactionType) Valid() bool {
	return t == TransactionIncome || t == TransactionExpense
}

// GoalsCategory is the category given to goal-contribution transactions.
const GoalsCategory = "Metas"

// Transaction is a single income or expense entry.
type Transaction struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Date        time.Time       `json:"date"`
	Type        TransactionType `json:"type"`
	// GoalID is only set on transactions created by a goal contribution.
	GoalID string `json:"goalId,omitempty"`
}

// Validate checks the record shape accepted by the store and the API.
func (t *Transaction) Validate() error {
	if !IsPositive(t.Amount) {
		return &ErrValidation{Field: "amount", Message: "O valor deve ser maior que zero."}
	}
	if strings.TrimSpace(t.Description) == "" {
		return &ErrValidation{Field: "description", Message: "A descrição é obrigatória."}
	}
	if strings.TrimSpace(t.Category) == "" {
		return &ErrValidation{Field: "category", Message: "A categoria é obrigatória."}
	}
	if t.Date.IsZero() {
		return &ErrValidation{Field: "date", Message: "A data é obrigatória."}
	}
	if !t.Type.Valid() {
		return &ErrValidation{Field: "type", Message: "O tipo deve ser 'income' ou 'expense'."}
	}
	return nil
}

// TransactionInput is the payload for creating a transaction (no id).
type TransactionInput struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Date        *time.Time      `json:"date,omitempty"`
	Type        TransactionType `json:"type"`
}

// TransactionPatch carries the fields of an explicit edit; nil means unchanged.
type TransactionPatch struct {
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Description *string          `json:"description,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Date        *time.Time       `json:"date,omitempty"`
	Type        *TransactionType `json:"type,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p *TransactionPatch) Empty() bool {
	return p.Amount == nil && p.Description == nil && p.Category == nil && p.Date == nil && p.Type == nil
}

// TransactionFilter narrows a transaction listing.
type TransactionFilter struct {
	Category string
	Type     TransactionType
}
