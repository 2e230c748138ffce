package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ShoppingItem is an entry of the shopping list.
type ShoppingItem struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Checked bool   `json:"checked"`
}

func (i *ShoppingItem) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return &ErrValidation{Field: "name", Message: "O nome do item é obrigatório."}
	}
	return nil
}

// ShoppingAnalysisItem is the model input for one list item.
type ShoppingAnalysisItem struct {
	Name    string `json:"name"`
	Checked bool   `json:"checked"`
}

// ShoppingAnalysis is the model's estimate for a shopping list.
type ShoppingAnalysis struct {
	EstimatedCost decimal.Decimal `json:"estimatedCost"`
	Suggestions   []string        `json:"suggestions"`
}

// ShoppingItemInput is the body for POST /v1/shopping-items.
type ShoppingItemInput struct {
	Name string `json:"name"`
}
