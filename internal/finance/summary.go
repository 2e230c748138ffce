// Package finance holds the derived-aggregation rules over a user's records.
// Every function is pure: inputs are never mutated and no I/O is performed.
package finance

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
)

// Summary holds the income/expense totals of a transaction list.
type Summary struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Balance decimal.Decimal `json:"balance"`
}

// Summarize totals income and expense. Balance is always Income - Expense.
func Summarize(txs []domain.Transaction) Summary {
	income, expense := decimal.Zero, decimal.Zero
	for _, t := range txs {
		switch t.Type {
		case domain.TransactionIncome:
			income = income.Add(t.Amount)
		case domain.TransactionExpense:
			expense = expense.Add(t.Amount)
		}
	}
	return Summary{Income: income, Expense: expense, Balance: income.Sub(expense)}
}

// CategoryTotal is one slice of the expense breakdown.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// ExpenseByCategory groups expenses by category, largest first. Ties keep the
// order in which each category was first encountered; zero totals are omitted.
func ExpenseByCategory(txs []domain.Transaction) []CategoryTotal {
	index := make(map[string]int)
	totals := make([]CategoryTotal, 0)
	for _, t := range txs {
		if t.Type != domain.TransactionExpense {
			continue
		}
		i, ok := index[t.Category]
		if !ok {
			i = len(totals)
			index[t.Category] = i
			totals = append(totals, CategoryTotal{Category: t.Category, Total: decimal.Zero})
		}
		totals[i].Total = totals[i].Total.Add(t.Amount)
	}

	out := totals[:0]
	for _, ct := range totals {
		if !ct.Total.IsZero() {
			out = append(out, ct)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total.GreaterThan(out[j].Total)
	})
	return out
}

// GoalProgress is current/target as a percentage clamped to [0, 100].
// A non-positive target yields 0.
func GoalProgress(goal domain.Goal) float64 {
	if !goal.TargetAmount.IsPositive() {
		return 0
	}
	pct, _ := goal.CurrentAmount.Div(goal.TargetAmount).Mul(decimal.NewFromInt(100)).Float64()
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

// FilterTransactions applies a category/type filter. The result is newest first.
func FilterTransactions(txs []domain.Transaction, filter domain.TransactionFilter) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(txs))
	for _, t := range txs {
		if filter.Category != "" && t.Category != filter.Category {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out
}
