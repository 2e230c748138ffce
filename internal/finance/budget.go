package finance

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
)

// MonthBounds returns [start, end) of a YYYY-MM period in loc.
func MonthBounds(month string, loc *time.Location) (time.Time, time.Time, error) {
	first, err := domain.ParseMonth(month)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(first.Year(), first.Month(), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0), nil
}

// BudgetStatus derives how much of a budget has been spent. Spent is the sum
// of expenses in the budget's category dated within its month.
func BudgetStatus(budget domain.Budget, txs []domain.Transaction, loc *time.Location) domain.BudgetState {
	spent := decimal.Zero
	start, end, err := MonthBounds(budget.Month, loc)
	if err == nil {
		for _, t := range txs {
			if t.Type != domain.TransactionExpense || t.Category != budget.Category {
				continue
			}
			if t.Date.Before(start) || !t.Date.Before(end) {
				continue
			}
			spent = spent.Add(t.Amount)
		}
	}
	remaining := budget.Amount.Sub(spent)
	return domain.BudgetState{
		Spent:      spent,
		Remaining:  remaining,
		OverBudget: remaining.IsNegative(),
	}
}

// BudgetUsage is spent/amount as a percentage, unclamped, 0 for a non-positive amount.
func BudgetUsage(budget domain.Budget, state domain.BudgetState) float64 {
	if !budget.Amount.IsPositive() {
		return 0
	}
	pct, _ := state.Spent.Div(budget.Amount).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// BudgetViews returns the budgets of month with their derived state.
func BudgetViews(budgets []domain.Budget, txs []domain.Transaction, month string, loc *time.Location) []domain.BudgetView {
	out := make([]domain.BudgetView, 0)
	for _, b := range budgets {
		if b.Month != month {
			continue
		}
		state := BudgetStatus(b, txs, loc)
		out = append(out, domain.BudgetView{Budget: b, BudgetState: state, UsedPct: BudgetUsage(b, state)})
	}
	return out
}

// AvailableBudgetCategories lists the expense categories seen in txs that have
// no budget for month yet, sorted by name.
func AvailableBudgetCategories(txs []domain.Transaction, budgets []domain.Budget, month string) []string {
	taken := make(map[string]bool)
	for _, b := range budgets {
		if b.Month == month {
			taken[b.Category] = true
		}
	}
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, t := range txs {
		if t.Type != domain.TransactionExpense || taken[t.Category] || seen[t.Category] {
			continue
		}
		seen[t.Category] = true
		out = append(out, t.Category)
	}
	sort.Strings(out)
	return out
}
