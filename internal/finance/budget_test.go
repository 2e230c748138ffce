package finance_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/finance"
)

func saoPaulo(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skip("tzdata not available")
	}
	return loc
}

func TestBudgetStatus(t *testing.T) {
	budget := domain.Budget{ID: "b", Category: "Moradia", Amount: amount("2000"), Month: "2026-10"}

	t.Run("should report the full amount when nothing matches", func(t *testing.T) {
		// when
		s := finance.BudgetStatus(budget, nil, time.UTC)

		// then
		assert.True(t, s.Spent.IsZero())
		assert.True(t, budget.Amount.Equal(s.Remaining))
		assert.False(t, s.OverBudget)
	})

	t.Run("should only count expenses of the category within the month", func(t *testing.T) {
		txs := []domain.Transaction{
			tx("1", "1500", domain.TransactionExpense, "Moradia", october),
			tx("2", "700", domain.TransactionExpense, "Moradia", time.Date(2026, 10, 31, 23, 59, 0, 0, time.UTC)),
			tx("3", "100", domain.TransactionExpense, "Moradia", time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)),
			tx("4", "100", domain.TransactionExpense, "Moradia", time.Date(2026, 9, 30, 23, 59, 0, 0, time.UTC)),
			tx("5", "100", domain.TransactionIncome, "Moradia", october),
			tx("6", "100", domain.TransactionExpense, "Lazer", october),
		}

		s := finance.BudgetStatus(budget, txs, time.UTC)

		assert.True(t, amount("2200").Equal(s.Spent))
		assert.True(t, amount("-200").Equal(s.Remaining))
		assert.True(t, s.OverBudget)
	})

	t.Run("should compute month bounds in the configured zone", func(t *testing.T) {
		loc := saoPaulo(t)
		// 02:00 UTC on Nov 1st is still October 31st in São Paulo.
		late := tx("1", "50", domain.TransactionExpense, "Moradia", time.Date(2026, 11, 1, 2, 0, 0, 0, time.UTC))

		inSP := finance.BudgetStatus(budget, []domain.Transaction{late}, loc)
		inUTC := finance.BudgetStatus(budget, []domain.Transaction{late}, time.UTC)

		assert.True(t, amount("50").Equal(inSP.Spent))
		assert.True(t, inUTC.Spent.IsZero())
	})
}

func TestBudgetViews(t *testing.T) {
	budgets := []domain.Budget{
		{ID: "a", Category: "Moradia", Amount: amount("2000"), Month: "2026-10"},
		{ID: "b", Category: "Moradia", Amount: amount("2000"), Month: "2026-09"},
	}

	views := finance.BudgetViews(budgets, scenario(), "2026-10", time.UTC)

	require.Len(t, views, 1)
	assert.Equal(t, "a", views[0].ID)
	assert.InDelta(t, 75.0, views[0].UsedPct, 0.0001)
}

func TestAvailableBudgetCategories(t *testing.T) {
	budgets := []domain.Budget{{ID: "a", Category: "Moradia", Amount: amount("1"), Month: "2026-10"}}
	txs := append(scenario(), tx("9", "10", domain.TransactionExpense, "Lazer", october))

	got := finance.AvailableBudgetCategories(txs, budgets, "2026-10")

	assert.Equal(t, []string{"Alimentação", "Lazer"}, got)
}
