package service_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/service"
)

func TestViews_Dashboard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	add := func(amount int64, description, category string) {
		_, err := f.ledger.AddTransaction(ctx, "u1", &domain.TransactionInput{
			Amount: decimal.NewFromInt(amount), Description: description, Category: category,
		})
		require.NoError(t, err)
	}
	add(5000, "Salário", "Trabalho")
	add(300, "Mercado", "Alimentação")
	add(120, "Restaurante", "Alimentação")
	add(200, "Cinema e jantar", "Lazer")

	_, err := f.ledger.CreateBudget(ctx, "u1", &domain.BudgetInput{Category: "Alimentação", Amount: decimal.NewFromInt(400)})
	require.NoError(t, err)
	_, err = f.ledger.CreateBudget(ctx, "u1", &domain.BudgetInput{Category: "Lazer", Amount: decimal.NewFromInt(500), Month: "2026-09"})
	require.NoError(t, err)
	_, err = f.ledger.CreateBill(ctx, "u1", &domain.BillInput{Name: "Aluguel", Amount: decimal.NewFromInt(1500), DueDate: mustDate(t, "2026-10-17")})
	require.NoError(t, err)
	_, err = f.ledger.CreateGoal(ctx, "u1", &domain.GoalInput{Name: "Reserva", TargetAmount: decimal.NewFromInt(1000)})
	require.NoError(t, err)

	t.Run("should aggregate the snapshot", func(t *testing.T) {
		d, err := f.views.Dashboard(ctx, "u1")

		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(5000).Equal(d.Summary.Income))
		assert.True(t, decimal.NewFromInt(620).Equal(d.Summary.Expense))
		assert.True(t, decimal.NewFromInt(4380).Equal(d.Summary.Balance))
		require.Len(t, d.ExpenseByCategory, 2)
		assert.Equal(t, "Alimentação", d.ExpenseByCategory[0].Category)
		assert.Equal(t, "2026-10", d.Month)
		require.Len(t, d.Budgets, 1)
		assert.True(t, d.Budgets[0].OverBudget)
		assert.Equal(t, 1, d.PendingBills)
		require.Len(t, d.Reminders, 1)
		assert.Equal(t, 2, d.Reminders[0].DaysUntilDue)
		require.Len(t, d.Goals, 1)
		assert.Zero(t, d.Goals[0].Progress)
		assert.True(t, d.ShowAds)
	})

	t.Run("should surface each reminder once", func(t *testing.T) {
		first, err := f.views.Reminders(ctx, "u1")
		require.NoError(t, err)
		second, err := f.views.Reminders(ctx, "u1")
		require.NoError(t, err)

		assert.Len(t, first, 1)
		assert.Empty(t, second)
	})

	t.Run("should list categories without a budget", func(t *testing.T) {
		categories, err := f.views.BudgetCategories(ctx, "u1", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"Lazer"}, categories)

		_, err = f.views.BudgetStatus(ctx, "u1", "outubro")
		var verr *domain.ErrValidation
		require.ErrorAs(t, err, &verr)
	})

	t.Run("should push a dashboard on every change", func(t *testing.T) {
		var got []*service.Dashboard
		stop, _, err := f.views.Watch(ctx, "u1", func(d *service.Dashboard) { got = append(got, d) })
		require.NoError(t, err)
		defer stop()

		require.NoError(t, f.ledger.SetPremium(ctx, "u1", true))

		require.Len(t, got, 2)
		assert.False(t, got[0].IsPremium)
		assert.True(t, got[1].IsPremium)
		assert.False(t, got[1].ShowAds)
	})
}
