package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/service"
)

// ============================================================
// Transações
// ============================================================

func listTransactionsHandler(views *service.Views, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/transactions")
		defer span.End()

		q := r.URL.Query()
		filter := domain.TransactionFilter{
			Category: q.Get("category"),
			Type:     domain.TransactionType(q.Get("type")),
		}
		if filter.Type != "" && !filter.Type.Valid() {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "O tipo deve ser 'income' ou 'expense'.", Field: "type"})
			return
		}
		txs, err := views.Transactions(ctx, UserIDFromContext(ctx), filter)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, txs)
	}
}

func createTransactionHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions")
		defer span.End()

		var req domain.TransactionInput
		if !decodeJSON(w, r, &req) {
			return
		}
		tx, err := ledger.AddTransaction(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	}
}

func createTransactionFromTextHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions/text")
		defer span.End()

		var req domain.ExtractRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		result, err := ledger.AddTransactionFromText(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	}
}

func updateTransactionHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" /v1/transactions/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("record.id", id))

		var req domain.TransactionPatch
		if !decodeJSON(w, r, &req) {
			return
		}
		tx, err := ledger.UpdateTransaction(ctx, UserIDFromContext(ctx), id, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, tx)
	}
}

func deleteTransactionHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return deleteHandler("DELETE /v1/transactions/{id}", ledger.DeleteTransaction, logger)
}

// deleteHandler serves the idempotent deletes of every collection.
func deleteHandler(name string, del func(ctx context.Context, userID, id string) error, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), name)
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("record.id", id))

		if err := del(ctx, UserIDFromContext(ctx), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ============================================================
// Metas
// ============================================================

func listGoalsHandler(views *service.Views, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/goals")
		defer span.End()

		goals, err := views.Goals(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, goals)
	}
}

func createGoalHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/goals")
		defer span.End()

		var req domain.GoalInput
		if !decodeJSON(w, r, &req) {
			return
		}
		goal, err := ledger.CreateGoal(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, goal)
	}
}

func updateGoalHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/goals/{id}")
		defer span.End()

		var req domain.GoalInput
		if !decodeJSON(w, r, &req) {
			return
		}
		goal, err := ledger.UpdateGoal(ctx, UserIDFromContext(ctx), chi.URLParam(r, "id"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, goal)
	}
}

func deleteGoalHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return deleteHandler("DELETE /v1/goals/{id}", ledger.DeleteGoal, logger)
}

func contributeHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/goals/{id}/contributions")
		defer span.End()

		goalID := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("goal.id", goalID))

		var req domain.ContributionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		result, err := ledger.Contribute(ctx, UserIDFromContext(ctx), goalID, req.Amount)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	}
}

// ============================================================
// Contas a pagar
// ============================================================

func listBillsHandler(views *service.Views, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/bills")
		defer span.End()

		bills, err := views.Bills(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, bills)
	}
}

func createBillHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/bills")
		defer span.End()

		var req domain.BillInput
		if !decodeJSON(w, r, &req) {
			return
		}
		bill, err := ledger.CreateBill(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, bill)
	}
}

// remindersHandler returns each near-due bill once per session.
func remindersHandler(views *service.Views, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/bills/reminders")
		defer span.End()

		reminders, err := views.Reminders(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, reminders)
	}
}

func payBillHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/bills/{id}/pay")
		defer span.End()

		bill, err := ledger.MarkBillPaid(ctx, UserIDFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, bill)
	}
}

func deleteBillHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return deleteHandler("DELETE /v1/bills/{id}", ledger.DeleteBill, logger)
}

// ============================================================
// Lista de compras
// ============================================================

func listShoppingItemsHandler(views *service.Views, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/shopping-items")
		defer span.End()

		items, err := views.ShoppingItems(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func createShoppingItemHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/shopping-items")
		defer span.End()

		var req domain.ShoppingItemInput
		if !decodeJSON(w, r, &req) {
			return
		}
		item, err := ledger.AddShoppingItem(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, item)
	}
}

func toggleShoppingItemHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/shopping-items/{id}/toggle")
		defer span.End()

		item, err := ledger.ToggleShoppingItem(ctx, UserIDFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func deleteShoppingItemHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return deleteHandler("DELETE /v1/shopping-items/{id}", ledger.DeleteShoppingItem, logger)
}

// ============================================================
// Orçamentos
// ============================================================

func listBudgetsHandler(views *service.Views, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/budgets")
		defer span.End()

		budgets, err := views.Budgets(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, budgets)
	}
}

func createBudgetHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/budgets")
		defer span.End()

		var req domain.BudgetInput
		if !decodeJSON(w, r, &req) {
			return
		}
		budget, err := ledger.CreateBudget(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, budget)
	}
}

func updateBudgetHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/budgets/{id}")
		defer span.End()

		var req domain.BudgetAmountUpdate
		if !decodeJSON(w, r, &req) {
			return
		}
		budget, err := ledger.UpdateBudgetAmount(ctx, UserIDFromContext(ctx), chi.URLParam(r, "id"), req.Amount)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, budget)
	}
}

func deleteBudgetHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return deleteHandler("DELETE /v1/budgets/{id}", ledger.DeleteBudget, logger)
}

func budgetStatusHandler(views *service.Views, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/budgets/status")
		defer span.End()

		status, err := views.BudgetStatus(ctx, UserIDFromContext(ctx), r.URL.Query().Get("month"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func budgetCategoriesHandler(views *service.Views, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/budgets/categories")
		defer span.End()

		categories, err := views.BudgetCategories(ctx, UserIDFromContext(ctx), r.URL.Query().Get("month"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, categories)
	}
}
