package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/finance"
	"github.com/boddenberg/finanzen-bfa-go/internal/validation"
)

// ContributionPrefix starts the description of goal-contribution transactions.
const ContributionPrefix = "Contribuição para: "

func (l *Ledger) CreateGoal(ctx context.Context, userID string, in *domain.GoalInput) (*domain.Goal, error) {
	ctx, span := tracer.Start(ctx, "Ledger.CreateGoal")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	name, err := validation.RequiredText("name", in.Name, "O nome da meta é obrigatório.")
	if err != nil {
		return nil, err
	}
	goal := domain.Goal{Name: name, TargetAmount: in.TargetAmount, CurrentAmount: decimal.Zero}
	if in.CurrentAmount != nil {
		goal.CurrentAmount = *in.CurrentAmount
	}
	if err := goal.Validate(); err != nil {
		return nil, err
	}

	id, err := l.store.Create(ctx, userID, domain.KindGoals, goal)
	if err != nil {
		return nil, err
	}
	goal.ID = id
	return &goal, nil
}

// UpdateGoal edits name and target. The current amount only changes through
// contributions, so a currentAmount in the input is rejected.
func (l *Ledger) UpdateGoal(ctx context.Context, userID, id string, in *domain.GoalInput) (*domain.Goal, error) {
	ctx, span := tracer.Start(ctx, "Ledger.UpdateGoal")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("record.id", id))

	if in.CurrentAmount != nil {
		return nil, &domain.ErrValidation{Field: "currentAmount", Message: "O valor atual só muda por contribuições."}
	}
	name, err := validation.RequiredText("name", in.Name, "O nome da meta é obrigatório.")
	if err != nil {
		return nil, err
	}

	snap, err := l.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	goal, ok := snap.Goal(id)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "goal", ID: id}
	}
	goal.Name = name
	goal.TargetAmount = in.TargetAmount
	if err := goal.Validate(); err != nil {
		return nil, err
	}

	err = l.store.Update(ctx, userID, domain.KindGoals, id, map[string]any{
		"name":         goal.Name,
		"targetAmount": goal.TargetAmount,
	})
	if err != nil {
		return nil, err
	}
	return &goal, nil
}

func (l *Ledger) DeleteGoal(ctx context.Context, userID, id string) error {
	return l.delete(ctx, userID, domain.KindGoals, id)
}

// Contribute adds amount to the goal and records the matching expense. If
// the expense cannot be written, the goal is put back to its previous amount
// so that every contribution has its transaction.
func (l *Ledger) Contribute(ctx context.Context, userID, goalID string, amount decimal.Decimal) (*domain.ContributionResult, error) {
	ctx, span := tracer.Start(ctx, "Ledger.Contribute")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("goal.id", goalID))

	if !domain.IsPositive(amount) {
		return nil, &domain.ErrValidation{Field: "amount", Message: "O valor da contribuição deve ser maior que zero."}
	}
	sess, err := l.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	// The amount is read under the lock so a concurrent contribution to the
	// same goal is never computed from the same base.
	unlock := sess.lockGoal(goalID)
	defer unlock()

	goal, ok := sess.Snapshot().Goal(goalID)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "goal", ID: goalID}
	}

	previous := goal.CurrentAmount
	goal.CurrentAmount = previous.Add(amount)
	if err := l.store.Update(ctx, userID, domain.KindGoals, goalID, map[string]any{"currentAmount": goal.CurrentAmount}); err != nil {
		return nil, err
	}

	tx := domain.Transaction{
		Amount:      amount,
		Description: ContributionPrefix + goal.Name,
		Category:    domain.GoalsCategory,
		Date:        l.clock.Now(),
		Type:        domain.TransactionExpense,
		GoalID:      goalID,
	}
	id, err := l.store.Create(ctx, userID, domain.KindTransactions, tx)
	if err != nil {
		l.logger.Error("contribution transaction failed, reverting goal",
			zap.String("user_id", userID),
			zap.String("goal_id", goalID),
			zap.Error(err),
		)
		if revertErr := l.store.Update(ctx, userID, domain.KindGoals, goalID, map[string]any{"currentAmount": previous}); revertErr != nil {
			l.logger.Error("failed to revert goal after contribution failure",
				zap.String("user_id", userID),
				zap.String("goal_id", goalID),
				zap.Error(revertErr),
			)
		}
		return nil, err
	}
	tx.ID = id

	l.logger.Info("goal contribution recorded",
		zap.String("user_id", userID),
		zap.String("goal_id", goalID),
		zap.String("transaction_id", id),
	)
	return &domain.ContributionResult{
		Goal:        goal,
		Transaction: tx,
		Progress:    finance.GoalProgress(goal),
	}, nil
}
