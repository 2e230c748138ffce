package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/finance"
	"github.com/boddenberg/finanzen-bfa-go/internal/port"
)

// Dashboard is the home screen of a user, derived from the session snapshot.
type Dashboard struct {
	Summary            finance.Summary         `json:"summary"`
	ExpenseByCategory  []finance.CategoryTotal `json:"expenseByCategory"`
	RecentTransactions []domain.Transaction    `json:"recentTransactions"`
	Goals              []domain.GoalView       `json:"goals"`
	Budgets            []domain.BudgetView     `json:"budgets"`
	Month              string                  `json:"month"`
	PendingBills       int                     `json:"pendingBills"`
	Reminders          []domain.BillReminder   `json:"reminders"`
	IsPremium          bool                    `json:"isPremium"`
	ShowAds            bool                    `json:"showAds"`
}

const recentTransactions = 5

// Views answers read requests. Everything is computed from the session's
// latest snapshot with the pure functions of package finance.
type Views struct {
	sessions *Sessions
	clock    port.Clock
	loc      *time.Location
	logger   *zap.Logger
}

func NewViews(sessions *Sessions, clock port.Clock, loc *time.Location, logger *zap.Logger) *Views {
	return &Views{sessions: sessions, clock: clock, loc: loc, logger: logger}
}

func (v *Views) session(ctx context.Context, userID string) (*Session, error) {
	return v.sessions.Get(ctx, userID)
}

// Snapshot returns the raw per-user tree.
func (v *Views) Snapshot(ctx context.Context, userID string) (*domain.Snapshot, error) {
	sess, err := v.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.Snapshot(), nil
}

// Dashboard builds the home screen. Reminders are reported but not marked.
func (v *Views) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	ctx, span := tracer.Start(ctx, "Views.Dashboard")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	sess, err := v.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	return v.build(sess, sess.Snapshot()), nil
}

func (v *Views) build(sess *Session, snap *domain.Snapshot) *Dashboard {
	now := v.clock.Now()
	month := domain.MonthOf(now, v.loc)

	recent := snap.Transactions
	if len(recent) > recentTransactions {
		recent = recent[:recentTransactions]
	}
	return &Dashboard{
		Summary:            finance.Summarize(snap.Transactions),
		ExpenseByCategory:  finance.ExpenseByCategory(snap.Transactions),
		RecentTransactions: recent,
		Goals:              goalViews(snap.Goals),
		Budgets:            finance.BudgetViews(snap.Budgets, snap.Transactions, month, v.loc),
		Month:              month,
		PendingBills:       finance.PendingBills(snap.Bills),
		Reminders:          sess.PendingReminders(now),
		IsPremium:          snap.IsPremium,
		ShowAds:            !snap.IsPremium,
	}
}

// Watch calls fn with a fresh dashboard now and after every snapshot until
// the returned stop function is called. The returned done channel is
// closed when the session ends; fn is not called after that and the caller
// has to Watch again. Keep a long-lived watch going with Touch.
func (v *Views) Watch(ctx context.Context, userID string, fn func(*Dashboard)) (stop func(), done <-chan struct{}, err error) {
	sess, err := v.session(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	unsubscribe := sess.OnSnapshot(func(snap *domain.Snapshot) {
		fn(v.build(sess, snap))
	})
	fn(v.build(sess, sess.Snapshot()))
	return unsubscribe, sess.Done(), nil
}

// Touch keeps the user's session from expiring while a watcher is attached.
func (v *Views) Touch(userID string) bool {
	return v.sessions.Touch(userID)
}

func goalViews(goals []domain.Goal) []domain.GoalView {
	out := make([]domain.GoalView, 0, len(goals))
	for _, g := range goals {
		out = append(out, domain.GoalView{Goal: g, Progress: finance.GoalProgress(g)})
	}
	return out
}

// Transactions lists transactions, newest first.
func (v *Views) Transactions(ctx context.Context, userID string, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	sess, err := v.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	return finance.FilterTransactions(sess.Snapshot().Transactions, filter), nil
}

func (v *Views) Goals(ctx context.Context, userID string) ([]domain.GoalView, error) {
	sess, err := v.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	return goalViews(sess.Snapshot().Goals), nil
}

func (v *Views) Bills(ctx context.Context, userID string) ([]domain.Bill, error) {
	sess, err := v.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.Snapshot().Bills, nil
}

// Reminders returns the bills due soon that were not reminded before in this
// session, and marks them as reminded.
func (v *Views) Reminders(ctx context.Context, userID string) ([]domain.BillReminder, error) {
	sess, err := v.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.Reminders(v.clock.Now()), nil
}

func (v *Views) ShoppingItems(ctx context.Context, userID string) ([]domain.ShoppingItem, error) {
	sess, err := v.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.Snapshot().ShoppingItems, nil
}

func (v *Views) Budgets(ctx context.Context, userID string) ([]domain.Budget, error) {
	sess, err := v.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.Snapshot().Budgets, nil
}

// BudgetStatus returns the budgets of month (default: current) with their
// spending. An unparsable month is a validation error.
func (v *Views) BudgetStatus(ctx context.Context, userID, month string) ([]domain.BudgetView, error) {
	month, err := v.month(month)
	if err != nil {
		return nil, err
	}
	sess, err := v.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap := sess.Snapshot()
	return finance.BudgetViews(snap.Budgets, snap.Transactions, month, v.loc), nil
}

// BudgetCategories lists expense categories still without a budget for month.
func (v *Views) BudgetCategories(ctx context.Context, userID, month string) ([]string, error) {
	month, err := v.month(month)
	if err != nil {
		return nil, err
	}
	sess, err := v.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap := sess.Snapshot()
	return finance.AvailableBudgetCategories(snap.Transactions, snap.Budgets, month), nil
}

func (v *Views) month(month string) (string, error) {
	if month == "" {
		return domain.MonthOf(v.clock.Now(), v.loc), nil
	}
	if _, err := domain.ParseMonth(month); err != nil {
		return "", &domain.ErrValidation{Field: "month", Message: "O mês deve estar no formato AAAA-MM."}
	}
	return month, nil
}
