package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/finance"
	"github.com/boddenberg/finanzen-bfa-go/internal/validation"
)

// CreateBill stores a bill whose status is computed once from the due date.
func (l *Ledger) CreateBill(ctx context.Context, userID string, in *domain.BillInput) (*domain.Bill, error) {
	ctx, span := tracer.Start(ctx, "Ledger.CreateBill")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	name, err := validation.RequiredText("name", in.Name, "O nome da conta é obrigatório.")
	if err != nil {
		return nil, err
	}
	bill := domain.Bill{
		Name:    name,
		Amount:  in.Amount,
		DueDate: in.DueDate,
		Status:  finance.InitialBillStatus(in.DueDate, l.clock.Now(), l.loc),
	}
	if err := bill.Validate(); err != nil {
		return nil, err
	}

	id, err := l.store.Create(ctx, userID, domain.KindBills, bill)
	if err != nil {
		return nil, err
	}
	bill.ID = id
	return &bill, nil
}

// MarkBillPaid moves a due or overdue bill to paid. Paid is terminal;
// marking again returns the bill unchanged without writing.
func (l *Ledger) MarkBillPaid(ctx context.Context, userID, id string) (*domain.Bill, error) {
	ctx, span := tracer.Start(ctx, "Ledger.MarkBillPaid")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("record.id", id))

	snap, err := l.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	bill, ok := snap.Bill(id)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "bill", ID: id}
	}
	if bill.Status == domain.BillPaid {
		return &bill, nil
	}

	if err := l.store.Update(ctx, userID, domain.KindBills, id, map[string]any{"status": domain.BillPaid}); err != nil {
		return nil, err
	}
	l.logger.Info("bill paid", zap.String("user_id", userID), zap.String("id", id), zap.String("from", string(bill.Status)))
	bill.Status = domain.BillPaid
	return &bill, nil
}

func (l *Ledger) DeleteBill(ctx context.Context, userID, id string) error {
	return l.delete(ctx, userID, domain.KindBills, id)
}
