package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/validation"
)

func (l *Ledger) AddShoppingItem(ctx context.Context, userID string, in *domain.ShoppingItemInput) (*domain.ShoppingItem, error) {
	ctx, span := tracer.Start(ctx, "Ledger.AddShoppingItem")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	name, err := validation.RequiredText("name", in.Name, "O nome do item é obrigatório.")
	if err != nil {
		return nil, err
	}
	item := domain.ShoppingItem{Name: name}
	id, err := l.store.Create(ctx, userID, domain.KindShoppingItems, item)
	if err != nil {
		return nil, err
	}
	item.ID = id
	return &item, nil
}

// ToggleShoppingItem flips the checked flag.
func (l *Ledger) ToggleShoppingItem(ctx context.Context, userID, id string) (*domain.ShoppingItem, error) {
	ctx, span := tracer.Start(ctx, "Ledger.ToggleShoppingItem")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("record.id", id))

	snap, err := l.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	item, ok := snap.ShoppingItem(id)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "shopping item", ID: id}
	}
	item.Checked = !item.Checked
	if err := l.store.Update(ctx, userID, domain.KindShoppingItems, id, map[string]any{"checked": item.Checked}); err != nil {
		return nil, err
	}
	return &item, nil
}

func (l *Ledger) DeleteShoppingItem(ctx context.Context, userID, id string) error {
	return l.delete(ctx, userID, domain.KindShoppingItems, id)
}
