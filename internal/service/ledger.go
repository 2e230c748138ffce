package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/finance"
	"github.com/boddenberg/finanzen-bfa-go/internal/port"
	"github.com/boddenberg/finanzen-bfa-go/internal/validation"
)

var tracer = otel.Tracer("service")

// Ledger funnels every mutation of a user's records through named commands.
// Input is validated before the store is called; reads of existing records
// come from the user's session.
type Ledger struct {
	store     port.Store
	sessions  *Sessions
	extractor *Extractor
	clock     port.Clock
	loc       *time.Location
	logger    *zap.Logger
}

func NewLedger(
	store port.Store,
	sessions *Sessions,
	extractor *Extractor,
	clock port.Clock,
	loc *time.Location,
	logger *zap.Logger,
) *Ledger {
	return &Ledger{
		store:     store,
		sessions:  sessions,
		extractor: extractor,
		clock:     clock,
		loc:       loc,
		logger:    logger,
	}
}

func (l *Ledger) snapshot(ctx context.Context, userID string) (*domain.Snapshot, error) {
	sess, err := l.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.Snapshot(), nil
}

// ============================================================
// Transactions
// ============================================================

// AddTransaction stores a manual entry. Without an explicit type the
// direction is inferred from the description.
func (l *Ledger) AddTransaction(ctx context.Context, userID string, in *domain.TransactionInput) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Ledger.AddTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	description, err := validation.RequiredText("description", in.Description, "A descrição é obrigatória.")
	if err != nil {
		return nil, err
	}
	category, err := validation.RequiredText("category", in.Category, "A categoria é obrigatória.")
	if err != nil {
		return nil, err
	}

	tx := domain.Transaction{
		Amount:      in.Amount,
		Description: description,
		Category:    category,
		Date:        l.clock.Now(),
		Type:        in.Type,
	}
	if in.Date != nil {
		tx.Date = *in.Date
	}
	if tx.Type == "" {
		tx.Type = finance.ClassifyDirection(description)
	}
	return l.createTransaction(ctx, userID, tx)
}

func (l *Ledger) createTransaction(ctx context.Context, userID string, tx domain.Transaction) (*domain.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	id, err := l.store.Create(ctx, userID, domain.KindTransactions, tx)
	if err != nil {
		l.logger.Error("failed to create transaction", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	tx.ID = id
	l.logger.Info("transaction created",
		zap.String("user_id", userID),
		zap.String("id", id),
		zap.String("type", string(tx.Type)),
	)
	return &tx, nil
}

// AddTransactionFromText runs the extractor on free text and stores the result.
func (l *Ledger) AddTransactionFromText(ctx context.Context, userID string, req *domain.ExtractRequest) (*domain.TextTransactionResult, error) {
	ctx, span := tracer.Start(ctx, "Ledger.AddTransactionFromText")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if req.Type != "" && !req.Type.Valid() {
		return nil, &domain.ErrValidation{Field: "type", Message: "O tipo deve ser 'income' ou 'expense'."}
	}

	extracted, err := l.extractor.Extract(ctx, req.Text)
	if err != nil {
		return nil, err
	}

	tx := domain.Transaction{
		Amount:      extracted.Amount,
		Description: validation.SanitizeText(extracted.Description),
		Category:    validation.SanitizeText(extracted.Category),
		Date:        l.clock.Now(),
		Type:        req.Type,
	}
	if req.Date != nil {
		tx.Date = *req.Date
	}
	if tx.Type == "" {
		tx.Type = finance.ClassifyDirection(tx.Description)
	}
	created, err := l.createTransaction(ctx, userID, tx)
	if err != nil {
		return nil, err
	}
	return &domain.TextTransactionResult{Transaction: *created, IsRecurring: extracted.IsRecurring}, nil
}

// UpdateTransaction applies an explicit edit.
func (l *Ledger) UpdateTransaction(ctx context.Context, userID, id string, patch *domain.TransactionPatch) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Ledger.UpdateTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("record.id", id))

	if patch.Empty() {
		return nil, &domain.ErrValidation{Field: "body", Message: "Nenhuma alteração informada."}
	}
	snap, err := l.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	tx, ok := snap.Transaction(id)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}

	fields := map[string]any{}
	if patch.Amount != nil {
		tx.Amount = *patch.Amount
		fields["amount"] = tx.Amount
	}
	if patch.Description != nil {
		tx.Description = validation.SanitizeText(*patch.Description)
		fields["description"] = tx.Description
	}
	if patch.Category != nil {
		tx.Category = validation.SanitizeText(*patch.Category)
		fields["category"] = tx.Category
	}
	if patch.Date != nil {
		tx.Date = *patch.Date
		fields["date"] = tx.Date
	}
	if patch.Type != nil {
		tx.Type = *patch.Type
		fields["type"] = tx.Type
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	if err := l.store.Update(ctx, userID, domain.KindTransactions, id, fields); err != nil {
		l.logger.Error("failed to update transaction", zap.String("user_id", userID), zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return &tx, nil
}

// DeleteTransaction removes a transaction. Deleting a missing id is a no-op.
func (l *Ledger) DeleteTransaction(ctx context.Context, userID, id string) error {
	return l.delete(ctx, userID, domain.KindTransactions, id)
}

func (l *Ledger) delete(ctx context.Context, userID string, kind domain.Kind, id string) error {
	ctx, span := tracer.Start(ctx, "Ledger.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("kind", string(kind)), attribute.String("record.id", id))

	if err := l.store.Delete(ctx, userID, kind, id); err != nil {
		l.logger.Error("failed to delete record",
			zap.String("user_id", userID),
			zap.String("kind", string(kind)),
			zap.String("id", id),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// ============================================================
// Account-wide
// ============================================================

func (l *Ledger) SetPremium(ctx context.Context, userID string, premium bool) error {
	ctx, span := tracer.Start(ctx, "Ledger.SetPremium")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.Bool("premium", premium))

	if err := l.store.SetPremium(ctx, userID, premium); err != nil {
		return err
	}
	l.logger.Info("premium flag changed", zap.String("user_id", userID), zap.Bool("premium", premium))
	return nil
}

// Reset deletes every record of the user. The premium flag is kept.
func (l *Ledger) Reset(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "Ledger.Reset")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if err := l.store.Reset(ctx, userID); err != nil {
		l.logger.Error("failed to reset user data", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	l.logger.Warn("user data reset", zap.String("user_id", userID))
	return nil
}
