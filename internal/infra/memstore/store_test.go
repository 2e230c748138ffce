package memstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/memstore"
)

type recorder struct {
	mu    sync.Mutex
	snaps []*domain.Snapshot
}

func (r *recorder) handle(s *domain.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) last() *domain.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func goal(name string, target, current int64) domain.Goal {
	return domain.Goal{Name: name, TargetAmount: decimal.NewFromInt(target), CurrentAmount: decimal.NewFromInt(current)}
}

func TestStore_CreateUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := memstore.New(zap.NewNop())

	id, err := s.Create(ctx, "u1", domain.KindGoals, goal("Viagem", 1000, 0))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, s.Update(ctx, "u1", domain.KindGoals, id, map[string]any{"currentAmount": decimal.NewFromInt(250)}))

	snap, err := s.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, snap.Goals, 1)
	assert.Equal(t, id, snap.Goals[0].ID)
	assert.Equal(t, "Viagem", snap.Goals[0].Name, "partial update keeps other fields")
	assert.True(t, decimal.NewFromInt(250).Equal(snap.Goals[0].CurrentAmount))

	require.NoError(t, s.Delete(ctx, "u1", domain.KindGoals, id))
	require.NoError(t, s.Delete(ctx, "u1", domain.KindGoals, id), "delete is idempotent")

	snap, err = s.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, snap.Goals)
}

func TestStore_UpdateMissing(t *testing.T) {
	s := memstore.New(zap.NewNop())

	err := s.Update(context.Background(), "u1", domain.KindBills, "nope", map[string]any{"status": "paid"})

	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestStore_UnknownKind(t *testing.T) {
	s := memstore.New(zap.NewNop())

	_, err := s.Create(context.Background(), "u1", domain.Kind("pets"), map[string]any{"name": "Rex"})

	var perr *domain.ErrPersistence
	assert.ErrorAs(t, err, &perr)
}

func TestStore_UsersAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := memstore.New(zap.NewNop())

	_, err := s.Create(ctx, "u1", domain.KindShoppingItems, domain.ShoppingItem{Name: "Leite"})
	require.NoError(t, err)

	snap, err := s.Snapshot(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, snap.ShoppingItems)
}

func TestStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	s := memstore.New(zap.NewNop())
	rec := &recorder{}

	sub, err := s.Subscribe(ctx, "u1", rec.handle)
	require.NoError(t, err)
	require.Equal(t, 1, rec.count(), "current state is delivered on subscribe")

	_, err = s.Create(ctx, "u1", domain.KindGoals, goal("A", 10, 0))
	require.NoError(t, err)
	_, err = s.Create(ctx, "u1", domain.KindShoppingItems, domain.ShoppingItem{Name: "Pão"})
	require.NoError(t, err)
	require.NoError(t, s.SetPremium(ctx, "u1", true))

	require.Equal(t, 4, rec.count())
	last := rec.last()
	assert.Len(t, last.Goals, 1, "every snapshot carries every collection")
	assert.Len(t, last.ShoppingItems, 1)
	assert.True(t, last.IsPremium)

	_, err = s.Create(ctx, "u2", domain.KindGoals, goal("B", 10, 0))
	require.NoError(t, err)
	assert.Equal(t, 4, rec.count(), "other users' writes are not delivered")

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	_, err = s.Create(ctx, "u1", domain.KindGoals, goal("C", 10, 0))
	require.NoError(t, err)
	assert.Equal(t, 4, rec.count())
}

func TestStore_SubscriptionEndsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := memstore.New(zap.NewNop())
	rec := &recorder{}

	_, err := s.Subscribe(ctx, "u1", rec.handle)
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool {
		before := rec.count()
		_, _ = s.Create(context.Background(), "u1", domain.KindGoals, goal("A", 10, 0))
		return rec.count() == before
	}, time.Second, 10*time.Millisecond)
}

func TestStore_ResetKeepsPremium(t *testing.T) {
	ctx := context.Background()
	s := memstore.New(zap.NewNop())

	_, err := s.Create(ctx, "u1", domain.KindGoals, goal("A", 10, 0))
	require.NoError(t, err)
	require.NoError(t, s.SetPremium(ctx, "u1", true))

	require.NoError(t, s.Reset(ctx, "u1"))

	snap, err := s.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, snap.Goals)
	assert.True(t, snap.IsPremium)
}
