package firebase_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
)

func TestStore_RecordLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newFakeDatabase()
	store, _ := newTestStore(t, db, testSecret)

	// given
	id, err := store.Create(ctx, "u1", domain.KindGoals, domain.Goal{
		Name:         "Reserva",
		TargetAmount: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	// when
	require.NoError(t, store.Update(ctx, "u1", domain.KindGoals, id, map[string]any{"currentAmount": decimal.NewFromInt(900)}))
	require.NoError(t, store.SetPremium(ctx, "u1", true))
	snap, err := store.Snapshot(ctx, "u1")

	// then
	require.NoError(t, err)
	require.Len(t, snap.Goals, 1)
	assert.Equal(t, id, snap.Goals[0].ID)
	assert.Equal(t, "Reserva", snap.Goals[0].Name)
	assert.True(t, decimal.NewFromInt(900).Equal(snap.Goals[0].CurrentAmount))
	assert.True(t, snap.IsPremium)

	stored := db.get([]string{"users", "u1", "goals", id}).(map[string]any)
	assert.NotContains(t, stored, "id", "the id is the key, not a field")

	require.NoError(t, store.Delete(ctx, "u1", domain.KindGoals, id))
	snap, err = store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, snap.Goals)
}

func TestStore_SnapshotOfUnknownUser(t *testing.T) {
	store, _ := newTestStore(t, newFakeDatabase(), testSecret)

	snap, err := store.Snapshot(context.Background(), "nobody")

	require.NoError(t, err)
	assert.Equal(t, "nobody", snap.UserID)
	assert.NotNil(t, snap.Transactions)
}

func TestStore_ResetKeepsPremium(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, newFakeDatabase(), testSecret)

	_, err := store.Create(ctx, "u1", domain.KindShoppingItems, domain.ShoppingItem{Name: "Café"})
	require.NoError(t, err)
	_, err = store.Create(ctx, "u1", domain.KindBudgets, domain.Budget{Category: "Lazer", Amount: decimal.NewFromInt(100), Month: "2026-10"})
	require.NoError(t, err)
	require.NoError(t, store.SetPremium(ctx, "u1", true))

	require.NoError(t, store.Reset(ctx, "u1"))

	snap, err := store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, snap.ShoppingItems)
	assert.Empty(t, snap.Budgets)
	assert.True(t, snap.IsPremium)
}

func TestStore_RetriesServerErrors(t *testing.T) {
	db := newFakeDatabase()
	store, _ := newTestStore(t, db, testSecret)
	db.failNext.Store(2)

	_, err := store.Snapshot(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, int32(3), db.requests.Load())
}

func TestStore_DoesNotRetryRejectedCredentials(t *testing.T) {
	db := newFakeDatabase()
	store, _ := newTestStore(t, db, "wrong")

	_, err := store.Create(context.Background(), "u1", domain.KindGoals, domain.Goal{Name: "x", TargetAmount: decimal.NewFromInt(1)})

	var perr *domain.ErrPersistence
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "create", perr.Op)
	assert.Equal(t, domain.KindGoals, perr.Kind)
}

func TestStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	db := newFakeDatabase()
	store, _ := newTestStore(t, db, testSecret)

	_, err := store.Create(ctx, "u1", domain.KindGoals, domain.Goal{Name: "Viagem", TargetAmount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	var mu sync.Mutex
	var snaps []*domain.Snapshot
	sub, err := store.Subscribe(ctx, "u1", func(s *domain.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		snaps = append(snaps, s)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.OpenStreams())

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(snaps)
	}
	latest := func() *domain.Snapshot {
		mu.Lock()
		defer mu.Unlock()
		return snaps[len(snaps)-1]
	}

	// the initial put carries the whole tree
	requireEventually(t, func() bool { return count() == 1 })
	assert.Len(t, latest().Goals, 1)

	// a nested change triggers a full re-read
	_, err = store.Create(ctx, "u1", domain.KindShoppingItems, domain.ShoppingItem{Name: "Pão"})
	require.NoError(t, err)
	requireEventually(t, func() bool { return count() == 2 })
	assert.Len(t, latest().Goals, 1)
	assert.Len(t, latest().ShoppingItems, 1)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, 0, store.OpenStreams())
}

func TestStore_SubscribeRejected(t *testing.T) {
	store, _ := newTestStore(t, newFakeDatabase(), "wrong")

	_, err := store.Subscribe(context.Background(), "u1", func(*domain.Snapshot) {})

	var perr *domain.ErrPersistence
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 0, store.OpenStreams(), "slot released on failure")
}
