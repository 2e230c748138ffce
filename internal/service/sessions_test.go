package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/service"
)

func TestSessions_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("should open one session for concurrent first calls", func(t *testing.T) {
		f := newFixture(t)

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.sessions.Get(ctx, "u1")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, f.sessions.Len())
		first, err := f.sessions.Get(ctx, "u1")
		require.NoError(t, err)
		second, err := f.sessions.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Same(t, first, second)
	})

	t.Run("should follow writes through the subscription", func(t *testing.T) {
		f := newFixture(t)
		sess, err := f.sessions.Get(ctx, "u1")
		require.NoError(t, err)

		var got []*domain.Snapshot
		unsubscribe := sess.OnSnapshot(func(s *domain.Snapshot) { got = append(got, s) })

		_, err = f.ledger.CreateGoal(ctx, "u1", &domain.GoalInput{Name: "Casa", TargetAmount: decimal.NewFromInt(10)})
		require.NoError(t, err)
		unsubscribe()
		_, err = f.ledger.CreateGoal(ctx, "u1", &domain.GoalInput{Name: "Moto", TargetAmount: decimal.NewFromInt(10)})
		require.NoError(t, err)

		require.Len(t, got, 1)
		assert.Len(t, got[0].Goals, 1)
		assert.Len(t, sess.Snapshot().Goals, 2)
	})

	t.Run("should reopen after logout", func(t *testing.T) {
		f := newFixture(t)
		first, err := f.sessions.Get(ctx, "u1")
		require.NoError(t, err)

		f.sessions.Close("u1")
		second, err := f.sessions.Get(ctx, "u1")

		require.NoError(t, err)
		assert.NotSame(t, first, second)
	})

	t.Run("should not cache a failed open", func(t *testing.T) {
		f := newFixture(t)
		f.store.failSnapshot = true

		_, err := f.sessions.Get(ctx, "u1")

		var perr *domain.ErrPersistence
		require.ErrorAs(t, err, &perr)
		assert.Zero(t, f.sessions.Len())
	})
}

func TestSessions_Expiry(t *testing.T) {
	ctx := context.Background()
	goal := &domain.GoalInput{Name: "Casa", TargetAmount: decimal.NewFromInt(10)}

	t.Run("should end a watch when its session expires", func(t *testing.T) {
		f := newFixtureWithTTL(t, 50*time.Millisecond, 10*time.Millisecond)

		var mu sync.Mutex
		var got []*service.Dashboard
		record := func(d *service.Dashboard) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, d)
		}
		stop, done, err := f.views.Watch(ctx, "u1", record)
		require.NoError(t, err)
		defer stop()

		require.Eventually(t, func() bool {
			select {
			case <-done:
				return true
			default:
				return false
			}
		}, 2*time.Second, 10*time.Millisecond)
		assert.False(t, f.views.Touch("u1"))

		_, err = f.ledger.CreateGoal(ctx, "u1", goal)
		require.NoError(t, err)

		mu.Lock()
		assert.Len(t, got, 1, "a closed session must not deliver")
		mu.Unlock()

		// watching again opens a fresh session that follows writes
		stop2, done2, err := f.views.Watch(ctx, "u1", record)
		require.NoError(t, err)
		defer stop2()
		_, err = f.ledger.CreateGoal(ctx, "u1", &domain.GoalInput{Name: "Moto", TargetAmount: decimal.NewFromInt(10)})
		require.NoError(t, err)

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, got, 3)
		assert.Len(t, got[1].Goals, 1)
		assert.Len(t, got[2].Goals, 2)
		assert.NotEqual(t, done, done2)
	})

	t.Run("should keep a touched session delivering past its ttl", func(t *testing.T) {
		f := newFixtureWithTTL(t, 50*time.Millisecond, 10*time.Millisecond)

		var mu sync.Mutex
		var got []*service.Dashboard
		stop, done, err := f.views.Watch(ctx, "u1", func(d *service.Dashboard) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, d)
		})
		require.NoError(t, err)
		defer stop()

		deadline := time.Now().Add(200 * time.Millisecond)
		for time.Now().Before(deadline) {
			require.True(t, f.views.Touch("u1"))
			time.Sleep(10 * time.Millisecond)
		}

		_, err = f.ledger.CreateGoal(ctx, "u1", goal)
		require.NoError(t, err)

		select {
		case <-done:
			t.Fatal("touched session was closed")
		default:
		}
		mu.Lock()
		defer mu.Unlock()
		require.Len(t, got, 2)
		assert.Len(t, got[1].Goals, 1)
	})

	t.Run("should close done on logout", func(t *testing.T) {
		f := newFixture(t)
		sess, err := f.sessions.Get(ctx, "u1")
		require.NoError(t, err)

		f.sessions.Close("u1")

		select {
		case <-sess.Done():
		default:
			t.Fatal("done still open after logout")
		}
		assert.False(t, f.sessions.Touch("u1"))
	})
}
