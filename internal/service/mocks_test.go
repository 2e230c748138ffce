package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/memstore"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/observability"
	"github.com/boddenberg/finanzen-bfa-go/internal/port"
	"github.com/boddenberg/finanzen-bfa-go/internal/service"
)

// --- Mocks ---

var brt = time.FixedZone("BRT", -3*60*60)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// today is 2026-10-15 in São Paulo.
var today = fixedClock{now: time.Date(2026, 10, 15, 12, 0, 0, 0, brt)}

type mockModel struct {
	mu       sync.Mutex
	text     string
	err      error
	requests []*domain.ModelRequest
}

func (m *mockModel) Generate(_ context.Context, req *domain.ModelRequest) (*domain.ModelResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return &domain.ModelResponse{Text: m.text, PromptTokens: 10, CompletionTokens: 5}, nil
}

func (m *mockModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// failingStore wraps the in-memory store and fails chosen operations.
type failingStore struct {
	*memstore.Store
	failCreate    map[domain.Kind]bool
	failSnapshot  bool
	snapshotCalls atomic.Int32
}

var errStoreDown = &domain.ErrPersistence{Op: "create", Err: errors.New("database unavailable")}

func (s *failingStore) Create(ctx context.Context, userID string, kind domain.Kind, record any) (string, error) {
	if s.failCreate[kind] {
		return "", errStoreDown
	}
	return s.Store.Create(ctx, userID, kind, record)
}

func (s *failingStore) Snapshot(ctx context.Context, userID string) (*domain.Snapshot, error) {
	s.snapshotCalls.Add(1)
	if s.failSnapshot {
		return nil, &domain.ErrPersistence{Op: "snapshot", Err: errors.New("database unavailable")}
	}
	return s.Store.Snapshot(ctx, userID)
}

type fixture struct {
	store    *failingStore
	sessions *service.Sessions
	ledger   *service.Ledger
	views    *service.Views
	advisor  *service.Advisor
	model    *mockModel
	metrics  *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithTTL(t, time.Hour, time.Hour)
}

// newFixtureWithTTL builds a fixture whose sessions expire after ttl.
func newFixtureWithTTL(t *testing.T, ttl, cleanupInterval time.Duration) *fixture {
	t.Helper()
	store := &failingStore{Store: memstore.New(zap.NewNop()), failCreate: map[domain.Kind]bool{}}
	model := &mockModel{}
	metrics := observability.NewMetrics()
	sessions := service.NewSessions(store, ttl, cleanupInterval, brt, metrics, zap.NewNop())
	t.Cleanup(sessions.CloseAll)

	extractor := service.NewExtractor(model, metrics, zap.NewNop())
	return &fixture{
		store:    store,
		sessions: sessions,
		ledger:   service.NewLedger(store, sessions, extractor, today, brt, zap.NewNop()),
		views:    service.NewViews(sessions, today, brt, zap.NewNop()),
		advisor:  service.NewAdvisor(model, sessions, metrics, zap.NewNop()),
		model:    model,
		metrics:  metrics,
	}
}

var _ port.Store = (*failingStore)(nil)
