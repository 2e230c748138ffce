package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/finance"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/observability"
	"github.com/boddenberg/finanzen-bfa-go/internal/port"
)

// Session is the application state of one signed-in user: the latest
// snapshot, the bill reminder notified-set and the snapshot listeners.
// Local state is eventually consistent with the store: a write becomes
// visible here once the store delivers the next snapshot.
type Session struct {
	UserID string

	mu        sync.RWMutex
	snap      *domain.Snapshot
	live      bool // a snapshot arrived from the feed
	closed    bool
	listeners map[int]port.SnapshotHandler
	nextID    int

	goalsMu   sync.Mutex
	goalLocks map[string]*sync.Mutex

	reminder  *finance.Reminder
	sub       port.Subscription
	closeOnce sync.Once
	done      chan struct{}
	metrics   *observability.Metrics
}

func newSession(userID string, loc *time.Location, metrics *observability.Metrics) *Session {
	return &Session{
		UserID:    userID,
		snap:      domain.EmptySnapshot(userID),
		listeners: make(map[int]port.SnapshotHandler),
		goalLocks: make(map[string]*sync.Mutex),
		reminder:  finance.NewReminder(loc),
		done:      make(chan struct{}),
		metrics:   metrics,
	}
}

// Snapshot returns the latest snapshot. Callers must not mutate it.
func (s *Session) Snapshot() *domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// OnSnapshot registers handler for every future snapshot and returns a
// function that removes it.
func (s *Session) OnSnapshot(handler port.SnapshotHandler) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = handler
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// lockGoal serialises read-modify-write cycles on one goal's current amount.
func (s *Session) lockGoal(goalID string) (unlock func()) {
	s.goalsMu.Lock()
	mu, ok := s.goalLocks[goalID]
	if !ok {
		mu = &sync.Mutex{}
		s.goalLocks[goalID] = mu
	}
	s.goalsMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Reminders returns the bills that need a reminder today and marks them so
// that each bill is surfaced once per session.
func (s *Session) Reminders(today time.Time) []domain.BillReminder {
	return s.reminder.Due(s.Snapshot().Bills, today)
}

// PendingReminders is Reminders without marking.
func (s *Session) PendingReminders(today time.Time) []domain.BillReminder {
	return s.reminder.Pending(s.Snapshot().Bills, today)
}

// replace installs a snapshot from the live feed.
func (s *Session) replace(snap *domain.Snapshot) {
	s.install(snap, true)
}

// seed installs the initial read unless the feed already delivered a newer one.
func (s *Session) seed(snap *domain.Snapshot) {
	s.install(snap, false)
}

// install sets the snapshot and fans it out. Listeners run outside the lock.
func (s *Session) install(snap *domain.Snapshot, live bool) {
	s.mu.Lock()
	if !live && s.live {
		s.mu.Unlock()
		return
	}
	s.live = s.live || live
	s.snap = snap
	handlers := make([]port.SnapshotHandler, 0, len(s.listeners))
	for _, h := range s.listeners {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	s.metrics.IncrSnapshotDelivered()
	for _, issue := range snap.Dropped {
		s.metrics.IncrInvalidRecords(string(issue.Kind), 1)
	}
	for _, h := range handlers {
		h(snap)
	}
}

// Close stops the store subscription, drops the listeners and closes Done.
// It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		clear(s.listeners)
		s.mu.Unlock()
		close(s.done)
		if s.sub != nil {
			err = s.sub.Close()
		}
	})
	return err
}

// Done is closed once the session is closed by logout, expiry or shutdown.
// No snapshot is delivered to listeners after that.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Sessions is the registry of open sessions. Entries expire after ttl
// without access; expiry and explicit removal close the subscription.
type Sessions struct {
	store    port.Store
	registry *gocache.Cache
	group    singleflight.Group
	loc      *time.Location
	metrics  *observability.Metrics
	logger   *zap.Logger
}

func NewSessions(store port.Store, ttl, cleanupInterval time.Duration, loc *time.Location, metrics *observability.Metrics, logger *zap.Logger) *Sessions {
	s := &Sessions{
		store:    store,
		registry: gocache.New(ttl, cleanupInterval),
		loc:      loc,
		metrics:  metrics,
		logger:   logger,
	}
	s.registry.OnEvicted(func(userID string, v any) {
		if err := v.(*Session).Close(); err != nil {
			s.logger.Warn("failed to close session", zap.String("user_id", userID), zap.Error(err))
		}
		s.metrics.SetActiveSessions(s.registry.ItemCount())
		s.logger.Debug("session closed", zap.String("user_id", userID))
	})
	return s
}

// Get returns the user's session, opening it on first use. Concurrent
// first calls for the same user share one open.
func (s *Sessions) Get(ctx context.Context, userID string) (*Session, error) {
	if v, ok := s.registry.Get(userID); ok && !v.(*Session).isClosed() {
		s.metrics.IncrCacheHit("session")
		// refresh the expiry on every access
		s.registry.SetDefault(userID, v)
		return v.(*Session), nil
	}
	s.metrics.IncrCacheMiss("session")

	v, err, _ := s.group.Do(userID, func() (any, error) {
		if v, ok := s.registry.Get(userID); ok && !v.(*Session).isClosed() {
			return v, nil
		}
		sess, err := s.open(ctx, userID)
		if err != nil {
			return nil, err
		}
		s.registry.SetDefault(userID, sess)
		s.metrics.SetActiveSessions(s.registry.ItemCount())
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// open reads the initial snapshot and subscribes concurrently. The
// subscription outlives the request that opened the session.
func (s *Sessions) open(ctx context.Context, userID string) (*Session, error) {
	ctx, span := tracer.Start(ctx, "Sessions.open")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	sess := newSession(userID, s.loc, s.metrics)

	var initial *domain.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snap, err := s.store.Snapshot(gctx, userID)
		if err != nil {
			return fmt.Errorf("initial snapshot: %w", err)
		}
		initial = snap
		return nil
	})
	g.Go(func() error {
		sub, err := s.store.Subscribe(context.WithoutCancel(gctx), userID, sess.replace)
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		sess.sub = sub
		return nil
	})
	if err := g.Wait(); err != nil {
		_ = sess.Close()
		s.logger.Error("failed to open session", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	sess.seed(initial)
	s.logger.Info("session opened", zap.String("user_id", userID))
	return sess, nil
}

// peek returns the session if it is open, without opening or touching it.
func (s *Sessions) peek(userID string) (*Session, bool) {
	v, ok := s.registry.Get(userID)
	if !ok || v.(*Session).isClosed() {
		return nil, false
	}
	return v.(*Session), true
}

// Touch refreshes the expiry of the user's open session without opening
// one. It reports false when the session is gone.
func (s *Sessions) Touch(userID string) bool {
	sess, ok := s.peek(userID)
	if !ok {
		return false
	}
	s.registry.SetDefault(userID, sess)
	return true
}

// Close removes and closes the user's session (logout).
func (s *Sessions) Close(userID string) {
	s.registry.Delete(userID)
}

// CloseAll closes every open session (shutdown).
func (s *Sessions) CloseAll() {
	for userID := range s.registry.Items() {
		s.registry.Delete(userID)
	}
}

// Len reports the number of open sessions.
func (s *Sessions) Len() int {
	return s.registry.ItemCount()
}
