// Package memstore is an in-process implementation of port.Store with the
// same full-snapshot contract as the hosted database. It backs local
// development and the handler tests.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/port"
)

type tree struct {
	collections map[domain.Kind]map[string]map[string]any
	isPremium   bool
}

func newTree() *tree {
	t := &tree{collections: make(map[domain.Kind]map[string]map[string]any)}
	for _, k := range domain.Kinds {
		t.collections[k] = make(map[string]map[string]any)
	}
	return t
}

type subscription struct {
	store   *Store
	userID  string
	id      int
	handler port.SnapshotHandler
	once    sync.Once
	done    chan struct{}
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.store.unsubscribe(s.userID, s.id)
		close(s.done)
	})
	return nil
}

// Store keeps every user's tree in memory. Records are held as decoded JSON
// objects so partial updates merge exactly like the hosted database.
type Store struct {
	mu      sync.RWMutex
	users   map[string]*tree
	subs    map[string]map[int]*subscription
	nextSub int
	// deliver serialises fan-out so handlers see snapshots in write order.
	deliver sync.Mutex
	logger  *zap.Logger
}

var _ port.Store = (*Store)(nil)

func New(logger *zap.Logger) *Store {
	return &Store{
		users:  make(map[string]*tree),
		subs:   make(map[string]map[int]*subscription),
		logger: logger,
	}
}

// toFields converts a record into its stored object form. The id lives in
// the key, never in the object.
func toFields(record any) (map[string]any, error) {
	b, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, fmt.Errorf("record is not an object: %w", err)
	}
	delete(fields, "id")
	return fields, nil
}

func (s *Store) userTree(userID string) *tree {
	t, ok := s.users[userID]
	if !ok {
		t = newTree()
		s.users[userID] = t
	}
	return t
}

func (s *Store) Create(ctx context.Context, userID string, kind domain.Kind, record any) (string, error) {
	if !kind.Valid() {
		return "", &domain.ErrPersistence{Op: "create", Kind: kind, Err: fmt.Errorf("unknown kind")}
	}
	fields, err := toFields(record)
	if err != nil {
		return "", &domain.ErrPersistence{Op: "create", Kind: kind, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return "", &domain.ErrPersistence{Op: "create", Kind: kind, Err: err}
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.userTree(userID).collections[kind][id] = fields
	s.mu.Unlock()

	s.logger.Debug("memstore: record created", zap.String("user_id", userID), zap.String("kind", string(kind)), zap.String("id", id))
	s.publish(userID)
	return id, nil
}

func (s *Store) Update(ctx context.Context, userID string, kind domain.Kind, id string, fields map[string]any) error {
	if !kind.Valid() {
		return &domain.ErrPersistence{Op: "update", Kind: kind, Err: fmt.Errorf("unknown kind")}
	}
	patch, err := toFields(fields)
	if err != nil {
		return &domain.ErrPersistence{Op: "update", Kind: kind, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return &domain.ErrPersistence{Op: "update", Kind: kind, Err: err}
	}

	s.mu.Lock()
	rec, ok := s.userTree(userID).collections[kind][id]
	if ok {
		for k, v := range patch {
			rec[k] = v
		}
	}
	s.mu.Unlock()

	if !ok {
		return &domain.ErrNotFound{Resource: string(kind), ID: id}
	}
	s.publish(userID)
	return nil
}

// Delete is idempotent: removing a missing record succeeds.
func (s *Store) Delete(ctx context.Context, userID string, kind domain.Kind, id string) error {
	if !kind.Valid() {
		return &domain.ErrPersistence{Op: "delete", Kind: kind, Err: fmt.Errorf("unknown kind")}
	}
	if err := ctx.Err(); err != nil {
		return &domain.ErrPersistence{Op: "delete", Kind: kind, Err: err}
	}

	s.mu.Lock()
	delete(s.userTree(userID).collections[kind], id)
	s.mu.Unlock()

	s.publish(userID)
	return nil
}

func (s *Store) SetPremium(ctx context.Context, userID string, premium bool) error {
	if err := ctx.Err(); err != nil {
		return &domain.ErrPersistence{Op: "set premium", Err: err}
	}
	s.mu.Lock()
	s.userTree(userID).isPremium = premium
	s.mu.Unlock()

	s.publish(userID)
	return nil
}

// Reset drops every collection; the premium flag is kept.
func (s *Store) Reset(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return &domain.ErrPersistence{Op: "reset", Err: err}
	}
	s.mu.Lock()
	t := s.userTree(userID)
	premium := t.isPremium
	fresh := newTree()
	fresh.isPremium = premium
	s.users[userID] = fresh
	s.mu.Unlock()

	s.publish(userID)
	return nil
}

func (s *Store) Snapshot(ctx context.Context, userID string) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.ErrPersistence{Op: "read", Err: err}
	}
	return s.snapshot(userID)
}

// snapshot encodes the tree exactly as the hosted database would return it
// and decodes it through the same validation path.
func (s *Store) snapshot(userID string) (*domain.Snapshot, error) {
	s.mu.RLock()
	raw := map[string]any{}
	if t, ok := s.users[userID]; ok {
		for kind, recs := range t.collections {
			if len(recs) > 0 {
				raw[string(kind)] = recs
			}
		}
		raw[domain.PremiumKey] = t.isPremium
	}
	data, err := json.Marshal(raw)
	s.mu.RUnlock()
	if err != nil {
		return nil, &domain.ErrPersistence{Op: "read", Err: err}
	}

	snap, issues, err := domain.DecodeSnapshot(userID, data)
	if err != nil {
		return nil, &domain.ErrPersistence{Op: "read", Err: err}
	}
	for _, issue := range issues {
		s.logger.Warn("memstore: dropping invalid record", zap.String("user_id", userID), zap.String("record", issue.String()))
	}
	return snap, nil
}

// Subscribe delivers the current snapshot immediately and then one snapshot
// per write, synchronously on the writer's goroutine.
func (s *Store) Subscribe(ctx context.Context, userID string, handler port.SnapshotHandler) (port.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.ErrPersistence{Op: "subscribe", Err: err}
	}

	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	s.nextSub++
	sub := &subscription{store: s, userID: userID, id: s.nextSub, handler: handler, done: make(chan struct{})}
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[int]*subscription)
	}
	s.subs[userID][sub.id] = sub
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()

	snap, err := s.snapshot(userID)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}
	handler(snap)
	return sub, nil
}

func (s *Store) unsubscribe(userID string, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs[userID], id)
	if len(s.subs[userID]) == 0 {
		delete(s.subs, userID)
	}
}

func (s *Store) publish(userID string) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.RLock()
	handlers := make([]port.SnapshotHandler, 0, len(s.subs[userID]))
	for _, sub := range s.subs[userID] {
		handlers = append(handlers, sub.handler)
	}
	s.mu.RUnlock()
	if len(handlers) == 0 {
		return
	}

	snap, err := s.snapshot(userID)
	if err != nil {
		s.logger.Error("memstore: failed to build snapshot", zap.String("user_id", userID), zap.Error(err))
		return
	}
	for _, h := range handlers {
		h(snap)
	}
}
