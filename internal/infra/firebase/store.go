package firebase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/finanzen-bfa-go/internal/port"
)

// usersRoot is the parent of every per-user tree.
const usersRoot = "users"

// Store implements port.Store on the Realtime Database. Each user owns
// users/{uid} with one child object per record kind plus isPremium.
type Store struct {
	client  *Client
	streams *resilience.Bulkhead
	// reconnectBackoff is the first wait after a dropped event stream.
	reconnectBackoff time.Duration
	logger           *zap.Logger
}

var _ port.Store = (*Store)(nil)

// NewStore creates a store. maxStreams caps concurrently open event streams.
func NewStore(client *Client, maxStreams int, logger *zap.Logger) *Store {
	return &Store{
		client:           client,
		streams:          resilience.NewBulkhead(maxStreams),
		reconnectBackoff: time.Second,
		logger:           logger,
	}
}

// toFields converts a record into its stored object form. The id is the key.
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

func (s *Store) Create(ctx context.Context, userID string, kind domain.Kind, record any) (string, error) {
	ctx, span := tracer.Start(ctx, "Firebase.Create")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("kind", string(kind)))

	if !kind.Valid() {
		return "", &domain.ErrPersistence{Op: "create", Kind: kind, Err: fmt.Errorf("unknown kind")}
	}
	fields, err := toFields(record)
	if err != nil {
		return "", &domain.ErrPersistence{Op: "create", Kind: kind, Err: err}
	}

	// A client-generated key makes the PUT idempotent across retries.
	id := uuid.NewString()
	if _, err := s.client.call(ctx, http.MethodPut, fields, usersRoot, userID, string(kind), id); err != nil {
		return "", &domain.ErrPersistence{Op: "create", Kind: kind, Err: err}
	}
	return id, nil
}

// Update merges fields into users/{uid}/{kind}/{id}. Callers check the record
// exists first: the database would otherwise create a partial record.
func (s *Store) Update(ctx context.Context, userID string, kind domain.Kind, id string, fields map[string]any) error {
	ctx, span := tracer.Start(ctx, "Firebase.Update")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("kind", string(kind)), attribute.String("record.id", id))

	if !kind.Valid() {
		return &domain.ErrPersistence{Op: "update", Kind: kind, Err: fmt.Errorf("unknown kind")}
	}
	patch, err := toFields(fields)
	if err != nil {
		return &domain.ErrPersistence{Op: "update", Kind: kind, Err: err}
	}
	if _, err := s.client.call(ctx, http.MethodPatch, patch, usersRoot, userID, string(kind), id); err != nil {
		return &domain.ErrPersistence{Op: "update", Kind: kind, Err: err}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, userID string, kind domain.Kind, id string) error {
	ctx, span := tracer.Start(ctx, "Firebase.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("kind", string(kind)), attribute.String("record.id", id))

	if !kind.Valid() {
		return &domain.ErrPersistence{Op: "delete", Kind: kind, Err: fmt.Errorf("unknown kind")}
	}
	if _, err := s.client.call(ctx, http.MethodDelete, nil, usersRoot, userID, string(kind), id); err != nil {
		return &domain.ErrPersistence{Op: "delete", Kind: kind, Err: err}
	}
	return nil
}

func (s *Store) SetPremium(ctx context.Context, userID string, premium bool) error {
	ctx, span := tracer.Start(ctx, "Firebase.SetPremium")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.Bool("premium", premium))

	if _, err := s.client.call(ctx, http.MethodPut, premium, usersRoot, userID, domain.PremiumKey); err != nil {
		return &domain.ErrPersistence{Op: "set premium", Err: err}
	}
	return nil
}

// Reset deletes the five collections concurrently. The premium flag stays.
func (s *Store) Reset(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "Firebase.Reset")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range domain.Kinds {
		g.Go(func() error {
			if _, err := s.client.call(gctx, http.MethodDelete, nil, usersRoot, userID, string(kind)); err != nil {
				return &domain.ErrPersistence{Op: "reset", Kind: kind, Err: err}
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Store) Snapshot(ctx context.Context, userID string) (*domain.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "Firebase.Snapshot")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	body, err := s.client.call(ctx, http.MethodGet, nil, usersRoot, userID)
	if err != nil {
		return nil, &domain.ErrPersistence{Op: "read", Err: err}
	}
	return s.decode(userID, body)
}

func (s *Store) decode(userID string, data []byte) (*domain.Snapshot, error) {
	snap, issues, err := domain.DecodeSnapshot(userID, data)
	if err != nil {
		return nil, &domain.ErrPersistence{Op: "read", Err: err}
	}
	for _, issue := range issues {
		s.logger.Warn("firebase: dropping invalid record",
			zap.String("user_id", userID),
			zap.String("kind", string(issue.Kind)),
			zap.String("id", issue.ID),
			zap.Error(issue.Err),
		)
	}
	return snap, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// OpenStreams reports how many event streams are currently open.
func (s *Store) OpenStreams() int {
	return s.streams.InUse()
}
