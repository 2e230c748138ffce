// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from the hosted database, the language model and the identity provider.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
)

// SnapshotHandler receives the complete per-user state after every change.
// Handlers must not retain or mutate the snapshot's slices.
type SnapshotHandler func(*domain.Snapshot)

// Subscription is a live snapshot feed. Close stops delivery; it is safe to
// call more than once.
type Subscription interface {
	Close() error
}

// Store persists the per-user record tree. Writes are last-write-wins and a
// write is only observable locally once the next snapshot arrives.
type Store interface {
	// Create stores record under kind and returns its generated id.
	Create(ctx context.Context, userID string, kind domain.Kind, record any) (string, error)
	// Update merges fields into an existing record.
	Update(ctx context.Context, userID string, kind domain.Kind, id string, fields map[string]any) error
	Delete(ctx context.Context, userID string, kind domain.Kind, id string) error
	SetPremium(ctx context.Context, userID string, premium bool) error
	// Reset removes every collection of the user.
	Reset(ctx context.Context, userID string) error
	Snapshot(ctx context.Context, userID string) (*domain.Snapshot, error)
	// Subscribe delivers a full snapshot to handler on every change until the
	// subscription is closed or ctx is done.
	Subscribe(ctx context.Context, userID string, handler SnapshotHandler) (Subscription, error)
}

// ModelCaller invokes a hosted language model.
type ModelCaller interface {
	Generate(ctx context.Context, req *domain.ModelRequest) (*domain.ModelResponse, error)
}

// IdentityProvider signs users up and in. Provider failures are returned as
// *domain.ErrAuthProvider carrying the provider's error code.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (*domain.AuthSession, error)
	SignIn(ctx context.Context, email, password string) (*domain.AuthSession, error)
	// SignInWithIdP exchanges a Google ID token for a session.
	SignInWithIdP(ctx context.Context, googleIDToken string) (*domain.AuthSession, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.AuthSession, error)
}

// TokenVerifier validates a bearer token and returns the caller's identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*domain.Identity, error)
}

// SessionRevoker is implemented by providers that can invalidate refresh tokens.
type SessionRevoker interface {
	Revoke(ctx context.Context, userID string) error
}

// GreetingCaller invokes the external greeting API.
type GreetingCaller interface {
	Greet(ctx context.Context, name string) (string, error)
}

// Clock returns the current time. Services take one so tests can pin "today".
type Clock interface {
	Now() time.Time
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	// Take returns the value and removes it in one step.
	Take(key string) (T, bool)
	Delete(key string)
}
