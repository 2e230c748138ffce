package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/infra/resilience"
)

func TestRetryWithBackoff_Success(t *testing.T) {
	cfg := resilience.Config{MaxRetries: 3, InitialBackoff: 10 * time.Millisecond}

	callCount := 0
	err := resilience.RetryWithBackoff(context.Background(), cfg, func() error {
		callCount++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, callCount)
}

func TestRetryWithBackoff_RetriesOnFailure(t *testing.T) {
	cfg := resilience.Config{MaxRetries: 3, InitialBackoff: 10 * time.Millisecond}

	callCount := 0
	err := resilience.RetryWithBackoff(context.Background(), cfg, func() error {
		callCount++
		if callCount < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, callCount)
}

func TestRetryWithBackoff_ExhaustsRetries(t *testing.T) {
	cfg := resilience.Config{MaxRetries: 2, InitialBackoff: 10 * time.Millisecond}

	callCount := 0
	err := resilience.RetryWithBackoff(context.Background(), cfg, func() error {
		callCount++
		return errors.New("persistent error")
	})

	assert.Error(t, err)
	assert.Equal(t, 3, callCount)
}

func TestRetryWithBackoff_ZeroRetriesIsOneAttempt(t *testing.T) {
	callCount := 0
	err := resilience.RetryWithBackoff(context.Background(), resilience.Config{}, func() error {
		callCount++
		return errors.New("boom")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, callCount)
}

func TestRetryWithBackoff_StopsOnPermanent(t *testing.T) {
	cfg := resilience.Config{MaxRetries: 5, InitialBackoff: time.Millisecond}
	cause := errors.New("bad request")

	callCount := 0
	err := resilience.RetryWithBackoff(context.Background(), cfg, func() error {
		callCount++
		return resilience.Permanent(cause)
	})

	assert.Same(t, cause, err)
	assert.Equal(t, 1, callCount)
}

func TestRetryWithBackoff_RespectsContext(t *testing.T) {
	cfg := resilience.Config{MaxRetries: 5, InitialBackoff: 1 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := resilience.RetryWithBackoff(ctx, cfg, func() error {
		return errors.New("error")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecute_MapsOpenBreaker(t *testing.T) {
	cb := resilience.NewCircuitBreaker("firebase", nil)
	cfg := resilience.Config{}

	for i := 0; i < 5; i++ {
		_ = resilience.Execute(context.Background(), cb, cfg, func() error { return errors.New("down") })
	}

	called := false
	err := resilience.Execute(context.Background(), cb, cfg, func() error {
		called = true
		return nil
	})

	var open *domain.ErrCircuitOpen
	require.ErrorAs(t, err, &open)
	assert.Equal(t, "firebase", open.Service)
	assert.False(t, called)
}

func TestExecute_PermanentErrorsDoNotTrip(t *testing.T) {
	cb := resilience.NewCircuitBreaker("identity", nil)
	cause := errors.New("EMAIL_EXISTS")

	for i := 0; i < 10; i++ {
		err := resilience.Execute(context.Background(), cb, resilience.Config{}, func() error {
			return resilience.Permanent(cause)
		})
		assert.Same(t, cause, err)
	}

	err := resilience.Execute(context.Background(), cb, resilience.Config{}, func() error { return nil })
	assert.NoError(t, err)
}

func TestExecute_MapsDeadlineToTimeout(t *testing.T) {
	cb := resilience.NewCircuitBreaker("gemini", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := resilience.Execute(ctx, cb, resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond}, func() error {
		<-ctx.Done()
		return ctx.Err()
	})

	var timeout *domain.ErrTimeout
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "gemini", timeout.Operation)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecute_CancellationIsNotATimeout(t *testing.T) {
	cb := resilience.NewCircuitBreaker("gemini", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := resilience.Execute(ctx, cb, resilience.Config{}, func() error { return nil })

	var timeout *domain.ErrTimeout
	assert.False(t, errors.As(err, &timeout))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBulkhead_AcquireRelease(t *testing.T) {
	bh := resilience.NewBulkhead(2)

	require.NoError(t, bh.Acquire(context.Background()))
	require.NoError(t, bh.Acquire(context.Background()))
	assert.Equal(t, 2, bh.InUse())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, bh.Acquire(ctx), "third acquire should time out")

	bh.Release()
	assert.NoError(t, bh.Acquire(context.Background()))
}
