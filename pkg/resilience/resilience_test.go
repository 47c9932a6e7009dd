package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(opts Options) (*Breaker, *time.Time) {
	now := time.Now()
	b := NewBreaker("daily", opts)
	b.now = func() time.Time { return now }
	b.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return b, &now
}

func TestExecuteRetriesTransientErrors(t *testing.T) {
	b, _ := newTestBreaker(Options{MaxAttempts: 3, FailureThreshold: 5})

	calls := 0
	err := b.Execute(context.Background(), "create_room", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("status 503")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, CircuitBreakerClosed, b.State())
}

func TestExecuteDoesNotRetryPermanentErrors(t *testing.T) {
	b, _ := newTestBreaker(Options{MaxAttempts: 3})
	badRequest := errors.New("status 400")

	calls := 0
	err := b.Execute(context.Background(), "create_room", func(ctx context.Context) error {
		calls++
		return Permanent(badRequest)
	})

	assert.ErrorIs(t, err, badRequest)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
	assert.Equal(t, CircuitBreakerClosed, b.State())
}

func TestCircuitOpensAndRecovers(t *testing.T) {
	var results []error
	b, now := newTestBreaker(Options{
		MaxAttempts:      1,
		FailureThreshold: 2,
		Cooldown:         10 * time.Second,
		OnResult: func(operation string, d time.Duration, err error) {
			results = append(results, err)
		},
	})
	failing := func(ctx context.Context) error { return errors.New("connection refused") }

	_ = b.Execute(context.Background(), "delete_room", failing)
	_ = b.Execute(context.Background(), "delete_room", failing)
	assert.Equal(t, CircuitBreakerOpen, b.State())

	err := b.Execute(context.Background(), "delete_room", failing)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Len(t, results, 2, "open circuit must not call the operation")

	*now = now.Add(11 * time.Second)
	err = b.Execute(context.Background(), "delete_room", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, CircuitBreakerClosed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(Options{MaxAttempts: 1, FailureThreshold: 1, Cooldown: time.Second})
	failing := func(ctx context.Context) error { return errors.New("timeout") }

	_ = b.Execute(context.Background(), "op", failing)
	*now = now.Add(2 * time.Second)
	_ = b.Execute(context.Background(), "op", failing)

	assert.Equal(t, CircuitBreakerOpen, b.State())
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, "none", classifyError(nil))
	assert.Equal(t, "timeout", classifyError(context.DeadlineExceeded))
	assert.Equal(t, "dns", classifyError(errors.New("dial tcp: lookup api.daily.co: no such host")))
	assert.Equal(t, "server_error", classifyError(errors.New("daily: status 502")))
}
