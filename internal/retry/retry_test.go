package retry_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/shipbridge/internal/retry"
	"github.com/tournevent/shipbridge/pkg/carrier"
)

func transient() error {
	return carrier.NewError("s2s", "SERVICE_UNAVAILABLE", "try later").WithStatusCode(503)
}

func permanent() error {
	return carrier.NewError("s2s", "INVALID_ADDRESS", "bad postal code").WithStatusCode(422)
}

type delayRecorder struct {
	mu       sync.Mutex
	attempts []int
	delays   []time.Duration
}

func (r *delayRecorder) notify(attempt int, _ error, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempt)
	r.delays = append(r.delays, d)
}

func testPolicy(rec *delayRecorder) retry.Policy {
	return retry.Policy{MaxRetries: 3, BaseDelay: time.Millisecond, Notify: rec.notify}
}

func TestExecute_SucceedsAfterTransientFailures(t *testing.T) {
	rec := &delayRecorder{}
	calls := 0

	got, err := retry.Execute(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", transient()
		}
		return "S2S-1", nil
	}, testPolicy(rec))

	require.NoError(t, err)
	assert.Equal(t, "S2S-1", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, rec.attempts)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, rec.delays)
}

func TestExecute_Exhausted(t *testing.T) {
	rec := &delayRecorder{}
	calls := 0

	_, err := retry.Execute(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 0, transient()
	}, testPolicy(rec))

	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.ErrorIs(t, err, carrier.NewError("s2s", "SERVICE_UNAVAILABLE", ""))
	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, retry.Attempts(err))
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}, rec.delays)
}

func TestExecute_TerminalAbortsImmediately(t *testing.T) {
	rec := &delayRecorder{}
	calls := 0

	_, err := retry.Execute(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 0, permanent()
	}, testPolicy(rec))

	require.Error(t, err)
	assert.NotErrorIs(t, err, retry.ErrExhausted)
	assert.ErrorIs(t, err, carrier.NewError("s2s", "INVALID_ADDRESS", ""))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, retry.Attempts(err))
	assert.Empty(t, rec.delays)
}

func TestExecute_TerminalAfterRetry(t *testing.T) {
	calls := 0

	_, err := retry.Execute(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, transient()
		}
		return 0, retry.Terminal(errors.New("insufficient credits"))
	}, testPolicy(&delayRecorder{}))

	require.Error(t, err)
	assert.NotErrorIs(t, err, retry.ErrExhausted)
	assert.True(t, retry.IsTerminal(err))
	assert.Equal(t, 2, retry.Attempts(err))
}

func TestExecute_ZeroRetries(t *testing.T) {
	calls := 0

	_, err := retry.Execute(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 0, transient()
	}, retry.Policy{MaxRetries: 0, BaseDelay: time.Millisecond})

	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, 1, calls)
}

func TestExecute_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, err := retry.Execute(ctx, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, transient()
	}, retry.Policy{MaxRetries: 5, BaseDelay: time.Hour})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, 1, calls)
}

func TestExecute_JitterBounded(t *testing.T) {
	rec := &delayRecorder{}
	base := 10 * time.Millisecond

	_, _ = retry.Execute(context.Background(), func(ctx context.Context) (int, error) {
		return 0, transient()
	}, retry.Policy{MaxRetries: 2, BaseDelay: base, Jitter: 0.1, Notify: rec.notify})

	require.Len(t, rec.delays, 2)
	for i, d := range rec.delays {
		nominal := float64(base) * float64(int(1)<<i)
		assert.InDelta(t, nominal, float64(d), nominal*0.1+1)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient carrier", transient(), true},
		{"rate limited", carrier.NewError("s2s", "RATE_LIMITED", "slow down").WithStatusCode(429), true},
		{"client error", permanent(), false},
		{"marked terminal", retry.Terminal(transient()), false},
		{"wrapped transient", fmt.Errorf("create order: %w", transient()), true},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"unknown", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retry.IsRetryable(tt.err))
		})
	}
}

func TestTerminal_Nil(t *testing.T) {
	assert.NoError(t, retry.Terminal(nil))
}
