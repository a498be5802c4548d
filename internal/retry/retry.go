// Package retry runs operations with bounded exponential backoff and an
// explicit retryable/terminal classification.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tournevent/shipbridge/pkg/carrier"
)

// ErrExhausted matches failures that used every allowed attempt.
var ErrExhausted = errors.New("retries exhausted")

// DefaultJitter is the randomization fraction applied to delays.
const DefaultJitter = 0.1

// Policy configures Execute.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay is the delay before the first retry; it doubles each time.
	BaseDelay time.Duration
	// Jitter randomizes each delay by ±Jitter of its value. Zero disables it.
	Jitter float64
	// Notify is called before sleeping with the failed attempt number (1-based).
	Notify func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy returns 3 retries with a 1s base delay (1s, 2s, 4s).
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, BaseDelay: time.Second, Jitter: DefaultJitter}
}

// Failure is returned by Execute when the operation did not succeed.
type Failure struct {
	Attempts  int
	Err       error
	exhausted bool
}

func (f *Failure) Error() string {
	if f.exhausted {
		return fmt.Sprintf("%s after %d attempts: %v", ErrExhausted, f.Attempts, f.Err)
	}
	return f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Is matches ErrExhausted when every attempt was used.
func (f *Failure) Is(target error) bool {
	return target == ErrExhausted && f.exhausted
}

// Attempts returns how many times the operation ran, or 0 if err did not
// come from Execute.
func Attempts(err error) int {
	var f *Failure
	if errors.As(err, &f) {
		return f.Attempts
	}
	return 0
}

type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// Terminal marks err as never retryable.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

// IsTerminal reports whether err was marked with Terminal.
func IsTerminal(err error) bool {
	var t *terminalError
	return errors.As(err, &t)
}

// IsRetryable classifies err. Marked-terminal errors and cancellation are
// terminal, carrier errors follow their Retryable flag, and anything
// unrecognised is terminal.
func IsRetryable(err error) bool {
	if err == nil || IsTerminal(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return carrier.IsRetryable(err)
}

// Execute runs op until it succeeds, fails terminally, or has run
// MaxRetries+1 times. Delays honor ctx cancellation.
func Execute[T any](ctx context.Context, op func(ctx context.Context) (T, error), p Policy) (T, error) {
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	attempts := 0
	var lastErr error
	operation := func() (T, error) {
		attempts++
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	expo := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: p.Jitter,
		Multiplier:          2,
		MaxInterval:         p.BaseDelay << maxRetries,
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(maxRetries + 1)),
	}
	if p.Notify != nil {
		opts = append(opts, backoff.WithNotify(func(err error, delay time.Duration) {
			p.Notify(attempts, err, delay)
		}))
	}

	res, err := backoff.Retry(ctx, operation, opts...)
	if err == nil {
		return res, nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	var zero T
	if lastErr == nil || (ctx.Err() != nil && !errors.Is(err, lastErr)) {
		// Cancelled before or between attempts.
		return zero, &Failure{Attempts: attempts, Err: err}
	}

	return zero, &Failure{
		Attempts:  attempts,
		Err:       lastErr,
		exhausted: IsRetryable(lastErr) && attempts == maxRetries+1,
	}
}
