package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFlaky = errors.New("flaky")

func TestWithRetryEventuallySucceeds(t *testing.T) {
	t.Parallel()

	calls := 0
	err := WithRetry(context.Background(), RetryConfig{MaxAttempts: 3, Delay: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestWithRetryGivesUp(t *testing.T) {
	t.Parallel()

	calls := 0
	err := WithRetry(context.Background(), RetryConfig{MaxAttempts: 2, Delay: time.Millisecond, Backoff: true}, func() error {
		calls++
		return errFlaky
	})
	if !errors.Is(err, errFlaky) || calls != 2 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestWithRetryStopsOnNonRetryable(t *testing.T) {
	t.Parallel()

	errLimited := errors.New("limited")
	calls := 0
	cfg := RetryConfig{
		MaxAttempts: 5,
		Delay:       time.Millisecond,
		Retryable:   func(err error) bool { return !errors.Is(err, errLimited) },
	}
	err := WithRetry(context.Background(), cfg, func() error {
		calls++
		return errLimited
	})
	if err != errLimited || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}

	calls = 0
	err = WithRetry(context.Background(), RetryConfig{MaxAttempts: 5}, func() error {
		calls++
		return Permanent(errFlaky)
	})
	if err != errFlaky || calls != 1 {
		t.Fatalf("permanent error retried: err=%v calls=%d", err, calls)
	}
}

func TestWithRetryHonoursContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithRetry(ctx, RetryConfig{MaxAttempts: 3, Delay: time.Hour}, func() error { return errFlaky })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
