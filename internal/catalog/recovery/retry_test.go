package recovery

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:      maxRetries,
		RetryDelay:      time.Millisecond,
		BackoffMultiple: 2.0,
		MaxDelay:        10 * time.Millisecond,
	}
}

func TestExecuteWithRetry_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := ExecuteWithRetry(context.Background(), nil, fastRetry(3),
		func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("transient")
			}
			return nil
		})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestExecuteWithRetry_ReturnsLastError(t *testing.T) {
	attempts := 0
	last := errors.New("still failing")
	err := ExecuteWithRetry(context.Background(), nil, fastRetry(2),
		func(ctx context.Context) error {
			attempts++
			return last
		})
	if !errors.Is(err, last) {
		t.Errorf("err = %v, want the last failure", err)
	}
	if attempts != 3 { // initial + 2 retries
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestExecuteWithRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ExecuteWithRetry(ctx, nil, fastRetry(5),
		func(ctx context.Context) error {
			return errors.New("fail")
		})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestExecuteWithRetryIf_VetoStopsImmediately(t *testing.T) {
	attempts := 0
	fatal := errors.New("fatal")
	err := ExecuteWithRetryIf(context.Background(), nil, fastRetry(5),
		func(error) bool { return false },
		func(ctx context.Context) error {
			attempts++
			return fatal
		})
	if !errors.Is(err, fatal) {
		t.Errorf("err = %v, want fatal", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (vetoed errors must not retry)", attempts)
	}
}

func TestExecuteWithRetryIf_RetriesApprovedErrors(t *testing.T) {
	attempts := 0
	err := ExecuteWithRetryIf(context.Background(), nil, fastRetry(3),
		func(error) bool { return true },
		func(ctx context.Context) error {
			attempts++
			if attempts < 2 {
				return errors.New("transient")
			}
			return nil
		})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestBackoffDelay_GrowsAndCaps(t *testing.T) {
	cfg := RetryConfig{
		RetryDelay:      100 * time.Millisecond,
		BackoffMultiple: 2.0,
		MaxDelay:        300 * time.Millisecond,
	}

	if d := backoffDelay(0, cfg); d != 100*time.Millisecond {
		t.Errorf("attempt 0 delay = %v, want 100ms", d)
	}
	if d := backoffDelay(1, cfg); d != 200*time.Millisecond {
		t.Errorf("attempt 1 delay = %v, want 200ms", d)
	}
	if d := backoffDelay(5, cfg); d != 300*time.Millisecond {
		t.Errorf("attempt 5 delay = %v, want MaxDelay cap 300ms", d)
	}
}
