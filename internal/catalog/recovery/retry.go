package recovery

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxRetries      int           // retries after the first attempt
	RetryDelay      time.Duration // delay before the first retry
	BackoffMultiple float64       // 1.0 = fixed delay
	MaxDelay        time.Duration // cap when backoff grows
}

// DefaultRetryConfig provides sensible defaults for store calls.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:      3,
	RetryDelay:      1 * time.Second,
	BackoffMultiple: 2.0,
	MaxDelay:        30 * time.Second,
}

// ExecuteWithRetry attempts op up to MaxRetries+1 times. Each failure
// before the last attempt logs a warning and waits the configured
// delay. The final failure is returned unchanged so callers can match
// on the original error.
func ExecuteWithRetry(
	ctx context.Context,
	logger *slog.Logger,
	cfg RetryConfig,
	op func(ctx context.Context) error,
) error {
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == cfg.MaxRetries {
			break
		}

		delay := backoffDelay(attempt, cfg)
		logger.Warn("operation failed, retrying",
			"attempt", attempt+1,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

// ExecuteWithRetryIf retries only while shouldRetry approves the error;
// a vetoed error is returned immediately.
func ExecuteWithRetryIf(
	ctx context.Context,
	logger *slog.Logger,
	cfg RetryConfig,
	shouldRetry func(error) bool,
	op func(ctx context.Context) error,
) error {
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxRetries || !shouldRetry(lastErr) {
			return lastErr
		}

		delay := backoffDelay(attempt, cfg)
		logger.Warn("operation failed, retrying",
			"attempt", attempt+1,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

// backoffDelay calculates delay: RetryDelay * BackoffMultiple^attempt,
// capped at MaxDelay.
func backoffDelay(attempt int, cfg RetryConfig) time.Duration {
	multiple := cfg.BackoffMultiple
	if multiple < 1 {
		multiple = 1
	}
	delay := float64(cfg.RetryDelay) * math.Pow(multiple, float64(attempt))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
