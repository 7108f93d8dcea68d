package recovery

import (
	"context"
	"log/slog"
)

// ExecuteWithFallback runs primary; on failure it logs and runs
// fallback. If the fallback also fails, both errors are logged and the
// fallback's error is returned.
func ExecuteWithFallback(
	ctx context.Context,
	logger *slog.Logger,
	primary func(ctx context.Context) error,
	fallback func(ctx context.Context) error,
) error {
	if logger == nil {
		logger = slog.Default()
	}

	primaryErr := primary(ctx)
	if primaryErr == nil {
		return nil
	}

	logger.Warn("primary operation failed, running fallback", "error", primaryErr)

	if err := fallback(ctx); err != nil {
		logger.Error("fallback operation failed",
			"primary_error", primaryErr,
			"fallback_error", err,
		)
		return err
	}
	return nil
}

// BatchRecoveryConfig controls ExecuteBatchWithRecovery.
type BatchRecoveryConfig struct {
	// ContinueOnError runs every operation regardless of failures.
	ContinueOnError bool

	// MaxFailures stops the batch once exceeded (ignored when
	// ContinueOnError is set).
	MaxFailures int
}

// BatchItemResult is the outcome of one operation in a batch: either
// its return value or its error.
type BatchItemResult struct {
	Value any
	Err   error
}

// BatchTally summarizes a recovered batch run.
type BatchTally struct {
	Successful int
	Failed     int
	Total      int
	Results    []BatchItemResult
}

// ExecuteBatchWithRecovery runs each operation capturing its result or
// error. Without ContinueOnError the batch stops early once failures
// exceed MaxFailures.
func ExecuteBatchWithRecovery(
	ctx context.Context,
	logger *slog.Logger,
	cfg BatchRecoveryConfig,
	operations []func(ctx context.Context) (any, error),
) BatchTally {
	if logger == nil {
		logger = slog.Default()
	}

	tally := BatchTally{
		Total:   len(operations),
		Results: make([]BatchItemResult, 0, len(operations)),
	}

	for i, op := range operations {
		value, err := op(ctx)
		if err != nil {
			tally.Failed++
			tally.Results = append(tally.Results, BatchItemResult{Err: err})
			logger.Warn("batch operation failed",
				"index", i,
				"failed", tally.Failed,
				"error", err,
			)
			if !cfg.ContinueOnError && tally.Failed > cfg.MaxFailures {
				logger.Error("batch aborted, too many failures",
					"failed", tally.Failed,
					"max_failures", cfg.MaxFailures,
				)
				break
			}
			continue
		}

		tally.Successful++
		tally.Results = append(tally.Results, BatchItemResult{Value: value})
	}

	return tally
}
