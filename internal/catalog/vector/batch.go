package vector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/vietddude/corpus/internal/catalog/metrics"
	"github.com/vietddude/corpus/internal/catalog/recovery"
)

// Progress reports cumulative batch-job state. Processed is
// monotonically non-decreasing across callbacks; the final callback of
// a successful job reports Processed == Total and Percentage == 100.
type Progress struct {
	Processed    int
	Total        int
	Percentage   int
	CurrentBatch int
	TotalBatches int
}

// ProgressFunc receives progress updates. Calls are serialized.
type ProgressFunc func(Progress)

// Config controls batch partitioning and recovery.
type Config struct {
	BatchSize            int           // items per store call (default 100)
	MaxConcurrentBatches int           // worker ceiling, 1 = sequential (default 1)
	MaxRetries           int           // retries per batch on transient errors (default 3)
	RetryDelay           time.Duration // delay between retries (default 200ms)
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxConcurrentBatches <= 0 {
		c.MaxConcurrentBatches = 1
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 200 * time.Millisecond
	}
	return c
}

// BatchOperator applies bulk upserts/deletes against the vector store
// without exceeding the configured concurrency ceiling. Transient
// failures retry the same batch; anything else aborts the job. Batches
// already applied are never rolled back — divergence is reconciled by
// the external GC pass.
type BatchOperator struct {
	store      Store
	classifier recovery.Classifier
	cfg        Config
	logger     *slog.Logger
}

// NewBatchOperator creates an operator over the given store.
func NewBatchOperator(store Store, cfg Config, logger *slog.Logger) *BatchOperator {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchOperator{
		store:      store,
		classifier: recovery.MessageClassifier{},
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

// UpsertAll writes points in batches.
func (o *BatchOperator) UpsertAll(
	ctx context.Context,
	collectionID string,
	points []Point,
	onProgress ProgressFunc,
) error {
	return o.run(ctx, "upsert", len(points), onProgress,
		func(ctx context.Context, start, end int) error {
			return o.store.UpsertBatch(ctx, collectionID, points[start:end])
		})
}

// DeleteAll removes points by id in batches and returns the cumulative
// number of ids deleted.
func (o *BatchOperator) DeleteAll(
	ctx context.Context,
	collectionID string,
	ids []string,
	onProgress ProgressFunc,
) (int, error) {
	err := o.run(ctx, "delete", len(ids), onProgress,
		func(ctx context.Context, start, end int) error {
			return o.store.DeleteByIDs(ctx, collectionID, ids[start:end])
		})
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// DeleteCollection removes every point in a collection: a single store
// call under the same retry policy as a batch.
func (o *BatchOperator) DeleteCollection(ctx context.Context, collectionID string) error {
	err := o.execWithRetry(ctx, "delete_collection", 0, func(ctx context.Context) error {
		metrics.VectorBatchesTotal.WithLabelValues("delete_collection").Inc()
		return o.store.DeleteByCollection(ctx, collectionID)
	})
	if err != nil {
		metrics.VectorBatchFailures.WithLabelValues("delete_collection").Inc()
		return err
	}
	return nil
}

// run partitions [0, total) into consecutive batches and executes them
// on a bounded worker pool. Progress updates are serialized under a
// mutex so Processed never regresses, whatever order batches finish in.
func (o *BatchOperator) run(
	ctx context.Context,
	op string,
	total int,
	onProgress ProgressFunc,
	exec func(ctx context.Context, start, end int) error,
) error {
	if total == 0 {
		if onProgress != nil {
			onProgress(Progress{Processed: 0, Total: 0, Percentage: 100})
		}
		return nil
	}

	batchSize := o.cfg.BatchSize
	totalBatches := (total + batchSize - 1) / batchSize

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool, err := ants.NewPool(o.cfg.MaxConcurrentBatches)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg        sync.WaitGroup
		errOnce   sync.Once
		firstErr  error
		mu        sync.Mutex
		processed int
		completed int
	)

	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for b := 0; b < totalBatches; b++ {
		start := b * batchSize
		end := min(start+batchSize, total)
		batchNo := b + 1

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()

			if runCtx.Err() != nil {
				return // job already aborted
			}

			metrics.VectorBatchSize.Observe(float64(end - start))
			err := o.execWithRetry(runCtx, op, batchNo, func(ctx context.Context) error {
				metrics.VectorBatchesTotal.WithLabelValues(op).Inc()
				return exec(ctx, start, end)
			})
			if err != nil {
				fail(err)
				return
			}

			mu.Lock()
			processed += end - start
			completed++
			if onProgress != nil {
				onProgress(Progress{
					Processed:    processed,
					Total:        total,
					Percentage:   processed * 100 / total,
					CurrentBatch: completed,
					TotalBatches: totalBatches,
				})
			}
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			fail(fmt.Errorf("failed to submit batch %d: %w", batchNo, submitErr))
			break
		}
	}

	wg.Wait()

	if firstErr != nil {
		metrics.VectorBatchFailures.WithLabelValues(op).Inc()
		o.logger.Error("vector batch job aborted",
			"op", op,
			"total", total,
			"error", firstErr,
		)
		return firstErr
	}
	return nil
}

// execWithRetry retries fn on transient (connection/timeout) errors up
// to the configured ceiling, logging a warning per retry.
func (o *BatchOperator) execWithRetry(
	ctx context.Context,
	op string,
	batchNo int,
	fn func(ctx context.Context) error,
) error {
	var lastErr error

	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		classified := o.classifier.Classify(lastErr, "")
		if attempt == o.cfg.MaxRetries || !classified.Category.Retryable() {
			return classified
		}

		metrics.VectorBatchRetries.WithLabelValues(op).Inc()
		o.logger.Warn("vector batch failed, retrying",
			"op", op,
			"batch", batchNo,
			"attempt", attempt+1,
			"max_retries", o.cfg.MaxRetries,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.cfg.RetryDelay):
		}
	}

	return lastErr
}
