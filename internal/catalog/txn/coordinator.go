package txn

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/corpus/internal/catalog/metrics"
	"github.com/vietddude/corpus/internal/catalog/recovery"
	"github.com/vietddude/corpus/internal/catalog/vector"
	"github.com/vietddude/corpus/internal/core/domain"
	"github.com/vietddude/corpus/internal/infra/storage"
)

// DefaultRetention is how long terminal contexts stay in the registry
// before the cleanup sweep may remove them.
const DefaultRetention = 30 * time.Minute

// Config wires a Coordinator.
type Config struct {
	Store      storage.Relational
	Vectors    *vector.BatchOperator // optional; nil disables vector cleanup
	Logger     *slog.Logger
	Classifier recovery.Classifier
	ErrorLog   *recovery.ErrorLog
	Samples    *recovery.WindowStore
	Retry      recovery.RetryConfig
}

// Coordinator orchestrates transaction lifecycles against the
// relational store. Relational writes are buffered in the operation
// log and applied atomically at root commit; vector-store cleanup is
// an unordered, best-effort side effect.
type Coordinator struct {
	store      storage.Relational
	vectors    *vector.BatchOperator
	registry   *Registry
	classifier recovery.Classifier
	errlog     *recovery.ErrorLog
	samples    *recovery.WindowStore
	retry      recovery.RetryConfig
	logger     *slog.Logger
}

// NewCoordinator creates a coordinator with its own registry.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Classifier == nil {
		cfg.Classifier = recovery.MessageClassifier{}
	}
	if cfg.ErrorLog == nil {
		cfg.ErrorLog = recovery.NewErrorLog(0)
	}
	if cfg.Samples == nil {
		cfg.Samples = recovery.NewWindowStore(0)
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.RetryDelay == 0 {
		cfg.Retry = recovery.DefaultRetryConfig
	}
	return &Coordinator{
		store:      cfg.Store,
		vectors:    cfg.Vectors,
		registry:   NewRegistry(),
		classifier: cfg.Classifier,
		errlog:     cfg.ErrorLog,
		samples:    cfg.Samples,
		retry:      cfg.Retry,
		logger:     cfg.Logger,
	}
}

// Registry exposes the active-transaction table for sweeps and tests.
func (c *Coordinator) Registry() *Registry { return c.registry }

// ErrorLog exposes the ring-buffered failure history.
func (c *Coordinator) ErrorLog() *recovery.ErrorLog { return c.errlog }

// Begin opens a root transaction. Always succeeds.
func (c *Coordinator) Begin(metadata map[string]any) *Context {
	t := newContext(nil, metadata)
	c.registry.Register(t)
	metrics.TransactionsStarted.WithLabelValues("root").Inc()
	c.logger.Debug("transaction begun", "tx_id", t.ID)
	return t
}

// BeginNested opens a child transaction under parentID.
func (c *Coordinator) BeginNested(parentID string, metadata map[string]any) (*Context, error) {
	parent := c.registry.Lookup(parentID)
	if parent == nil {
		err := domain.NewTransactionNotFound(parentID)
		c.logger.Warn("nested begin on unknown parent", "parent_id", parentID)
		return nil, err
	}
	if parent.Status.Terminal() {
		err := domain.NewInvalidTransactionState(parentID, parent.Status)
		c.logger.Warn("nested begin on terminal parent",
			"parent_id", parentID, "status", parent.Status)
		return nil, err
	}

	t := newContext(parent, metadata)
	c.registry.Register(t)
	metrics.TransactionsStarted.WithLabelValues("nested").Inc()
	c.logger.Debug("nested transaction begun",
		"tx_id", t.ID, "parent_id", parentID, "level", t.Level)
	return t, nil
}

// Execute records a change in the transaction's operation log,
// capturing its rollback data (before-image) first. The first
// successful call promotes PENDING to ACTIVE.
func (c *Coordinator) Execute(ctx context.Context, txID string, change domain.Change) error {
	t := c.registry.Lookup(txID)
	if t == nil {
		c.logger.Warn("execute on unknown transaction", "tx_id", txID)
		return domain.NewTransactionNotFound(txID)
	}
	if t.Status != domain.TxPending && t.Status != domain.TxActive {
		c.logger.Warn("execute on non-active transaction",
			"tx_id", txID, "status", t.Status)
		return domain.NewInvalidTransactionState(txID, t.Status)
	}

	completed, err := c.captureRollback(ctx, change)
	if err != nil {
		classified := c.classifier.Classify(err, txID)
		op := &domain.Operation{Change: change, RecordedAt: time.Now()}
		opErr := domain.NewOperationFailed(txID, op, classified)
		c.recordFailure(opErr, map[string]any{"tx_id": txID, "target": string(change.Kind())})
		c.logger.Error("operation rollback-data capture failed",
			"tx_id", txID,
			"target", change.Kind(),
			"target_id", change.TargetID(),
			"error", classified,
		)
		return opErr
	}

	t.Log.Record(completed)
	if t.Status == domain.TxPending {
		t.Status = domain.TxActive
	}

	metrics.OperationsRecorded.WithLabelValues(
		string(completed.Kind()), string(completed.Action())).Inc()
	c.logger.Debug("operation recorded",
		"tx_id", txID,
		"target", completed.Kind(),
		"action", completed.Action(),
		"target_id", completed.TargetID(),
		"log_len", t.Log.Len(),
	)
	return nil
}

// Commit finishes a transaction. Root commits apply the whole
// operation log inside one physical relational transaction; nested
// commits only merge their log and savepoints into the parent.
func (c *Coordinator) Commit(ctx context.Context, txID string) error {
	t := c.registry.Lookup(txID)
	if t == nil {
		c.logger.Warn("commit on unknown transaction", "tx_id", txID)
		return domain.NewTransactionNotFound(txID)
	}
	if t.Status != domain.TxPending && t.Status != domain.TxActive {
		c.logger.Warn("commit on non-active transaction", "tx_id", txID, "status", t.Status)
		return domain.NewInvalidTransactionState(txID, t.Status)
	}
	if t.Status == domain.TxPending {
		t.Status = domain.TxActive
	}

	if !t.IsRoot {
		return c.commitNested(t)
	}
	return c.commitRoot(ctx, t)
}

func (c *Coordinator) commitNested(t *Context) error {
	parent := c.registry.Lookup(t.ParentID)
	if parent == nil {
		err := domain.NewNestedTransactionError(t.ID, domain.NewTransactionNotFound(t.ParentID))
		c.recordFailure(err, map[string]any{"tx_id": t.ID, "parent_id": t.ParentID})
		c.logger.Error("nested commit lost its parent", "tx_id", t.ID, "parent_id", t.ParentID)
		return err
	}
	if parent.Status.Terminal() {
		err := domain.NewNestedTransactionError(
			t.ID, domain.NewInvalidTransactionState(parent.ID, parent.Status))
		c.recordFailure(err, map[string]any{"tx_id": t.ID, "parent_id": t.ParentID})
		return err
	}

	merged := t.Log.Operations()
	parent.Log.Append(merged)
	t.Savepoints.MergeInto(parent.Savepoints)
	if parent.Status == domain.TxPending && len(merged) > 0 {
		parent.Status = domain.TxActive
	}

	t.finish(domain.TxCommitted)
	metrics.TransactionsCompleted.WithLabelValues(string(domain.TxCommitted)).Inc()
	c.logger.Debug("nested transaction merged into parent",
		"tx_id", t.ID, "parent_id", parent.ID, "operations", len(merged))
	return nil
}

func (c *Coordinator) commitRoot(ctx context.Context, t *Context) error {
	ops := t.Log.Operations()

	err := recovery.ExecuteWithRetryIf(ctx, c.logger, c.retry, c.retryable,
		func(ctx context.Context) error {
			return c.store.RunInTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
				for i := range ops {
					if err := applyChange(ctx, tx, ops[i]); err != nil {
						return err
					}
				}
				return nil
			})
		})
	if err != nil {
		classified := c.classifier.Classify(err, t.ID)
		t.finish(domain.TxFailed)
		metrics.TransactionsCompleted.WithLabelValues(string(domain.TxFailed)).Inc()
		commitErr := domain.NewCommitFailed(t.ID, classified)
		c.recordFailure(commitErr, map[string]any{"tx_id": t.ID, "operations": len(ops)})
		c.logger.Error("commit failed", "tx_id", t.ID, "operations", len(ops), "error", classified)
		return commitErr
	}

	t.finish(domain.TxCommitted)
	c.samples.Record(recovery.StatusSuccess)
	metrics.TransactionsCompleted.WithLabelValues(string(domain.TxCommitted)).Inc()
	c.logger.Info("transaction committed", "tx_id", t.ID, "operations", len(ops))
	return nil
}

// Rollback undoes a transaction. Root rollbacks replay each
// operation's captured rollback data in reverse recording order inside
// one physical transaction; nested rollbacks discard their own log and
// savepoints without touching the parent or the store.
//
// Rollback runs to completion even when the triggering failure was a
// timeout: the caller's cancellation does not abort compensation.
func (c *Coordinator) Rollback(ctx context.Context, txID string) error {
	t := c.registry.Lookup(txID)
	if t == nil {
		c.logger.Warn("rollback on unknown transaction", "tx_id", txID)
		return domain.NewTransactionNotFound(txID)
	}
	if t.Status != domain.TxPending && t.Status != domain.TxActive {
		c.logger.Warn("rollback on non-active transaction", "tx_id", txID, "status", t.Status)
		return domain.NewInvalidTransactionState(txID, t.Status)
	}

	if !t.IsRoot {
		t.Log.Reset()
		t.Savepoints.Clear()
		t.finish(domain.TxRolledBack)
		metrics.TransactionsCompleted.WithLabelValues(string(domain.TxRolledBack)).Inc()
		c.logger.Debug("nested transaction rolled back", "tx_id", txID)
		return nil
	}

	ops := t.Log.Operations()
	rbCtx := context.WithoutCancel(ctx)

	err := c.store.RunInTransaction(rbCtx, func(ctx context.Context, tx storage.Tx) error {
		for i := len(ops) - 1; i >= 0; i-- {
			if err := compensateChange(ctx, tx, ops[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		classified := c.classifier.Classify(err, t.ID)
		t.finish(domain.TxFailed)
		metrics.TransactionsCompleted.WithLabelValues(string(domain.TxFailed)).Inc()
		rbErr := domain.NewRollbackFailed(t.ID, classified)
		c.recordFailure(rbErr, map[string]any{"tx_id": t.ID, "operations": len(ops)})
		c.logger.Error("rollback failed", "tx_id", t.ID, "operations", len(ops), "error", classified)
		return rbErr
	}

	t.Log.Reset()
	t.Savepoints.Clear()
	t.finish(domain.TxRolledBack)
	metrics.TransactionsCompleted.WithLabelValues(string(domain.TxRolledBack)).Inc()
	c.logger.Info("transaction rolled back", "tx_id", txID, "operations", len(ops))
	return nil
}

// CreateSavepoint snapshots the operation log under a new savepoint.
// The transaction must be ACTIVE.
func (c *Coordinator) CreateSavepoint(txID, name string, metadata map[string]any) (*Savepoint, error) {
	t, err := c.activeContext(txID, "create savepoint")
	if err != nil {
		return nil, err
	}

	sp := t.Savepoints.Create(t.ID, name, t.Log.Snapshot(), metadata)
	c.logger.Debug("savepoint created",
		"tx_id", txID, "savepoint_id", sp.ID, "name", name, "log_len", t.Log.Len())
	return sp, nil
}

// RollbackToSavepoint restores the operation log to the snapshot the
// savepoint captured, discarding everything recorded after it. It does
// not undo relational writes flushed outside a transaction boundary;
// writes are deferred until commit precisely so this stays in-memory.
func (c *Coordinator) RollbackToSavepoint(txID, savepointID string) error {
	t, err := c.activeContext(txID, "rollback to savepoint")
	if err != nil {
		return err
	}

	sp := t.Savepoints.Get(savepointID)
	if sp == nil {
		err := domain.NewSavepointError(txID, savepointID, errors.New("savepoint not found"))
		c.logger.Error("rollback to unknown savepoint", "tx_id", txID, "savepoint_id", savepointID)
		return err
	}

	t.Log.Restore(sp.Snapshot())
	c.logger.Debug("rolled back to savepoint",
		"tx_id", txID, "savepoint_id", savepointID, "log_len", t.Log.Len())
	return nil
}

// ReleaseSavepoint removes a savepoint without altering the log.
func (c *Coordinator) ReleaseSavepoint(txID, savepointID string) error {
	t, err := c.activeContext(txID, "release savepoint")
	if err != nil {
		return err
	}

	if !t.Savepoints.Remove(savepointID) {
		err := domain.NewSavepointError(txID, savepointID, errors.New("savepoint not found"))
		c.logger.Error("release of unknown savepoint", "tx_id", txID, "savepoint_id", savepointID)
		return err
	}
	c.logger.Debug("savepoint released", "tx_id", txID, "savepoint_id", savepointID)
	return nil
}

func (c *Coordinator) activeContext(txID, action string) (*Context, error) {
	t := c.registry.Lookup(txID)
	if t == nil {
		c.logger.Warn(action+" on unknown transaction", "tx_id", txID)
		return nil, domain.NewTransactionNotFound(txID)
	}
	if t.Status != domain.TxActive {
		c.logger.Warn(action+" on non-active transaction", "tx_id", txID, "status", t.Status)
		return nil, domain.NewInvalidTransactionState(txID, t.Status)
	}
	return t, nil
}

// ExecuteInTransaction begins a root transaction, runs fn, and commits
// on success or rolls back on failure. A secondary rollback failure is
// logged, never returned in place of fn's error.
func (c *Coordinator) ExecuteInTransaction(ctx context.Context, fn func(txID string) error) error {
	t := c.Begin(nil)
	if err := fn(t.ID); err != nil {
		if rbErr := c.Rollback(ctx, t.ID); rbErr != nil {
			c.logger.Error("rollback after failure also failed",
				"tx_id", t.ID, "rollback_error", rbErr, "error", err)
		}
		return err
	}
	return c.Commit(ctx, t.ID)
}

// ExecuteInNestedTransaction is ExecuteInTransaction for a child of
// parentID.
func (c *Coordinator) ExecuteInNestedTransaction(
	ctx context.Context,
	parentID string,
	fn func(txID string) error,
) error {
	t, err := c.BeginNested(parentID, nil)
	if err != nil {
		return err
	}
	if err := fn(t.ID); err != nil {
		if rbErr := c.Rollback(ctx, t.ID); rbErr != nil {
			c.logger.Error("nested rollback after failure also failed",
				"tx_id", t.ID, "rollback_error", rbErr, "error", err)
		}
		return err
	}
	return c.Commit(ctx, t.ID)
}

// DeleteCollectionInTransaction removes a collection and everything
// under it: chunk metadata, full-text rows, chunks, documents, then
// the collection row, all in one relational transaction. The matching
// vector-store cleanup runs afterwards as a best-effort side effect; a
// vector failure is logged and swallowed, left to the external GC pass
// to reconcile.
//
// Deleting an absent collection is an idempotent no-op.
func (c *Coordinator) DeleteCollectionInTransaction(ctx context.Context, collectionID string) error {
	col, err := c.store.Collections().GetByID(ctx, collectionID)
	if err != nil {
		classified := c.classifier.Classify(err, "")
		c.recordFailure(classified, map[string]any{"collection_id": collectionID})
		return classified
	}
	if col == nil {
		c.logger.Warn("delete requested for missing collection", "collection_id", collectionID)
		return nil
	}

	err = recovery.ExecuteWithRetryIf(ctx, c.logger, c.retry, c.retryable,
		func(ctx context.Context) error {
			return c.store.RunInTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
				if err := tx.ChunkMeta().DeleteByCollection(ctx, collectionID); err != nil {
					return err
				}
				if err := tx.ChunkIndex().DeleteByCollection(ctx, collectionID); err != nil {
					return err
				}
				if err := tx.Chunks().DeleteByCollection(ctx, collectionID); err != nil {
					return err
				}
				docs, err := tx.Documents().ListByCollection(ctx, collectionID)
				if err != nil {
					return err
				}
				for _, d := range docs {
					if err := tx.Documents().HardDelete(ctx, d.ID); err != nil {
						return err
					}
				}
				return tx.Collections().Delete(ctx, collectionID)
			})
		})
	if err != nil {
		classified := c.classifier.Classify(err, "")
		c.recordFailure(classified, map[string]any{"collection_id": collectionID})
		c.logger.Error("collection delete failed", "collection_id", collectionID, "error", classified)
		return classified
	}

	c.samples.Record(recovery.StatusSuccess)
	c.logger.Info("collection deleted", "collection_id", collectionID, "name", col.Name)

	if c.vectors != nil {
		if err := c.vectors.DeleteCollection(ctx, collectionID); err != nil {
			metrics.VectorCleanupFailures.Inc()
			c.errlog.RecordError(err, map[string]any{"collection_id": collectionID})
			c.logger.Warn("vector cleanup failed, left for reconciliation",
				"collection_id", collectionID, "error", err)
		}
	}
	return nil
}

// CleanupCompleted removes terminal contexts older than maxAge from
// the registry. maxAge <= 0 uses DefaultRetention. Housekeeping only;
// never touches physical storage.
func (c *Coordinator) CleanupCompleted(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultRetention
	}
	removed := c.registry.Sweep(maxAge)
	if removed > 0 {
		metrics.TransactionsSwept.Add(float64(removed))
		c.logger.Debug("swept completed transactions", "removed", removed, "max_age", maxAge)
	}
	return removed
}

// RootID walks parent links to the topmost known ancestor.
func (c *Coordinator) RootID(txID string) (string, error) {
	t := c.registry.Lookup(txID)
	if t == nil {
		return "", domain.NewTransactionNotFound(txID)
	}
	for t.ParentID != "" {
		parent := c.registry.Lookup(t.ParentID)
		if parent == nil {
			break // parent already swept; stop at the last known ancestor
		}
		t = parent
	}
	return t.ID, nil
}

// captureRollback fills in the change's before-image when update or
// delete needs one and the caller didn't supply it.
func (c *Coordinator) captureRollback(ctx context.Context, change domain.Change) (domain.Change, error) {
	switch ch := change.(type) {
	case domain.CollectionChange:
		if ch.Act != domain.ActionCreate && ch.Before == nil {
			before, err := c.store.Collections().GetByID(ctx, ch.ID)
			if err != nil {
				return nil, err
			}
			ch.Before = before
		}
		return ch, nil

	case domain.DocumentChange:
		if ch.Act != domain.ActionCreate && ch.Before == nil {
			before, err := c.store.Documents().GetByID(ctx, ch.ID)
			if err != nil {
				return nil, err
			}
			ch.Before = before
		}
		return ch, nil

	case domain.ChunkChange:
		if ch.Act != domain.ActionCreate && ch.Before == nil {
			before, err := c.store.Chunks().GetByID(ctx, ch.ID)
			if err != nil {
				return nil, err
			}
			ch.Before = before
		}
		return ch, nil
	}

	return change, nil
}

func (c *Coordinator) retryable(err error) bool {
	return c.classifier.Classify(err, "").Category.Retryable()
}

func (c *Coordinator) recordFailure(err error, context map[string]any) {
	c.errlog.RecordError(err, context)
	c.samples.Record(recovery.StatusError)
}

// applyChange executes one recorded operation against an open
// transaction. Create/update both land as Save (upsert); delete maps
// to the target's delete primitive.
func applyChange(ctx context.Context, cat storage.Catalog, op domain.Operation) error {
	switch ch := op.Change.(type) {
	case domain.CollectionChange:
		if ch.Act == domain.ActionDelete {
			return cat.Collections().Delete(ctx, ch.ID)
		}
		return cat.Collections().Save(ctx, ch.Data)

	case domain.DocumentChange:
		if ch.Act == domain.ActionDelete {
			return cat.Documents().HardDelete(ctx, ch.ID)
		}
		return cat.Documents().Save(ctx, ch.Data)

	case domain.ChunkChange:
		if ch.Act == domain.ActionDelete {
			return cat.Chunks().Delete(ctx, ch.ID)
		}
		return cat.Chunks().Save(ctx, ch.Data)
	}
	return nil
}

// compensateChange reverses one recorded operation using its captured
// rollback data: create deletes the created row, update restores the
// before-image, delete re-inserts it. Save is an upsert, so replaying
// compensation is idempotent.
func compensateChange(ctx context.Context, cat storage.Catalog, op domain.Operation) error {
	switch ch := op.Change.(type) {
	case domain.CollectionChange:
		if ch.Act == domain.ActionCreate {
			return cat.Collections().Delete(ctx, ch.ID)
		}
		if ch.Before != nil {
			return cat.Collections().Save(ctx, ch.Before)
		}

	case domain.DocumentChange:
		if ch.Act == domain.ActionCreate {
			return cat.Documents().HardDelete(ctx, ch.ID)
		}
		if ch.Before != nil {
			return cat.Documents().Save(ctx, ch.Before)
		}

	case domain.ChunkChange:
		if ch.Act == domain.ActionCreate {
			return cat.Chunks().Delete(ctx, ch.ID)
		}
		if ch.Before != nil {
			return cat.Chunks().Save(ctx, ch.Before)
		}
	}
	return nil
}
