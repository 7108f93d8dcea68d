package txn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/corpus/internal/catalog/recovery"
	"github.com/vietddude/corpus/internal/catalog/vector"
	"github.com/vietddude/corpus/internal/core/domain"
	"github.com/vietddude/corpus/internal/infra/storage/memory"
)

// =============================================================================
// Mock Vector Store
// =============================================================================

type mockVectorStore struct {
	mu     sync.Mutex
	wiped  []string
	err    error
}

func (s *mockVectorStore) UpsertBatch(ctx context.Context, collectionID string, points []vector.Point) error {
	return s.err
}

func (s *mockVectorStore) DeleteByIDs(ctx context.Context, collectionID string, ids []string) error {
	return s.err
}

func (s *mockVectorStore) DeleteByCollection(ctx context.Context, collectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.wiped = append(s.wiped, collectionID)
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func newTestCoordinator(t *testing.T) (*Coordinator, *memory.MemoryStorage, *mockVectorStore) {
	t.Helper()
	store := memory.NewMemoryStorage()
	vec := &mockVectorStore{}
	operator := vector.NewBatchOperator(vec, vector.Config{
		BatchSize:  100,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	}, nil)

	coord := NewCoordinator(Config{
		Store:   store,
		Vectors: operator,
		Retry: recovery.RetryConfig{
			MaxRetries:      1,
			RetryDelay:      time.Millisecond,
			BackoffMultiple: 1.0,
			MaxDelay:        time.Millisecond,
		},
	})
	return coord, store, vec
}

func createCollection(id, name string) domain.Change {
	return domain.CollectionChange{
		Act: domain.ActionCreate,
		ID:  id,
		Data: &domain.Collection{
			ID:        id,
			Name:      name,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		},
	}
}

func createDocument(id, collectionID string) domain.Change {
	return domain.DocumentChange{
		Act: domain.ActionCreate,
		ID:  id,
		Data: &domain.Document{
			ID:           id,
			CollectionID: collectionID,
			Title:        "doc " + id,
		},
	}
}

func wantCategory(t *testing.T, err error, cat domain.ErrorCategory) {
	t.Helper()
	if got := domain.CategoryOf(err); got != cat {
		t.Fatalf("error category = %s, want %s (err: %v)", got, cat, err)
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestCommit_AppliesBufferedOperations(t *testing.T) {
	coord, store, _ := newTestCoordinator(t)
	ctx := context.Background()

	tx := coord.Begin(nil)
	if tx.Status != domain.TxPending {
		t.Fatalf("status = %s, want pending", tx.Status)
	}

	if err := coord.Execute(ctx, tx.ID, createCollection("c1", "papers")); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if tx.Status != domain.TxActive {
		t.Errorf("status = %s, want active after first operation", tx.Status)
	}

	if err := coord.Execute(ctx, tx.ID, createDocument("d1", "c1")); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	// Nothing hits storage until commit
	if cols, docs, _ := store.Counts(); cols != 0 || docs != 0 {
		t.Fatalf("store touched before commit: %d collections, %d documents", cols, docs)
	}

	if err := coord.Commit(ctx, tx.ID); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if tx.Status != domain.TxCommitted {
		t.Errorf("status = %s, want committed", tx.Status)
	}

	cols, docs, _ := store.Counts()
	if cols != 1 || docs != 1 {
		t.Errorf("store = %d collections, %d documents, want 1 and 1", cols, docs)
	}
}

func TestRollback_DiscardsBufferedOperations(t *testing.T) {
	coord, store, _ := newTestCoordinator(t)
	ctx := context.Background()

	// Seed a row that a buffered update must not clobber
	orig := &domain.Collection{ID: "c1", Name: "old"}
	if err := store.Collections().Save(ctx, orig); err != nil {
		t.Fatal(err)
	}

	tx := coord.Begin(nil)
	update := domain.CollectionChange{
		Act:  domain.ActionUpdate,
		ID:   "c1",
		Data: &domain.Collection{ID: "c1", Name: "new"},
	}
	if err := coord.Execute(ctx, tx.ID, update); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if err := coord.Execute(ctx, tx.ID, createCollection("c2", "scratch")); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if err := coord.Rollback(ctx, tx.ID); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if tx.Status != domain.TxRolledBack {
		t.Errorf("status = %s, want rolled_back", tx.Status)
	}
	if tx.Log.Len() != 0 {
		t.Errorf("log len = %d, want 0 after rollback", tx.Log.Len())
	}

	got, err := store.Collections().GetByID(ctx, "c1")
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v, %v", got, err)
	}
	if got.Name != "old" {
		t.Errorf("name = %q, want old", got.Name)
	}
	if c2, _ := store.Collections().GetByID(ctx, "c2"); c2 != nil {
		t.Error("rolled-back create must not exist")
	}
}

func TestExecute_CapturesBeforeImage(t *testing.T) {
	coord, store, _ := newTestCoordinator(t)
	ctx := context.Background()

	if err := store.Collections().Save(ctx, &domain.Collection{ID: "c1", Name: "old"}); err != nil {
		t.Fatal(err)
	}

	tx := coord.Begin(nil)
	update := domain.CollectionChange{
		Act:  domain.ActionUpdate,
		ID:   "c1",
		Data: &domain.Collection{ID: "c1", Name: "new"},
	}
	if err := coord.Execute(ctx, tx.ID, update); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	ops := tx.Log.Operations()
	if len(ops) != 1 {
		t.Fatalf("log len = %d, want 1", len(ops))
	}
	ch, ok := ops[0].Change.(domain.CollectionChange)
	if !ok {
		t.Fatalf("change type = %T, want CollectionChange", ops[0].Change)
	}
	if ch.Before == nil || ch.Before.Name != "old" {
		t.Errorf("before-image = %+v, want the stored row", ch.Before)
	}
}

func TestLifecycle_StateErrors(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	wantCategory(t, coord.Execute(ctx, "missing", createCollection("c", "x")),
		domain.ErrTransactionNotFound)
	wantCategory(t, coord.Commit(ctx, "missing"), domain.ErrTransactionNotFound)
	wantCategory(t, coord.Rollback(ctx, "missing"), domain.ErrTransactionNotFound)

	tx := coord.Begin(nil)
	if err := coord.Commit(ctx, tx.ID); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// Terminal transactions reject everything
	wantCategory(t, coord.Execute(ctx, tx.ID, createCollection("c", "x")),
		domain.ErrInvalidTransactionState)
	wantCategory(t, coord.Commit(ctx, tx.ID), domain.ErrInvalidTransactionState)
	wantCategory(t, coord.Rollback(ctx, tx.ID), domain.ErrInvalidTransactionState)
}

// =============================================================================
// Nested Transaction Tests
// =============================================================================

func TestNestedCommit_MergesIntoParent(t *testing.T) {
	coord, store, _ := newTestCoordinator(t)
	ctx := context.Background()

	root := coord.Begin(nil)
	child, err := coord.BeginNested(root.ID, nil)
	if err != nil {
		t.Fatalf("BeginNested failed: %v", err)
	}
	if child.Level != 1 || child.ParentID != root.ID {
		t.Errorf("child level/parent = %d/%s, want 1/%s", child.Level, child.ParentID, root.ID)
	}

	if err := coord.Execute(ctx, child.ID, createCollection("c1", "papers")); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if err := coord.Commit(ctx, child.ID); err != nil {
		t.Fatalf("nested Commit failed: %v", err)
	}
	if child.Status != domain.TxCommitted {
		t.Errorf("child status = %s, want committed", child.Status)
	}

	// Nested commit only merges; storage untouched
	if cols, _, _ := store.Counts(); cols != 0 {
		t.Fatalf("store touched by nested commit: %d collections", cols)
	}
	if root.Log.Len() != 1 {
		t.Fatalf("parent log len = %d, want 1", root.Log.Len())
	}

	if err := coord.Commit(ctx, root.ID); err != nil {
		t.Fatalf("root Commit failed: %v", err)
	}
	if cols, _, _ := store.Counts(); cols != 1 {
		t.Errorf("store = %d collections, want 1", cols)
	}
}

func TestNestedRollback_LeavesParentUntouched(t *testing.T) {
	coord, store, _ := newTestCoordinator(t)
	ctx := context.Background()

	root := coord.Begin(nil)
	if err := coord.Execute(ctx, root.ID, createCollection("c1", "keep")); err != nil {
		t.Fatal(err)
	}

	child, err := coord.BeginNested(root.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := coord.Execute(ctx, child.ID, createCollection("c2", "discard")); err != nil {
		t.Fatal(err)
	}

	if err := coord.Rollback(ctx, child.ID); err != nil {
		t.Fatalf("nested Rollback failed: %v", err)
	}
	if root.Log.Len() != 1 {
		t.Fatalf("parent log len = %d, want 1", root.Log.Len())
	}

	if err := coord.Commit(ctx, root.ID); err != nil {
		t.Fatalf("root Commit failed: %v", err)
	}

	if c1, _ := store.Collections().GetByID(ctx, "c1"); c1 == nil {
		t.Error("parent's operation should be applied")
	}
	if c2, _ := store.Collections().GetByID(ctx, "c2"); c2 != nil {
		t.Error("rolled-back child's operation must not be applied")
	}
}

func TestBeginNested_Errors(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := coord.BeginNested("missing", nil)
	wantCategory(t, err, domain.ErrTransactionNotFound)

	root := coord.Begin(nil)
	if err := coord.Commit(ctx, root.ID); err != nil {
		t.Fatal(err)
	}
	_, err = coord.BeginNested(root.ID, nil)
	wantCategory(t, err, domain.ErrInvalidTransactionState)
}

func TestRootID_WalksParentChain(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)

	root := coord.Begin(nil)
	n1, err := coord.BeginNested(root.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	n2, err := coord.BeginNested(n1.ID, nil)
	if err != nil {
		t.Fatal(err)
	}

	got, err := coord.RootID(n2.ID)
	if err != nil {
		t.Fatalf("RootID failed: %v", err)
	}
	if got != root.ID {
		t.Errorf("RootID = %s, want %s", got, root.ID)
	}

	if _, err := coord.RootID("missing"); err == nil {
		t.Error("expected an error for an unknown transaction")
	}
}

// =============================================================================
// Savepoint Tests
// =============================================================================

func TestSavepoint_RollbackRestoresLog(t *testing.T) {
	coord, store, _ := newTestCoordinator(t)
	ctx := context.Background()

	tx := coord.Begin(nil)
	if err := coord.Execute(ctx, tx.ID, createCollection("c1", "keep")); err != nil {
		t.Fatal(err)
	}

	sp, err := coord.CreateSavepoint(tx.ID, "after-c1", nil)
	if err != nil {
		t.Fatalf("CreateSavepoint failed: %v", err)
	}

	if err := coord.Execute(ctx, tx.ID, createCollection("c2", "discard")); err != nil {
		t.Fatal(err)
	}
	if tx.Log.Len() != 2 {
		t.Fatalf("log len = %d, want 2", tx.Log.Len())
	}

	if err := coord.RollbackToSavepoint(tx.ID, sp.ID); err != nil {
		t.Fatalf("RollbackToSavepoint failed: %v", err)
	}
	if tx.Log.Len() != 1 {
		t.Fatalf("log len = %d, want 1 after savepoint rollback", tx.Log.Len())
	}

	if err := coord.Commit(ctx, tx.ID); err != nil {
		t.Fatal(err)
	}
	if c2, _ := store.Collections().GetByID(ctx, "c2"); c2 != nil {
		t.Error("operation recorded after the savepoint must not be applied")
	}
	if c1, _ := store.Collections().GetByID(ctx, "c1"); c1 == nil {
		t.Error("operation recorded before the savepoint should be applied")
	}
}

func TestSavepoint_ReleaseKeepsLog(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	tx := coord.Begin(nil)
	if err := coord.Execute(ctx, tx.ID, createCollection("c1", "x")); err != nil {
		t.Fatal(err)
	}
	sp, err := coord.CreateSavepoint(tx.ID, "sp", nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := coord.ReleaseSavepoint(tx.ID, sp.ID); err != nil {
		t.Fatalf("ReleaseSavepoint failed: %v", err)
	}
	if tx.Log.Len() != 1 {
		t.Errorf("log len = %d, release must not alter the log", tx.Log.Len())
	}

	wantCategory(t, coord.RollbackToSavepoint(tx.ID, sp.ID), domain.ErrSavepoint)
	wantCategory(t, coord.ReleaseSavepoint(tx.ID, sp.ID), domain.ErrSavepoint)
}

func TestSavepoint_RequiresActiveTransaction(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)

	tx := coord.Begin(nil) // pending, no operations yet
	_, err := coord.CreateSavepoint(tx.ID, "sp", nil)
	wantCategory(t, err, domain.ErrInvalidTransactionState)

	_, err = coord.CreateSavepoint("missing", "sp", nil)
	wantCategory(t, err, domain.ErrTransactionNotFound)
}

func TestSavepoint_MergedIntoParentOnNestedCommit(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	root := coord.Begin(nil)
	child, err := coord.BeginNested(root.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := coord.Execute(ctx, child.ID, createCollection("c1", "x")); err != nil {
		t.Fatal(err)
	}
	sp, err := coord.CreateSavepoint(child.ID, "child-sp", nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := coord.Commit(ctx, child.ID); err != nil {
		t.Fatal(err)
	}
	if root.Savepoints.Get(sp.ID) == nil {
		t.Error("child savepoints should merge into the parent on commit")
	}
}

// =============================================================================
// Convenience Wrapper Tests
// =============================================================================

func TestExecuteInTransaction(t *testing.T) {
	coord, store, _ := newTestCoordinator(t)
	ctx := context.Background()

	err := coord.ExecuteInTransaction(ctx, func(txID string) error {
		return coord.Execute(ctx, txID, createCollection("c1", "x"))
	})
	if err != nil {
		t.Fatalf("ExecuteInTransaction failed: %v", err)
	}
	if cols, _, _ := store.Counts(); cols != 1 {
		t.Errorf("store = %d collections, want 1", cols)
	}

	boom := errors.New("boom")
	err = coord.ExecuteInTransaction(ctx, func(txID string) error {
		if err := coord.Execute(ctx, txID, createCollection("c2", "y")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the callback's error", err)
	}
	if c2, _ := store.Collections().GetByID(ctx, "c2"); c2 != nil {
		t.Error("failed callback must leave no writes behind")
	}
}

func TestExecuteInNestedTransaction(t *testing.T) {
	coord, store, _ := newTestCoordinator(t)
	ctx := context.Background()

	root := coord.Begin(nil)
	err := coord.ExecuteInNestedTransaction(ctx, root.ID, func(txID string) error {
		return coord.Execute(ctx, txID, createCollection("c1", "x"))
	})
	if err != nil {
		t.Fatalf("ExecuteInNestedTransaction failed: %v", err)
	}
	if root.Log.Len() != 1 {
		t.Fatalf("parent log len = %d, want 1", root.Log.Len())
	}
	if err := coord.Commit(ctx, root.ID); err != nil {
		t.Fatal(err)
	}
	if cols, _, _ := store.Counts(); cols != 1 {
		t.Errorf("store = %d collections, want 1", cols)
	}
}

// =============================================================================
// Collection Delete Tests
// =============================================================================

func TestDeleteCollectionInTransaction(t *testing.T) {
	coord, store, vec := newTestCoordinator(t)
	ctx := context.Background()

	if err := store.Collections().Save(ctx, &domain.Collection{ID: "c1", Name: "papers"}); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"d1", "d2"} {
		if err := store.Documents().Save(ctx, &domain.Document{ID: id, CollectionID: "c1"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Chunks().Save(ctx, &domain.Chunk{ID: "ch1", DocumentID: "d1", CollectionID: "c1"}); err != nil {
		t.Fatal(err)
	}
	store.SetChunkMeta("ch1", "c1")

	if err := coord.DeleteCollectionInTransaction(ctx, "c1"); err != nil {
		t.Fatalf("DeleteCollectionInTransaction failed: %v", err)
	}

	cols, docs, chunks := store.Counts()
	if cols != 0 || docs != 0 || chunks != 0 {
		t.Errorf("store = %d/%d/%d, want everything gone", cols, docs, chunks)
	}
	if len(vec.wiped) != 1 || vec.wiped[0] != "c1" {
		t.Errorf("vector wiped = %v, want [c1]", vec.wiped)
	}
}

func TestDeleteCollectionInTransaction_MissingIsNoop(t *testing.T) {
	coord, _, vec := newTestCoordinator(t)

	if err := coord.DeleteCollectionInTransaction(context.Background(), "ghost"); err != nil {
		t.Fatalf("err = %v, want nil for a missing collection", err)
	}
	if len(vec.wiped) != 0 {
		t.Errorf("vector wiped = %v, want none", vec.wiped)
	}
}

func TestDeleteCollectionInTransaction_VectorFailureSwallowed(t *testing.T) {
	coord, store, vec := newTestCoordinator(t)
	ctx := context.Background()

	if err := store.Collections().Save(ctx, &domain.Collection{ID: "c1", Name: "papers"}); err != nil {
		t.Fatal(err)
	}
	vec.err = errors.New("index rebuild in progress")

	if err := coord.DeleteCollectionInTransaction(ctx, "c1"); err != nil {
		t.Fatalf("vector failure must not fail the delete, got %v", err)
	}
	if cols, _, _ := store.Counts(); cols != 0 {
		t.Errorf("store = %d collections, want 0", cols)
	}
	if coord.ErrorLog().Len() == 0 {
		t.Error("swallowed vector failure should still be recorded")
	}
}

// =============================================================================
// Cleanup Tests
// =============================================================================

func TestCleanupCompleted(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	old := coord.Begin(nil)
	if err := coord.Commit(ctx, old.ID); err != nil {
		t.Fatal(err)
	}
	old.StartedAt = time.Now().Add(-time.Hour)

	fresh := coord.Begin(nil)
	if err := coord.Commit(ctx, fresh.ID); err != nil {
		t.Fatal(err)
	}

	stale := coord.Begin(nil) // pending, old, must survive
	stale.StartedAt = time.Now().Add(-time.Hour)

	removed := coord.CleanupCompleted(30 * time.Minute)
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if coord.Registry().Lookup(old.ID) != nil {
		t.Error("old terminal transaction should be swept")
	}
	if coord.Registry().Lookup(fresh.ID) == nil {
		t.Error("fresh terminal transaction should stay")
	}
	if coord.Registry().Lookup(stale.ID) == nil {
		t.Error("pending transaction must never be swept")
	}
}
