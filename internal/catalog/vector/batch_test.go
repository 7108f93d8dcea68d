package vector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Mock Store
// =============================================================================

type mockStore struct {
	mu          sync.Mutex
	upsertCalls [][]Point
	deleteCalls [][]string
	wipedColls  []string

	// failNextUpserts injects errors into the next N upsert calls.
	failNextUpserts int
	failErr         error

	// failOnDeleteCall fails the Nth delete call (1-based), once.
	failOnDeleteCall int
	deleteCallCount  int
}

func (s *mockStore) UpsertBatch(ctx context.Context, collectionID string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNextUpserts > 0 {
		s.failNextUpserts--
		return s.failErr
	}
	cp := make([]Point, len(points))
	copy(cp, points)
	s.upsertCalls = append(s.upsertCalls, cp)
	return nil
}

func (s *mockStore) DeleteByIDs(ctx context.Context, collectionID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCallCount++
	if s.failOnDeleteCall > 0 && s.deleteCallCount == s.failOnDeleteCall {
		s.failOnDeleteCall = 0
		return s.failErr
	}
	cp := make([]string, len(ids))
	copy(cp, ids)
	s.deleteCalls = append(s.deleteCalls, cp)
	return nil
}

func (s *mockStore) DeleteByCollection(ctx context.Context, collectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.wipedColls = append(s.wipedColls, collectionID)
	return nil
}

func (s *mockStore) upsertedTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.upsertCalls {
		n += len(c)
	}
	return n
}

func makePoints(n int) []Point {
	pts := make([]Point, n)
	for i := range pts {
		pts[i] = Point{ID: fmt.Sprintf("p%d", i), Vector: []float32{float32(i)}}
	}
	return pts
}

func fastCfg(batchSize, concurrency int) Config {
	return Config{
		BatchSize:            batchSize,
		MaxConcurrentBatches: concurrency,
		MaxRetries:           3,
		RetryDelay:           time.Millisecond,
	}
}

// =============================================================================
// Upsert Tests
// =============================================================================

func TestUpsertAll_PartitionsAndReportsProgress(t *testing.T) {
	store := &mockStore{}
	op := NewBatchOperator(store, fastCfg(100, 4), nil)

	var mu sync.Mutex
	var updates []Progress
	err := op.UpsertAll(context.Background(), "col-1", makePoints(1000), func(p Progress) {
		mu.Lock()
		updates = append(updates, p)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("UpsertAll failed: %v", err)
	}

	if len(store.upsertCalls) != 10 {
		t.Errorf("store calls = %d, want 10", len(store.upsertCalls))
	}
	if store.upsertedTotal() != 1000 {
		t.Errorf("points written = %d, want 1000", store.upsertedTotal())
	}
	if len(updates) != 10 {
		t.Fatalf("progress updates = %d, want 10", len(updates))
	}

	// Processed never regresses, whatever order batches complete in
	prev := 0
	for i, p := range updates {
		if p.Processed < prev {
			t.Errorf("update %d: processed %d regressed below %d", i, p.Processed, prev)
		}
		prev = p.Processed
	}

	final := updates[len(updates)-1]
	want := Progress{Processed: 1000, Total: 1000, Percentage: 100, CurrentBatch: 10, TotalBatches: 10}
	if final != want {
		t.Errorf("final progress = %+v, want %+v", final, want)
	}
}

func TestUpsertAll_UnevenLastBatch(t *testing.T) {
	store := &mockStore{}
	op := NewBatchOperator(store, fastCfg(33, 1), nil)

	if err := op.UpsertAll(context.Background(), "col-1", makePoints(100), nil); err != nil {
		t.Fatalf("UpsertAll failed: %v", err)
	}

	if len(store.upsertCalls) != 4 {
		t.Fatalf("store calls = %d, want 4 (33+33+33+1)", len(store.upsertCalls))
	}
	if got := len(store.upsertCalls[3]); got != 1 {
		t.Errorf("last batch size = %d, want 1", got)
	}
}

func TestUpsertAll_EmptyInput(t *testing.T) {
	store := &mockStore{}
	op := NewBatchOperator(store, fastCfg(100, 4), nil)

	var got *Progress
	err := op.UpsertAll(context.Background(), "col-1", nil, func(p Progress) {
		got = &p
	})
	if err != nil {
		t.Fatalf("UpsertAll failed: %v", err)
	}
	if len(store.upsertCalls) != 0 {
		t.Errorf("store calls = %d, want 0", len(store.upsertCalls))
	}
	if got == nil || got.Percentage != 100 || got.Total != 0 {
		t.Errorf("progress = %+v, want one {Total:0, Percentage:100} callback", got)
	}
}

func TestUpsertAll_RetriesTransientFailures(t *testing.T) {
	store := &mockStore{
		failNextUpserts: 2,
		failErr:         errors.New("dial tcp: connection refused"),
	}
	op := NewBatchOperator(store, fastCfg(10, 1), nil)

	if err := op.UpsertAll(context.Background(), "col-1", makePoints(10), nil); err != nil {
		t.Fatalf("expected transient failures to be retried, got %v", err)
	}
	if store.upsertedTotal() != 10 {
		t.Errorf("points written = %d, want 10", store.upsertedTotal())
	}
}

func TestUpsertAll_NonRetryableAborts(t *testing.T) {
	store := &mockStore{
		failNextUpserts: 1,
		failErr:         errors.New("payload too large"),
	}
	op := NewBatchOperator(store, fastCfg(10, 1), nil)

	err := op.UpsertAll(context.Background(), "col-1", makePoints(50), nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	// First batch failed and nothing was retried; already-applied
	// batches are never rolled back, but here none succeeded first.
	if store.upsertedTotal() != 0 {
		t.Errorf("points written = %d, want 0", store.upsertedTotal())
	}
}

// =============================================================================
// Delete Tests
// =============================================================================

func TestDeleteAll_ReturnsCount(t *testing.T) {
	store := &mockStore{}
	op := NewBatchOperator(store, fastCfg(2, 1), nil)

	count, err := op.DeleteAll(context.Background(), "col-1", []string{"a", "b", "c"}, nil)
	if err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if len(store.deleteCalls) != 2 {
		t.Errorf("store calls = %d, want 2 (2+1)", len(store.deleteCalls))
	}
}

func TestDeleteAll_MidBatchFailure(t *testing.T) {
	store := &mockStore{
		failOnDeleteCall: 2,
		failErr:          errors.New("malformed id"),
	}
	op := NewBatchOperator(store, fastCfg(33, 1), nil)

	ids := make([]string, 100)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%d", i)
	}

	count, err := op.DeleteAll(context.Background(), "col-1", ids, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if count != 0 {
		t.Errorf("count = %d, want 0 on failure", count)
	}
	// The first batch landed before the failure and stays applied.
	if len(store.deleteCalls) != 1 {
		t.Errorf("applied batches = %d, want 1", len(store.deleteCalls))
	}
}

func TestDeleteCollection(t *testing.T) {
	store := &mockStore{}
	op := NewBatchOperator(store, fastCfg(100, 1), nil)

	if err := op.DeleteCollection(context.Background(), "col-9"); err != nil {
		t.Fatalf("DeleteCollection failed: %v", err)
	}
	if len(store.wipedColls) != 1 || store.wipedColls[0] != "col-9" {
		t.Errorf("wiped = %v, want [col-9]", store.wipedColls)
	}
}
