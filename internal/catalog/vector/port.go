package vector

import "context"

// Point is one embedding with its payload, keyed by the chunk id.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Store is the vector-store port. Each method is a single network call
// per invocation; retries belong to the BatchOperator, never here.
type Store interface {
	// UpsertBatch writes points into a collection
	UpsertBatch(ctx context.Context, collectionID string, points []Point) error

	// DeleteByIDs removes points by id
	DeleteByIDs(ctx context.Context, collectionID string, ids []string) error

	// DeleteByCollection removes every point in a collection
	DeleteByCollection(ctx context.Context, collectionID string) error
}

// Discard is a Store that accepts and drops everything. Used when no
// vector backend is configured.
type Discard struct{}

func (Discard) UpsertBatch(ctx context.Context, collectionID string, points []Point) error {
	return nil
}

func (Discard) DeleteByIDs(ctx context.Context, collectionID string, ids []string) error {
	return nil
}

func (Discard) DeleteByCollection(ctx context.Context, collectionID string) error {
	return nil
}
