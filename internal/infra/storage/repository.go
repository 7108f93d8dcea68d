package storage

import (
	"context"
	"errors"

	"github.com/vietddude/corpus/internal/core/domain"
)

var (
	// ErrNotFound is returned when a catalog row doesn't exist
	ErrNotFound = errors.New("row not found")
)

// CollectionRepository handles collection rows
type CollectionRepository interface {
	// GetByID retrieves a collection, nil if absent
	GetByID(ctx context.Context, id string) (*domain.Collection, error)

	// Save inserts or overwrites a collection row
	Save(ctx context.Context, c *domain.Collection) error

	// Delete removes a collection row; deleting an absent row is a no-op
	Delete(ctx context.Context, id string) error
}

// DocumentRepository handles document rows
type DocumentRepository interface {
	// GetByID retrieves a document, nil if absent
	GetByID(ctx context.Context, id string) (*domain.Document, error)

	// Save inserts or overwrites a document row
	Save(ctx context.Context, d *domain.Document) error

	// HardDelete removes a document row permanently
	HardDelete(ctx context.Context, id string) error

	// ListByCollection retrieves all documents in a collection
	ListByCollection(ctx context.Context, collectionID string) ([]*domain.Document, error)
}

// ChunkRepository handles chunk rows
type ChunkRepository interface {
	// GetByID retrieves a chunk, nil if absent
	GetByID(ctx context.Context, id string) (*domain.Chunk, error)

	// Save inserts or overwrites a chunk row
	Save(ctx context.Context, c *domain.Chunk) error

	// Delete removes a chunk row; deleting an absent row is a no-op
	Delete(ctx context.Context, id string) error

	// DeleteByCollection removes every chunk in a collection
	DeleteByCollection(ctx context.Context, collectionID string) error
}

// ChunkMetaRepository handles per-chunk metadata rows
type ChunkMetaRepository interface {
	// DeleteByCollection removes chunk metadata for a collection
	DeleteByCollection(ctx context.Context, collectionID string) error
}

// ChunkIndexRepository handles the full-text index rows
type ChunkIndexRepository interface {
	// DeleteByCollection removes full-text rows for a collection
	DeleteByCollection(ctx context.Context, collectionID string) error
}

// Catalog bundles the repositories one store exposes.
type Catalog interface {
	Collections() CollectionRepository
	Documents() DocumentRepository
	Chunks() ChunkRepository
	ChunkMeta() ChunkMetaRepository
	ChunkIndex() ChunkIndexRepository
}

// Tx is a Catalog whose writes all land in one open database
// transaction, plus the driver's savepoint primitives.
type Tx interface {
	Catalog

	// CreateSavepoint issues SAVEPOINT and returns its id
	CreateSavepoint(ctx context.Context, name string) (string, error)

	// RollbackToSavepoint issues ROLLBACK TO SAVEPOINT
	RollbackToSavepoint(ctx context.Context, id string) error

	// ReleaseSavepoint issues RELEASE SAVEPOINT
	ReleaseSavepoint(ctx context.Context, id string) error
}

// Relational is the transactional port the coordinator drives.
// Repository methods reached through the embedded Catalog auto-commit;
// writes that must be atomic go through RunInTransaction.
type Relational interface {
	Catalog

	// RunInTransaction begins a transaction, runs fn, and commits.
	// Any error from fn rolls the transaction back and is returned.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
