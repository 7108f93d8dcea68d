package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ChunkMetaRepo implements storage.ChunkMetaRepository.
type ChunkMetaRepo struct {
	ext sqlx.ExtContext
}

// DeleteByCollection removes chunk metadata rows for a collection.
func (r *ChunkMetaRepo) DeleteByCollection(ctx context.Context, collectionID string) error {
	_, err := r.ext.ExecContext(ctx,
		`DELETE FROM chunk_meta WHERE collection_id = $1`, collectionID)
	if err != nil {
		return fmt.Errorf("failed to delete chunk meta by collection: %w", err)
	}
	return nil
}

// ChunkIndexRepo implements storage.ChunkIndexRepository over the
// full-text index table.
type ChunkIndexRepo struct {
	ext sqlx.ExtContext
}

// DeleteByCollection removes full-text rows for a collection.
func (r *ChunkIndexRepo) DeleteByCollection(ctx context.Context, collectionID string) error {
	_, err := r.ext.ExecContext(ctx,
		`DELETE FROM chunks_fts WHERE collection_id = $1`, collectionID)
	if err != nil {
		return fmt.Errorf("failed to delete full-text rows by collection: %w", err)
	}
	return nil
}
