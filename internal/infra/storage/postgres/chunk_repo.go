package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/corpus/internal/core/domain"
)

// ChunkRepo implements storage.ChunkRepository.
type ChunkRepo struct {
	ext sqlx.ExtContext
}

type chunkRow struct {
	ID           string    `db:"id"`
	DocumentID   string    `db:"document_id"`
	CollectionID string    `db:"collection_id"`
	Seq          int       `db:"seq"`
	Content      string    `db:"content"`
	TokenCount   int       `db:"token_count"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r *chunkRow) toDomain() *domain.Chunk {
	return &domain.Chunk{
		ID:           r.ID,
		DocumentID:   r.DocumentID,
		CollectionID: r.CollectionID,
		Seq:          r.Seq,
		Content:      r.Content,
		TokenCount:   r.TokenCount,
		CreatedAt:    r.CreatedAt,
	}
}

// GetByID retrieves a chunk by id, nil if absent.
func (r *ChunkRepo) GetByID(ctx context.Context, id string) (*domain.Chunk, error) {
	query := `
		SELECT id, document_id, collection_id, seq, content, token_count, created_at
		FROM chunks
		WHERE id = $1
	`

	var row chunkRow
	err := sqlx.GetContext(ctx, r.ext, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	return row.toDomain(), nil
}

// Save inserts or overwrites a chunk row.
func (r *ChunkRepo) Save(ctx context.Context, c *domain.Chunk) error {
	query := `
		INSERT INTO chunks (id, document_id, collection_id, seq, content, token_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			collection_id = EXCLUDED.collection_id,
			seq = EXCLUDED.seq,
			content = EXCLUDED.content,
			token_count = EXCLUDED.token_count
	`

	_, err := r.ext.ExecContext(ctx, query,
		c.ID,
		c.DocumentID,
		c.CollectionID,
		c.Seq,
		c.Content,
		c.TokenCount,
		c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save chunk: %w", err)
	}
	return nil
}

// Delete removes a chunk row. Deleting an absent row is a no-op.
func (r *ChunkRepo) Delete(ctx context.Context, id string) error {
	_, err := r.ext.ExecContext(ctx, `DELETE FROM chunks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete chunk: %w", err)
	}
	return nil
}

// DeleteByCollection removes every chunk in a collection.
func (r *ChunkRepo) DeleteByCollection(ctx context.Context, collectionID string) error {
	_, err := r.ext.ExecContext(ctx, `DELETE FROM chunks WHERE collection_id = $1`, collectionID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks by collection: %w", err)
	}
	return nil
}
