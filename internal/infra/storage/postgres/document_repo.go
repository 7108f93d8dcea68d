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

// DocumentRepo implements storage.DocumentRepository.
type DocumentRepo struct {
	ext sqlx.ExtContext
}

type documentRow struct {
	ID           string    `db:"id"`
	CollectionID string    `db:"collection_id"`
	Title        string    `db:"title"`
	SourceURL    string    `db:"source_url"`
	Content      string    `db:"content"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r *documentRow) toDomain() *domain.Document {
	return &domain.Document{
		ID:           r.ID,
		CollectionID: r.CollectionID,
		Title:        r.Title,
		SourceURL:    r.SourceURL,
		Content:      r.Content,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// GetByID retrieves a document by id, nil if absent.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	query := `
		SELECT id, collection_id, title, source_url, content, created_at, updated_at
		FROM documents
		WHERE id = $1
	`

	var row documentRow
	err := sqlx.GetContext(ctx, r.ext, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return row.toDomain(), nil
}

// Save inserts or overwrites a document row.
func (r *DocumentRepo) Save(ctx context.Context, d *domain.Document) error {
	query := `
		INSERT INTO documents (id, collection_id, title, source_url, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			collection_id = EXCLUDED.collection_id,
			title = EXCLUDED.title,
			source_url = EXCLUDED.source_url,
			content = EXCLUDED.content,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.ext.ExecContext(ctx, query,
		d.ID,
		d.CollectionID,
		d.Title,
		d.SourceURL,
		d.Content,
		d.CreatedAt,
		d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// HardDelete removes a document row permanently.
func (r *DocumentRepo) HardDelete(ctx context.Context, id string) error {
	_, err := r.ext.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// ListByCollection retrieves all documents in a collection.
func (r *DocumentRepo) ListByCollection(
	ctx context.Context,
	collectionID string,
) ([]*domain.Document, error) {
	query := `
		SELECT id, collection_id, title, source_url, content, created_at, updated_at
		FROM documents
		WHERE collection_id = $1
		ORDER BY created_at
	`

	var rows []documentRow
	if err := sqlx.SelectContext(ctx, r.ext, &rows, query, collectionID); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	docs := make([]*domain.Document, len(rows))
	for i := range rows {
		docs[i] = rows[i].toDomain()
	}
	return docs, nil
}
