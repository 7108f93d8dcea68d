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

// CollectionRepo implements storage.CollectionRepository over either a
// connection pool or an open transaction.
type CollectionRepo struct {
	ext sqlx.ExtContext
}

type collectionRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r *collectionRow) toDomain() *domain.Collection {
	return &domain.Collection{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// GetByID retrieves a collection by id, nil if absent.
func (r *CollectionRepo) GetByID(ctx context.Context, id string) (*domain.Collection, error) {
	query := `
		SELECT id, name, description, created_at, updated_at
		FROM collections
		WHERE id = $1
	`

	var row collectionRow
	err := sqlx.GetContext(ctx, r.ext, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	return row.toDomain(), nil
}

// Save inserts or overwrites a collection row.
func (r *CollectionRepo) Save(ctx context.Context, c *domain.Collection) error {
	query := `
		INSERT INTO collections (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.ext.ExecContext(ctx, query,
		c.ID,
		c.Name,
		c.Description,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save collection: %w", err)
	}
	return nil
}

// Delete removes a collection row. Deleting an absent row is a no-op.
func (r *CollectionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.ext.ExecContext(ctx, `DELETE FROM collections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}
