package postgres

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/corpus/internal/infra/storage"
)

// UnitOfWork exposes the repositories over one open transaction plus
// the driver's savepoint primitives. Created by DB.RunInTransaction.
type UnitOfWork struct {
	tx  *sqlx.Tx
	seq int
}

func (u *UnitOfWork) Collections() storage.CollectionRepository { return &CollectionRepo{ext: u.tx} }
func (u *UnitOfWork) Documents() storage.DocumentRepository     { return &DocumentRepo{ext: u.tx} }
func (u *UnitOfWork) Chunks() storage.ChunkRepository           { return &ChunkRepo{ext: u.tx} }
func (u *UnitOfWork) ChunkMeta() storage.ChunkMetaRepository    { return &ChunkMetaRepo{ext: u.tx} }
func (u *UnitOfWork) ChunkIndex() storage.ChunkIndexRepository  { return &ChunkIndexRepo{ext: u.tx} }

// savepointIDRe guards against injecting anything but ids this unit of
// work generated (identifiers cannot be parameterized).
var savepointIDRe = regexp.MustCompile(`^sp_[0-9]+$`)

// CreateSavepoint issues SAVEPOINT and returns a generated id. The
// caller-supplied name is a label only; the SQL identifier is always
// generated here.
func (u *UnitOfWork) CreateSavepoint(ctx context.Context, name string) (string, error) {
	u.seq++
	id := fmt.Sprintf("sp_%d", u.seq)

	if _, err := u.tx.ExecContext(ctx, "SAVEPOINT "+id); err != nil {
		return "", fmt.Errorf("failed to create savepoint %q: %w", name, err)
	}
	return id, nil
}

// RollbackToSavepoint issues ROLLBACK TO SAVEPOINT.
func (u *UnitOfWork) RollbackToSavepoint(ctx context.Context, id string) error {
	if !savepointIDRe.MatchString(id) {
		return fmt.Errorf("invalid savepoint id %q", id)
	}
	if _, err := u.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+id); err != nil {
		return fmt.Errorf("failed to rollback to savepoint %s: %w", id, err)
	}
	return nil
}

// ReleaseSavepoint issues RELEASE SAVEPOINT.
func (u *UnitOfWork) ReleaseSavepoint(ctx context.Context, id string) error {
	if !savepointIDRe.MatchString(id) {
		return fmt.Errorf("invalid savepoint id %q", id)
	}
	if _, err := u.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+id); err != nil {
		return fmt.Errorf("failed to release savepoint %s: %w", id, err)
	}
	return nil
}
