package postgres

import (
	"context"
	"errors"

	"github.com/and161185/gophnote/internal/errs"
	"github.com/jackc/pgx/v5"
)

// ShareRepo implements ShareRepository using PostgreSQL.
type ShareRepo struct{ db *DB }

// NewShareRepo constructs a share link repository.
func NewShareRepo(db *DB) *ShareRepo { return &ShareRepo{db: db} }

// Put upserts the link -> path mapping.
func (r *ShareRepo) Put(ctx context.Context, linkID, path string) error {
	const q = `
INSERT INTO share_links (link_id, path) VALUES ($1, $2)
ON CONFLICT (link_id) DO UPDATE SET path = EXCLUDED.path`
	_, err := r.db.Pool.Exec(ctx, q, linkID, path)
	return err
}

// Get resolves a link id to its note path.
func (r *ShareRepo) Get(ctx context.Context, linkID string) (string, error) {
	const q = `SELECT path FROM share_links WHERE link_id=$1`
	var path string
	if err := r.db.Pool.QueryRow(ctx, q, linkID).Scan(&path); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", errs.ErrNotFound
		}
		return "", err
	}
	return path, nil
}

// Delete removes the mapping.
func (r *ShareRepo) Delete(ctx context.Context, linkID string) error {
	const q = `DELETE FROM share_links WHERE link_id=$1`
	_, err := r.db.Pool.Exec(ctx, q, linkID)
	return err
}
