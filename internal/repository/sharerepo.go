package repository

import "context"

// ShareRepository maps share link ids to note paths.
type ShareRepository interface {
	// Put records (or replaces) the mapping linkID -> path.
	Put(ctx context.Context, linkID, path string) error
	// Get returns the path for linkID or errs.ErrNotFound.
	Get(ctx context.Context, linkID string) (string, error)
	// Delete removes the mapping; deleting an unknown id is a no-op.
	Delete(ctx context.Context, linkID string) error
}
