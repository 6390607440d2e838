// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/gophnote/internal/model"
)

// NoteRepository provides versioned access to note records keyed by path.
type NoteRepository interface {
	// Get returns the note at path. An absent path yields an empty note with Ver == 0, not an error.
	Get(ctx context.Context, path string) (model.Note, error)

	// Put overwrites content and metadata if the stored version equals baseVer (0 = absent).
	Put(ctx context.Context, path, content string, meta model.Metadata, baseVer int64) (int64, error)

	// Delete removes the record with base version check. Deleting an absent record is a no-op.
	Delete(ctx context.Context, path string, baseVer int64) error

	// List enumerates all stored paths with their metadata, ordered by path.
	List(ctx context.Context) ([]model.NoteSummary, error)
}
