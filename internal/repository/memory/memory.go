// Package memory contains in-process implementations of repository interfaces.
// Data lives only as long as the process; intended for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/and161185/gophnote/internal/errs"
	"github.com/and161185/gophnote/internal/model"
)

type noteRow struct {
	content string
	meta    model.Metadata
	ver     int64
}

// NoteRepo is a map-backed NoteRepository with the same version semantics as the Postgres one.
type NoteRepo struct {
	mu    sync.RWMutex
	notes map[string]noteRow
}

// NewNoteRepo constructs an empty note repository.
func NewNoteRepo() *NoteRepo { return &NoteRepo{notes: map[string]noteRow{}} }

// Get returns the note at path; a missing path yields an empty note.
func (r *NoteRepo) Get(ctx context.Context, path string) (model.Note, error) {
	if err := ctx.Err(); err != nil {
		return model.Note{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.notes[path]
	if !ok {
		return model.Note{Path: path}, nil
	}
	return model.Note{Path: path, Content: row.content, Meta: cloneMeta(row.meta), Ver: row.ver}, nil
}

// Put overwrites the note if the stored version equals baseVer.
func (r *NoteRepo) Put(ctx context.Context, path, content string, meta model.Metadata, baseVer int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.notes[path].ver
	if cur != baseVer {
		return 0, errs.ErrVersionConflict
	}
	r.notes[path] = noteRow{content: content, meta: cloneMeta(meta), ver: cur + 1}
	return cur + 1, nil
}

// Delete removes the note if its version equals baseVer.
func (r *NoteRepo) Delete(ctx context.Context, path string, baseVer int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.notes[path].ver != baseVer {
		return errs.ErrVersionConflict
	}
	delete(r.notes, path)
	return nil
}

// List returns all notes ordered by path.
func (r *NoteRepo) List(ctx context.Context) ([]model.NoteSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]model.NoteSummary, 0, len(r.notes))
	for p, row := range r.notes {
		out = append(out, model.NoteSummary{Path: p, Meta: cloneMeta(row.meta)})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// ShareRepo is a map-backed ShareRepository.
type ShareRepo struct {
	mu    sync.RWMutex
	links map[string]string
}

// NewShareRepo constructs an empty share repository.
func NewShareRepo() *ShareRepo { return &ShareRepo{links: map[string]string{}} }

// Put records the mapping.
func (r *ShareRepo) Put(ctx context.Context, linkID, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.links[linkID] = path
	r.mu.Unlock()
	return nil
}

// Get resolves a link id.
func (r *ShareRepo) Get(ctx context.Context, linkID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.links[linkID]
	if !ok {
		return "", errs.ErrNotFound
	}
	return p, nil
}

// Delete removes the mapping.
func (r *ShareRepo) Delete(ctx context.Context, linkID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.links, linkID)
	r.mu.Unlock()
	return nil
}

// cloneMeta detaches the Share pointer so callers cannot mutate stored state.
func cloneMeta(m model.Metadata) model.Metadata {
	if m.Share != nil {
		v := *m.Share
		m.Share = &v
	}
	return m
}
