package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/and161185/gophnote/internal/errs"
	"github.com/and161185/gophnote/internal/model"
	"github.com/jackc/pgx/v5"
)

// NoteRepo implements NoteRepository using PostgreSQL.
type NoteRepo struct{ db *DB }

// NewNoteRepo constructs a note repository.
func NewNoteRepo(db *DB) *NoteRepo { return &NoteRepo{db: db} }

// Get returns the note at path; a missing row yields an empty note.
func (r *NoteRepo) Get(ctx context.Context, path string) (model.Note, error) {
	const q = `SELECT content, metadata, ver FROM notes WHERE path=$1`
	var (
		content string
		raw     []byte
		ver     int64
	)
	err := r.db.Pool.QueryRow(ctx, q, path).Scan(&content, &raw, &ver)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return model.Note{Path: path}, nil
	case err != nil:
		return model.Note{}, err
	}
	meta, err := decodeMeta(raw)
	if err != nil {
		return model.Note{}, fmt.Errorf("note %q: %w", path, err)
	}
	return model.Note{Path: path, Content: content, Meta: meta, Ver: ver}, nil
}

// Put inserts or overwrites the note with optimistic concurrency and returns the new version.
func (r *NoteRepo) Put(
	ctx context.Context, path, content string, meta model.Metadata, baseVer int64,
) (newVer int64, err error) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return 0, err
	}

	const sel = `SELECT ver FROM notes WHERE path=$1 FOR UPDATE`
	const ins = `INSERT INTO notes (path, content, metadata, ver) VALUES ($1,$2,$3,$4)`
	const upd = `UPDATE notes SET content=$2, metadata=$3, ver=$4, updated_at=now() WHERE path=$1`

	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		var curVer int64
		scanErr := tx.QueryRow(ctx, sel, path).Scan(&curVer)
		switch {
		case scanErr == nil:
			if curVer != baseVer {
				return errs.ErrVersionConflict
			}
			newVer = curVer + 1
			_, e := tx.Exec(ctx, upd, path, content, raw, newVer)
			return e
		case errors.Is(scanErr, pgx.ErrNoRows):
			if baseVer != 0 {
				return errs.ErrVersionConflict
			}
			newVer = 1
			_, e := tx.Exec(ctx, ins, path, content, raw, newVer)
			if isUniqueViolation(e) {
				return errs.ErrVersionConflict
			}
			return e
		default:
			return scanErr
		}
	})
	if err != nil {
		return 0, err
	}
	return newVer, nil
}

// Delete removes the note if its version equals baseVer.
func (r *NoteRepo) Delete(ctx context.Context, path string, baseVer int64) error {
	const sel = `SELECT ver FROM notes WHERE path=$1 FOR UPDATE`
	const del = `DELETE FROM notes WHERE path=$1`

	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		var curVer int64
		if err := tx.QueryRow(ctx, sel, path).Scan(&curVer); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				if baseVer != 0 {
					return errs.ErrVersionConflict
				}
				return nil
			}
			return err
		}
		if curVer != baseVer {
			return errs.ErrVersionConflict
		}
		_, err := tx.Exec(ctx, del, path)
		return err
	})
}

// List returns all notes ordered by path.
func (r *NoteRepo) List(ctx context.Context) ([]model.NoteSummary, error) {
	const q = `SELECT path, metadata FROM notes ORDER BY path ASC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.NoteSummary
	for rows.Next() {
		var (
			path string
			raw  []byte
		)
		if err = rows.Scan(&path, &raw); err != nil {
			return nil, err
		}
		meta, err := decodeMeta(raw)
		if err != nil {
			return nil, fmt.Errorf("note %q: %w", path, err)
		}
		out = append(out, model.NoteSummary{Path: path, Meta: meta})
	}
	return out, rows.Err()
}

// decodeMeta parses the jsonb metadata column; empty input is the empty object.
func decodeMeta(raw []byte) (model.Metadata, error) {
	var m model.Metadata
	if len(raw) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return model.Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}
