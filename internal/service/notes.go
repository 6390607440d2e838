// Package service contains application services for note access and share links.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/gophnote/internal/errs"
	"github.com/and161185/gophnote/internal/model"
	"github.com/and161185/gophnote/internal/repository"
)

// maxAttempts bounds the read-merge-write loop on version conflicts.
const maxAttempts = 3

// PasswordHasher derives and checks stored password digests.
type PasswordHasher interface {
	Digest(password string) (string, error)
	Verify(password, stored string) bool
}

// TokenIssuer issues and validates path-scoped session tokens.
type TokenIssuer interface {
	Issue(path, pwDigest string) (string, time.Time, error)
	Validate(token, path, pwDigest string) bool
}

// NoteService decides whether a request may read or write a note and applies merge writes.
type NoteService interface {
	// Open loads a note for reading. Locked notes yield errs.ErrAuthRequired and no content.
	Open(ctx context.Context, path, token string) (model.Note, model.Access, error)
	// SaveContent persists content, or deletes the note when content is blank.
	SaveContent(ctx context.Context, path, token, content string) error
	// Authenticate checks password and issues a session token for path.
	Authenticate(ctx context.Context, path, password string) (token string, expiresAt time.Time, err error)
	// ChangePassword sets (or clears, when empty) the note password.
	ChangePassword(ctx context.Context, path, token, password string) error
	// UpdateSettings merges mode/share. Returns the link id when share is set true.
	UpdateSettings(ctx context.Context, path, token string, patch model.SettingsPatch) (linkID string, err error)
	// ReadShared resolves a public link id to the note it aliases.
	ReadShared(ctx context.Context, linkID string) (model.Note, error)
	// List enumerates stored notes.
	List(ctx context.Context) ([]model.NoteSummary, error)
}

type NoteServiceImpl struct {
	notes  repository.NoteRepository
	shares ShareService
	hasher PasswordHasher
	tokens TokenIssuer
	now    func() time.Time
}

// NewNoteService constructs NoteService with required dependencies.
func NewNoteService(
	notes repository.NoteRepository, shares ShareService, hasher PasswordHasher, tokens TokenIssuer,
) *NoteServiceImpl {
	return &NoteServiceImpl{notes: notes, shares: shares, hasher: hasher, tokens: tokens, now: time.Now}
}

// access evaluates the password gate for a loaded note.
func (s *NoteServiceImpl) access(n model.Note, token string) model.Access {
	if !n.Meta.HasPassword() {
		return model.Unlocked
	}
	if s.tokens.Validate(token, n.Path, n.Meta.PW) {
		return model.Authorized
	}
	return model.Locked
}

// Open returns the note if the gate permits it.
func (s *NoteServiceImpl) Open(ctx context.Context, path, token string) (model.Note, model.Access, error) {
	if path == "" {
		return model.Note{}, model.Locked, errs.ErrInvalidArgument
	}
	n, err := s.notes.Get(ctx, path)
	if err != nil {
		return model.Note{}, model.Locked, fmt.Errorf("load note: %w", err)
	}
	a := s.access(n, token)
	if !a.Permitted() {
		return model.Note{Path: path}, a, errs.ErrAuthRequired
	}
	return n, a, nil
}

// writeOp mutates a loaded note in place; returning remove=true deletes the record instead.
type writeOp func(n *model.Note) (remove bool, err error)

// mutate runs gate + op + versioned write, re-reading on version conflicts.
// It returns the note as it was before and after the applied write.
func (s *NoteServiceImpl) mutate(ctx context.Context, path, token string, op writeOp) (before, after model.Note, err error) {
	if path == "" {
		return model.Note{}, model.Note{}, errs.ErrInvalidArgument
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		cur, err := s.notes.Get(ctx, path)
		if err != nil {
			return model.Note{}, model.Note{}, fmt.Errorf("load note: %w", err)
		}
		if !s.access(cur, token).Permitted() {
			return model.Note{}, model.Note{}, errs.ErrAuthRequired
		}

		next := cur
		if cur.Meta.Share != nil {
			v := *cur.Meta.Share
			next.Meta.Share = &v
		}
		remove, err := op(&next)
		if err != nil {
			return model.Note{}, model.Note{}, err
		}

		if remove {
			err = s.notes.Delete(ctx, path, cur.Ver)
			next = model.Note{Path: path}
		} else {
			next.Ver, err = s.notes.Put(ctx, path, next.Content, next.Meta, cur.Ver)
		}
		if errors.Is(err, errs.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return model.Note{}, model.Note{}, fmt.Errorf("store note: %w", err)
		}
		return cur, next, nil
	}
	return model.Note{}, model.Note{}, errs.ErrVersionConflict
}

// SaveContent writes content with a refreshed updateAt, or deletes the note when content is blank.
// Deleting a shared note also revokes its link.
func (s *NoteServiceImpl) SaveContent(ctx context.Context, path, token, content string) error {
	before, _, err := s.mutate(ctx, path, token, func(n *model.Note) (bool, error) {
		if strings.TrimSpace(content) == "" {
			return true, nil
		}
		n.Content = content
		n.Meta.UpdateAt = s.now().Unix()
		return false, nil
	})
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" && before.Meta.Shared() {
		if _, err := s.syncShare(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

// Authenticate verifies password against the stored digest and issues a token.
func (s *NoteServiceImpl) Authenticate(ctx context.Context, path, password string) (string, time.Time, error) {
	if path == "" {
		return "", time.Time{}, errs.ErrInvalidArgument
	}
	n, err := s.notes.Get(ctx, path)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("load note: %w", err)
	}
	if !n.Meta.HasPassword() || !s.hasher.Verify(password, n.Meta.PW) {
		return "", time.Time{}, errs.ErrUnauthorized
	}
	return s.tokens.Issue(path, n.Meta.PW)
}

// ChangePassword merges only the pw field. The new digest invalidates existing tokens.
func (s *NoteServiceImpl) ChangePassword(ctx context.Context, path, token, password string) error {
	var digest string
	if password != "" {
		d, err := s.hasher.Digest(password)
		if err != nil {
			return fmt.Errorf("digest password: %w", err)
		}
		digest = d
	}
	_, _, err := s.mutate(ctx, path, token, func(n *model.Note) (bool, error) {
		n.Meta.PW = digest
		return false, nil
	})
	return err
}

// UpdateSettings merges the fields present in patch and keeps the share registry in sync.
func (s *NoteServiceImpl) UpdateSettings(ctx context.Context, path, token string, patch model.SettingsPatch) (string, error) {
	if patch.Mode != nil && !patch.Mode.Valid() {
		return "", fmt.Errorf("mode %q: %w", *patch.Mode, errs.ErrInvalidArgument)
	}
	_, _, err := s.mutate(ctx, path, token, func(n *model.Note) (bool, error) {
		if patch.Mode != nil {
			n.Meta.Mode = *patch.Mode
		}
		if patch.Share != nil {
			v := *patch.Share
			n.Meta.Share = &v
		}
		return false, nil
	})
	if err != nil {
		return "", err
	}

	if patch.Share == nil {
		return "", nil
	}
	shared, err := s.syncShare(ctx, path)
	if err != nil || !shared {
		return "", err
	}
	return s.shares.Mint(path), nil
}

// syncShare makes the link registry match the share flag stored for path.
// It repeats while the record changes underneath it, so the last stored flag wins.
// Every extra round is caused by another write, which bounds the loop.
func (s *NoteServiceImpl) syncShare(ctx context.Context, path string) (bool, error) {
	linkID := s.shares.Mint(path)
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		n, err := s.notes.Get(ctx, path)
		if err != nil {
			return false, fmt.Errorf("load note: %w", err)
		}
		shared := n.Meta.Shared()
		if shared {
			err = s.shares.Activate(ctx, linkID, path)
		} else {
			err = s.shares.Revoke(ctx, linkID)
		}
		if err != nil {
			return false, fmt.Errorf("sync share: %w", err)
		}

		after, err := s.notes.Get(ctx, path)
		if err != nil {
			return false, fmt.Errorf("load note: %w", err)
		}
		if after.Ver == n.Ver && after.Meta.Shared() == shared {
			return shared, nil
		}
	}
}

// ReadShared returns the note behind a public link. Unknown links are errs.ErrNotFound.
func (s *NoteServiceImpl) ReadShared(ctx context.Context, linkID string) (model.Note, error) {
	path, ok, err := s.shares.Resolve(ctx, linkID)
	if err != nil {
		return model.Note{}, fmt.Errorf("resolve share: %w", err)
	}
	if !ok {
		return model.Note{}, errs.ErrNotFound
	}
	n, err := s.notes.Get(ctx, path)
	if err != nil {
		return model.Note{}, fmt.Errorf("load note: %w", err)
	}
	return n, nil
}

// List delegates to the repository.
func (s *NoteServiceImpl) List(ctx context.Context) ([]model.NoteSummary, error) {
	return s.notes.List(ctx)
}
