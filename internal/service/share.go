package service

import (
	"context"
	"crypto/md5" //nolint:gosec // link ids are opaque aliases, not a security boundary
	"encoding/hex"
	"errors"

	"github.com/and161185/gophnote/internal/errs"
	"github.com/and161185/gophnote/internal/repository"
)

// ShareService maps public link ids to note paths.
type ShareService interface {
	// Mint derives the link id for path; the same path always yields the same id.
	Mint(path string) string
	// Activate records linkID -> path.
	Activate(ctx context.Context, linkID, path string) error
	// Resolve returns the path for linkID; ok is false when no such share exists.
	Resolve(ctx context.Context, linkID string) (path string, ok bool, err error)
	// Revoke removes the mapping without touching the note.
	Revoke(ctx context.Context, linkID string) error
}

type ShareServiceImpl struct {
	repo repository.ShareRepository
}

// NewShareService constructs ShareService over a share repository.
func NewShareService(repo repository.ShareRepository) *ShareServiceImpl {
	return &ShareServiceImpl{repo: repo}
}

// Mint returns the 32-char lowercase hex MD5 of path.
func (s *ShareServiceImpl) Mint(path string) string {
	sum := md5.Sum([]byte(path)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// Activate validates input and stores the mapping.
func (s *ShareServiceImpl) Activate(ctx context.Context, linkID, path string) error {
	if linkID == "" || path == "" {
		return errors.New("validation: empty linkID/path")
	}
	return s.repo.Put(ctx, linkID, path)
}

// Resolve looks up a link; unknown ids are reported via ok=false, not an error.
func (s *ShareServiceImpl) Resolve(ctx context.Context, linkID string) (string, bool, error) {
	if linkID == "" {
		return "", false, nil
	}
	path, err := s.repo.Get(ctx, linkID)
	if errors.Is(err, errs.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return path, true, nil
}

// Revoke deletes the mapping.
func (s *ShareServiceImpl) Revoke(ctx context.Context, linkID string) error {
	if linkID == "" {
		return errors.New("validation: empty linkID")
	}
	return s.repo.Delete(ctx, linkID)
}
