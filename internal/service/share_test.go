package service

import (
	"context"
	"errors"
	"testing"

	"github.com/and161185/gophnote/internal/repository/memory"
	"github.com/stretchr/testify/require"
)

type failingShares struct{ *memory.ShareRepo }

func (failingShares) Get(context.Context, string) (string, error) { return "", errors.New("io") }

func TestShare_MintDeterministic(t *testing.T) {
	t.Parallel()
	s := NewShareService(memory.NewShareRepo())

	a := s.Mint("abc")
	require.Equal(t, a, s.Mint("abc"))
	require.Equal(t, "900150983cd24fb0d6963f7d28e17f72", a)
	require.NotEqual(t, a, s.Mint("abd"))
}

func TestShare_ActivateResolveRevoke(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewShareService(memory.NewShareRepo())

	id := s.Mint("note")
	_, ok, err := s.Resolve(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Activate(ctx, id, "note"))
	p, ok, err := s.Resolve(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "note", p)

	require.NoError(t, s.Revoke(ctx, id))
	_, ok, err = s.Resolve(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestShare_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewShareService(memory.NewShareRepo())

	require.Error(t, s.Activate(ctx, "", "p"))
	require.Error(t, s.Activate(ctx, "id", ""))
	require.Error(t, s.Revoke(ctx, ""))
}

func TestShare_ResolveIOErrorIsNotAbsent(t *testing.T) {
	t.Parallel()
	s := NewShareService(failingShares{memory.NewShareRepo()})

	_, ok, err := s.Resolve(context.Background(), "id")
	require.Error(t, err)
	require.False(t, ok)
}
