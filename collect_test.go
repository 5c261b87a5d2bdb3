package main

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/zotify/spotify/types"
)

func TestCountItems(t *testing.T) {
	t.Parallel()

	refs := func(ids ...string) []types.ItemRef {
		out := make([]types.ItemRef, len(ids))
		for i, id := range ids {
			out[i] = types.ItemRef{ID: id, Kind: types.KindTrack}
		}
		return out
	}

	a := types.NewCollection(types.CollectionKindPlaylist, "p1", "One", refs("A", "B", "A"))
	b := types.NewCollection(types.CollectionKindAlbum, "a1", "Two", refs("B", "C"))

	total, unique := countItems([]*types.Collection{&a, &b})
	assert.Equal(t, 5, total)
	assert.Equal(t, 3, unique)
}

func resolveStub(ref string) (*types.Collection, error) {
	switch ref {
	case "bad":
		return nil, &types.UnsupportedReferenceError{Ref: ref, Reason: "unsupported content type"}
	case "gone":
		return nil, &types.NotFoundError{Ref: ref}
	case "broken":
		return nil, errors.New("connection reset")
	}

	coll := types.NewCollection(types.CollectionKindTrack, ref, ref, []types.ItemRef{{ID: ref, Kind: types.KindTrack}})

	return &coll, nil
}

func refName(ref string) string { return ref }

func TestResolveAllKeepsGoingAfterResolutionErrors(t *testing.T) {
	t.Parallel()

	u := &unresolved{logger: zerolog.Nop(), errs: nil}
	colls, err := resolveAll([]string{"bad", "one", "gone", "two"}, u, refName, resolveStub)
	require.NoError(t, err)

	require.Len(t, colls, 2)
	assert.Equal(t, "one", colls[0].Name)
	assert.Equal(t, "two", colls[1].Name)
	require.Len(t, u.errs, 2)
	assert.ErrorIs(t, u.exitCode(false), exitResolution)
}

func TestResolveAllStopsOnOtherErrors(t *testing.T) {
	t.Parallel()

	u := &unresolved{logger: zerolog.Nop(), errs: nil}
	_, err := resolveAll([]string{"one", "broken", "two"}, u, refName, resolveStub)
	require.ErrorContains(t, err, "connection reset")
	assert.Empty(t, u.errs)
}

func TestUnresolvedExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		unresolved []error
		fatal      bool
		want       error
	}{
		{name: "clean", unresolved: nil, fatal: false, want: nil},
		{name: "fatal items", unresolved: nil, fatal: true, want: exitFatalFailures},
		{name: "unresolved reference", unresolved: []error{&types.NotFoundError{Ref: "x"}}, fatal: false, want: exitResolution},
		{name: "fatal items win", unresolved: []error{&types.NotFoundError{Ref: "x"}}, fatal: true, want: exitFatalFailures},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			u := &unresolved{logger: zerolog.Nop(), errs: tt.unresolved}
			assert.Equal(t, tt.want, u.exitCode(tt.fatal))
		})
	}
}

func TestUnresolvedCheck(t *testing.T) {
	t.Parallel()

	u := &unresolved{logger: zerolog.Nop(), errs: nil}
	require.NoError(t, u.check("a", nil))
	require.NoError(t, u.check("b", &types.NotFoundError{Ref: "b"}))

	other := errors.New("unauthorized")
	require.ErrorIs(t, u.check("c", other), other)
	assert.Len(t, u.errs, 1)
}
