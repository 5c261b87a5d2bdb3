package filter_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/zotify/filter"
	"github.com/xeptore/zotify/spotify/types"
)

type archiveSet map[string]bool

func (a archiveSet) Contains(id string) bool {
	return a[id]
}

func collection(ids ...string) types.Collection {
	refs := make([]types.ItemRef, len(ids))
	for i, id := range ids {
		refs[i] = types.ItemRef{ID: id, Kind: types.KindTrack}
	}

	return types.NewCollection(types.CollectionKindPlaylist, "p", "p", refs)
}

func ids(items []types.ContentItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}

	return out
}

func TestApplyArchivedAndDuplicates(t *testing.T) {
	t.Parallel()

	res := filter.Apply(zerolog.Nop(), collection("A", "B", "A", "C").Items, filter.Options{
		Archive: archiveSet{"B": true},
		Exists:  nil,
	})

	assert.Equal(t, []string{"A", "C"}, ids(res.Kept))
	assert.Equal(t, []filter.Skip{
		{ID: "B", Ordinal: 2, Reason: filter.ReasonArchived, Path: ""},
		{ID: "A", Ordinal: 3, Reason: filter.ReasonDuplicate, Path: ""},
	}, res.Skipped)
}

func TestApplyRulePrecedence(t *testing.T) {
	t.Parallel()

	var checked []string
	exists := func(item types.ContentItem) (string, bool, error) {
		checked = append(checked, item.ID)
		return "/music/" + item.ID + ".ogg", item.ID == "A" || item.ID == "B", nil
	}

	res := filter.Apply(zerolog.Nop(), collection("A", "B", "B", "C").Items, filter.Options{
		Archive: archiveSet{"A": true},
		Exists:  exists,
	})

	assert.Equal(t, []string{"C"}, ids(res.Kept))
	require.Len(t, res.Skipped, 3)
	assert.Equal(t, filter.ReasonArchived, res.Skipped[0].Reason, "archive wins over existing file")
	assert.Equal(t, filter.ReasonFileExists, res.Skipped[1].Reason)
	assert.Equal(t, "/music/B.ogg", res.Skipped[1].Path)
	assert.Equal(t, filter.ReasonDuplicate, res.Skipped[2].Reason, "duplicate wins over existing file")
	assert.Equal(t, []string{"B", "C"}, checked, "no file check for archived or repeated items")
}

func TestApplyReversedKeepsMembership(t *testing.T) {
	t.Parallel()

	coll := collection("A", "B", "A", "C", "D")
	opts := filter.Options{Archive: archiveSet{"D": true}, Exists: nil}

	forward := filter.Apply(zerolog.Nop(), coll.Items, opts)
	backward := filter.Apply(zerolog.Nop(), coll.Reversed().Items, opts)

	f, b := ids(forward.Kept), ids(backward.Kept)
	slices.Sort(f)
	slices.Sort(b)
	assert.Equal(t, f, b)
	assert.Equal(t, []string{"C", "A", "B"}, ids(backward.Kept))
	assert.Equal(t, 3, backward.Kept[1].Ordinal, "last original occurrence wins when reversed")
}

func TestApplyExistsErrorKeepsItem(t *testing.T) {
	t.Parallel()

	res := filter.Apply(zerolog.Nop(), collection("A", "B", "C").Items, filter.Options{
		Archive: nil,
		Exists: func(item types.ContentItem) (string, bool, error) {
			if item.ID == "B" {
				return "", false, errors.New("not a directory")
			}

			return "/music/" + item.ID + ".ogg", item.ID == "C", nil
		},
	})

	assert.Equal(t, []string{"A", "B"}, ids(res.Kept))
	assert.Equal(t, []filter.Skip{{ID: "C", Ordinal: 3, Reason: filter.ReasonFileExists, Path: "/music/C.ogg"}}, res.Skipped)
	require.Len(t, res.Unchecked, 1)
	require.ErrorContains(t, res.Unchecked[2], "not a directory")
}
