package resolver_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/zotify/spotify/api"
	"github.com/xeptore/zotify/spotify/resolver"
	"github.com/xeptore/zotify/spotify/types"
)

const (
	trackID    = "4uLU6hMCjMI75M1A2tKUQC"
	albumID    = "1DFixLWuPkv3KT3TnV35m3"
	playlistID = "37i9dQZF1DXcBWIGoYBM5M"
	artistID   = "0OdUWJ0sBjDrqHygGUXeCF"
)

var goneArtistID = strings.Repeat("G", 22)

type stubCatalog struct {
	resolver.Catalog
	searches []string
}

func (s *stubCatalog) Track(_ context.Context, id string) (*types.TrackMeta, error) {
	if id != trackID {
		return nil, api.ErrNotFound
	}

	return &types.TrackMeta{ID: id, Title: "Never Gonna Give You Up"}, nil //nolint:exhaustruct
}

func (s *stubCatalog) Album(_ context.Context, id string) (*api.Listing, error) {
	return &api.Listing{
		ID:    id,
		Name:  "Album",
		Owner: "Artist",
		Items: []types.ItemRef{{ID: "a", Kind: types.KindTrack}, {ID: "b", Kind: types.KindTrack}},
	}, nil
}

func (s *stubCatalog) Playlist(context.Context, string) (*api.Listing, error) {
	return nil, errors.New("boom")
}

func (s *stubCatalog) Artist(_ context.Context, id string) (*api.Listing, error) {
	if id == goneArtistID {
		return nil, api.ErrNotFound
	}

	return &api.Listing{ID: id, Name: "Artist " + id, Owner: "", Items: []types.ItemRef{{ID: id + "-1", Kind: types.KindTrack}}}, nil
}

func (s *stubCatalog) SavedEpisodes(context.Context) ([]types.ItemRef, error) {
	return []types.ItemRef{{ID: "e1", Kind: types.KindEpisode}, {ID: "e2", Kind: types.KindEpisode}}, nil
}

func (s *stubCatalog) FollowedArtists(context.Context) ([]types.Artist, error) {
	return []types.Artist{{ID: artistID, Name: "One"}, {ID: goneArtistID, Name: "Gone"}, {ID: strings.Repeat("B", 22), Name: "Two"}}, nil
}

func (s *stubCatalog) Search(_ context.Context, query string, categories []string, limit int) (*api.SearchResults, error) {
	s.searches = append(s.searches, query+"|"+strings.Join(categories, ",")+"|"+string(rune('0'+limit/10)))
	return &api.SearchResults{Hits: []api.SearchHit{{Category: "album", ID: albumID, Name: "Album", Detail: "Artist"}}}, nil
}

func TestParseLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ref  string
		want resolver.Link
	}{
		{name: "track url", ref: "https://open.spotify.com/track/" + trackID, want: resolver.Link{Kind: types.CollectionKindTrack, ID: trackID}},
		{name: "url with query", ref: "https://open.spotify.com/album/" + albumID + "?si=abc", want: resolver.Link{Kind: types.CollectionKindAlbum, ID: albumID}},
		{name: "intl url", ref: "https://open.spotify.com/intl-de/playlist/" + playlistID, want: resolver.Link{Kind: types.CollectionKindPlaylist, ID: playlistID}},
		{name: "embed url", ref: "https://open.spotify.com/embed/show/" + albumID, want: resolver.Link{Kind: types.CollectionKindShow, ID: albumID}},
		{name: "uri", ref: "spotify:artist:" + artistID, want: resolver.Link{Kind: types.CollectionKindArtist, ID: artistID}},
		{name: "legacy user playlist uri", ref: "spotify:user:someone:playlist:" + playlistID, want: resolver.Link{Kind: types.CollectionKindPlaylist, ID: playlistID}},
		{name: "episode with whitespace", ref: "  spotify:episode:" + trackID + "\n", want: resolver.Link{Kind: types.CollectionKindEpisode, ID: trackID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := resolver.ParseLink(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLinkRejectsMalformedInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ref  string
	}{
		{name: "empty", ref: ""},
		{name: "foreign host", ref: "https://example.com/track/" + trackID},
		{name: "unknown kind", ref: "spotify:concert:" + trackID},
		{name: "short id", ref: "spotify:track:abc"},
		{name: "missing id", ref: "https://open.spotify.com/track"},
		{name: "free text", ref: "never gonna give you up"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := resolver.ParseLink(tt.ref)
			var unsupported *types.UnsupportedReferenceError
			require.ErrorAs(t, err, &unsupported)
			assert.True(t, types.IsResolutionError(err))
		})
	}
}

func TestResolveTrackCarriesMetadata(t *testing.T) {
	t.Parallel()

	r := resolver.New(zerolog.Nop(), &stubCatalog{}) //nolint:exhaustruct
	coll, err := r.Resolve(t.Context(), "spotify:track:"+trackID)
	require.NoError(t, err)
	require.Len(t, coll.Items, 1)
	assert.Equal(t, types.CollectionKindTrack, coll.Kind)
	assert.Equal(t, "Never Gonna Give You Up", coll.Name)
	assert.NotNil(t, coll.Items[0].Metadata)
}

func TestResolveNotFound(t *testing.T) {
	t.Parallel()

	r := resolver.New(zerolog.Nop(), &stubCatalog{}) //nolint:exhaustruct
	_, err := r.Resolve(t.Context(), "spotify:track:"+strings.Repeat("x", 22))

	var notFound *types.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.True(t, types.IsResolutionError(err))
}

func TestResolveAlbumAssignsOrdinals(t *testing.T) {
	t.Parallel()

	r := resolver.New(zerolog.Nop(), &stubCatalog{}) //nolint:exhaustruct
	coll, err := r.Resolve(t.Context(), "https://open.spotify.com/album/"+albumID)
	require.NoError(t, err)
	assert.Equal(t, types.CollectionKindAlbum, coll.Kind)
	assert.Equal(t, []string{"a", "b"}, coll.IDs())
	assert.Equal(t, 1, coll.Items[0].Ordinal)
	assert.Equal(t, 2, coll.Items[1].Ordinal)
	assert.Nil(t, coll.Items[0].Metadata)
}

func TestResolveWrapsUpstreamFailure(t *testing.T) {
	t.Parallel()

	r := resolver.New(zerolog.Nop(), &stubCatalog{}) //nolint:exhaustruct
	_, err := r.Resolve(t.Context(), "spotify:playlist:"+playlistID)
	require.Error(t, err)
	assert.False(t, types.IsResolutionError(err))
}

func TestLikedEpisodesAndFollowedArtists(t *testing.T) {
	t.Parallel()

	r := resolver.New(zerolog.Nop(), &stubCatalog{}) //nolint:exhaustruct

	liked, err := r.LikedEpisodes(t.Context())
	require.NoError(t, err)
	assert.Equal(t, types.CollectionKindLikedEpisodes, liked.Kind)
	assert.Equal(t, []string{"e1", "e2"}, liked.IDs())

	artists, err := r.FollowedArtists(t.Context())
	require.Error(t, err)
	assert.True(t, types.IsResolutionError(err))
	var notFound *types.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Contains(t, notFound.Ref, goneArtistID)

	require.Len(t, artists, 2)
	assert.Equal(t, []string{artistID + "-1"}, artists[0].IDs())
	assert.Equal(t, []string{strings.Repeat("B", 22) + "-1"}, artists[1].IDs())
}

func TestQueryValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		query      resolver.Query
		wantFilter string
	}{
		{
			name:  "upc with album",
			query: resolver.Query{Terms: "x", Categories: []resolver.Category{resolver.CategoryAlbum}, Filters: []resolver.Filter{{Field: "upc", Value: "123"}}},
		},
		{
			name:       "upc with track",
			query:      resolver.Query{Terms: "x", Categories: []resolver.Category{resolver.CategoryTrack}, Filters: []resolver.Filter{{Field: "upc", Value: "123"}}},
			wantFilter: "upc",
		},
		{
			name:  "isrc with track",
			query: resolver.Query{Terms: "", Categories: []resolver.Category{resolver.CategoryTrack}, Filters: []resolver.Filter{{Field: "isrc", Value: "USUM71703861"}}},
		},
		{
			name:       "isrc with album",
			query:      resolver.Query{Terms: "x", Categories: []resolver.Category{resolver.CategoryAlbum}, Filters: []resolver.Filter{{Field: "isrc", Value: "USUM71703861"}}},
			wantFilter: "isrc",
		},
		{
			name:       "tag new with album and track",
			query:      resolver.Query{Terms: "x", Categories: []resolver.Category{resolver.CategoryAlbum, resolver.CategoryTrack}, Filters: []resolver.Filter{{Field: "tag:new"}}},
			wantFilter: "tag:new",
		},
		{
			name:       "track filter with default categories",
			query:      resolver.Query{Terms: "x", Filters: []resolver.Filter{{Field: "track", Value: "y"}}},
			wantFilter: "track",
		},
		{
			name:  "year range with artist",
			query: resolver.Query{Terms: "x", Categories: []resolver.Category{resolver.CategoryArtist}, Filters: []resolver.Filter{{Field: "year", Value: "1990-1999"}}},
		},
		{
			name:       "unknown filter",
			query:      resolver.Query{Terms: "x", Categories: []resolver.Category{resolver.CategoryTrack}, Filters: []resolver.Filter{{Field: "mood", Value: "happy"}}},
			wantFilter: "mood",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.query.Validate()
			if tt.wantFilter == "" {
				require.NoError(t, err)
				return
			}

			var invalid *types.InvalidFilterError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.wantFilter, invalid.Filter)
		})
	}
}

func TestQueryValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	for _, q := range []resolver.Query{
		{Terms: "  "},
		{Terms: "x", Categories: []resolver.Category{resolver.CategoryTrack}, Filters: []resolver.Filter{{Field: "year", Value: "90s"}}},
		{Terms: "x", Categories: []resolver.Category{resolver.CategoryTrack}, Filters: []resolver.Filter{{Field: "genre", Value: ""}}},
	} {
		require.Error(t, q.Validate())
	}
}

func TestParseQuery(t *testing.T) {
	t.Parallel()

	q := resolver.ParseQuery(`daft punk year:2001 tag:new Genre:house time:now`, []resolver.Category{resolver.CategoryAlbum})
	assert.Equal(t, "daft punk time:now", q.Terms)
	assert.Equal(t, []resolver.Filter{
		{Field: "year", Value: "2001"},
		{Field: "tag:new", Value: ""},
		{Field: "genre", Value: "house"},
	}, q.Filters)
	assert.Equal(t, "daft punk time:now year:2001 tag:new genre:house", q.String())
}

func TestSearchValidatesBeforeQuerying(t *testing.T) {
	t.Parallel()

	catalog := &stubCatalog{} //nolint:exhaustruct
	r := resolver.New(zerolog.Nop(), catalog)

	_, err := r.Search(t.Context(), resolver.ParseQuery("x upc:123", []resolver.Category{resolver.CategoryTrack}))
	require.Error(t, err)
	assert.Empty(t, catalog.searches)

	res, err := r.Search(t.Context(), resolver.ParseQuery("x upc:123", []resolver.Category{resolver.CategoryAlbum}))
	require.NoError(t, err)
	require.Len(t, catalog.searches, 1)
	assert.Equal(t, "x upc:123|album|1", catalog.searches[0])

	coll, err := r.ResolveHit(t.Context(), res.Hits[0])
	require.NoError(t, err)
	assert.Equal(t, types.CollectionKindAlbum, coll.Kind)
}

func TestSearchDefaultsToAllCategories(t *testing.T) {
	t.Parallel()

	catalog := &stubCatalog{} //nolint:exhaustruct
	r := resolver.New(zerolog.Nop(), catalog)

	_, err := r.Search(t.Context(), resolver.ParseQuery("daft punk", nil))
	require.NoError(t, err)
	require.Len(t, catalog.searches, 1)
	assert.Equal(t, "daft punk|album,artist,playlist,track,show,episode|1", catalog.searches[0])
}

func TestReadReferences(t *testing.T) {
	t.Parallel()

	refs, err := resolver.ReadReferences(strings.NewReader("# header\nspotify:track:a\n\n  https://open.spotify.com/album/b  \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"spotify:track:a", "https://open.spotify.com/album/b"}, refs)
}
