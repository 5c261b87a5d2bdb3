package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/xeptore/zotify/spotify/api"
	"github.com/xeptore/zotify/spotify/types"
)

// Catalog is the read-only catalog the resolver queries.
type Catalog interface {
	Track(ctx context.Context, id string) (*types.TrackMeta, error)
	Episode(ctx context.Context, id string) (*types.EpisodeMeta, error)
	Album(ctx context.Context, id string) (*api.Listing, error)
	Playlist(ctx context.Context, id string) (*api.Listing, error)
	Show(ctx context.Context, id string) (*api.Listing, error)
	Artist(ctx context.Context, id string) (*api.Listing, error)
	SavedTracks(ctx context.Context) ([]types.ItemRef, error)
	SavedEpisodes(ctx context.Context) ([]types.ItemRef, error)
	FollowedArtists(ctx context.Context) ([]types.Artist, error)
	UserPlaylists(ctx context.Context) ([]api.PlaylistSummary, error)
	Search(ctx context.Context, query string, categories []string, limit int) (*api.SearchResults, error)
}

type Resolver struct {
	logger  zerolog.Logger
	catalog Catalog
}

func New(logger zerolog.Logger, catalog Catalog) *Resolver {
	return &Resolver{logger: logger, catalog: catalog}
}

// Resolve expands a URL or URI into an ordered collection of item stubs.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*types.Collection, error) {
	link, err := ParseLink(ref)
	if nil != err {
		return nil, err
	}

	return r.ResolveLink(ctx, link)
}

func (r *Resolver) ResolveLink(ctx context.Context, link Link) (*types.Collection, error) {
	logger := r.logger.With().Str("link", link.String()).Logger()

	var (
		coll types.Collection
		err  error
	)
	switch link.Kind {
	case types.CollectionKindTrack:
		coll, err = r.track(ctx, link.ID)
	case types.CollectionKindEpisode:
		coll, err = r.episode(ctx, link.ID)
	case types.CollectionKindAlbum:
		coll, err = r.listing(ctx, link, r.catalog.Album)
	case types.CollectionKindPlaylist:
		coll, err = r.listing(ctx, link, r.catalog.Playlist)
	case types.CollectionKindShow:
		coll, err = r.listing(ctx, link, r.catalog.Show)
	case types.CollectionKindArtist:
		coll, err = r.listing(ctx, link, r.catalog.Artist)
	default:
		return nil, &types.UnsupportedReferenceError{Ref: link.String(), Reason: "unsupported content type"}
	}
	if nil != err {
		if errors.Is(err, api.ErrNotFound) {
			return nil, &types.NotFoundError{Ref: link.String()}
		}

		logger.Error().Err(err).Msg("Failed to resolve link")

		return nil, fmt.Errorf("failed to resolve %s: %w", link, err)
	}

	logger.Debug().Dict("collection", coll.ToDict()).Msg("Link resolved")

	return &coll, nil
}

func (r *Resolver) track(ctx context.Context, id string) (types.Collection, error) {
	meta, err := r.catalog.Track(ctx, id)
	if nil != err {
		return types.Collection{}, err //nolint:exhaustruct
	}

	return types.Collection{
		Kind:  types.CollectionKindTrack,
		ID:    id,
		Name:  meta.Title,
		Items: []types.ContentItem{{ID: id, Kind: types.KindTrack, Ordinal: 1, Metadata: meta}},
	}, nil
}

func (r *Resolver) episode(ctx context.Context, id string) (types.Collection, error) {
	meta, err := r.catalog.Episode(ctx, id)
	if nil != err {
		return types.Collection{}, err //nolint:exhaustruct
	}

	return types.Collection{
		Kind:  types.CollectionKindEpisode,
		ID:    id,
		Name:  meta.Title,
		Items: []types.ContentItem{{ID: id, Kind: types.KindEpisode, Ordinal: 1, Metadata: meta}},
	}, nil
}

func (r *Resolver) listing(
	ctx context.Context,
	link Link,
	get func(ctx context.Context, id string) (*api.Listing, error),
) (types.Collection, error) {
	l, err := get(ctx, link.ID)
	if nil != err {
		return types.Collection{}, err //nolint:exhaustruct
	}

	return types.NewCollection(link.Kind, l.ID, l.Name, l.Items), nil
}

func (r *Resolver) LikedTracks(ctx context.Context) (*types.Collection, error) {
	refs, err := r.catalog.SavedTracks(ctx)
	if nil != err {
		return nil, fmt.Errorf("failed to resolve liked tracks: %w", err)
	}

	coll := types.NewCollection(types.CollectionKindLikedTracks, "liked-tracks", "Liked Songs", refs)

	return &coll, nil
}

func (r *Resolver) LikedEpisodes(ctx context.Context) (*types.Collection, error) {
	refs, err := r.catalog.SavedEpisodes(ctx)
	if nil != err {
		return nil, fmt.Errorf("failed to resolve liked episodes: %w", err)
	}

	coll := types.NewCollection(types.CollectionKindLikedEpisodes, "liked-episodes", "Your Episodes", refs)

	return &coll, nil
}

// FollowedArtists resolves the discography of every followed artist, one
// collection per artist. Artists that cannot be resolved are left out and
// their errors joined into the returned error, next to the collections that
// did resolve.
func (r *Resolver) FollowedArtists(ctx context.Context) ([]*types.Collection, error) {
	artists, err := r.catalog.FollowedArtists(ctx)
	if nil != err {
		return nil, fmt.Errorf("failed to list followed artists: %w", err)
	}

	var (
		out        = make([]*types.Collection, 0, len(artists))
		unresolved []error
	)
	for _, artist := range artists {
		coll, err := r.ResolveLink(ctx, Link{Kind: types.CollectionKindArtist, ID: artist.ID})
		if nil != err {
			if !types.IsResolutionError(err) {
				return nil, err
			}
			r.logger.Warn().Err(err).Str("artist_id", artist.ID).Str("artist", artist.Name).Msg("Skipping unresolvable followed artist")
			unresolved = append(unresolved, err)
			continue
		}
		out = append(out, coll)
	}

	return out, errors.Join(unresolved...)
}

func (r *Resolver) UserPlaylists(ctx context.Context) ([]api.PlaylistSummary, error) {
	playlists, err := r.catalog.UserPlaylists(ctx)
	if nil != err {
		return nil, fmt.Errorf("failed to list user playlists: %w", err)
	}

	return playlists, nil
}

func (r *Resolver) Search(ctx context.Context, q Query) (*api.SearchResults, error) {
	if err := q.Validate(); nil != err {
		return nil, err
	}

	categories := lo.Map(q.categories(), func(c Category, _ int) string { return string(c) })
	res, err := r.catalog.Search(ctx, q.String(), categories, q.limit())
	if nil != err {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	r.logger.Debug().Str("query", q.String()).Int("hits", len(res.Hits)).Msg("Search completed")

	return res, nil
}

// ResolveHit resolves a search hit into its collection.
func (r *Resolver) ResolveHit(ctx context.Context, hit api.SearchHit) (*types.Collection, error) {
	kind, ok := linkKinds[hit.Category]
	if !ok {
		return nil, &types.UnsupportedReferenceError{Ref: hit.ID, Reason: "unsupported search category " + strconv.Quote(hit.Category)}
	}

	return r.ResolveLink(ctx, Link{Kind: kind, ID: hit.ID})
}
