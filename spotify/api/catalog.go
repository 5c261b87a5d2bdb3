package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/xeptore/zotify/spotify/types"
)

const (
	MaxBatchSize     = 50
	albumPageSize    = 50
	playlistPageSize = 100
	showPageSize     = 50
	libraryPageSize  = 50
)

// Listing is an ordered list of item references together with the name of
// the entity they belong to.
type Listing struct {
	ID    string
	Name  string
	Owner string
	Items []types.ItemRef
}

func marketQuery() url.Values {
	return url.Values{"market": []string{"from_token"}}
}

// Tracks returns the tracks found for ids keyed by requested ID. Unknown IDs
// are absent from the result.
func (c *Client) Tracks(ctx context.Context, ids []string) (map[string]*types.TrackMeta, error) {
	if len(ids) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds maximum of %d ids", len(ids), MaxBatchSize)
	}

	q := marketQuery()
	q.Set("ids", strings.Join(ids, ","))

	var respBody struct {
		Tracks []*trackObject `json:"tracks"`
	}
	if err := c.getJSON(ctx, "tracks", q, &respBody); nil != err {
		return nil, fmt.Errorf("failed to get tracks batch: %w", err)
	}

	out := make(map[string]*types.TrackMeta, len(respBody.Tracks))
	for _, t := range respBody.Tracks {
		if nil == t {
			continue
		}
		m := t.toMeta()
		out[m.ID] = m
	}

	return out, nil
}

// Episodes returns the episodes found for ids keyed by ID. Unknown IDs are
// absent from the result.
func (c *Client) Episodes(ctx context.Context, ids []string) (map[string]*types.EpisodeMeta, error) {
	if len(ids) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds maximum of %d ids", len(ids), MaxBatchSize)
	}

	q := marketQuery()
	q.Set("ids", strings.Join(ids, ","))

	var respBody struct {
		Episodes []*episodeObject `json:"episodes"`
	}
	if err := c.getJSON(ctx, "episodes", q, &respBody); nil != err {
		return nil, fmt.Errorf("failed to get episodes batch: %w", err)
	}

	out := make(map[string]*types.EpisodeMeta, len(respBody.Episodes))
	for _, e := range respBody.Episodes {
		if nil == e {
			continue
		}
		out[e.ID] = e.toMeta()
	}

	return out, nil
}

func (c *Client) Track(ctx context.Context, id string) (*types.TrackMeta, error) {
	var t trackObject
	if err := c.getJSON(ctx, "tracks/"+url.PathEscape(id), marketQuery(), &t); nil != err {
		return nil, fmt.Errorf("failed to get track: %w", err)
	}

	return t.toMeta(), nil
}

func (c *Client) Episode(ctx context.Context, id string) (*types.EpisodeMeta, error) {
	var e episodeObject
	if err := c.getJSON(ctx, "episodes/"+url.PathEscape(id), marketQuery(), &e); nil != err {
		return nil, fmt.Errorf("failed to get episode: %w", err)
	}

	return e.toMeta(), nil
}

func refs(in []*simplifiedItemObject) []types.ItemRef {
	return lo.FilterMap(in, func(o *simplifiedItemObject, _ int) (types.ItemRef, bool) { return o.ref() })
}

func (c *Client) Album(ctx context.Context, id string) (*Listing, error) {
	var album albumObject
	if err := c.getJSON(ctx, "albums/"+url.PathEscape(id), marketQuery(), &album); nil != err {
		return nil, fmt.Errorf("failed to get album: %w", err)
	}

	items, err := c.albumTracks(ctx, album)
	if nil != err {
		return nil, err
	}

	return &Listing{
		ID:    album.ID,
		Name:  album.Name,
		Owner: types.JoinArtists(toArtists(album.Artists)),
		Items: items,
	}, nil
}

func (c *Client) albumTracks(ctx context.Context, album albumObject) ([]types.ItemRef, error) {
	if nil != album.Tracks && album.Tracks.Total <= len(album.Tracks.Items) {
		return refs(lo.ToSlicePtr(album.Tracks.Items)), nil
	}

	items, err := pages[*simplifiedItemObject](ctx, c, "albums/"+url.PathEscape(album.ID)+"/tracks", marketQuery(), albumPageSize)
	if nil != err {
		return nil, fmt.Errorf("failed to get album tracks: %w", err)
	}

	return refs(items), nil
}

type playlistItemObject struct {
	Track *simplifiedItemObject `json:"track"`
}

func (c *Client) Playlist(ctx context.Context, id string) (*Listing, error) {
	q := marketQuery()
	q.Set("fields", "id,name,owner.display_name")

	var playlist struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Owner struct {
			DisplayName string `json:"display_name"`
		} `json:"owner"`
	}
	if err := c.getJSON(ctx, "playlists/"+url.PathEscape(id), q, &playlist); nil != err {
		return nil, fmt.Errorf("failed to get playlist: %w", err)
	}

	itemsQuery := marketQuery()
	itemsQuery.Set("additional_types", "track,episode")
	items, err := pages[playlistItemObject](ctx, c, "playlists/"+url.PathEscape(id)+"/tracks", itemsQuery, playlistPageSize)
	if nil != err {
		return nil, fmt.Errorf("failed to get playlist items: %w", err)
	}

	return &Listing{
		ID:    playlist.ID,
		Name:  playlist.Name,
		Owner: playlist.Owner.DisplayName,
		Items: refs(lo.Map(items, func(i playlistItemObject, _ int) *simplifiedItemObject { return i.Track })),
	}, nil
}

func (c *Client) Show(ctx context.Context, id string) (*Listing, error) {
	var show showObject
	if err := c.getJSON(ctx, "shows/"+url.PathEscape(id), marketQuery(), &show); nil != err {
		return nil, fmt.Errorf("failed to get show: %w", err)
	}

	episodes, err := pages[*simplifiedItemObject](ctx, c, "shows/"+url.PathEscape(id)+"/episodes", marketQuery(), showPageSize)
	if nil != err {
		return nil, fmt.Errorf("failed to get show episodes: %w", err)
	}

	return &Listing{
		ID:    show.ID,
		Name:  show.Name,
		Owner: show.Publisher,
		Items: refs(episodes),
	}, nil
}

// Artist lists the tracks of every album and single of the artist, album by
// album in the order the catalog returns them.
func (c *Client) Artist(ctx context.Context, id string) (*Listing, error) {
	var artist artistObject
	if err := c.getJSON(ctx, "artists/"+url.PathEscape(id), nil, &artist); nil != err {
		return nil, fmt.Errorf("failed to get artist: %w", err)
	}

	q := marketQuery()
	q.Set("include_groups", "album,single")
	albums, err := pages[albumObject](ctx, c, "artists/"+url.PathEscape(id)+"/albums", q, albumPageSize)
	if nil != err {
		return nil, fmt.Errorf("failed to get artist albums: %w", err)
	}

	var (
		results   = make([][]types.ItemRef, len(albums))
		wg, wgCtx = errgroup.WithContext(ctx)
	)
	wg.SetLimit(c.opts.PageConcurrency)
	for i, album := range albums {
		wg.Go(func() error {
			items, err := c.albumTracks(wgCtx, album)
			if nil != err {
				return fmt.Errorf("failed to get tracks of album %s: %w", album.ID, err)
			}
			results[i] = items

			return nil
		})
	}

	if err := wg.Wait(); nil != err {
		return nil, err
	}

	return &Listing{
		ID:    artist.ID,
		Name:  artist.Name,
		Owner: artist.Name,
		Items: lo.Flatten(results),
	}, nil
}

func (c *Client) SavedTracks(ctx context.Context) ([]types.ItemRef, error) {
	items, err := pages[playlistItemObject](ctx, c, "me/tracks", marketQuery(), libraryPageSize)
	if nil != err {
		return nil, fmt.Errorf("failed to get saved tracks: %w", err)
	}

	return refs(lo.Map(items, func(i playlistItemObject, _ int) *simplifiedItemObject { return i.Track })), nil
}

func (c *Client) SavedEpisodes(ctx context.Context) ([]types.ItemRef, error) {
	type savedEpisode struct {
		Episode *simplifiedItemObject `json:"episode"`
	}

	items, err := pages[savedEpisode](ctx, c, "me/episodes", marketQuery(), libraryPageSize)
	if nil != err {
		return nil, fmt.Errorf("failed to get saved episodes: %w", err)
	}

	return refs(lo.Map(items, func(i savedEpisode, _ int) *simplifiedItemObject { return i.Episode })), nil
}

func (c *Client) FollowedArtists(ctx context.Context) ([]types.Artist, error) {
	q := url.Values{"type": []string{"artist"}, "limit": []string{"50"}}
	artists, err := cursorPages(ctx, c, "me/following", q, func(b []byte) (*page[artistObject], error) {
		var respBody struct {
			Artists *page[artistObject] `json:"artists"`
		}
		if err := json.Unmarshal(b, &respBody); nil != err {
			return nil, fmt.Errorf("failed to decode followed artists response body: %v", err)
		}
		if nil == respBody.Artists {
			return nil, errors.New("followed artists response has no artists page")
		}

		return respBody.Artists, nil
	})
	if nil != err {
		return nil, fmt.Errorf("failed to get followed artists: %w", err)
	}

	return toArtists(artists), nil
}

type PlaylistSummary struct {
	ID         string
	Name       string
	Owner      string
	TrackCount int
}

func (c *Client) UserPlaylists(ctx context.Context) ([]PlaylistSummary, error) {
	type playlistObject struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Owner struct {
			DisplayName string `json:"display_name"`
		} `json:"owner"`
		Tracks struct {
			Total int `json:"total"`
		} `json:"tracks"`
	}

	items, err := pages[*playlistObject](ctx, c, "me/playlists", nil, libraryPageSize)
	if nil != err {
		return nil, fmt.Errorf("failed to get user playlists: %w", err)
	}

	return lo.FilterMap(items, func(p *playlistObject, _ int) (PlaylistSummary, bool) {
		if nil == p {
			return PlaylistSummary{}, false //nolint:exhaustruct
		}

		return PlaylistSummary{ID: p.ID, Name: p.Name, Owner: p.Owner.DisplayName, TrackCount: p.Tracks.Total}, true
	}), nil
}
