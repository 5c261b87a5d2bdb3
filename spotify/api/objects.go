package api

import (
	"time"

	"github.com/samber/lo"

	"github.com/xeptore/zotify/spotify/types"
)

type imageObject struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func toImages(in []imageObject) []types.Image {
	return lo.Map(in, func(i imageObject, _ int) types.Image {
		return types.Image{URL: i.URL, Width: i.Width, Height: i.Height}
	})
}

type artistObject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func toArtists(in []artistObject) []types.Artist {
	return lo.Map(in, func(a artistObject, _ int) types.Artist {
		return types.Artist{ID: a.ID, Name: a.Name}
	})
}

type externalIDs struct {
	ISRC string `json:"isrc"`
	UPC  string `json:"upc"`
}

type albumObject struct {
	ID          string                      `json:"id"`
	Name        string                      `json:"name"`
	AlbumType   string                      `json:"album_type"`
	ReleaseDate string                      `json:"release_date"`
	TotalTracks int                         `json:"total_tracks"`
	Artists     []artistObject              `json:"artists"`
	Images      []imageObject               `json:"images"`
	ExternalIDs externalIDs                 `json:"external_ids"`
	Tracks      *page[simplifiedItemObject] `json:"tracks"`
}

func (a albumObject) toAlbum() types.Album {
	return types.Album{
		ID:          a.ID,
		Title:       a.Name,
		Artists:     toArtists(a.Artists),
		ReleaseDate: types.ReleaseDate(a.ReleaseDate),
		TotalTracks: a.TotalTracks,
		UPC:         lo.EmptyableToPtr(a.ExternalIDs.UPC),
		Images:      toImages(a.Images),
	}
}

type linkedFrom struct {
	ID string `json:"id"`
}

type trackObject struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Artists     []artistObject `json:"artists"`
	Album       albumObject    `json:"album"`
	TrackNumber int            `json:"track_number"`
	DiscNumber  int            `json:"disc_number"`
	DurationMS  int64          `json:"duration_ms"`
	Explicit    bool           `json:"explicit"`
	IsPlayable  *bool          `json:"is_playable"`
	Popularity  int            `json:"popularity"`
	ExternalIDs externalIDs    `json:"external_ids"`
	LinkedFrom  *linkedFrom    `json:"linked_from"`
}

// requestedID is the ID the track was requested with. Relinked tracks carry
// the original ID in linked_from.
func (t trackObject) requestedID() string {
	if nil != t.LinkedFrom && len(t.LinkedFrom.ID) > 0 {
		return t.LinkedFrom.ID
	}

	return t.ID
}

func (t trackObject) toMeta() *types.TrackMeta {
	return &types.TrackMeta{
		ID:          t.requestedID(),
		Title:       t.Name,
		Artists:     toArtists(t.Artists),
		Album:       t.Album.toAlbum(),
		TrackNumber: t.TrackNumber,
		DiscNumber:  t.DiscNumber,
		Duration:    time.Duration(t.DurationMS) * time.Millisecond,
		ISRC:        lo.EmptyableToPtr(t.ExternalIDs.ISRC),
		Explicit:    t.Explicit,
		Playable:    nil == t.IsPlayable || *t.IsPlayable,
		Popularity:  t.Popularity,
	}
}

type showObject struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Publisher     string        `json:"publisher"`
	TotalEpisodes int           `json:"total_episodes"`
	Images        []imageObject `json:"images"`
}

type episodeObject struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Show        *showObject   `json:"show"`
	ReleaseDate string        `json:"release_date"`
	DurationMS  int64         `json:"duration_ms"`
	Description string        `json:"description"`
	Images      []imageObject `json:"images"`
	IsPlayable  *bool         `json:"is_playable"`
}

func (e episodeObject) toMeta() *types.EpisodeMeta {
	var show types.Show
	if nil != e.Show {
		show = types.Show{
			ID:            e.Show.ID,
			Title:         e.Show.Name,
			Publisher:     e.Show.Publisher,
			TotalEpisodes: e.Show.TotalEpisodes,
		}
	}

	return &types.EpisodeMeta{
		ID:          e.ID,
		Title:       e.Name,
		Show:        show,
		ReleaseDate: types.ReleaseDate(e.ReleaseDate),
		Duration:    time.Duration(e.DurationMS) * time.Millisecond,
		Description: e.Description,
		Images:      toImages(e.Images),
		Playable:    nil == e.IsPlayable || *e.IsPlayable,
	}
}

// simplifiedItemObject is the shape shared by album tracks, show episodes and
// playlist entries where only identity matters.
type simplifiedItemObject struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	IsLocal bool   `json:"is_local"`
}

func (o *simplifiedItemObject) ref() (types.ItemRef, bool) {
	if nil == o || o.IsLocal || len(o.ID) == 0 {
		return types.ItemRef{}, false //nolint:exhaustruct
	}

	switch o.Type {
	case "track":
		return types.ItemRef{ID: o.ID, Kind: types.KindTrack}, true
	case "episode":
		return types.ItemRef{ID: o.ID, Kind: types.KindEpisode}, true
	default:
		return types.ItemRef{}, false //nolint:exhaustruct
	}
}

type page[T any] struct {
	Items  []T     `json:"items"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
	Next   *string `json:"next"`
}
