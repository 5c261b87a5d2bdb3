package types

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Metadata is either *TrackMeta or *EpisodeMeta.
type Metadata interface {
	metadata()
	ItemID() string
	ItemKind() Kind
	ItemTitle() string
	CoverImages() []Image
	IsPlayable() bool
}

type Image struct {
	URL    string
	Width  int
	Height int
}

type Artist struct {
	ID   string
	Name string
}

func JoinArtists(artists []Artist) string {
	return strings.Join(lo.Map(artists, func(a Artist, _ int) string { return a.Name }), ", ")
}

type Album struct {
	ID          string
	Title       string
	Artists     []Artist
	ReleaseDate ReleaseDate
	TotalTracks int
	UPC         *string
	Images      []Image
}

type TrackMeta struct {
	ID          string
	Title       string
	Artists     []Artist
	Album       Album
	TrackNumber int
	DiscNumber  int
	Duration    time.Duration
	ISRC        *string
	Explicit    bool
	Playable    bool
	Popularity  int
}

func (*TrackMeta) metadata() {}

func (m *TrackMeta) ItemID() string { return m.ID }
func (m *TrackMeta) ItemKind() Kind { return KindTrack }
func (m *TrackMeta) ItemTitle() string { return m.Title }
func (m *TrackMeta) CoverImages() []Image { return m.Album.Images }
func (m *TrackMeta) IsPlayable() bool { return m.Playable }

func (m *TrackMeta) MainArtist() string {
	if len(m.Artists) == 0 {
		return ""
	}

	return m.Artists[0].Name
}

func (m *TrackMeta) AlbumArtist() string {
	if len(m.Album.Artists) == 0 {
		return m.MainArtist()
	}

	return m.Album.Artists[0].Name
}

type Show struct {
	ID            string
	Title         string
	Publisher     string
	TotalEpisodes int
}

type EpisodeMeta struct {
	ID          string
	Title       string
	Show        Show
	ReleaseDate ReleaseDate
	Duration    time.Duration
	Description string
	Images      []Image
	Playable    bool
}

func (*EpisodeMeta) metadata() {}

func (m *EpisodeMeta) ItemID() string { return m.ID }
func (m *EpisodeMeta) ItemKind() Kind { return KindEpisode }
func (m *EpisodeMeta) ItemTitle() string { return m.Title }
func (m *EpisodeMeta) CoverImages() []Image { return m.Images }
func (m *EpisodeMeta) IsPlayable() bool { return m.Playable }

// ReleaseDate keeps the precision reported upstream: "2006", "2006-01" or
// "2006-01-02".
type ReleaseDate string

func (d ReleaseDate) Year() string {
	if len(d) < 4 {
		return ""
	}

	return string(d[:4])
}

func (d ReleaseDate) String() string {
	return string(d)
}

// PickImage returns the largest image for "large", the smallest for "small"
// and the middle one otherwise.
func PickImage(images []Image, size string) (Image, bool) {
	if len(images) == 0 {
		return Image{}, false //nolint:exhaustruct
	}

	sorted := slices.Clone(images)
	slices.SortStableFunc(sorted, func(a, b Image) int { return cmp.Compare(a.Width, b.Width) })

	switch size {
	case "small":
		return sorted[0], true
	case "large":
		return sorted[len(sorted)-1], true
	default:
		return sorted[len(sorted)/2], true
	}
}
