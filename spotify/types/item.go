package types

import (
	"slices"

	"github.com/rs/zerolog"
)

type Kind int

const (
	KindTrack Kind = iota
	KindEpisode
)

func (k Kind) String() string {
	switch k {
	case KindTrack:
		return "track"
	case KindEpisode:
		return "episode"
	}

	return "unknown"
}

// ContentItem is one downloadable track or episode. ID and Kind never change
// after construction; Metadata stays nil until a batch fetch populates it.
type ContentItem struct {
	ID       string
	Kind     Kind
	Ordinal  int
	Metadata Metadata
}

func (i ContentItem) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("id", i.ID).
		Stringer("kind", i.Kind).
		Int("ordinal", i.Ordinal).
		Bool("has_metadata", nil != i.Metadata)
}

func (i ContentItem) URI() string {
	return "spotify:" + i.Kind.String() + ":" + i.ID
}

func (i ContentItem) WithMetadata(m Metadata) ContentItem {
	i.Metadata = m
	return i
}

type CollectionKind int

const (
	CollectionKindTrack CollectionKind = iota
	CollectionKindEpisode
	CollectionKindAlbum
	CollectionKindPlaylist
	CollectionKindArtist
	CollectionKindShow
	CollectionKindLikedTracks
	CollectionKindLikedEpisodes
	CollectionKindSearch
)

func (k CollectionKind) String() string {
	switch k {
	case CollectionKindTrack:
		return "track"
	case CollectionKindEpisode:
		return "episode"
	case CollectionKindAlbum:
		return "album"
	case CollectionKindPlaylist:
		return "playlist"
	case CollectionKindArtist:
		return "artist"
	case CollectionKindShow:
		return "show"
	case CollectionKindLikedTracks:
		return "liked_tracks"
	case CollectionKindLikedEpisodes:
		return "liked_episodes"
	case CollectionKindSearch:
		return "search"
	}

	return "unknown"
}

type Collection struct {
	Kind  CollectionKind
	ID    string
	Name  string
	Items []ContentItem
}

func (c Collection) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Stringer("kind", c.Kind).
		Str("id", c.ID).
		Str("name", c.Name).
		Int("items", len(c.Items))
}

// Reversed returns a copy of c with its items in reverse order. Ordinals are
// kept, so numbering still reflects the position in the source collection.
func (c Collection) Reversed() Collection {
	items := slices.Clone(c.Items)
	slices.Reverse(items)
	c.Items = items

	return c
}

func (c Collection) IDs() []string {
	out := make([]string, len(c.Items))
	for i, item := range c.Items {
		out[i] = item.ID
	}

	return out
}

func NewCollection(kind CollectionKind, id, name string, refs []ItemRef) Collection {
	items := make([]ContentItem, len(refs))
	for i, ref := range refs {
		items[i] = ContentItem{ID: ref.ID, Kind: ref.Kind, Ordinal: i + 1, Metadata: nil}
	}

	return Collection{Kind: kind, ID: id, Name: name, Items: items}
}

type ItemRef struct {
	ID   string
	Kind Kind
}
