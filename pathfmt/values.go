package pathfmt

import (
	"strconv"

	"github.com/xeptore/zotify/spotify/types"
)

// ValuesFor collects the token values of item within coll. Item metadata must
// already be populated; tokens of optional fields are left out when absent.
func ValuesFor(item types.ContentItem, coll types.Collection) Values {
	v := Values{
		"id":         item.ID,
		"collection": coll.Name,
	}

	switch coll.Kind {
	case types.CollectionKindPlaylist, types.CollectionKindLikedTracks, types.CollectionKindLikedEpisodes:
		v["playlist"] = coll.Name
		v["playlist_id"] = coll.ID
		v["playlist_number"] = strconv.Itoa(item.Ordinal)
	}

	switch m := item.Metadata.(type) {
	case *types.TrackMeta:
		v["title"] = m.Title
		v["artist"] = m.MainArtist()
		v["artists"] = types.JoinArtists(m.Artists)
		v["album"] = m.Album.Title
		v["album_artist"] = m.AlbumArtist()
		v["album_id"] = m.Album.ID
		v["track_number"] = strconv.Itoa(m.TrackNumber)
		v["disc_number"] = strconv.Itoa(m.DiscNumber)
		v["total_tracks"] = strconv.Itoa(m.Album.TotalTracks)
		v["release_date"] = m.Album.ReleaseDate.String()
		v["year"] = m.Album.ReleaseDate.Year()
		if nil != m.ISRC {
			v["isrc"] = *m.ISRC
		}
		if nil != m.Album.UPC {
			v["upc"] = *m.Album.UPC
		}
	case *types.EpisodeMeta:
		v["title"] = m.Title
		v["podcast"] = m.Show.Title
		v["publisher"] = m.Show.Publisher
		v["artist"] = m.Show.Publisher
		v["release_date"] = m.ReleaseDate.String()
		v["year"] = m.ReleaseDate.Year()
		v["episode_number"] = strconv.Itoa(item.Ordinal)
	}

	return v
}
