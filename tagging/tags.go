package tagging

import (
	"strconv"

	"github.com/xeptore/zotify/spotify/types"
)

// Tags is the container independent set of fields written to a file. Empty
// fields are not written.
type Tags struct {
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	Track       string
	Disc        string
	Date        string
	Year        string
	ISRC        string
	UPC         string
	Comment     string
}

func TagsFrom(meta types.Metadata) Tags {
	switch m := meta.(type) {
	case *types.TrackMeta:
		t := Tags{
			Title:       m.Title,
			Artist:      types.JoinArtists(m.Artists),
			Album:       m.Album.Title,
			AlbumArtist: m.AlbumArtist(),
			Track:       position(m.TrackNumber, m.Album.TotalTracks),
			Disc:        position(m.DiscNumber, 0),
			Date:        m.Album.ReleaseDate.String(),
			Year:        m.Album.ReleaseDate.Year(),
			ISRC:        "",
			UPC:         "",
			Comment:     "",
		}
		if nil != m.ISRC {
			t.ISRC = *m.ISRC
		}
		if nil != m.Album.UPC {
			t.UPC = *m.Album.UPC
		}

		return t
	case *types.EpisodeMeta:
		return Tags{
			Title:       m.Title,
			Artist:      m.Show.Publisher,
			Album:       m.Show.Title,
			AlbumArtist: m.Show.Publisher,
			Track:       "",
			Disc:        "",
			Date:        m.ReleaseDate.String(),
			Year:        m.ReleaseDate.Year(),
			ISRC:        "",
			UPC:         "",
			Comment:     m.Description,
		}
	default:
		return Tags{} //nolint:exhaustruct
	}
}

func position(n, total int) string {
	if n <= 0 {
		return ""
	}

	if total > 0 {
		return strconv.Itoa(n) + "/" + strconv.Itoa(total)
	}

	return strconv.Itoa(n)
}

// ffmpegMetadata returns the -metadata key=value pairs of t.
func (t Tags) ffmpegMetadata() []string {
	pairs := [][2]string{
		{"title", t.Title},
		{"artist", t.Artist},
		{"album", t.Album},
		{"album_artist", t.AlbumArtist},
		{"track", t.Track},
		{"disc", t.Disc},
		{"date", t.Date},
		{"year", t.Year},
		{"isrc", t.ISRC},
		{"barcode", t.UPC},
		{"comment", t.Comment},
	}

	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if len(p[1]) > 0 {
			out = append(out, p[0]+"="+p[1])
		}
	}

	return out
}
