package pathfmt

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/xeptore/zotify/spotify/types"
)

// Tokens lists the placeholders a template may reference.
var Tokens = []string{
	"id",
	"title",
	"artist",
	"artists",
	"album",
	"album_artist",
	"album_id",
	"track_number",
	"disc_number",
	"total_tracks",
	"release_date",
	"year",
	"isrc",
	"upc",
	"podcast",
	"publisher",
	"episode_number",
	"playlist",
	"playlist_id",
	"playlist_number",
	"collection",
}

var tokenPattern = regexp.MustCompile(`\{([a-z_]+)(?::0(\d{1,2}))?\}`)

type UnresolvedTokenError struct {
	Token    string
	Template string
}

func (e *UnresolvedTokenError) Error() string {
	return fmt.Sprintf("template %q references token {%s} which has no value and no default", e.Template, e.Token)
}

// Values maps token names to raw, unsanitized values. Absent keys are tokens
// without a value.
type Values map[string]string

type Templates struct {
	Album           string
	PlaylistTrack   string
	PlaylistEpisode string
	Podcast         string
	Single          string
}

// Select picks the template for an item of the given kind inside a collection
// of the given kind.
func (t Templates) Select(collection types.CollectionKind, item types.Kind) string {
	if item == types.KindEpisode {
		switch collection {
		case types.CollectionKindPlaylist:
			return t.PlaylistEpisode
		default:
			return t.Podcast
		}
	}

	switch collection {
	case types.CollectionKindAlbum, types.CollectionKindArtist:
		return t.Album
	case types.CollectionKindPlaylist, types.CollectionKindLikedTracks:
		return t.PlaylistTrack
	default:
		return t.Single
	}
}

type Resolver struct {
	templates Templates
	defaults  map[string]string
}

func New(templates Templates, defaults map[string]string) *Resolver {
	return &Resolver{templates: templates, defaults: defaults}
}

func (r *Resolver) Templates() Templates {
	return r.templates
}

// Resolve substitutes every token of template. The result uses the host path
// separator and has no extension.
func (r *Resolver) Resolve(template string, values Values) (string, error) {
	if len(strings.TrimSpace(template)) == 0 {
		return "", errors.New("empty output template")
	}

	var unresolved error
	out := tokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		if nil != unresolved {
			return match
		}

		groups := tokenPattern.FindStringSubmatch(match)
		name, width := groups[1], groups[2]

		v, ok := values[name]
		if !ok {
			v, ok = r.defaults[name]
		}
		if !ok {
			unresolved = &UnresolvedTokenError{Token: name, Template: template}
			return match
		}

		v = Sanitize(v)
		if len(width) > 0 {
			v = pad(v, width)
		}

		return v
	})
	if nil != unresolved {
		return "", unresolved
	}

	segments := strings.Split(out, "/")
	for i, s := range segments {
		segments[i] = strings.TrimRight(s, ". ")
		if len(segments[i]) == 0 && i > 0 {
			segments[i] = "_"
		}
	}

	return filepath.Join(segments...), nil
}

func pad(v, width string) string {
	n, err := strconv.Atoi(width)
	if nil != err || strings.ContainsFunc(v, func(r rune) bool { return !unicode.IsDigit(r) }) {
		return v
	}

	if len(v) >= n {
		return v
	}

	return strings.Repeat("0", n-len(v)) + v
}

// Sanitize makes v safe to use as a single path component.
func Sanitize(v string) string {
	v = norm.NFC.String(v)
	v = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case strings.ContainsRune(`<>:"|?*`, r):
			return '_'
		case unicode.IsControl(r):
			return '_'
		default:
			return r
		}
	}, v)
	v = strings.TrimSpace(v)
	v = strings.TrimRight(v, ". ")

	if len(v) == 0 {
		return "_"
	}

	return v
}
