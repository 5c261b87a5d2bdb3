package resolver

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/xeptore/zotify/spotify/types"
)

var idPattern = regexp.MustCompile(`^[0-9A-Za-z]{22}$`)

type Link struct {
	Kind types.CollectionKind
	ID   string
}

func (l Link) String() string {
	return "spotify:" + l.Kind.String() + ":" + l.ID
}

var linkKinds = map[string]types.CollectionKind{
	"track":    types.CollectionKindTrack,
	"episode":  types.CollectionKindEpisode,
	"album":    types.CollectionKindAlbum,
	"playlist": types.CollectionKindPlaylist,
	"artist":   types.CollectionKindArtist,
	"show":     types.CollectionKindShow,
}

// ParseLink parses open.spotify.com URLs and spotify: URIs. Legacy user
// playlist forms (spotify:user:<name>:playlist:<id>) are accepted.
func ParseLink(ref string) (Link, error) {
	ref = strings.TrimSpace(ref)
	if len(ref) == 0 {
		return Link{}, &types.UnsupportedReferenceError{Ref: ref, Reason: "empty reference"}
	}

	var segments []string
	if rest, ok := strings.CutPrefix(ref, "spotify:"); ok {
		segments = strings.Split(rest, ":")
	} else {
		u, err := url.Parse(ref)
		if nil != err {
			return Link{}, &types.UnsupportedReferenceError{Ref: ref, Reason: "malformed URL"}
		}

		switch u.Host {
		case "open.spotify.com", "play.spotify.com":
		default:
			return Link{}, &types.UnsupportedReferenceError{Ref: ref, Reason: "unknown host " + u.Host}
		}

		for _, s := range strings.Split(strings.Trim(u.Path, "/"), "/") {
			if s == "embed" || strings.HasPrefix(s, "intl-") {
				continue
			}
			segments = append(segments, s)
		}
	}

	if len(segments) < 2 {
		return Link{}, &types.UnsupportedReferenceError{Ref: ref, Reason: "missing content type or id"}
	}

	kindName, id := segments[len(segments)-2], segments[len(segments)-1]
	kind, ok := linkKinds[kindName]
	if !ok {
		return Link{}, &types.UnsupportedReferenceError{Ref: ref, Reason: fmt.Sprintf("unsupported content type %q", kindName)}
	}

	if !idPattern.MatchString(id) {
		return Link{}, &types.UnsupportedReferenceError{Ref: ref, Reason: fmt.Sprintf("invalid id %q", id)}
	}

	return Link{Kind: kind, ID: id}, nil
}

// ReadReferences reads one reference per line. Blank lines and lines starting
// with # are ignored.
func ReadReferences(r io.Reader) ([]string, error) {
	var (
		out     []string
		scanner = bufio.NewScanner(r)
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}

	if err := scanner.Err(); nil != err {
		return nil, fmt.Errorf("failed to read references: %v", err)
	}

	return out, nil
}
