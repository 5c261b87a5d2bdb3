package resolver

import (
	"regexp"
	"slices"
	"strings"

	"github.com/xeptore/zotify/spotify/types"
)

type Category string

const (
	CategoryAlbum    Category = "album"
	CategoryArtist   Category = "artist"
	CategoryPlaylist Category = "playlist"
	CategoryTrack    Category = "track"
	CategoryShow     Category = "show"
	CategoryEpisode  Category = "episode"
)

var (
	AllCategories = []Category{CategoryAlbum, CategoryArtist, CategoryPlaylist, CategoryTrack, CategoryShow, CategoryEpisode}
	// DefaultCategories are searched when a query names none.
	DefaultCategories = AllCategories
)

func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	return c, slices.Contains(AllCategories, c)
}

// filterCategories lists, per field filter, the search categories it can be
// combined with.
var filterCategories = map[string][]Category{
	"album":       {CategoryAlbum, CategoryTrack},
	"artist":      {CategoryAlbum, CategoryArtist, CategoryTrack},
	"track":       {CategoryTrack},
	"year":        {CategoryAlbum, CategoryArtist, CategoryTrack},
	"genre":       {CategoryArtist, CategoryTrack},
	"isrc":        {CategoryTrack},
	"upc":         {CategoryAlbum},
	"tag:new":     {CategoryAlbum},
	"tag:hipster": {CategoryAlbum},
}

var yearPattern = regexp.MustCompile(`^\d{4}(-\d{4})?$`)

type Filter struct {
	Field string
	Value string
}

func (f Filter) String() string {
	if isTag(f.Field) {
		return f.Field
	}

	if strings.ContainsAny(f.Value, " \t") {
		return f.Field + `:"` + f.Value + `"`
	}

	return f.Field + ":" + f.Value
}

func isTag(field string) bool {
	return strings.HasPrefix(field, "tag:")
}

type Query struct {
	Terms      string
	Categories []Category
	Filters    []Filter
	Limit      int
}

const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50
)

// Validate checks every filter against every requested category. A filter that
// does not apply to one of them is rejected instead of being dropped.
func (q Query) Validate() error {
	if len(strings.TrimSpace(q.Terms)) == 0 && len(q.Filters) == 0 {
		return &types.UnsupportedReferenceError{Ref: q.Terms, Reason: "empty search query"}
	}

	for _, f := range q.Filters {
		allowed, ok := filterCategories[f.Field]
		if !ok {
			return &types.InvalidFilterError{Filter: f.Field, Category: "any"}
		}

		for _, c := range q.categories() {
			if !slices.Contains(allowed, c) {
				return &types.InvalidFilterError{Filter: f.Field, Category: string(c)}
			}
		}

		if f.Field == "year" && !yearPattern.MatchString(f.Value) {
			return &types.UnsupportedReferenceError{Ref: f.String(), Reason: "year must be YYYY or YYYY-YYYY"}
		}

		if !isTag(f.Field) && len(f.Value) == 0 {
			return &types.UnsupportedReferenceError{Ref: f.String(), Reason: "filter requires a value"}
		}
	}

	return nil
}

func (q Query) categories() []Category {
	if len(q.Categories) == 0 {
		return DefaultCategories
	}

	return q.Categories
}

func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return DefaultSearchLimit
	case q.Limit > MaxSearchLimit:
		return MaxSearchLimit
	default:
		return q.Limit
	}
}

func (q Query) String() string {
	parts := make([]string, 0, len(q.Filters)+1)
	if terms := strings.TrimSpace(q.Terms); len(terms) > 0 {
		parts = append(parts, terms)
	}
	for _, f := range q.Filters {
		parts = append(parts, f.String())
	}

	return strings.Join(parts, " ")
}

// ParseQuery splits free text into plain terms and field filters, e.g.
// `daft punk year:2001 tag:new`.
func ParseQuery(text string, categories []Category) Query {
	var (
		terms   []string
		filters []Filter
	)
	for _, token := range strings.Fields(text) {
		lower := strings.ToLower(token)
		if _, ok := filterCategories[lower]; ok && isTag(lower) {
			filters = append(filters, Filter{Field: lower, Value: ""})
			continue
		}

		if field, value, ok := strings.Cut(token, ":"); ok {
			field = strings.ToLower(field)
			if _, known := filterCategories[field]; known && !isTag(field) {
				filters = append(filters, Filter{Field: field, Value: strings.Trim(value, `"`)})
				continue
			}
		}

		terms = append(terms, token)
	}

	return Query{
		Terms:      strings.Join(terms, " "),
		Categories: categories,
		Filters:    filters,
		Limit:      0,
	}
}
