package filter

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/xeptore/zotify/spotify/types"
)

type Reason string

const (
	ReasonArchived    Reason = "archived"
	ReasonFileExists  Reason = "file-exists"
	ReasonDuplicate   Reason = "duplicate-in-batch"
	ReasonCancelled   Reason = "cancelled"
	ReasonUnavailable Reason = "unavailable"
)

type Skip struct {
	ID      string
	Ordinal int
	Reason  Reason
	// Path is the existing file for ReasonFileExists.
	Path string
}

func (s Skip) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("id", s.ID).
		Int("ordinal", s.Ordinal).
		Str("reason", string(s.Reason)).
		Str("path", s.Path)
}

// Archive reports whether an item has been completed before.
type Archive interface {
	Contains(id string) bool
}

// ExistsFunc reports whether the output of item is already on disk and where.
type ExistsFunc func(item types.ContentItem) (path string, ok bool, err error)

type Options struct {
	Archive Archive
	// Exists is skipped when nil, e.g. when existing files are replaced.
	Exists ExistsFunc
}

type Result struct {
	Kept    []types.ContentItem
	Skipped []Skip
	// Unchecked holds, by ordinal, kept items whose existing output could not
	// be checked.
	Unchecked map[int]error
}

// Apply drops items that repeat an earlier item, are archived, or already
// exist on disk, in that order of precedence. Kept items keep their input
// order. The first occurrence of a repeated ID is the one kept. An item whose
// existing output cannot be checked is kept and listed in Unchecked.
func Apply(logger zerolog.Logger, items []types.ContentItem, opts Options) *Result {
	var (
		res  = &Result{Kept: make([]types.ContentItem, 0, len(items)), Skipped: nil, Unchecked: make(map[int]error)}
		seen = make(map[string]struct{}, len(items))
	)
	for _, item := range items {
		skip := Skip{ID: item.ID, Ordinal: item.Ordinal, Reason: "", Path: ""}

		if _, ok := seen[item.ID]; ok {
			skip.Reason = ReasonDuplicate
		} else {
			seen[item.ID] = struct{}{}

			switch {
			case nil != opts.Archive && opts.Archive.Contains(item.ID):
				skip.Reason = ReasonArchived
			case nil != opts.Exists:
				path, ok, err := opts.Exists(item)
				if nil != err {
					err = fmt.Errorf("failed to check existing output of %s: %w", item.ID, err)
					logger.Warn().Err(err).Int("ordinal", item.Ordinal).Msg("Existing output check failed")
					res.Unchecked[item.Ordinal] = err
					break
				}
				if ok {
					skip.Reason = ReasonFileExists
					skip.Path = path
				}
			}
		}

		if len(skip.Reason) > 0 {
			logger.Debug().Dict("skip", skip.ToDict()).Msg("Skipping item")
			res.Skipped = append(res.Skipped, skip)
			continue
		}

		res.Kept = append(res.Kept, item)
	}

	return res
}
