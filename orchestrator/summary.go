package orchestrator

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/xeptore/zotify/filter"
	"github.com/xeptore/zotify/spotify/types"
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
	StatusPlanned   Status = "planned"
)

// Entry is the outcome of one item.
type Entry struct {
	Collection string
	ID         string
	Ordinal    int
	Title      string
	Status     Status
	State      State
	Reason     string
	Path       string
	Err        error
	// Fatal failures make the run unsuccessful. Unavailable content is not
	// fatal.
	Fatal bool
}

func (e Entry) ToDict() *zerolog.Event {
	d := zerolog.Dict().
		Str("collection", e.Collection).
		Str("id", e.ID).
		Int("ordinal", e.Ordinal).
		Str("status", string(e.Status)).
		Stringer("state", e.State).
		Str("reason", e.Reason).
		Str("path", e.Path).
		Bool("fatal", e.Fatal)
	if nil != e.Err {
		d = d.AnErr("error", e.Err)
	}

	return d
}

// Summary lists entries in processing order.
type Summary struct {
	Entries []Entry
	Bytes   int64
}

func (s *Summary) count(status Status) int {
	var n int
	for _, e := range s.Entries {
		if e.Status == status {
			n++
		}
	}

	return n
}

func (s *Summary) Completed() int { return s.count(StatusCompleted) }
func (s *Summary) Skipped() int { return s.count(StatusSkipped) }
func (s *Summary) Failed() int { return s.count(StatusFailed) }
func (s *Summary) Planned() int { return s.count(StatusPlanned) }

func (s *Summary) HasFatal() bool {
	for _, e := range s.Entries {
		if e.Status == StatusFailed && e.Fatal {
			return true
		}
	}

	return false
}

func (s *Summary) Skips() []filter.Skip {
	var out []filter.Skip
	for _, e := range s.Entries {
		if e.Status == StatusSkipped {
			out = append(out, filter.Skip{ID: e.ID, Ordinal: e.Ordinal, Reason: filter.Reason(e.Reason), Path: e.Path})
		}
	}

	return out
}

func (s *Summary) IDs() []string {
	out := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		out[i] = e.ID
	}

	return out
}

func (s *Summary) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Int("entries", len(s.Entries)).
		Int("completed", s.Completed()).
		Int("skipped", s.Skipped()).
		Int("failed", s.Failed()).
		Int("planned", s.Planned()).
		Int64("bytes", s.Bytes).
		Bool("has_fatal", s.HasFatal())
}

func skipEntry(coll *types.Collection, item types.ContentItem, skip filter.Skip) Entry {
	return Entry{
		Collection: coll.Name,
		ID:         item.ID,
		Ordinal:    item.Ordinal,
		Title:      title(item),
		Status:     StatusSkipped,
		State:      StatePending,
		Reason:     string(skip.Reason),
		Path:       skip.Path,
		Err:        nil,
		Fatal:      false,
	}
}

func failedEntry(coll *types.Collection, item types.ContentItem, err error) Entry {
	var missing *types.MetadataMissingError
	unavailable := errors.As(err, &missing) || errors.Is(err, ErrUnplayable)

	reason := err.Error()
	if unavailable {
		reason = string(filter.ReasonUnavailable)
	}

	return Entry{
		Collection: coll.Name,
		ID:         item.ID,
		Ordinal:    item.Ordinal,
		Title:      title(item),
		Status:     StatusFailed,
		State:      StateFailed,
		Reason:     reason,
		Path:       "",
		Err:        err,
		Fatal:      !unavailable,
	}
}

func title(item types.ContentItem) string {
	if nil == item.Metadata {
		return ""
	}

	return item.Metadata.ItemTitle()
}
