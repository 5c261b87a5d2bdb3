package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/xeptore/zotify/filter"
	"github.com/xeptore/zotify/fs"
	"github.com/xeptore/zotify/must"
	"github.com/xeptore/zotify/progress"
	"github.com/xeptore/zotify/spotify/types"
	"github.com/xeptore/zotify/tagging"
)

// Task carries one item through acquisition. Only the goroutine running it
// mutates it.
type Task struct {
	Item       types.ContentItem
	Collection types.Collection
	Output     fs.Output
	Ext        string
	Quality    types.Quality
	State      State
	Err        error

	cancelled bool
	stream    *progress.Stream
	key       types.AudioKey
	acquired  fs.TempFile
	staged    fs.TempFile
	committed bool
}

func newTask(item types.ContentItem, coll types.Collection, out fs.Output, ext string, quality types.Quality) *Task {
	return &Task{
		Item:       item,
		Collection: coll,
		Output:     out,
		Ext:        ext,
		Quality:    quality,
		State:      StatePending,
		Err:        nil,
		cancelled:  false,
		stream:     &progress.Stream{Size: 0},
		key:        types.AudioKey{FileID: "", Key: nil},
		acquired:   out.Temp(""),
		staged:     out.Temp(ext),
		committed:  false,
	}
}

func (t *Task) Path() string {
	return t.Output.Audio(t.Ext)
}

func (t *Task) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Dict("item", t.Item.ToDict()).
		Str("path", t.Path()).
		Stringer("quality", t.Quality).
		Stringer("state", t.State)
}

func (t *Task) advance(logger zerolog.Logger, next State) {
	must.Be(t.State.CanTransitionTo(next), "invalid task transition from %s to %s", t.State, next)
	logger.Debug().Stringer("from", t.State).Stringer("to", next).Msg("Task state changed")
	t.State = next
}

func (t *Task) fail(logger zerolog.Logger, err error) {
	must.Be(!t.State.IsTerminal(), "task already reached %s", t.State)
	logger.Error().Err(err).Stringer("state", t.State).Msg("Task failed")
	t.State = StateFailed
	t.Err = err
}

func (t *Task) cancel() {
	t.cancelled = true
}

// cleanup removes every file the task produced. Completed tasks keep theirs.
func (t *Task) cleanup() error {
	if t.State == StateCompleted {
		return nil
	}

	errs := []error{t.acquired.Remove(), t.staged.Remove()}
	if t.committed {
		errs = append(errs, t.Output.Remove(t.Ext))
	}

	return errors.Join(errs...)
}

func (t *Task) entry(coll *types.Collection) Entry {
	if t.cancelled {
		return skipEntry(coll, t.Item, filter.Skip{ID: t.Item.ID, Ordinal: t.Item.Ordinal, Reason: filter.ReasonCancelled, Path: ""})
	}

	if t.State == StateFailed {
		e := failedEntry(coll, t.Item, t.Err)
		e.Path = t.Path()
		return e
	}

	return Entry{
		Collection: coll.Name,
		ID:         t.Item.ID,
		Ordinal:    t.Item.Ordinal,
		Title:      title(t.Item),
		Status:     StatusCompleted,
		State:      t.State,
		Reason:     "",
		Path:       t.Path(),
		Err:        nil,
		Fatal:      false,
	}
}

func (o *Orchestrator) runTask(ctx context.Context, t *Task) {
	logger := o.logger.With().Str("item_id", t.Item.ID).Int("ordinal", t.Item.Ordinal).Logger()
	logger.Debug().Dict("task", t.ToDict()).Msg("Starting task")

	if err := o.execute(ctx, logger, t); nil != err {
		t.fail(logger, err)
	}

	if err := t.cleanup(); nil != err {
		logger.Error().Err(err).Msg("Failed to clean up task files")
	}
}

func (o *Orchestrator) execute(ctx context.Context, logger zerolog.Logger, t *Task) error {
	t.advance(logger, StateKeyRequested)
	key, err := o.RequestKey(ctx, t.Item, t.Quality)
	if nil != err {
		return err
	}
	t.key = key

	t.advance(logger, StateAcquiring)
	if err := o.acquire(ctx, t); nil != err {
		return err
	}

	t.advance(logger, StateTranscoding)
	if err := o.deps.Transcoder.Transcode(ctx, t.acquired.Path, t.staged.Path, o.opts.Transcode); nil != err {
		return fmt.Errorf("failed to transcode: %w", err)
	}

	t.advance(logger, StateTagging)
	lyrics := o.lyrics(ctx, logger, t.Item)
	if o.opts.SaveMetadata {
		embedded := lyrics
		if !o.opts.SaveLyrics {
			embedded = nil
		}
		cover := o.cover(ctx, logger, t.Item)
		if err := o.deps.Tagger.Write(ctx, t.staged.Path, t.Item.Metadata, cover, embedded); nil != err {
			return fmt.Errorf("failed to write metadata: %w", err)
		}
	}

	if err := t.staged.Commit(t.Path()); nil != err {
		return err
	}
	t.committed = true

	if o.opts.LyricsFile && nil != lyrics && lyrics.Synced {
		if err := tagging.WriteLyricsFile(t.Output.Lyrics().Path, lyrics); nil != err {
			return fmt.Errorf("failed to write lyrics file: %w", err)
		}
	}

	if err := o.deps.Archive.Record(t.Item.ID, t.Path()); nil != err {
		return fmt.Errorf("failed to record completion: %w", err)
	}

	t.advance(logger, StateCompleted)
	logger.Info().Str("path", t.Path()).Int64("bytes", t.stream.Read()).Msg("Item downloaded")

	return nil
}

// RequestKey requests the audio key of item, retrying transient failures.
func (o *Orchestrator) RequestKey(ctx context.Context, item types.ContentItem, quality types.Quality) (types.AudioKey, error) {
	var key types.AudioKey
	err := o.deps.Governor.Do(ctx, o.deps.Policy, func(ctx context.Context) error {
		k, err := o.deps.Source.RequestAudioKey(ctx, item, quality)
		if nil != err {
			return err
		}
		key = k

		return nil
	})
	if nil != err {
		return types.AudioKey{}, fmt.Errorf("failed to request audio key: %w", err) //nolint:exhaustruct
	}

	return key, nil
}

// Stream writes the audio of item to dst, restarting the stream on transient
// failures.
func (o *Orchestrator) Stream(ctx context.Context, item types.ContentItem, key types.AudioKey, quality types.Quality, dst fs.TempFile, counter *progress.Stream) error {
	err := o.deps.Governor.Do(ctx, o.deps.Policy, func(ctx context.Context) (err error) {
		counter.Reset()

		body, err := o.deps.Source.StreamAudio(ctx, item, key, quality)
		if nil != err {
			return err
		}
		defer func() {
			if closeErr := body.Close(); nil != closeErr {
				err = errors.Join(err, fmt.Errorf("failed to close audio stream: %v", closeErr))
			}
		}()

		if _, err := dst.Write(counter.Wrap(body)); nil != err {
			return err
		}

		return nil
	})
	if nil != err {
		return fmt.Errorf("failed to stream audio: %w", err)
	}

	return nil
}

func (o *Orchestrator) acquire(ctx context.Context, t *Task) error {
	return o.Stream(ctx, t.Item, t.key, t.Quality, t.acquired, t.stream)
}

// Lyrics returns the lyrics of a track for premium sessions when they are
// embedded or written as a sidecar. Missing lyrics are reported as nil.
func (o *Orchestrator) Lyrics(ctx context.Context, item types.ContentItem) (*types.Lyrics, error) {
	if (!o.opts.SaveLyrics && !o.opts.LyricsFile) || !o.opts.Premium || item.Kind != types.KindTrack {
		return nil, nil //nolint:nilnil
	}

	lyrics, err := o.deps.Source.Lyrics(ctx, item.ID)
	if nil != err {
		if errors.Is(err, types.ErrLyricsUnavailable) {
			return nil, nil //nolint:nilnil
		}

		return nil, fmt.Errorf("failed to fetch lyrics: %w", err)
	}

	return lyrics, nil
}

func (o *Orchestrator) lyrics(ctx context.Context, logger zerolog.Logger, item types.ContentItem) *types.Lyrics {
	lyrics, err := o.Lyrics(ctx, item)
	if nil != err {
		logger.Warn().Err(err).Msg("Continuing without lyrics")
		return nil
	}

	return lyrics
}

func (o *Orchestrator) cover(ctx context.Context, logger zerolog.Logger, item types.ContentItem) []byte {
	if nil == o.deps.Covers {
		return nil
	}

	cover, err := o.deps.Covers.Cover(ctx, item.Metadata)
	if nil != err {
		logger.Warn().Err(err).Msg("Continuing without cover art")
		return nil
	}

	return cover
}
