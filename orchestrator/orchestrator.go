package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/xeptore/zotify/filter"
	"github.com/xeptore/zotify/fs"
	"github.com/xeptore/zotify/progress"
	"github.com/xeptore/zotify/ratelimit"
	"github.com/xeptore/zotify/spotify/metadata"
	"github.com/xeptore/zotify/spotify/types"
	"github.com/xeptore/zotify/transcode"
)

var ErrUnplayable = errors.New("content is not playable")

// Source acquires audio and lyrics from the streaming backend.
type Source interface {
	RequestAudioKey(ctx context.Context, item types.ContentItem, quality types.Quality) (types.AudioKey, error)
	StreamAudio(ctx context.Context, item types.ContentItem, key types.AudioKey, quality types.Quality) (io.ReadCloser, error)
	Lyrics(ctx context.Context, trackID string) (*types.Lyrics, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, items []types.ContentItem) (metadata.Records, error)
}

type Archive interface {
	Contains(id string) bool
	Record(id, outputPath string) error
}

type Transcoder interface {
	Transcode(ctx context.Context, src, dst string, opts transcode.Options) error
}

type Tagger interface {
	Write(ctx context.Context, path string, meta types.Metadata, cover []byte, lyrics *types.Lyrics) error
}

// Covers returns the cover art of meta, or nil when it has none.
type Covers interface {
	Cover(ctx context.Context, meta types.Metadata) ([]byte, error)
}

// OutputFunc returns the output location of item within coll.
type OutputFunc func(item types.ContentItem, coll types.Collection) (fs.Output, error)

type Deps struct {
	Source     Source
	Fetcher    Fetcher
	Archive    Archive
	Transcoder Transcoder
	Tagger     Tagger
	Covers     Covers
	Output     OutputFunc
	Governor   *ratelimit.Governor
	Policy     ratelimit.Policy
}

type Options struct {
	Concurrency     int
	Reverse         bool
	Quality         types.Quality
	Premium         bool
	Transcode       transcode.Options
	ReplaceExisting bool
	SaveMetadata    bool
	SaveLyrics      bool
	LyricsFile      bool
	BulkWait        time.Duration
	ShutdownTimeout time.Duration
	DryRun          bool
}

func (o Options) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Int("concurrency", o.Concurrency).
		Bool("reverse", o.Reverse).
		Stringer("quality", o.Quality).
		Bool("premium", o.Premium).
		Dict("transcode", o.Transcode.ToDict()).
		Bool("replace_existing", o.ReplaceExisting).
		Bool("save_metadata", o.SaveMetadata).
		Bool("save_lyrics", o.SaveLyrics).
		Bool("lyrics_file", o.LyricsFile).
		Dur("bulk_wait", o.BulkWait).
		Dur("shutdown_timeout", o.ShutdownTimeout).
		Bool("dry_run", o.DryRun)
}

type Orchestrator struct {
	logger zerolog.Logger
	deps   Deps
	opts   Options
	ext    string
}

func New(logger zerolog.Logger, deps Deps, opts Options) (*Orchestrator, error) {
	ext, err := transcode.Extension(opts.Transcode.Format)
	if nil != err {
		return nil, err
	}

	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	return &Orchestrator{
		logger: logger,
		deps:   deps,
		opts:   opts,
		ext:    ext,
	}, nil
}

// Extension is the file extension of finished outputs.
func (o *Orchestrator) Extension() string {
	return o.ext
}

// Run drives every item of collections to a terminal state or a skip. Per
// item failures are reported in the summary; the returned error is reserved
// for failures that prevent processing a whole collection.
func (o *Orchestrator) Run(ctx context.Context, collections []*types.Collection) (*Summary, error) {
	// In-flight tasks keep running for up to ShutdownTimeout once ctx is done.
	taskCtx, cancelTasks := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelTasks()
	stop := context.AfterFunc(ctx, func() {
		if o.opts.ShutdownTimeout <= 0 {
			cancelTasks()
			return
		}
		time.AfterFunc(o.opts.ShutdownTimeout, cancelTasks)
	})
	defer stop()

	o.logger.Info().Dict("options", o.opts.ToDict()).Int("collections", len(collections)).Msg("Starting downloads")

	summary := &Summary{Entries: nil, Bytes: 0}
	for _, coll := range collections {
		entries, bytes, err := o.runCollection(ctx, taskCtx, coll)
		summary.Entries = append(summary.Entries, entries...)
		summary.Bytes += bytes
		if nil != err {
			return summary, err
		}
	}

	o.logger.Info().Dict("summary", summary.ToDict()).Msg("Downloads finished")

	return summary, nil
}

func (o *Orchestrator) runCollection(ctx, taskCtx context.Context, coll *types.Collection) ([]Entry, int64, error) {
	logger := o.logger.With().Dict("collection", coll.ToDict()).Logger()

	if o.opts.Reverse {
		reversed := coll.Reversed()
		coll = &reversed
	}

	entries := make([]Entry, len(coll.Items))
	if nil != ctx.Err() {
		for i, item := range coll.Items {
			entries[i] = skipEntry(coll, item, filter.Skip{ID: item.ID, Ordinal: item.Ordinal, Reason: filter.ReasonCancelled, Path: ""})
		}
		return entries, 0, nil
	}

	records, err := o.deps.Fetcher.Fetch(ctx, coll.Items)
	if nil != err {
		if nil != ctx.Err() {
			for i, item := range coll.Items {
				entries[i] = skipEntry(coll, item, filter.Skip{ID: item.ID, Ordinal: item.Ordinal, Reason: filter.ReasonCancelled, Path: ""})
			}
			return entries, 0, nil
		}

		return nil, 0, fmt.Errorf("failed to fetch metadata of %s: %w", coll.Name, err)
	}
	items := metadata.Populate(coll.Items, records)

	var (
		position = make(map[int]int, len(items))
		outputs  = make(map[int]fs.Output, len(items))
		failures = make(map[int]error, len(items))
	)
	for i, item := range items {
		position[item.Ordinal] = i

		if _, err := records.Get(item.ID); nil != err {
			failures[item.Ordinal] = err
			continue
		}

		if !item.Metadata.IsPlayable() {
			failures[item.Ordinal] = ErrUnplayable
			continue
		}

		out, err := o.deps.Output(item, *coll)
		if nil != err {
			failures[item.Ordinal] = fmt.Errorf("failed to resolve output path: %w", err)
			continue
		}
		outputs[item.Ordinal] = out
	}

	opts := filter.Options{Archive: o.deps.Archive, Exists: nil}
	if !o.opts.ReplaceExisting {
		opts.Exists = func(item types.ContentItem) (string, bool, error) {
			out, ok := outputs[item.Ordinal]
			if !ok {
				return "", false, nil
			}

			return out.Existing()
		}
	}

	res := filter.Apply(logger, items, opts)
	for ordinal, err := range res.Unchecked {
		failures[ordinal] = err
	}

	for _, skip := range res.Skipped {
		i := position[skip.Ordinal]
		entries[i] = skipEntry(coll, items[i], skip)
	}

	var tasks []*Task
	for _, item := range res.Kept {
		i := position[item.Ordinal]
		if err, failed := failures[item.Ordinal]; failed {
			logger.Warn().Err(err).Str("item_id", item.ID).Msg("Item cannot be downloaded")
			entries[i] = failedEntry(coll, item, err)
			continue
		}

		if o.opts.DryRun {
			entries[i] = Entry{
				Collection: coll.Name,
				ID:         item.ID,
				Ordinal:    item.Ordinal,
				Title:      title(item),
				Status:     StatusPlanned,
				State:      StatePending,
				Reason:     "",
				Path:       outputs[item.Ordinal].Audio(o.ext),
				Err:        nil,
				Fatal:      false,
			}
			continue
		}

		tasks = append(tasks, newTask(item, *coll, outputs[item.Ordinal], o.ext, o.opts.Quality.Resolve(item.Kind, o.opts.Premium)))
	}

	logger.Info().
		Int("total", len(items)).
		Int("skipped", len(res.Skipped)).
		Int("unavailable", len(failures)).
		Int("tasks", len(tasks)).
		Msg("Collection planned")

	bytes := o.runTasks(ctx, taskCtx, tasks, func(t *Task) {
		i := position[t.Item.Ordinal]
		entries[i] = t.entry(coll)
	})

	return entries, bytes, nil
}

func (o *Orchestrator) runTasks(ctx, taskCtx context.Context, tasks []*Task, done func(*Task)) int64 {
	var (
		mux   sync.Mutex
		batch = progress.NewBatch(len(tasks))
		wg    errgroup.Group
	)
	wg.SetLimit(o.opts.Concurrency)

	finish := func(t *Task) {
		batch.Finish(t.stream)
		mux.Lock()
		defer mux.Unlock()
		done(t)
	}

	for i, t := range tasks {
		if i > 0 && o.opts.BulkWait > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(ratelimit.BulkWait(o.opts.BulkWait)):
			}
		}

		if nil != ctx.Err() {
			t.cancel()
			finish(t)
			continue
		}

		wg.Go(func() error {
			if nil != ctx.Err() {
				t.cancel()
				finish(t)
				return nil
			}

			o.runTask(taskCtx, t)
			finish(t)

			o.logger.Info().
				Str("item_id", t.Item.ID).
				Stringer("state", t.State).
				Int("progress", batch.Percent()).
				Msg("Task finished")

			return nil
		})
	}

	_ = wg.Wait() //nolint:errcheck

	return batch.Bytes()
}
