package metadata

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/xeptore/zotify/cache"
	"github.com/xeptore/zotify/iterutil"
	"github.com/xeptore/zotify/mathutil"
	"github.com/xeptore/zotify/result"
	"github.com/xeptore/zotify/spotify/types"
)

// Source serves batch metadata lookups. IDs unknown upstream are absent from
// the returned maps.
type Source interface {
	Tracks(ctx context.Context, ids []string) (map[string]*types.TrackMeta, error)
	Episodes(ctx context.Context, ids []string) (map[string]*types.EpisodeMeta, error)
}

type Options struct {
	BatchSize   int
	Concurrency int
	TTL         time.Duration
}

// Records maps an item ID to its metadata or the error that prevented
// fetching it.
type Records map[string]result.Of[types.Metadata]

func (r Records) Get(id string) (types.Metadata, error) {
	rec, ok := r[id]
	if !ok {
		return nil, &types.MetadataMissingError{ID: id}
	}

	return rec.Get()
}

type Fetcher struct {
	logger zerolog.Logger
	source Source
	cache  *cache.MetadataCache
	opts   Options
}

func New(logger zerolog.Logger, source Source, metadataCache *cache.MetadataCache, opts Options) *Fetcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}

	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	if opts.TTL <= 0 {
		opts.TTL = cache.DefaultMetadataTTL
	}

	return &Fetcher{
		logger: logger,
		source: source,
		cache:  metadataCache,
		opts:   opts,
	}
}

type batch struct {
	kind types.Kind
	// index numbers the batches of one kind.
	index int
	ids   []string
}

// Fetch returns a record for every distinct item ID. Cached records are served
// without an upstream request. A batch that fails after retries marks each of
// its items with the batch error; the returned error is only set when ctx is
// done.
func (f *Fetcher) Fetch(ctx context.Context, items []types.ContentItem) (Records, error) {
	var (
		records = make(Records, len(items))
		pending = map[types.Kind][]string{}
		queued  = map[string]struct{}{}
	)
	for _, item := range items {
		if _, ok := records[item.ID]; ok {
			continue
		}

		if nil != item.Metadata {
			records[item.ID] = result.Ok(item.Metadata)
			continue
		}

		if m, ok := f.cache.Get(item.Kind, item.ID); ok {
			records[item.ID] = result.Ok(m)
			continue
		}

		if _, ok := queued[item.ID]; ok {
			continue
		}
		queued[item.ID] = struct{}{}
		pending[item.Kind] = append(pending[item.Kind], item.ID)
	}

	var batches []batch
	for _, kind := range []types.Kind{types.KindTrack, types.KindEpisode} {
		ids := pending[kind]
		if len(ids) == 0 {
			continue
		}

		for i, chunk := range iterutil.WithIndex(slices.Chunk(ids, f.opts.BatchSize)) {
			batches = append(batches, batch{kind: kind, index: i, ids: chunk})
		}

		f.logger.Debug().
			Stringer("kind", kind).
			Int("ids", len(ids)).
			Int("batches", mathutil.DivCeil(len(ids), f.opts.BatchSize)).
			Msg("Fetching metadata")
	}

	var (
		mux sync.Mutex
		wg  errgroup.Group
	)
	wg.SetLimit(f.opts.Concurrency)
	for _, b := range batches {
		wg.Go(func() error {
			if nil != ctx.Err() {
				return ctx.Err()
			}

			logger := f.logger.With().Int("batch", b.index).Stringer("kind", b.kind).Int("size", len(b.ids)).Logger()

			found, err := f.fetchBatch(ctx, b)
			if nil != err {
				if nil != ctx.Err() {
					return ctx.Err()
				}
				logger.Error().Err(err).Msg("Metadata batch failed")
			}

			mux.Lock()
			defer mux.Unlock()
			for _, id := range b.ids {
				switch m, ok := found[id]; {
				case nil != err:
					records[id] = result.Err[types.Metadata](fmt.Errorf("failed to fetch metadata batch: %w", err))
				case !ok:
					logger.Warn().Str("item_id", id).Msg("Metadata missing from batch response")
					records[id] = result.Err[types.Metadata](&types.MetadataMissingError{ID: id})
				default:
					f.cache.Set(m, f.opts.TTL)
					records[id] = result.Ok(m)
				}
			}

			return nil
		})
	}

	if err := wg.Wait(); nil != err {
		return nil, err
	}

	return records, nil
}

func (f *Fetcher) fetchBatch(ctx context.Context, b batch) (map[string]types.Metadata, error) {
	out := make(map[string]types.Metadata, len(b.ids))
	switch b.kind {
	case types.KindTrack:
		tracks, err := f.source.Tracks(ctx, b.ids)
		if nil != err {
			return nil, err
		}
		for id, m := range tracks {
			out[id] = m
		}
	case types.KindEpisode:
		episodes, err := f.source.Episodes(ctx, b.ids)
		if nil != err {
			return nil, err
		}
		for id, m := range episodes {
			out[id] = m
		}
	default:
		return nil, fmt.Errorf("unsupported item kind: %s", b.kind)
	}

	return out, nil
}

// Populate returns a copy of items with metadata attached from records. Items
// without a successful record keep nil metadata.
func Populate(items []types.ContentItem, records Records) []types.ContentItem {
	out := make([]types.ContentItem, len(items))
	for i, item := range items {
		if m, err := records.Get(item.ID); nil == err {
			item = item.WithMetadata(m)
		}
		out[i] = item
	}

	return out
}
