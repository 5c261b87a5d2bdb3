package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/xeptore/zotify/archive"
	"github.com/xeptore/zotify/cache"
	"github.com/xeptore/zotify/config"
	"github.com/xeptore/zotify/fs"
	"github.com/xeptore/zotify/orchestrator"
	"github.com/xeptore/zotify/pathfmt"
	"github.com/xeptore/zotify/progress"
	"github.com/xeptore/zotify/ratelimit"
	"github.com/xeptore/zotify/spotify/api"
	"github.com/xeptore/zotify/spotify/metadata"
	"github.com/xeptore/zotify/spotify/resolver"
	"github.com/xeptore/zotify/spotify/types"
	"github.com/xeptore/zotify/tagging"
	"github.com/xeptore/zotify/transcode"
)

var ErrNoCoverArt = errors.New("item has no cover art")

// Session is a logged in client together with everything needed to resolve
// and download content.
type Session struct {
	logger     zerolog.Logger
	conf       *config.Config
	protocol   Protocol
	account    types.Account
	quality    types.Quality
	cache      *cache.Cache
	client     *api.Client
	resolver   *resolver.Resolver
	fetcher    *metadata.Fetcher
	paths      *pathfmt.Resolver
	transcoder *transcode.Transcoder
	transcode  transcode.Options
	tagger     *tagging.Writer
	archive    *archive.Store
	runner     *orchestrator.Orchestrator
	planner    *orchestrator.Orchestrator
}

// Open logs protocol in, reusing credentials stored at the configured path,
// and wires the download pipeline. The session owns protocol from then on,
// and protocol is closed when Open fails.
func Open(ctx context.Context, logger zerolog.Logger, conf *config.Config, protocol Protocol) (s *Session, err error) {
	defer func() {
		if nil != err {
			if closeErr := protocol.Close(); nil != closeErr {
				err = errors.Join(err, fmt.Errorf("failed to close protocol: %v", closeErr))
			}
		}
	}()

	quality, err := types.ParseQuality(conf.Download.Quality)
	if nil != err {
		return nil, err
	}

	if err := login(ctx, logger, conf.Session, protocol); nil != err {
		return nil, err
	}

	account := protocol.Account()
	logger.Info().Dict("account", account.ToDict()).Msg("Logged in")

	governor := ratelimit.NewGovernor(logger.With().Str("component", "governor").Logger(), ratelimit.LimitsFromConfig(conf.RateLimit))
	policy := ratelimit.PolicyFromConfig(conf.RateLimit)

	token := api.TokenSource(protocol.AccessToken)
	if accessToken := conf.Session.AccessToken; len(accessToken) > 0 {
		token = func(context.Context) (string, error) { return accessToken, nil }
	}

	c := cache.New()
	client := api.NewClient(
		logger.With().Str("component", "api").Logger(),
		api.Options{
			BaseURL:         conf.Session.APIURL,
			Language:        conf.Session.Language,
			Timeout:         conf.Session.APITimeout.Duration,
			PageConcurrency: conf.Download.Concurrency,
		},
		token,
		governor,
		policy,
	)

	store, err := archive.Open(logger.With().Str("component", "archive").Logger(), conf.Library.PathArchive)
	if nil != err {
		c.Stop()
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	transcoder := transcode.New(logger.With().Str("component", "transcoder").Logger(), conf.Transcode.FFmpegPath)
	s = &Session{
		logger:   logger,
		conf:     conf,
		protocol: protocol,
		account:  account,
		quality:  quality,
		cache:    c,
		client:   client,
		resolver: resolver.New(logger.With().Str("component", "resolver").Logger(), client),
		fetcher: metadata.New(
			logger.With().Str("component", "metadata").Logger(),
			client,
			&c.Metadata,
			metadata.Options{
				BatchSize:   conf.Download.BatchSize,
				Concurrency: conf.Download.Concurrency,
				TTL:         cache.DefaultMetadataTTL,
			},
		),
		paths: pathfmt.New(
			pathfmt.Templates{
				Album:           conf.Output.Album,
				PlaylistTrack:   conf.Output.PlaylistTrack,
				PlaylistEpisode: conf.Output.PlaylistEpisode,
				Podcast:         conf.Output.Podcast,
				Single:          conf.Output.Single,
			},
			conf.Output.Defaults,
		),
		transcoder: transcoder,
		transcode: transcode.Options{
			Format:    conf.Transcode.AudioFormat,
			Bitrate:   transcodeBitrate(conf.Transcode.Bitrate, quality.Resolve(types.KindTrack, account.Premium)),
			ExtraArgs: conf.Transcode.FFmpegArgs,
		},
		tagger:  tagging.New(logger.With().Str("component", "tagger").Logger(), transcoder),
		archive: store,
		runner:  nil,
		planner: nil,
	}
	defer func() {
		if nil != err {
			err = errors.Join(err, s.release())
		}
	}()

	deps := orchestrator.Deps{
		Source:     protocol,
		Fetcher:    s.fetcher,
		Archive:    store,
		Transcoder: transcoder,
		Tagger:     s.tagger,
		Covers:     s,
		Output:     s.OutputPath,
		Governor:   governor,
		Policy:     policy,
	}
	opts := orchestrator.Options{
		Concurrency:     conf.Download.Concurrency,
		Reverse:         conf.Download.Reverse,
		Quality:         quality,
		Premium:         account.Premium,
		Transcode:       s.transcode,
		ReplaceExisting: conf.Output.ReplaceExisting,
		SaveMetadata:    lo.FromPtr(conf.Download.SaveMetadata),
		SaveLyrics:      lo.FromPtr(conf.Download.SaveLyrics),
		LyricsFile:      lo.FromPtr(conf.Download.LyricsFile),
		BulkWait:        conf.Download.BulkWaitTime.Duration,
		ShutdownTimeout: conf.Download.ShutdownTimeout.Duration,
		DryRun:          false,
	}
	orchestratorLogger := logger.With().Str("component", "orchestrator").Logger()

	s.runner, err = orchestrator.New(orchestratorLogger, deps, opts)
	if nil != err {
		return nil, err
	}

	opts.DryRun = true
	s.planner, err = orchestrator.New(orchestratorLogger, deps, opts)
	if nil != err {
		return nil, err
	}

	return s, nil
}

func login(ctx context.Context, logger zerolog.Logger, conf config.Session, protocol Protocol) (err error) {
	store, err := OpenCredentialStore(conf.CredentialsPath)
	if nil != err {
		return err
	}
	defer func() {
		if closeErr := store.Close(); nil != closeErr {
			err = errors.Join(err, closeErr)
		}
	}()

	stored, err := store.Load(conf.Username)
	if nil != err {
		logger.Warn().Err(err).Msg("Ignoring unreadable stored credentials")
		stored = nil
	}

	creds, err := protocol.Login(ctx, stored)
	if nil != err && nil != stored {
		logger.Warn().Err(err).Str("username", stored.Username).Msg("Stored credentials were rejected")
		if err := store.Delete(stored.Username); nil != err {
			return err
		}
		creds, err = protocol.Login(ctx, nil)
	}
	if nil != err {
		return fmt.Errorf("%w: %w", ErrLogin, err)
	}

	if nil != creds {
		if err := store.Store(*creds); nil != err {
			return err
		}
		logger.Debug().Dict("credentials", creds.ToDict()).Msg("Credentials stored")
	}

	return nil
}

// transcodeBitrate returns the configured bitrate, or the nominal bitrate of
// quality when none is configured.
func transcodeBitrate(configured int, quality types.Quality) string {
	if configured > 0 {
		return strconv.Itoa(configured) + "k"
	}

	if b := quality.Bitrate(); b > 0 {
		return strconv.Itoa(b) + "k"
	}

	return ""
}

func (s *Session) Account() types.Account {
	return s.account
}

func (s *Session) Resolver() *resolver.Resolver {
	return s.resolver
}

// Extension is the file extension of downloaded audio.
func (s *Session) Extension() string {
	return s.runner.Extension()
}

// Item resolves a track or episode reference with its metadata populated.
func (s *Session) Item(ctx context.Context, ref string) (*types.ContentItem, error) {
	link, err := resolver.ParseLink(ref)
	if nil != err {
		return nil, err
	}

	switch link.Kind {
	case types.CollectionKindTrack, types.CollectionKindEpisode:
	default:
		return nil, &types.UnsupportedReferenceError{Ref: ref, Reason: "not a track or an episode"}
	}

	coll, err := s.resolver.ResolveLink(ctx, link)
	if nil != err {
		return nil, err
	}

	if len(coll.Items) == 0 {
		return nil, &types.NotFoundError{Ref: ref}
	}

	item, err := s.populate(ctx, coll.Items[0])
	if nil != err {
		return nil, err
	}

	return &item, nil
}

func (s *Session) populate(ctx context.Context, item types.ContentItem) (types.ContentItem, error) {
	if nil != item.Metadata {
		return item, nil
	}

	records, err := s.fetcher.Fetch(ctx, []types.ContentItem{item})
	if nil != err {
		return item, err
	}

	meta, err := records.Get(item.ID)
	if nil != err {
		return item, err
	}

	return item.WithMetadata(meta), nil
}

func (s *Session) Collection(ctx context.Context, ref string) (*types.Collection, error) {
	return s.resolver.Resolve(ctx, ref)
}

func (s *Session) Search(ctx context.Context, q resolver.Query) (*api.SearchResults, error) {
	return s.resolver.Search(ctx, q)
}

// OutputPath renders the output location of item within coll. Episodes are
// placed under the podcast library and tracks under the music library.
func (s *Session) OutputPath(item types.ContentItem, coll types.Collection) (fs.Output, error) {
	tmpl := s.paths.Templates().Select(coll.Kind, item.Kind)

	rel, err := s.paths.Resolve(tmpl, pathfmt.ValuesFor(item, coll))
	if nil != err {
		return fs.Output{}, err //nolint:exhaustruct
	}

	dir := lo.Ternary(item.Kind == types.KindEpisode, s.conf.Library.PodcastLibrary, s.conf.Library.MusicLibrary)

	return fs.LibraryDirFrom(dir).Output(rel), nil
}

// WriteAudioStream downloads item and writes it to path in the configured
// audio format.
func (s *Session) WriteAudioStream(ctx context.Context, item types.ContentItem, path string) (err error) {
	quality := s.quality.Resolve(item.Kind, s.account.Premium)

	key, err := s.runner.RequestKey(ctx, item, quality)
	if nil != err {
		return err
	}

	out := fs.Output{BasePath: strings.TrimSuffix(path, filepath.Ext(path))}
	acquired := out.Temp("")
	defer func() {
		if nil != err {
			err = errors.Join(err, acquired.Remove())
		}
	}()

	if err := s.runner.Stream(ctx, item, key, quality, acquired, &progress.Stream{Size: 0}); nil != err { //nolint:exhaustruct
		return err
	}

	if err := s.transcoder.Transcode(ctx, acquired.Path, path, s.transcode); nil != err {
		return fmt.Errorf("failed to transcode audio: %w", err)
	}

	return nil
}

// WriteMetadata embeds the tags, cover art and lyrics of item into path.
func (s *Session) WriteMetadata(ctx context.Context, path string, item types.ContentItem) error {
	item, err := s.populate(ctx, item)
	if nil != err {
		return err
	}

	lyrics, err := s.runner.Lyrics(ctx, item)
	if nil != err {
		s.logger.Warn().Err(err).Str("id", item.ID).Msg("Continuing without lyrics")
		lyrics = nil
	}

	cover, err := s.Cover(ctx, item.Metadata)
	if nil != err {
		s.logger.Warn().Err(err).Str("id", item.ID).Msg("Continuing without cover art")
		cover = nil
	}

	return s.tagger.Write(ctx, path, item.Metadata, cover, lyrics)
}

// WriteCoverArt writes the cover art of item to path.
func (s *Session) WriteCoverArt(ctx context.Context, path string, item types.ContentItem) error {
	item, err := s.populate(ctx, item)
	if nil != err {
		return err
	}

	cover, err := s.Cover(ctx, item.Metadata)
	if nil != err {
		return err
	}

	if nil == cover {
		return ErrNoCoverArt
	}

	return fs.Cover{Path: path}.Write(cover)
}

// Cover returns the cover image of meta at the configured artwork size, or
// nil when there is none.
func (s *Session) Cover(ctx context.Context, meta types.Metadata) ([]byte, error) {
	if nil == meta {
		return nil, nil
	}

	img, ok := types.PickImage(meta.CoverImages(), s.conf.Download.ArtworkSize)
	if !ok {
		return nil, nil
	}

	return s.cache.Covers.Fetch(img.URL, cache.DefaultCoverTTL, func() ([]byte, error) {
		return s.client.Cover(ctx, img.URL)
	})
}

// Run downloads every item of collections.
func (s *Session) Run(ctx context.Context, collections []*types.Collection) (*orchestrator.Summary, error) {
	return s.runner.Run(ctx, collections)
}

// Plan resolves metadata and filters collections without acquiring audio.
func (s *Session) Plan(ctx context.Context, collections []*types.Collection) (*orchestrator.Summary, error) {
	return s.planner.Run(ctx, collections)
}

func (s *Session) Close() error {
	var errs []error
	if err := s.release(); nil != err {
		errs = append(errs, err)
	}

	if err := s.protocol.Close(); nil != err {
		errs = append(errs, fmt.Errorf("failed to close protocol: %v", err))
	}

	return errors.Join(errs...)
}

func (s *Session) release() error {
	s.cache.Stop()

	if err := s.archive.Close(); nil != err {
		return fmt.Errorf("failed to close archive: %v", err)
	}

	return nil
}
