package orchestrator_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/zotify/archive"
	"github.com/xeptore/zotify/fs"
	"github.com/xeptore/zotify/orchestrator"
	"github.com/xeptore/zotify/ratelimit"
	"github.com/xeptore/zotify/result"
	"github.com/xeptore/zotify/spotify/metadata"
	"github.com/xeptore/zotify/spotify/types"
	"github.com/xeptore/zotify/transcode"
)

type stubSource struct {
	keyRequests atomic.Int64
	streams     atomic.Int64
	keyErrs     sync.Map
	lyrics      *types.Lyrics
	onStream    func(ctx context.Context, item types.ContentItem) error
}

func (s *stubSource) RequestAudioKey(_ context.Context, item types.ContentItem, _ types.Quality) (types.AudioKey, error) {
	s.keyRequests.Add(1)
	if v, ok := s.keyErrs.LoadAndDelete(item.ID); ok {
		err, _ := v.(error)
		return types.AudioKey{}, err //nolint:exhaustruct
	}

	return types.AudioKey{FileID: "file-" + item.ID, Key: []byte("key")}, nil
}

func (s *stubSource) StreamAudio(ctx context.Context, item types.ContentItem, _ types.AudioKey, _ types.Quality) (io.ReadCloser, error) {
	s.streams.Add(1)
	if nil != s.onStream {
		if err := s.onStream(ctx, item); nil != err {
			return nil, err
		}
	}

	return io.NopCloser(strings.NewReader("audio " + item.ID)), nil
}

func (s *stubSource) Lyrics(context.Context, string) (*types.Lyrics, error) {
	if nil == s.lyrics {
		return nil, types.ErrLyricsUnavailable
	}

	return s.lyrics, nil
}

type stubFetcher struct {
	missing map[string]bool
}

func (f stubFetcher) Fetch(_ context.Context, items []types.ContentItem) (metadata.Records, error) {
	records := metadata.Records{}
	for _, item := range items {
		if f.missing[item.ID] {
			records[item.ID] = result.Err[types.Metadata](&types.MetadataMissingError{ID: item.ID})
			continue
		}
		records[item.ID] = result.Ok[types.Metadata](&types.TrackMeta{ //nolint:exhaustruct
			ID:       item.ID,
			Title:    "Title " + item.ID,
			Playable: item.ID != "unplayable",
		})
	}

	return records, nil
}

type stubTranscoder struct {
	err error
}

func (s stubTranscoder) Transcode(_ context.Context, src, dst string, _ transcode.Options) error {
	if nil != s.err {
		return s.err
	}

	return os.Rename(src, dst)
}

type stubTagger struct {
	mux    sync.Mutex
	lyrics []*types.Lyrics
	err    error
}

func (s *stubTagger) Write(_ context.Context, path string, _ types.Metadata, _ []byte, lyrics *types.Lyrics) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.lyrics = append(s.lyrics, lyrics)
	if _, err := os.Stat(path); nil != err {
		return err
	}

	return s.err
}

type env struct {
	library  string
	paths    map[string]string
	archive  *archive.Store
	source   *stubSource
	fetcher  stubFetcher
	trans    stubTranscoder
	tagger   *stubTagger
	opts     orchestrator.Options
	governor *ratelimit.Governor
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store, err := archive.Open(zerolog.Nop(), filepath.Join(t.TempDir(), "archive"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	return &env{
		library:  t.TempDir(),
		paths:    map[string]string{},
		archive:  store,
		source:   &stubSource{}, //nolint:exhaustruct
		fetcher:  stubFetcher{missing: nil},
		trans:    stubTranscoder{err: nil},
		tagger:   &stubTagger{}, //nolint:exhaustruct
		governor: ratelimit.NewGovernor(zerolog.Nop(), ratelimit.Limits{RequestsPerSecond: 0, Burst: 0, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}),
		opts: orchestrator.Options{ //nolint:exhaustruct
			Concurrency:     2,
			Quality:         types.QualityAuto,
			Transcode:       transcode.Options{Format: "vorbis", Bitrate: "", ExtraArgs: nil},
			SaveMetadata:    true,
			SaveLyrics:      true,
			ShutdownTimeout: time.Second,
		},
	}
}

func (e *env) orchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()

	o, err := orchestrator.New(zerolog.Nop(), orchestrator.Deps{
		Source:     e.source,
		Fetcher:    e.fetcher,
		Archive:    e.archive,
		Transcoder: e.trans,
		Tagger:     e.tagger,
		Covers:     nil,
		Output: func(item types.ContentItem, _ types.Collection) (fs.Output, error) {
			rel, ok := e.paths[item.ID]
			if !ok {
				rel = item.ID
			}

			return fs.LibraryDirFrom(e.library).Output(rel), nil
		},
		Governor: e.governor,
		Policy:   ratelimit.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, JitterPercent: 0},
	}, e.opts)
	require.NoError(t, err)

	return o
}

func (e *env) libraryFiles(t *testing.T) []string {
	t.Helper()

	entries, err := os.ReadDir(e.library)
	require.NoError(t, err)

	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name()
	}

	return names
}

func playlist(ids ...string) *types.Collection {
	refs := make([]types.ItemRef, len(ids))
	for i, id := range ids {
		refs[i] = types.ItemRef{ID: id, Kind: types.KindTrack}
	}
	coll := types.NewCollection(types.CollectionKindPlaylist, "p", "Playlist", refs)

	return &coll
}

func statuses(s *orchestrator.Summary) []string {
	out := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		out[i] = e.ID + ":" + string(e.Status) + ":" + e.Reason
	}

	return out
}

func TestRunSkipsArchivedAndDuplicates(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	require.NoError(t, e.archive.Record("B", "/old/B.ogg"))

	summary, err := e.orchestrator(t).Run(t.Context(), []*types.Collection{playlist("A", "B", "A", "C")})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"A:completed:",
		"B:skipped:archived",
		"A:skipped:duplicate-in-batch",
		"C:completed:",
	}, statuses(summary))
	assert.Equal(t, 2, summary.Completed())
	assert.Equal(t, 2, summary.Skipped())
	assert.False(t, summary.HasFatal())

	assert.ElementsMatch(t, []string{"A.ogg", "C.ogg"}, e.libraryFiles(t))
	assert.True(t, e.archive.Contains("A"))
	assert.True(t, e.archive.Contains("C"))
	assert.EqualValues(t, 2, e.source.keyRequests.Load())

	b, err := os.ReadFile(filepath.Join(e.library, "A.ogg"))
	require.NoError(t, err)
	assert.Equal(t, "audio A", string(b))
}

func TestRunDoesNotRequestKeyForExistingFile(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.library, "A.mp3"), []byte("old"), 0o0600))

	summary, err := e.orchestrator(t).Run(t.Context(), []*types.Collection{playlist("A")})
	require.NoError(t, err)

	assert.Equal(t, []string{"A:skipped:file-exists"}, statuses(summary))
	assert.Equal(t, filepath.Join(e.library, "A.mp3"), summary.Entries[0].Path)
	assert.Zero(t, e.source.keyRequests.Load())
	assert.False(t, e.archive.Contains("A"))
}

func TestRunReplaceExistingDownloadsAgain(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.opts.ReplaceExisting = true
	require.NoError(t, os.WriteFile(filepath.Join(e.library, "A.ogg"), []byte("old"), 0o0600))

	summary, err := e.orchestrator(t).Run(t.Context(), []*types.Collection{playlist("A")})
	require.NoError(t, err)
	assert.Equal(t, []string{"A:completed:"}, statuses(summary))

	b, err := os.ReadFile(filepath.Join(e.library, "A.ogg"))
	require.NoError(t, err)
	assert.Equal(t, "audio A", string(b))
}

func TestRunTranscodeFailureLeavesNoTrace(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.trans = stubTranscoder{err: &transcode.TranscodeError{ExitCode: 1, Stderr: "Invalid data", Err: errors.New("exit status 1")}}

	summary, err := e.orchestrator(t).Run(t.Context(), []*types.Collection{playlist("A")})
	require.NoError(t, err)

	require.Len(t, summary.Entries, 1)
	entry := summary.Entries[0]
	assert.Equal(t, orchestrator.StatusFailed, entry.Status)
	assert.Equal(t, orchestrator.StateFailed, entry.State)
	assert.True(t, entry.Fatal)
	var tErr *transcode.TranscodeError
	require.ErrorAs(t, entry.Err, &tErr)

	assert.True(t, summary.HasFatal())
	assert.False(t, e.archive.Contains("A"))
	assert.Empty(t, e.libraryFiles(t))
}

func TestRunTaggingFailureLeavesNoTrace(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.tagger.err = errors.New("broken container")

	summary, err := e.orchestrator(t).Run(t.Context(), []*types.Collection{playlist("A")})
	require.NoError(t, err)

	assert.Equal(t, orchestrator.StatusFailed, summary.Entries[0].Status)
	assert.False(t, e.archive.Contains("A"))
	assert.Empty(t, e.libraryFiles(t))
}

func TestRunReversed(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.opts.Reverse = true
	e.opts.Concurrency = 1

	coll := playlist("1", "2", "3")
	summary, err := e.orchestrator(t).Run(t.Context(), []*types.Collection{coll})
	require.NoError(t, err)

	assert.Equal(t, []string{"3", "2", "1"}, summary.IDs())
	assert.Equal(t, []string{"1", "2", "3"}, coll.IDs())
	assert.Equal(t, 3, summary.Entries[0].Ordinal)
	assert.Equal(t, 3, summary.Completed())
}

func TestRunMetadataMissingIsNotFatal(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.fetcher = stubFetcher{missing: map[string]bool{"Z": true}}

	summary, err := e.orchestrator(t).Run(t.Context(), []*types.Collection{playlist("X", "Y", "Z", "unplayable")})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"X:completed:",
		"Y:completed:",
		"Z:failed:unavailable",
		"unplayable:failed:unavailable",
	}, statuses(summary))
	assert.False(t, summary.HasFatal())
	assert.EqualValues(t, 2, e.source.keyRequests.Load())
}

func TestRunRetriesThrottledKeyRequest(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.source.keyErrs.Store("A", &types.RateLimitedError{RetryAfter: time.Millisecond})

	summary, err := e.orchestrator(t).Run(t.Context(), []*types.Collection{playlist("A")})
	require.NoError(t, err)

	assert.Equal(t, []string{"A:completed:"}, statuses(summary))
	assert.EqualValues(t, 2, e.source.keyRequests.Load())
}

func TestRunAcquisitionDeniedIsNotRetried(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.source.keyErrs.Store("A", &types.AcquisitionDeniedError{ID: "A", Reason: "region restricted"})

	summary, err := e.orchestrator(t).Run(t.Context(), []*types.Collection{playlist("A")})
	require.NoError(t, err)

	require.Len(t, summary.Entries, 1)
	var denied *types.AcquisitionDeniedError
	require.ErrorAs(t, summary.Entries[0].Err, &denied)
	assert.True(t, summary.HasFatal())
	assert.EqualValues(t, 1, e.source.keyRequests.Load())
	assert.Zero(t, e.source.streams.Load())
}

func TestRunCancelledBeforeStart(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	summary, err := e.orchestrator(t).Run(ctx, []*types.Collection{playlist("A", "B")})
	require.NoError(t, err)

	assert.Equal(t, []string{"A:skipped:cancelled", "B:skipped:cancelled"}, statuses(summary))
	assert.Zero(t, e.source.keyRequests.Load())
	assert.Zero(t, e.archive.Len())
}

func TestRunCancelledDuringStream(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		shutdownTimeout time.Duration
		want            []string
		archived        []string
		files           []string
	}{
		{
			name:            "in-flight item finishes within grace period",
			shutdownTimeout: time.Second,
			want:            []string{"A:completed:", "B:skipped:cancelled", "C:skipped:cancelled"},
			archived:        []string{"A"},
			files:           []string{"A.ogg"},
		},
		{
			name:            "in-flight item fails without grace period",
			shutdownTimeout: 0,
			want:            []string{"A:failed:", "B:skipped:cancelled", "C:skipped:cancelled"},
			archived:        nil,
			files:           nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := newEnv(t)
			e.opts.Concurrency = 1
			e.opts.ShutdownTimeout = tt.shutdownTimeout

			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()
			e.source.onStream = func(taskCtx context.Context, item types.ContentItem) error {
				if item.ID != "A" {
					return nil
				}
				cancel()
				if tt.shutdownTimeout > 0 {
					return nil
				}
				<-taskCtx.Done()

				return taskCtx.Err()
			}

			summary, err := e.orchestrator(t).Run(ctx, []*types.Collection{playlist("A", "B", "C")})
			require.NoError(t, err)

			got := statuses(summary)
			if tt.shutdownTimeout == 0 {
				require.Equal(t, orchestrator.StatusFailed, summary.Entries[0].Status)
				require.ErrorIs(t, summary.Entries[0].Err, context.Canceled)
				got[0] = "A:failed:"
			}
			assert.Equal(t, tt.want, got)
			assert.EqualValues(t, 1, e.source.keyRequests.Load())
			assert.Equal(t, tt.archived, e.archive.IDs())
			if nil == tt.files {
				assert.Empty(t, e.libraryFiles(t))
			} else {
				assert.Equal(t, tt.files, e.libraryFiles(t))
			}
		})
	}
}

func TestRunExistingCheckFailureIsPerItem(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.library, "blocker"), []byte("file"), 0o0600))
	e.paths["B"] = filepath.Join("blocker", "B")

	second := playlist("D")
	summary, err := e.orchestrator(t).Run(t.Context(), []*types.Collection{playlist("A", "B", "C"), second})
	require.NoError(t, err)

	require.Len(t, summary.Entries, 4)
	assert.Equal(t, []string{"A", "B", "C", "D"}, summary.IDs())
	assert.Equal(t, orchestrator.StatusCompleted, summary.Entries[0].Status)
	assert.Equal(t, orchestrator.StatusFailed, summary.Entries[1].Status)
	assert.Contains(t, summary.Entries[1].Reason, "failed to check existing output of B")
	assert.True(t, summary.Entries[1].Fatal)
	assert.Equal(t, orchestrator.StatusCompleted, summary.Entries[2].Status)
	assert.Equal(t, orchestrator.StatusCompleted, summary.Entries[3].Status)
	assert.True(t, summary.HasFatal())

	assert.EqualValues(t, 3, e.source.keyRequests.Load())
	assert.Equal(t, []string{"A", "C", "D"}, e.archive.IDs())
	assert.ElementsMatch(t, []string{"A.ogg", "C.ogg", "D.ogg", "blocker"}, e.libraryFiles(t))
}

func TestRunIsIdempotentAcrossRuns(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	o := e.orchestrator(t)

	_, err := o.Run(t.Context(), []*types.Collection{playlist("A", "B")})
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(e.library, "A.ogg")))

	summary, err := o.Run(t.Context(), []*types.Collection{playlist("A", "B")})
	require.NoError(t, err)

	assert.Equal(t, []string{"A:skipped:archived", "B:skipped:archived"}, statuses(summary))
	assert.EqualValues(t, 2, e.source.keyRequests.Load())
	assert.Equal(t, []string{"A", "B"}, e.archive.IDs())
}

func TestRunDryRun(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.opts.DryRun = true

	summary, err := e.orchestrator(t).Run(t.Context(), []*types.Collection{playlist("A")})
	require.NoError(t, err)

	assert.Equal(t, []string{"A:planned:"}, statuses(summary))
	assert.Equal(t, filepath.Join(e.library, "A.ogg"), summary.Entries[0].Path)
	assert.Zero(t, e.source.keyRequests.Load())
	assert.Empty(t, e.libraryFiles(t))
}

func TestRunWritesLyricsSidecar(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.opts.Premium = true
	e.opts.LyricsFile = true
	e.source.lyrics = &types.Lyrics{Synced: true, Lines: []types.LyricsLine{{Start: time.Second, Text: "hi"}}}

	summary, err := e.orchestrator(t).Run(t.Context(), []*types.Collection{playlist("A")})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Completed())

	b, err := os.ReadFile(filepath.Join(e.library, "A.lrc"))
	require.NoError(t, err)
	assert.Equal(t, "[00:01.00]hi\n", string(b))
	require.Len(t, e.tagger.lyrics, 1)
	assert.Same(t, e.source.lyrics, e.tagger.lyrics[0])
}

func TestRunWritesLyricsSidecarWithoutMetadata(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.opts.Premium = true
	e.opts.SaveMetadata = false
	e.opts.SaveLyrics = false
	e.opts.LyricsFile = true
	e.source.lyrics = &types.Lyrics{Synced: true, Lines: []types.LyricsLine{{Start: time.Second, Text: "hi"}}}

	summary, err := e.orchestrator(t).Run(t.Context(), []*types.Collection{playlist("A")})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Completed())

	assert.ElementsMatch(t, []string{"A.ogg", "A.lrc"}, e.libraryFiles(t))
	assert.Empty(t, e.tagger.lyrics)
}

func TestRunEmbedsLyricsOnlyWhenSaved(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.opts.Premium = true
	e.opts.SaveLyrics = false
	e.opts.LyricsFile = true
	e.source.lyrics = &types.Lyrics{Synced: true, Lines: []types.LyricsLine{{Start: time.Second, Text: "hi"}}}

	_, err := e.orchestrator(t).Run(t.Context(), []*types.Collection{playlist("A")})
	require.NoError(t, err)

	assert.Contains(t, e.libraryFiles(t), "A.lrc")
	require.Len(t, e.tagger.lyrics, 1)
	assert.Nil(t, e.tagger.lyrics[0])
}

func TestRunSkipsLyricsWithoutPremium(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.opts.LyricsFile = true
	e.source.lyrics = &types.Lyrics{Synced: true, Lines: []types.LyricsLine{{Start: time.Second, Text: "hi"}}}

	_, err := e.orchestrator(t).Run(t.Context(), []*types.Collection{playlist("A")})
	require.NoError(t, err)

	assert.NotContains(t, e.libraryFiles(t), "A.lrc")
	require.Len(t, e.tagger.lyrics, 1)
	assert.Nil(t, e.tagger.lyrics[0])
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	_, err := orchestrator.New(zerolog.Nop(), orchestrator.Deps{}, orchestrator.Options{Transcode: transcode.Options{Format: "midi"}}) //nolint:exhaustruct
	var unsupported *transcode.UnsupportedFormatError
	require.ErrorAs(t, err, &unsupported)
}

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	order := []orchestrator.State{
		orchestrator.StatePending,
		orchestrator.StateKeyRequested,
		orchestrator.StateAcquiring,
		orchestrator.StateTranscoding,
		orchestrator.StateTagging,
		orchestrator.StateCompleted,
	}
	for i := range len(order) - 1 {
		assert.True(t, order[i].CanTransitionTo(order[i+1]), order[i].String())
		assert.True(t, order[i].CanTransitionTo(orchestrator.StateFailed), order[i].String())
		assert.False(t, order[i].IsTerminal())
	}

	assert.False(t, orchestrator.StatePending.CanTransitionTo(orchestrator.StateAcquiring))
	assert.False(t, orchestrator.StateCompleted.CanTransitionTo(orchestrator.StateFailed))
	assert.False(t, orchestrator.StateFailed.CanTransitionTo(orchestrator.StatePending))
	assert.True(t, orchestrator.StateCompleted.IsTerminal())
	assert.True(t, orchestrator.StateFailed.IsTerminal())
}
