package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/xeptore/zotify/iterutil"
	"github.com/xeptore/zotify/report"
	"github.com/xeptore/zotify/selection"
	"github.com/xeptore/zotify/spotify/api"
	"github.com/xeptore/zotify/spotify/resolver"
	"github.com/xeptore/zotify/spotify/session"
	"github.com/xeptore/zotify/spotify/types"
)

// unresolved records references that failed to resolve. The remaining
// references are still downloaded.
type unresolved struct {
	logger zerolog.Logger
	errs   []error
}

// check records err when it is a resolution error and returns nil, and
// returns any other error unchanged.
func (u *unresolved) check(ref string, err error) error {
	if nil == err || !types.IsResolutionError(err) {
		return err
	}

	u.logger.Error().Err(err).Str("reference", ref).Msg("Skipping unresolvable reference")
	u.errs = append(u.errs, err)

	return nil
}

// exitCode is nil unless an item failed fatally or a reference did not
// resolve. Fatal item failures take precedence.
func (u *unresolved) exitCode(fatal bool) error {
	switch {
	case fatal:
		return exitFatalFailures
	case len(u.errs) > 0:
		u.logger.Error().Int("references", len(u.errs)).Msg("Some references could not be resolved")
		return exitResolution
	default:
		return nil
	}
}

// collect resolves every reference selected on the command line, in the
// order the options are listed.
func collect(ctx context.Context, logger zerolog.Logger, cmd *cli.Command, s *session.Session, u *unresolved) ([]*types.Collection, error) {
	var out []*types.Collection

	if query := cmd.String("search"); len(query) > 0 {
		colls, err := search(ctx, s, query, cmd.StringSlice("category"), u)
		if err := u.check(query, err); nil != err {
			return nil, err
		}
		out = append(out, colls...)
	}

	if cmd.Bool("playlist") {
		colls, err := playlists(ctx, s, u)
		if nil != err {
			return nil, err
		}
		out = append(out, colls...)
	}

	if cmd.Bool("followed") {
		colls, err := s.Resolver().FollowedArtists(ctx)
		if err := u.check("followed artists", err); nil != err {
			return nil, err
		}
		out = append(out, colls...)
	}

	if cmd.Bool("liked-tracks") {
		coll, err := s.Resolver().LikedTracks(ctx)
		if nil != err {
			return nil, err
		}
		out = append(out, coll)
	}

	if cmd.Bool("liked-episodes") {
		coll, err := s.Resolver().LikedEpisodes(ctx)
		if nil != err {
			return nil, err
		}
		out = append(out, coll)
	}

	refs, err := references(cmd)
	if nil != err {
		return nil, err
	}

	colls, err := resolveAll(refs, u, func(ref string) string { return ref }, func(ref string) (*types.Collection, error) {
		coll, err := s.Collection(ctx, ref)
		if nil != err {
			return nil, err
		}
		logger.Debug().Str("reference", ref).Dict("collection", coll.ToDict()).Msg("Reference resolved")

		return coll, nil
	})
	if nil != err {
		return nil, err
	}

	return append(out, colls...), nil
}

func references(cmd *cli.Command) (refs []string, err error) {
	refs = cmd.Args().Slice()

	filename := cmd.String("download")
	if len(filename) == 0 {
		return refs, nil
	}

	f, err := os.Open(filename)
	if nil != err {
		return nil, fmt.Errorf("failed to open references file: %v", err)
	}
	defer func() {
		if closeErr := f.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("failed to close references file: %v", closeErr))
		}
	}()

	fromFile, err := resolver.ReadReferences(f)
	if nil != err {
		return nil, err
	}

	return append(refs, fromFile...), nil
}

func search(ctx context.Context, s *session.Session, text string, categoryNames []string, u *unresolved) ([]*types.Collection, error) {
	categories := make([]resolver.Category, 0, len(categoryNames))
	for _, name := range categoryNames {
		c, ok := resolver.ParseCategory(name)
		if !ok {
			return nil, &types.UnsupportedReferenceError{Ref: name, Reason: "unknown search category"}
		}
		categories = append(categories, c)
	}

	results, err := s.Search(ctx, resolver.ParseQuery(text, categories))
	if nil != err {
		return nil, err
	}

	if len(results.Hits) == 0 {
		return nil, &types.NotFoundError{Ref: text}
	}

	report.SearchHits(os.Stdout, results.Hits, report.OptionsFor(os.Stdout, false))

	hits, err := selection.Pick(os.Stdin, os.Stdout, results.Hits)
	if nil != err {
		return nil, err
	}

	return resolveAll(hits, u, func(h api.SearchHit) string { return h.Name }, func(h api.SearchHit) (*types.Collection, error) {
		return s.Resolver().ResolveHit(ctx, h)
	})
}

func playlists(ctx context.Context, s *session.Session, u *unresolved) ([]*types.Collection, error) {
	all, err := s.Resolver().UserPlaylists(ctx)
	if nil != err {
		return nil, err
	}

	if len(all) == 0 {
		return nil, nil
	}

	report.Playlists(os.Stdout, all, report.OptionsFor(os.Stdout, false))

	picked, err := selection.Pick(os.Stdin, os.Stdout, all)
	if nil != err {
		return nil, err
	}

	return resolveAll(picked, u, func(p api.PlaylistSummary) string { return p.Name }, func(p api.PlaylistSummary) (*types.Collection, error) {
		return s.Resolver().ResolveLink(ctx, resolver.Link{Kind: types.CollectionKindPlaylist, ID: p.ID})
	})
}

// resolveAll resolves items one by one. Items that fail to resolve are
// recorded in u and left out.
func resolveAll[T any](items []T, u *unresolved, name func(T) string, resolve func(T) (*types.Collection, error)) ([]*types.Collection, error) {
	out := make([]*types.Collection, 0, len(items))
	for _, item := range items {
		coll, err := resolve(item)
		if nil != err {
			if err := u.check(name(item), err); nil != err {
				return nil, err
			}
			continue
		}
		out = append(out, coll)
	}

	return out, nil
}

// countItems returns the number of items across collections and how many
// distinct items that is.
func countItems(collections []*types.Collection) (total, unique int) {
	var ids []string
	for _, coll := range collections {
		ids = append(ids, coll.IDs()...)
	}

	return len(ids), len(iterutil.Uniq(ids))
}
