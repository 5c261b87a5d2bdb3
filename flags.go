package main

import (
	"strings"

	"github.com/samber/lo"
	"github.com/urfave/cli/v3"

	"github.com/xeptore/zotify/config"
)

//nolint:exhaustruct
func selectionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Config file path",
		},
		&cli.BoolFlag{
			Name:    "playlist",
			Aliases: []string{"p"},
			Usage:   "Pick from your own playlists",
		},
		&cli.BoolFlag{
			Name:    "liked-tracks",
			Aliases: []string{"lt"},
			Usage:   "Download all liked tracks",
		},
		&cli.BoolFlag{
			Name:    "liked-episodes",
			Aliases: []string{"le"},
			Usage:   "Download all liked episodes",
		},
		&cli.BoolFlag{
			Name:    "followed",
			Aliases: []string{"f"},
			Usage:   "Download the discography of every followed artist",
		},
		&cli.StringFlag{
			Name:    "search",
			Aliases: []string{"s"},
			Usage:   "Search and pick from the results, e.g. 'daft punk year:2001'",
		},
		&cli.StringSliceFlag{
			Name:    "category",
			Aliases: []string{"c"},
			Usage:   "Search category: album, artist, playlist, track, show or episode",
		},
		&cli.StringFlag{
			Name:      "download",
			Aliases:   []string{"d"},
			Usage:     "Read references from a file, one per line",
			TakesFile: true,
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Resolve and filter references and print the plan without downloading",
		},
	}
}

//nolint:exhaustruct
func overrideFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "protocol-driver", Usage: "Protocol driver name"},
		&cli.StringFlag{Name: "username", Usage: "Account username"},
		&cli.StringFlag{Name: "credentials-path", Usage: "Stored credentials database path"},
		&cli.StringFlag{Name: "language", Usage: "Metadata language"},
		&cli.StringFlag{Name: "music-library", Usage: "Music library directory"},
		&cli.StringFlag{Name: "podcast-library", Usage: "Podcast library directory"},
		&cli.StringFlag{Name: "path-archive", Usage: "Archive file path"},
		&cli.StringFlag{Name: "output-album", Usage: "Path template of album tracks"},
		&cli.StringFlag{Name: "output-playlist-track", Usage: "Path template of playlist tracks"},
		&cli.StringFlag{Name: "output-playlist-episode", Usage: "Path template of playlist episodes"},
		&cli.StringFlag{Name: "output-podcast", Usage: "Path template of podcast episodes"},
		&cli.StringFlag{Name: "output-single", Usage: "Path template of single tracks"},
		&cli.BoolFlag{Name: "replace-existing", Usage: "Download items whose output file already exists"},
		&cli.StringFlag{Name: "download-quality", Usage: "auto, normal, high or very_high"},
		&cli.IntFlag{Name: "download-concurrency", Usage: "Items downloaded in parallel"},
		&cli.IntFlag{Name: "metadata-batch-size", Usage: "Items per metadata request"},
		&cli.DurationFlag{Name: "bulk-wait-time", Usage: "Pause between consecutive downloads"},
		&cli.BoolFlag{Name: "reverse", Usage: "Process collections in reverse order"},
		&cli.BoolFlag{Name: "save-metadata", Usage: "Embed tags and cover art"},
		&cli.BoolFlag{Name: "save-lyrics", Usage: "Embed lyrics"},
		&cli.BoolFlag{Name: "lyrics-file", Usage: "Write synced lyrics to .lrc files"},
		&cli.BoolFlag{Name: "print-skips", Usage: "Print skipped items"},
		&cli.StringFlag{Name: "artwork-size", Usage: "small, medium or large"},
		&cli.StringFlag{Name: "audio-format", Usage: "vorbis, mp3, flac, aac, opus, wav or wavpack"},
		&cli.IntFlag{Name: "transcode-bitrate", Usage: "Transcode bitrate in kbps"},
		&cli.StringFlag{Name: "ffmpeg-path", Usage: "ffmpeg binary path"},
		&cli.StringFlag{Name: "ffmpeg-args", Usage: "Extra ffmpeg arguments"},
	}
}

// overrides applies the flags set on the command line over the config file.
func overrides(cmd *cli.Command) func(*config.Config) {
	str := func(name string, dst *string) {
		if cmd.IsSet(name) {
			*dst = cmd.String(name)
		}
	}
	boolean := func(name string, dst *bool) {
		if cmd.IsSet(name) {
			*dst = cmd.Bool(name)
		}
	}
	optional := func(name string, dst **bool) {
		if cmd.IsSet(name) {
			*dst = lo.ToPtr(cmd.Bool(name))
		}
	}
	integer := func(name string, dst *int) {
		if cmd.IsSet(name) {
			*dst = int(cmd.Int(name))
		}
	}

	return func(c *config.Config) {
		str("protocol-driver", &c.Session.ProtocolDriver)
		str("username", &c.Session.Username)
		str("credentials-path", &c.Session.CredentialsPath)
		str("language", &c.Session.Language)
		str("music-library", &c.Library.MusicLibrary)
		str("podcast-library", &c.Library.PodcastLibrary)
		str("path-archive", &c.Library.PathArchive)
		str("output-album", &c.Output.Album)
		str("output-playlist-track", &c.Output.PlaylistTrack)
		str("output-playlist-episode", &c.Output.PlaylistEpisode)
		str("output-podcast", &c.Output.Podcast)
		str("output-single", &c.Output.Single)
		boolean("replace-existing", &c.Output.ReplaceExisting)
		str("download-quality", &c.Download.Quality)
		integer("download-concurrency", &c.Download.Concurrency)
		integer("metadata-batch-size", &c.Download.BatchSize)
		if cmd.IsSet("bulk-wait-time") {
			c.Download.BulkWaitTime.Duration = cmd.Duration("bulk-wait-time")
		}
		boolean("reverse", &c.Download.Reverse)
		optional("save-metadata", &c.Download.SaveMetadata)
		optional("save-lyrics", &c.Download.SaveLyrics)
		optional("lyrics-file", &c.Download.LyricsFile)
		optional("print-skips", &c.Download.PrintSkips)
		str("artwork-size", &c.Download.ArtworkSize)
		str("audio-format", &c.Transcode.AudioFormat)
		integer("transcode-bitrate", &c.Transcode.Bitrate)
		str("ffmpeg-path", &c.Transcode.FFmpegPath)
		if cmd.IsSet("ffmpeg-args") {
			c.Transcode.FFmpegArgs = strings.Fields(cmd.String("ffmpeg-args"))
		}
	}
}
