package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/xeptore/zotify/redact"
)

const DefaultFilename = "config.yaml"

type Config struct {
	Log       Log       `yaml:"log"`
	Session   Session   `yaml:",inline"`
	Library   Library   `yaml:",inline"`
	Output    Output    `yaml:",inline"`
	Download  Download  `yaml:",inline"`
	Transcode Transcode `yaml:",inline"`
	RateLimit RateLimit `yaml:",inline"`
}

func (c *Config) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Dict("log", c.Log.ToDict()).
		Dict("session", c.Session.ToDict()).
		Dict("library", c.Library.ToDict()).
		Dict("output", c.Output.ToDict()).
		Dict("download", c.Download.ToDict()).
		Dict("transcode", c.Transcode.ToDict()).
		Dict("rate_limit", c.RateLimit.ToDict())
}

func (c *Config) setDefaults() {
	c.Log.setDefaults()
	c.Session.setDefaults()
	c.Library.setDefaults()
	c.Output.setDefaults()
	c.Download.setDefaults()
	c.Transcode.setDefaults()
	c.RateLimit.setDefaults()
}

func (c *Config) validate() error {
	if err := c.Log.validate(); nil != err {
		return fmt.Errorf("log config validation failed: %v", err)
	}

	if err := c.Session.validate(); nil != err {
		return fmt.Errorf("session config validation failed: %v", err)
	}

	if err := c.Library.validate(); nil != err {
		return fmt.Errorf("library config validation failed: %v", err)
	}

	if err := c.Output.validate(); nil != err {
		return fmt.Errorf("output config validation failed: %v", err)
	}

	if err := c.Download.validate(); nil != err {
		return fmt.Errorf("download config validation failed: %v", err)
	}

	if err := c.Transcode.validate(); nil != err {
		return fmt.Errorf("transcode config validation failed: %v", err)
	}

	if err := c.RateLimit.validate(); nil != err {
		return fmt.Errorf("rate limit config validation failed: %v", err)
	}

	return nil
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *Log) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("level", c.Level).
		Str("format", c.Format)
}

func (c *Log) setDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}

	if c.Format == "" {
		fd := os.Stderr.Fd()
		c.Format = lo.Ternary(isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd), "pretty", "json")
	}
}

func (c *Log) validate() error {
	if !slices.Contains([]string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}, c.Level) {
		return fmt.Errorf(
			"level must be one of: trace, debug, info, warn, error, fatal, panic, got: %s",
			c.Level,
		)
	}

	if !slices.Contains([]string{"json", "pretty"}, c.Format) {
		return fmt.Errorf("format must be 'json' or 'pretty', got: %s", c.Format)
	}

	return nil
}

type Session struct {
	ProtocolDriver  string   `yaml:"protocol_driver"`
	Username        string   `yaml:"username"`
	AccessToken     string   `yaml:"-"`
	CredentialsPath string   `yaml:"credentials_path"`
	APIURL          string   `yaml:"api_url"`
	Language        string   `yaml:"language"`
	APITimeout      Duration `yaml:"api_timeout"`
}

func (c *Session) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("protocol_driver", c.ProtocolDriver).
		Str("username", c.Username).
		Str("access_token", lo.Ternary(len(c.AccessToken) > 0, redact.String(c.AccessToken), "")).
		Str("credentials_path", c.CredentialsPath).
		Str("api_url", c.APIURL).
		Str("language", c.Language).
		Str("api_timeout", c.APITimeout.String())
}

func (c *Session) setDefaults() {
	if c.ProtocolDriver == "" {
		c.ProtocolDriver = "librespot"
	}

	if c.CredentialsPath == "" {
		c.CredentialsPath = "./.zotify/credentials.db"
	}

	if c.APIURL == "" {
		c.APIURL = "https://api.spotify.com/v1"
	}

	if c.Language == "" {
		c.Language = "en"
	}

	if c.APITimeout.Duration == 0 {
		c.APITimeout.Duration = 10 * time.Second
	}
}

func (c *Session) validate() error {
	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		return fmt.Errorf("api_url must be an http(s) URL, got: %s", c.APIURL)
	}

	if c.APITimeout.Duration < 0 {
		return errors.New("api_timeout must be greater than 0")
	}

	return nil
}

type Library struct {
	MusicLibrary   string `yaml:"music_library"`
	PodcastLibrary string `yaml:"podcast_library"`
	PathArchive    string `yaml:"path_archive"`
}

func (c *Library) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("music_library", c.MusicLibrary).
		Str("podcast_library", c.PodcastLibrary).
		Str("path_archive", c.PathArchive)
}

func (c *Library) setDefaults() {
	if c.MusicLibrary == "" {
		c.MusicLibrary = "./Music"
	}

	if c.PodcastLibrary == "" {
		c.PodcastLibrary = "./Podcasts"
	}

	if c.PathArchive == "" {
		c.PathArchive = "./.zotify/track_archive"
	}
}

func (c *Library) validate() error {
	for name, dir := range map[string]string{"music_library": c.MusicLibrary, "podcast_library": c.PodcastLibrary} {
		if i, err := os.Stat(dir); nil != err {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}

			return fmt.Errorf("failed to stat %s: %v", name, err)
		} else if !i.IsDir() {
			return fmt.Errorf("%s must be a directory", name)
		}
	}

	return nil
}

type Output struct {
	Album           string            `yaml:"output_album"`
	PlaylistTrack   string            `yaml:"output_playlist_track"`
	PlaylistEpisode string            `yaml:"output_playlist_episode"`
	Podcast         string            `yaml:"output_podcast"`
	Single          string            `yaml:"output_single"`
	Defaults        map[string]string `yaml:"output_defaults"`
	ReplaceExisting bool              `yaml:"replace_existing"`
}

func (c *Output) ToDict() *zerolog.Event {
	defaults := zerolog.Dict()
	for k, v := range c.Defaults {
		defaults.Str(k, v)
	}

	return zerolog.Dict().
		Str("output_album", c.Album).
		Str("output_playlist_track", c.PlaylistTrack).
		Str("output_playlist_episode", c.PlaylistEpisode).
		Str("output_podcast", c.Podcast).
		Str("output_single", c.Single).
		Dict("output_defaults", defaults).
		Bool("replace_existing", c.ReplaceExisting)
}

func (c *Output) setDefaults() {
	if c.Album == "" {
		c.Album = "{album_artist}/{album}/{track_number:02}. {artists} - {title}"
	}

	if c.PlaylistTrack == "" {
		c.PlaylistTrack = "{playlist}/{artists} - {title}"
	}

	if c.PlaylistEpisode == "" {
		c.PlaylistEpisode = "{playlist}/{episode_number} - {title}"
	}

	if c.Podcast == "" {
		c.Podcast = "{podcast}/{episode_number} - {title}"
	}

	if c.Single == "" {
		c.Single = "{artist}/{album}/{artists} - {title}"
	}

	if c.Defaults == nil {
		c.Defaults = map[string]string{}
	}
}

func (c *Output) validate() error {
	templates := map[string]string{
		"output_album":            c.Album,
		"output_playlist_track":   c.PlaylistTrack,
		"output_playlist_episode": c.PlaylistEpisode,
		"output_podcast":          c.Podcast,
		"output_single":           c.Single,
	}
	for name, tmpl := range templates {
		if strings.Count(tmpl, "{") != strings.Count(tmpl, "}") {
			return fmt.Errorf("%s has unbalanced braces: %s", name, tmpl)
		}

		if strings.HasPrefix(tmpl, "/") {
			return fmt.Errorf("%s must be relative to the library directory: %s", name, tmpl)
		}
	}

	return nil
}

type Download struct {
	Quality         string   `yaml:"download_quality"`
	Concurrency     int      `yaml:"download_concurrency"`
	BatchSize       int      `yaml:"metadata_batch_size"`
	BulkWaitTime    Duration `yaml:"bulk_wait_time"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	Reverse         bool     `yaml:"reverse"`
	SaveMetadata    *bool    `yaml:"save_metadata"`
	SaveLyrics      *bool    `yaml:"save_lyrics"`
	LyricsFile      *bool    `yaml:"lyrics_file"`
	PrintSkips      *bool    `yaml:"print_skips"`
	ArtworkSize     string   `yaml:"artwork_size"`
}

func (c *Download) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("download_quality", c.Quality).
		Int("download_concurrency", c.Concurrency).
		Int("metadata_batch_size", c.BatchSize).
		Str("bulk_wait_time", c.BulkWaitTime.String()).
		Str("shutdown_timeout", c.ShutdownTimeout.String()).
		Bool("reverse", c.Reverse).
		Bool("save_metadata", lo.FromPtr(c.SaveMetadata)).
		Bool("save_lyrics", lo.FromPtr(c.SaveLyrics)).
		Bool("lyrics_file", lo.FromPtr(c.LyricsFile)).
		Bool("print_skips", lo.FromPtr(c.PrintSkips)).
		Str("artwork_size", c.ArtworkSize)
}

const MaxMetadataBatchSize = 50

func (c *Download) setDefaults() {
	if c.Quality == "" {
		c.Quality = "auto"
	}

	if c.Concurrency == 0 {
		c.Concurrency = 1
	}

	if c.BatchSize == 0 {
		c.BatchSize = MaxMetadataBatchSize
	}

	if c.ShutdownTimeout.Duration == 0 {
		c.ShutdownTimeout.Duration = 2 * time.Minute
	}

	if c.SaveMetadata == nil {
		c.SaveMetadata = lo.ToPtr(true)
	}

	if c.SaveLyrics == nil {
		c.SaveLyrics = lo.ToPtr(true)
	}

	if c.LyricsFile == nil {
		c.LyricsFile = lo.ToPtr(false)
	}

	if c.PrintSkips == nil {
		c.PrintSkips = lo.ToPtr(true)
	}

	if c.ArtworkSize == "" {
		c.ArtworkSize = "large"
	}
}

func (c *Download) validate() error {
	if !slices.Contains([]string{"auto", "normal", "high", "very_high"}, c.Quality) {
		return fmt.Errorf("download_quality must be one of: auto, normal, high, very_high, got: %s", c.Quality)
	}

	if c.Concurrency < 1 || c.Concurrency > 16 {
		return fmt.Errorf("download_concurrency must be between 1 and 16, got: %d", c.Concurrency)
	}

	if c.BatchSize < 1 || c.BatchSize > MaxMetadataBatchSize {
		return fmt.Errorf("metadata_batch_size must be between 1 and %d, got: %d", MaxMetadataBatchSize, c.BatchSize)
	}

	if c.BulkWaitTime.Duration < 0 {
		return errors.New("bulk_wait_time must not be negative")
	}

	if c.ShutdownTimeout.Duration < 0 {
		return errors.New("shutdown_timeout must be greater than 0")
	}

	if !slices.Contains([]string{"small", "medium", "large"}, c.ArtworkSize) {
		return fmt.Errorf("artwork_size must be one of: small, medium, large, got: %s", c.ArtworkSize)
	}

	return nil
}

var AudioFormats = []string{"vorbis", "mp3", "flac", "aac", "opus", "wav", "wavpack"}

type Transcode struct {
	AudioFormat string   `yaml:"audio_format"`
	Bitrate     int      `yaml:"transcode_bitrate"`
	FFmpegPath  string   `yaml:"ffmpeg_path"`
	FFmpegArgs  []string `yaml:"ffmpeg_args"`
}

func (c *Transcode) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("audio_format", c.AudioFormat).
		Int("transcode_bitrate", c.Bitrate).
		Str("ffmpeg_path", c.FFmpegPath).
		Strs("ffmpeg_args", c.FFmpegArgs)
}

func (c *Transcode) setDefaults() {
	if c.AudioFormat == "" {
		c.AudioFormat = "vorbis"
	}
}

func (c *Transcode) validate() error {
	if !slices.Contains(AudioFormats, c.AudioFormat) {
		return fmt.Errorf("audio_format must be one of: %s, got: %s", strings.Join(AudioFormats, ", "), c.AudioFormat)
	}

	if c.Bitrate < 0 {
		return errors.New("transcode_bitrate must not be negative")
	}

	return nil
}

type RateLimit struct {
	RequestsPerSecond  float64  `yaml:"requests_per_second"`
	Burst              int      `yaml:"requests_burst"`
	RetryAttempts      uint64   `yaml:"retry_attempts"`
	RetryBaseDelay     Duration `yaml:"retry_base_delay"`
	RetryMaxDelay      Duration `yaml:"retry_max_delay"`
	RetryJitterPercent uint64   `yaml:"retry_jitter_percent"`
}

func (c *RateLimit) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Float64("requests_per_second", c.RequestsPerSecond).
		Int("requests_burst", c.Burst).
		Uint64("retry_attempts", c.RetryAttempts).
		Str("retry_base_delay", c.RetryBaseDelay.String()).
		Str("retry_max_delay", c.RetryMaxDelay.String()).
		Uint64("retry_jitter_percent", c.RetryJitterPercent)
}

func (c *RateLimit) setDefaults() {
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 5
	}

	if c.Burst == 0 {
		c.Burst = 1
	}

	if c.RetryAttempts == 0 {
		c.RetryAttempts = 5
	}

	if c.RetryBaseDelay.Duration == 0 {
		c.RetryBaseDelay.Duration = 1 * time.Second
	}

	if c.RetryMaxDelay.Duration == 0 {
		c.RetryMaxDelay.Duration = 30 * time.Second
	}

	if c.RetryJitterPercent == 0 {
		c.RetryJitterPercent = 20
	}
}

func (c *RateLimit) validate() error {
	if c.RequestsPerSecond < 0 {
		return errors.New("requests_per_second must be greater than 0")
	}

	if c.Burst < 0 {
		return errors.New("requests_burst must be greater than 0")
	}

	if c.RetryJitterPercent > 100 {
		return errors.New("retry_jitter_percent must not exceed 100")
	}

	if c.RetryMaxDelay.Duration < c.RetryBaseDelay.Duration {
		return errors.New("retry_max_delay must not be less than retry_base_delay")
	}

	return nil
}

type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return fmt.Errorf("failed to parse duration: %v", err)
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("failed to parse duration: %v", err)
	}

	d.Duration = parsed

	return nil
}

// Load reads filename, or config.yaml when filename is empty. A missing default
// file is not an error. Overrides are applied before defaults and validation.
func Load(filename string, overrides ...func(*Config)) (*Config, error) {
	var conf Config

	data, err := os.ReadFile(lo.Ternary(len(filename) > 0, filename, DefaultFilename))
	switch {
	case nil == err:
		if err := yaml.Unmarshal(data, &conf); nil != err {
			return nil, fmt.Errorf("failed to parse config file %s: %v", filename, err)
		}
	case errors.Is(err, os.ErrNotExist) && len(filename) == 0:
	default:
		return nil, fmt.Errorf("failed to read config file %s: %v", filename, err)
	}

	conf.Session.AccessToken = os.Getenv("ZOTIFY_ACCESS_TOKEN")
	if username := os.Getenv("ZOTIFY_USERNAME"); len(username) > 0 {
		conf.Session.Username = username
	}

	for _, override := range overrides {
		override(&conf)
	}

	conf.setDefaults()

	if err := conf.validate(); nil != err {
		return nil, fmt.Errorf("configuration validation failed: %v", err)
	}

	return &conf, nil
}
