package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xeptore/zotify/fs"
	"github.com/xeptore/zotify/unit"
)

var ErrBinaryNotFound = errors.New("ffmpeg binary not found")

const stderrTailSize = 4 * unit.Kibibyte

type codec struct {
	ext     string
	name    string
	bitrate bool
}

var codecs = map[string]codec{
	"vorbis":  {ext: ".ogg", name: "libvorbis", bitrate: true},
	"mp3":     {ext: ".mp3", name: "libmp3lame", bitrate: true},
	"flac":    {ext: ".flac", name: "flac", bitrate: false},
	"aac":     {ext: ".m4a", name: "aac", bitrate: true},
	"opus":    {ext: ".opus", name: "libopus", bitrate: true},
	"wav":     {ext: ".wav", name: "pcm_s16le", bitrate: false},
	"wavpack": {ext: ".wv", name: "wavpack", bitrate: false},
}

type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported audio format %q", e.Format)
}

// TranscodeError is a failed ffmpeg run. Stderr holds the tail of its output.
type TranscodeError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *TranscodeError) Error() string {
	if len(e.Stderr) > 0 {
		return fmt.Sprintf("ffmpeg exited with status %d: %s", e.ExitCode, e.Stderr)
	}

	return fmt.Sprintf("ffmpeg exited with status %d: %v", e.ExitCode, e.Err)
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}

// Extension returns the file extension, including the dot, of format.
func Extension(format string) (string, error) {
	c, ok := codecs[format]
	if !ok {
		return "", &UnsupportedFormatError{Format: format}
	}

	return c.ext, nil
}

// DetectContainer sniffs the container of the file at path and returns its
// usual extension.
func DetectContainer(path string) (string, error) {
	mime, err := mimetype.DetectFile(path)
	if nil != err {
		return "", fmt.Errorf("failed to detect container: %v", err)
	}

	switch ext := mime.Extension(); ext {
	case ".oga":
		return ".ogg", nil
	default:
		return ext, nil
	}
}

type Options struct {
	Format string
	// Bitrate is passed to ffmpeg as is, e.g. "320k". Ignored by lossless
	// formats.
	Bitrate   string
	ExtraArgs []string
}

func (o Options) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("format", o.Format).
		Str("bitrate", o.Bitrate).
		Strs("extra_args", o.ExtraArgs)
}

type Transcoder struct {
	logger zerolog.Logger
	binary string
}

// New returns a transcoder running binary, or ffmpeg from PATH when binary is
// empty.
func New(logger zerolog.Logger, binary string) *Transcoder {
	return &Transcoder{logger: logger, binary: binary}
}

func (t *Transcoder) Binary() (string, error) {
	name := strings.TrimSpace(t.binary)
	if len(name) == 0 {
		name = "ffmpeg"
	}

	path, err := exec.LookPath(name)
	if nil != err {
		return "", fmt.Errorf("%w: %v", ErrBinaryNotFound, err)
	}

	return path, nil
}

// Transcode converts src into dst. On success src no longer exists; dst is
// only ever created complete. Ogg Vorbis sources targeting vorbis without
// extra arguments are moved without running ffmpeg.
func (t *Transcoder) Transcode(ctx context.Context, src, dst string, opts Options) error {
	c, ok := codecs[opts.Format]
	if !ok {
		return &UnsupportedFormatError{Format: opts.Format}
	}

	logger := t.logger.With().Str("src", src).Str("dst", dst).Dict("options", opts.ToDict()).Logger()

	if opts.Format == "vorbis" && len(opts.ExtraArgs) == 0 {
		container, err := DetectContainer(src)
		if nil != err {
			return err
		}

		if container == ".ogg" {
			if err := os.Rename(src, dst); nil != err {
				return fmt.Errorf("failed to move passthrough output: %v", err)
			}
			logger.Debug().Msg("Passthrough without transcoding")

			return nil
		}
	}

	binary, err := t.Binary()
	if nil != err {
		return err
	}

	tmp := filepath.Join(filepath.Dir(dst), "."+uuid.NewString()+c.ext)
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error", "-y", "-i", src, "-map", "0:a", "-c:a", c.name}
	if c.bitrate && len(opts.Bitrate) > 0 {
		args = append(args, "-b:a", opts.Bitrate)
	}
	args = append(args, opts.ExtraArgs...)
	args = append(args, tmp)

	var stderr tailBuffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); nil != err {
		removeErr := fs.Remove(tmp)
		if nil != ctx.Err() {
			return errors.Join(fmt.Errorf("transcode cancelled: %w", ctx.Err()), removeErr)
		}

		tErr := &TranscodeError{ExitCode: -1, Stderr: strings.TrimSpace(stderr.String()), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			tErr.ExitCode = exitErr.ExitCode()
		}
		logger.Error().Err(tErr).Msg("ffmpeg failed")

		return errors.Join(tErr, removeErr)
	}

	if err := os.Rename(tmp, dst); nil != err {
		return errors.Join(fmt.Errorf("failed to move transcoded output: %v", err), fs.Remove(tmp))
	}

	if err := fs.Remove(src); nil != err {
		logger.Warn().Err(err).Msg("Failed to remove transcode source")
	}

	logger.Debug().Msg("Transcoded")

	return nil
}

// tailBuffer keeps the last stderrTailSize bytes written to it.
type tailBuffer struct {
	buf bytes.Buffer
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	b.buf.Write(p)
	if over := b.buf.Len() - stderrTailSize; over > 0 {
		b.buf.Next(over)
	}

	return n, nil
}

func (b *tailBuffer) String() string {
	return b.buf.String()
}
