package tagging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xeptore/zotify/fs"
	"github.com/xeptore/zotify/spotify/types"
)

// TaggingError is a failed metadata write. Restored reports whether the file
// was put back to its state before the write; otherwise it was removed.
type TaggingError struct {
	Path     string
	Restored bool
	Err      error
}

func (e *TaggingError) Error() string {
	return fmt.Sprintf("failed to tag %s: %v", e.Path, e.Err)
}

func (e *TaggingError) Unwrap() error {
	return e.Err
}

// Locator resolves the ffmpeg binary.
type Locator interface {
	Binary() (string, error)
}

type Writer struct {
	logger zerolog.Logger
	ffmpeg Locator
}

func New(logger zerolog.Logger, ffmpeg Locator) *Writer {
	return &Writer{logger: logger, ffmpeg: ffmpeg}
}

// Write embeds meta, cover and lyrics into the audio file at path. cover and
// lyrics may be empty. The file is left unchanged when writing fails.
func (w *Writer) Write(ctx context.Context, path string, meta types.Metadata, cover []byte, lyrics *types.Lyrics) (err error) {
	logger := w.logger.With().Str("path", path).Logger()

	snapshot, err := takeSnapshot(path)
	if nil != err {
		return &TaggingError{Path: path, Restored: true, Err: err}
	}
	defer func() {
		if nil == err {
			if removeErr := fs.Remove(snapshot); nil != removeErr {
				logger.Warn().Err(removeErr).Msg("Failed to remove tagging snapshot")
			}
			return
		}

		tErr := &TaggingError{Path: path, Restored: true, Err: err}
		if restoreErr := os.Rename(snapshot, path); nil != restoreErr {
			logger.Error().Err(restoreErr).Msg("Failed to restore file after tagging failure")
			tErr.Restored = false
			tErr.Err = errors.Join(tErr.Err, restoreErr, fs.Remove(path), fs.Remove(snapshot))
		}
		err = tErr
	}()

	tags := TagsFrom(meta)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		err = writeID3(path, tags, cover, lyrics)
	default:
		err = w.writeFFmpeg(ctx, path, tags, cover, lyrics)
	}
	if nil != err {
		return err
	}

	logger.Debug().Bool("cover", len(cover) > 0).Bool("lyrics", !lyrics.IsEmpty()).Msg("Metadata written")

	return nil
}

// takeSnapshot copies path to a sibling file and returns its path.
func takeSnapshot(path string) (snapshot string, err error) {
	src, err := os.Open(path)
	if nil != err {
		return "", fmt.Errorf("failed to open file for snapshot: %v", err)
	}
	defer func() {
		if closeErr := src.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("failed to close file: %v", closeErr))
		}
	}()

	snapshot = filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".orig")
	if _, err := (fs.TempFile{Path: snapshot}).Write(src); nil != err {
		return "", fmt.Errorf("failed to snapshot file: %w", err)
	}

	return snapshot, nil
}

func writeID3(path string, tags Tags, cover []byte, lyrics *types.Lyrics) (err error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if nil != err {
		return fmt.Errorf("failed to open id3 tag: %v", err)
	}
	defer func() {
		if closeErr := tag.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("failed to close id3 tag: %v", closeErr))
		}
	}()

	tag.SetVersion(4)
	tag.SetDefaultEncoding(id3v2.EncodingUTF8)

	frames := map[string]string{
		"TIT2": tags.Title,
		"TPE1": tags.Artist,
		"TALB": tags.Album,
		"TPE2": tags.AlbumArtist,
		"TRCK": tags.Track,
		"TPOS": tags.Disc,
		"TDRC": tags.Date,
		"TYER": tags.Year,
		"TSRC": tags.ISRC,
	}
	for id, text := range frames {
		if len(text) > 0 {
			tag.AddTextFrame(id, id3v2.EncodingUTF8, text)
		}
	}

	if len(tags.Comment) > 0 {
		tag.AddCommentFrame(id3v2.CommentFrame{
			Encoding:    id3v2.EncodingUTF8,
			Language:    "eng",
			Description: "",
			Text:        tags.Comment,
		})
	}

	if len(cover) > 0 {
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    mimetype.Detect(cover).String(),
			PictureType: id3v2.PTFrontCover,
			Description: "Front cover",
			Picture:     cover,
		})
	}

	if !lyrics.IsEmpty() {
		tag.AddUnsynchronisedLyricsFrame(id3v2.UnsynchronisedLyricsFrame{
			Encoding:          id3v2.EncodingUTF8,
			Language:          "eng",
			ContentDescriptor: "",
			Lyrics:            lyrics.Plain(),
		})
	}

	if err := tag.Save(); nil != err {
		return fmt.Errorf("failed to save id3 tag: %v", err)
	}

	return nil
}

// coverContainers can carry an attached picture stream.
var coverContainers = map[string]bool{
	".flac": true,
	".m4a":  true,
}

func (w *Writer) writeFFmpeg(ctx context.Context, path string, tags Tags, cover []byte, lyrics *types.Lyrics) (err error) {
	binary, err := w.ffmpeg.Binary()
	if nil != err {
		return err
	}

	var (
		ext      = filepath.Ext(path)
		dir      = filepath.Dir(path)
		tmp      = filepath.Join(dir, "."+uuid.NewString()+ext)
		withArt  = len(cover) > 0 && coverContainers[strings.ToLower(ext)]
		coverTmp = filepath.Join(dir, "."+uuid.NewString()+".cover")
	)
	defer func() {
		err = errors.Join(err, fs.Remove(coverTmp))
		if nil != err {
			err = errors.Join(err, fs.Remove(tmp))
		}
	}()

	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error", "-y", "-i", path}
	if withArt {
		if err := fs.WriteFileAtomic(coverTmp, cover); nil != err {
			return fmt.Errorf("failed to write cover: %w", err)
		}
		args = append(args, "-i", coverTmp, "-map", "0:a", "-map", "1", "-c", "copy", "-disposition:v", "attached_pic")
	} else {
		args = append(args, "-map", "0:a", "-c", "copy")
	}

	metadata := tags.ffmpegMetadata()
	if !lyrics.IsEmpty() {
		metadata = append(metadata, "lyrics="+lyrics.Plain())
	}
	for _, m := range metadata {
		args = append(args, "-metadata", m)
	}
	args = append(args, tmp)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); nil != err {
		return fmt.Errorf("failed to write track attributes: %v: %s", err, strings.TrimSpace(lastLine(stderr.Bytes())))
	}

	if err := os.Rename(tmp, path); nil != err {
		return fmt.Errorf("failed to rename tagged file: %v", err)
	}

	return nil
}

func lastLine(b []byte) string {
	b = bytes.TrimRight(b, "\n")
	if idx := bytes.LastIndexByte(b, '\n'); idx >= 0 {
		return string(b[idx+1:])
	}

	return string(b)
}

// WriteLyricsFile writes lyrics as an LRC sidecar at path. Empty lyrics are
// skipped.
func WriteLyricsFile(path string, lyrics *types.Lyrics) error {
	if lyrics.IsEmpty() {
		return nil
	}

	return fs.LyricsFile{Path: path}.Write(lyrics.LRC())
}
