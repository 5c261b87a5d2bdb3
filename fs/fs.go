package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// AudioExtensions are the containers a finished item may have been written
// as. An output counts as existing when any of them is present.
var AudioExtensions = []string{".ogg", ".mp3", ".flac", ".m4a", ".opus", ".wav", ".wv"}

type LibraryDir string

func LibraryDirFrom(d string) LibraryDir {
	return LibraryDir(d)
}

// Output returns the output of an item whose path relative to the library,
// without extension, is rel.
func (dir LibraryDir) Output(rel string) Output {
	return Output{BasePath: filepath.Join(dir.path(), rel)}
}

func (dir LibraryDir) path() string {
	return string(dir)
}

// Output is the set of files produced for one item, sharing a base path.
type Output struct {
	BasePath string
}

func (o Output) Audio(ext string) string {
	return o.BasePath + ext
}

func (o Output) Lyrics() LyricsFile {
	return LyricsFile{Path: o.BasePath + ".lrc"}
}

func (o Output) Cover() Cover {
	return Cover{Path: filepath.Join(filepath.Dir(o.BasePath), "cover.jpg")}
}

// Existing returns the path of the first audio file present for o.
func (o Output) Existing() (string, bool, error) {
	for _, ext := range AudioExtensions {
		path := o.Audio(ext)
		ok, err := fileExists(path)
		if nil != err {
			return "", false, err
		}
		if ok {
			return path, true, nil
		}
	}

	return "", false, nil
}

// Temp returns a unique hidden scratch file next to the final output, ending
// in ext, so the final rename does not cross file systems.
func (o Output) Temp(ext string) TempFile {
	dir, base := filepath.Split(o.BasePath)
	return TempFile{Path: filepath.Join(dir, "."+base+"."+uuid.NewString()+".tmp"+ext)}
}

// Remove deletes the audio file with ext and the lyrics sidecar.
func (o Output) Remove(ext string) error {
	return errors.Join(
		Remove(o.Audio(ext)),
		Remove(o.Lyrics().Path),
	)
}

type TempFile struct {
	Path string
}

// Write copies r into the file, creating parent directories. The file is
// removed when copying fails.
func (f TempFile) Write(r io.Reader) (n int64, err error) {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o0755); nil != err {
		return 0, fmt.Errorf("failed to create output directory: %v", err)
	}

	file, err := os.OpenFile(f.Path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o0644)
	if nil != err {
		return 0, fmt.Errorf("failed to open temp file for write: %v", err)
	}
	defer func() {
		if closeErr := file.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("failed to close temp file: %v", closeErr))
		}
		if nil != err {
			err = errors.Join(err, Remove(f.Path))
		}
	}()

	n, err = io.Copy(file, r)
	if nil != err {
		return n, fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := file.Sync(); nil != err {
		return n, fmt.Errorf("failed to sync temp file: %v", err)
	}

	return n, nil
}

// Commit moves the file to dst, replacing any existing file.
func (f TempFile) Commit(dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o0755); nil != err {
		return fmt.Errorf("failed to create output directory: %v", err)
	}

	if err := os.Rename(f.Path, dst); nil != err {
		return fmt.Errorf("failed to move temp file into place: %v", err)
	}

	return nil
}

func (f TempFile) Remove() error {
	return Remove(f.Path)
}

type Cover struct {
	Path string
}

func (c Cover) Exists() (bool, error) {
	return fileExists(c.Path)
}

func (c Cover) Write(b []byte) error {
	return WriteFileAtomic(c.Path, b)
}

type LyricsFile struct {
	Path string
}

func (l LyricsFile) Write(content string) error {
	return WriteFileAtomic(l.Path, []byte(content))
}

// WriteFileAtomic writes b to a temporary sibling of path and renames it into
// place, so readers never see a partial file.
func WriteFileAtomic(path string, b []byte) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o0755); nil != err {
		return fmt.Errorf("failed to create directory: %v", err)
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".part")
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_SYNC, 0o0644)
	if nil != err {
		return fmt.Errorf("failed to open file for write: %v", err)
	}
	defer func() {
		if nil != err {
			err = errors.Join(err, Remove(tmp))
		}
	}()

	if _, err := f.Write(b); nil != err {
		return errors.Join(fmt.Errorf("failed to write file: %v", err), f.Close())
	}

	if err := f.Close(); nil != err {
		return fmt.Errorf("failed to close file: %v", err)
	}

	if err := os.Rename(tmp, path); nil != err {
		return fmt.Errorf("failed to move file into place: %v", err)
	}

	return nil
}

// Remove deletes path. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); nil != err && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove file: %v", err)
	}

	return nil
}

func Exists(path string) (bool, error) {
	return fileExists(path)
}

func fileExists(path string) (bool, error) {
	if _, err := os.Stat(path); nil != err {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("failed to stat file: %v", err)
	}

	return true, nil
}
