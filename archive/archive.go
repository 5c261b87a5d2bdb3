package archive

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

var (
	ErrLocked = errors.New("archive is locked by another process")
	ErrClosed = errors.New("archive is closed")
)

type Record struct {
	ID          string
	OutputPath  string
	CompletedAt time.Time
}

func (r Record) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("id", r.ID).
		Str("output_path", r.OutputPath).
		Time("completed_at", r.CompletedAt)
}

func (r Record) line() string {
	return r.ID + "\t" + r.CompletedAt.UTC().Format(time.RFC3339) + "\t" + r.OutputPath + "\n"
}

func parseLine(line string) (Record, error) {
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) != 3 {
		return Record{}, fmt.Errorf("expected 3 tab separated fields, got %d", len(parts)) //nolint:exhaustruct
	}

	id, ts, path := parts[0], parts[1], parts[2]
	if len(id) == 0 {
		return Record{}, errors.New("empty id") //nolint:exhaustruct
	}

	completedAt, err := time.Parse(time.RFC3339, ts)
	if nil != err {
		return Record{}, fmt.Errorf("invalid timestamp: %v", err) //nolint:exhaustruct
	}

	return Record{ID: id, OutputPath: path, CompletedAt: completedAt}, nil
}

// Store is the persistent set of completed item IDs. Lookups may run
// concurrently; appends are serialized and durable once Record returns.
type Store struct {
	logger zerolog.Logger
	path   string
	lock   *flock.Flock
	mux    sync.RWMutex
	file   *os.File
	index  map[string]Record
	now    func() time.Time
}

// Open loads the archive at path, creating it when absent. An exclusive lock
// on path.lock is held until Close.
func Open(logger zerolog.Logger, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o0755); nil != err {
		return nil, fmt.Errorf("failed to create archive directory: %v", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if nil != err {
		return nil, fmt.Errorf("failed to lock archive: %v", err)
	}
	if !locked {
		return nil, ErrLocked
	}

	s := &Store{
		logger: logger.With().Str("archive", path).Logger(),
		path:   path,
		lock:   lock,
		mux:    sync.RWMutex{},
		file:   nil,
		index:  make(map[string]Record),
		now:    time.Now,
	}

	if err := s.load(); nil != err {
		return nil, errors.Join(err, lock.Unlock())
	}

	return s, nil
}

func (s *Store) load() (err error) {
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o0644)
	if nil != err {
		return fmt.Errorf("failed to open archive file: %v", err)
	}
	defer func() {
		if nil != err {
			err = errors.Join(err, f.Close())
		}
	}()

	b, err := io.ReadAll(f)
	if nil != err {
		return fmt.Errorf("failed to read archive file: %v", err)
	}

	complete := b
	if idx := bytes.LastIndexByte(b, '\n'); idx < len(b)-1 {
		complete = b[:idx+1]
		s.logger.Warn().Int("bytes", len(b)-len(complete)).Msg("Ignoring incomplete trailing archive record")
		if err := f.Truncate(int64(len(complete))); nil != err {
			return fmt.Errorf("failed to truncate incomplete archive record: %v", err)
		}
	}

	scanner := bufio.NewScanner(bytes.NewReader(complete))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Text()
		if len(strings.TrimSpace(line)) == 0 {
			continue
		}

		rec, err := parseLine(line)
		if nil != err {
			s.logger.Warn().Err(err).Int("line", lineNo).Msg("Skipping malformed archive record")
			continue
		}
		s.index[rec.ID] = rec
	}
	if err := scanner.Err(); nil != err {
		return fmt.Errorf("failed to scan archive file: %v", err)
	}

	if _, err := f.Seek(0, io.SeekEnd); nil != err {
		return fmt.Errorf("failed to seek archive file: %v", err)
	}
	s.file = f

	s.logger.Debug().Int("records", len(s.index)).Msg("Archive loaded")

	return nil
}

func (s *Store) Contains(id string) bool {
	s.mux.RLock()
	defer s.mux.RUnlock()

	_, ok := s.index[id]
	return ok
}

func (s *Store) Get(id string) (Record, bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	rec, ok := s.index[id]
	return rec, ok
}

// Record appends a completion record for id and syncs it to disk. The ID is
// visible to Contains only after the write succeeded.
func (s *Store) Record(id, outputPath string) error {
	if len(id) == 0 || strings.ContainsAny(id, "\t\n") {
		return fmt.Errorf("invalid archive id %q", id)
	}

	if strings.ContainsAny(outputPath, "\t\n") {
		return fmt.Errorf("invalid archive output path %q", outputPath)
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	if nil == s.file {
		return ErrClosed
	}

	if existing, ok := s.index[id]; ok && existing.OutputPath == outputPath {
		return nil
	}

	rec := Record{ID: id, OutputPath: outputPath, CompletedAt: s.now().UTC().Truncate(time.Second)}
	if _, err := s.file.WriteString(rec.line()); nil != err {
		return fmt.Errorf("failed to append archive record: %v", err)
	}

	if err := s.file.Sync(); nil != err {
		return fmt.Errorf("failed to sync archive file: %v", err)
	}

	s.index[id] = rec
	s.logger.Debug().Dict("record", rec.ToDict()).Msg("Archive record written")

	return nil
}

// Load returns a snapshot of all records keyed by ID.
func (s *Store) Load() map[string]Record {
	s.mux.RLock()
	defer s.mux.RUnlock()

	return maps.Clone(s.index)
}

func (s *Store) IDs() []string {
	s.mux.RLock()
	defer s.mux.RUnlock()

	return slices.Sorted(maps.Keys(s.index))
}

func (s *Store) Len() int {
	s.mux.RLock()
	defer s.mux.RUnlock()

	return len(s.index)
}

func (s *Store) Close() error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if nil == s.file {
		return nil
	}

	var errs []error
	if err := s.file.Close(); nil != err {
		errs = append(errs, fmt.Errorf("failed to close archive file: %v", err))
	}
	s.file = nil

	if err := s.lock.Unlock(); nil != err {
		errs = append(errs, fmt.Errorf("failed to unlock archive: %v", err))
	}

	return errors.Join(errs...)
}
