package archive_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/zotify/archive"
)

func open(t *testing.T, path string) *archive.Store {
	t.Helper()

	s, err := archive.Open(zerolog.Nop(), path)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	return s
}

func lines(t *testing.T, path string) []string {
	t.Helper()

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	return strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
}

func TestRecordPersists(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "archive")

	s, err := archive.Open(zerolog.Nop(), path)
	require.NoError(t, err)
	assert.False(t, s.Contains("A"))
	require.NoError(t, s.Record("A", "/music/a.ogg"))
	assert.True(t, s.Contains("A"))
	require.NoError(t, s.Close())

	got := lines(t, path)
	require.Len(t, got, 1)
	fields := strings.Split(got[0], "\t")
	require.Len(t, fields, 3)
	assert.Equal(t, "A", fields[0])
	assert.Equal(t, "/music/a.ogg", fields[2])

	reopened := open(t, path)
	rec, ok := reopened.Get("A")
	require.True(t, ok)
	assert.Equal(t, "/music/a.ogg", rec.OutputPath)
	assert.False(t, rec.CompletedAt.IsZero())
}

func TestRecordIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "archive")
	s := open(t, path)

	require.NoError(t, s.Record("A", "a.ogg"))
	require.NoError(t, s.Record("A", "a.ogg"))

	assert.Equal(t, []string{"A"}, s.IDs())
	assert.Len(t, lines(t, path), 1)
}

func TestLoadLastRecordWins(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "archive")
	content := "A\t2024-01-01T00:00:00Z\told.ogg\n" +
		"B\t2024-01-01T00:00:00Z\tb.ogg\n" +
		"A\t2024-02-01T00:00:00Z\tnew.ogg\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o0600))

	s := open(t, path)
	records := s.Load()
	require.Len(t, records, 2)
	assert.Equal(t, "new.ogg", records["A"].OutputPath)
	assert.Equal(t, []string{"A", "B"}, s.IDs())
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "archive")
	content := "garbage\n" +
		"\n" +
		"C\tnot-a-time\tc.ogg\n" +
		"D\t2024-01-01T00:00:00Z\td.ogg\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o0600))

	s := open(t, path)
	assert.Equal(t, []string{"D"}, s.IDs())
}

func TestTornTrailingRecordIsIgnored(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "archive")
	content := "A\t2024-01-01T00:00:00Z\ta.ogg\n" +
		"B\t2024-01-01T00:00:00Z\tb.o"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o0600))

	s := open(t, path)
	assert.True(t, s.Contains("A"))
	assert.False(t, s.Contains("B"))

	require.NoError(t, s.Record("C", "c.ogg"))
	got := lines(t, path)
	require.Len(t, got, 2)
	assert.True(t, strings.HasPrefix(got[1], "C\t"))
}

func TestOpenIsExclusive(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "archive")
	s, err := archive.Open(zerolog.Nop(), path)
	require.NoError(t, err)

	_, err = archive.Open(zerolog.Nop(), path)
	require.ErrorIs(t, err, archive.ErrLocked)

	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Record("A", "a.ogg"), archive.ErrClosed)

	again := open(t, path)
	assert.Zero(t, again.Len())
}

func TestRecordRejectsInvalidFields(t *testing.T) {
	t.Parallel()

	s := open(t, filepath.Join(t.TempDir(), "archive"))
	require.Error(t, s.Record("", "a.ogg"))
	require.Error(t, s.Record("A", "a\tb.ogg"))
	assert.False(t, s.Contains("A"))
}

func TestConcurrentRecordAndContains(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "archive")
	s := open(t, path)

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Record(fmt.Sprintf("id-%02d", i), fmt.Sprintf("%02d.ogg", i)))
		}()
		go func() {
			defer wg.Done()
			_ = s.Contains(fmt.Sprintf("id-%02d", i))
		}()
	}
	wg.Wait()

	assert.Equal(t, 32, s.Len())
	assert.Len(t, lines(t, path), 32)
}
