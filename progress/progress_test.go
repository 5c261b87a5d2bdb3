package progress_test

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/zotify/progress"
)

func TestStream(t *testing.T) {
	t.Parallel()

	s := &progress.Stream{Size: 8} //nolint:exhaustruct
	n, err := io.Copy(io.Discard, io.LimitReader(s.Wrap(strings.NewReader("abcdefgh")), 4))
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.Equal(t, 50, s.Percent())

	s.Reset()
	assert.Zero(t, s.Read())
}

func TestBatch(t *testing.T) {
	t.Parallel()

	b := progress.NewBatch(3)
	assert.Equal(t, 0, b.Percent())

	s := &progress.Stream{} //nolint:exhaustruct
	_, err := io.Copy(io.Discard, s.Wrap(strings.NewReader("abc")))
	require.NoError(t, err)

	b.Finish(s)
	b.Finish(nil)
	assert.Equal(t, 66, b.Percent())
	assert.EqualValues(t, 3, b.Bytes())

	assert.Equal(t, 100, progress.NewBatch(0).Percent())
}
