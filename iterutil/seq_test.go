package iterutil_test

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xeptore/zotify/iterutil"
)

func TestWithIndex(t *testing.T) {
	t.Parallel()

	type chunk struct {
		I int
		V []string
	}
	var got []chunk
	for i, v := range iterutil.WithIndex(slices.Chunk([]string{"a", "b", "c", "d", "e"}, 2)) {
		got = append(got, chunk{I: i, V: v})
	}
	want := []chunk{
		{I: 0, V: []string{"a", "b"}},
		{I: 1, V: []string{"c", "d"}},
		{I: 2, V: []string{"e"}},
	}
	assert.Exactly(t, want, got)
}

func TestUniq(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"A", "B", "C"}, iterutil.Uniq([]string{"A", "B", "A", "C", "B"}))
	assert.Empty(t, iterutil.Uniq([]string(nil)))
}
