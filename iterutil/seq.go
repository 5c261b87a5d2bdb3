package iterutil

import (
	"iter"
)

// WithIndex numbers the chunks produced by s, e.g. by slices.Chunk.
func WithIndex[Slice ~[]E, E any](s iter.Seq[Slice]) iter.Seq2[int, Slice] {
	return func(yield func(int, Slice) bool) {
		index := 0
		for v := range s {
			if !yield(index, v) {
				return
			}
			index++
		}
	}
}

// Uniq drops repeated elements of s keeping the first occurrence.
func Uniq[Slice ~[]E, E comparable](s Slice) Slice {
	seen := make(map[E]struct{}, len(s))
	out := make(Slice, 0, len(s))
	for _, v := range s {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	return out
}
