package progress

import (
	"io"
	"sync/atomic"

	"github.com/xeptore/zotify/mathutil"
)

// Batch tracks how many tasks of a batch have finished and how many bytes
// they streamed.
type Batch struct {
	total    int64
	finished atomic.Int64
	bytes    atomic.Int64
}

func NewBatch(size int) *Batch {
	return &Batch{
		total:    int64(size),
		finished: atomic.Int64{},
		bytes:    atomic.Int64{},
	}
}

func (b *Batch) Finish(stream *Stream) {
	b.finished.Add(1)
	if nil != stream {
		b.bytes.Add(stream.Read())
	}
}

func (b *Batch) Bytes() int64 {
	return b.bytes.Load()
}

func (b *Batch) Percent() int {
	return mathutil.Percent(b.finished.Load(), b.total)
}

// Stream counts bytes read through Wrap. Size is the expected total, zero
// when unknown.
type Stream struct {
	Size int64
	read atomic.Int64
}

func (s *Stream) Wrap(r io.Reader) io.Reader {
	return &countingReader{r: r, s: s}
}

func (s *Stream) Read() int64 {
	return s.read.Load()
}

func (s *Stream) Reset() {
	s.read.Store(0)
}

func (s *Stream) Percent() int {
	if s.Size <= 0 {
		return 0
	}

	return mathutil.Percent(s.read.Load(), s.Size)
}

type countingReader struct {
	r io.Reader
	s *Stream
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.s.read.Add(int64(n))
	return n, err
}
