package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/karlseguin/ccache/v3"

	"github.com/xeptore/zotify/spotify/types"
)

var (
	DefaultMetadataTTL = 1 * time.Hour
	DefaultCoverTTL    = 1 * time.Hour
)

type Cache struct {
	Metadata MetadataCache
	Covers   CoversCache
}

func New() *Cache {
	metadataCache := ccache.New(
		ccache.Configure[types.Metadata]().
			MaxSize(10_000).
			GetsPerPromote(3).
			ItemsToPrune(1),
	)

	coversCache := ccache.New(
		ccache.Configure[[]byte]().
			MaxSize(100).
			GetsPerPromote(3).
			ItemsToPrune(1),
	)

	return &Cache{
		Metadata: MetadataCache{
			c: metadataCache,
		},
		Covers: CoversCache{
			c:   coversCache,
			mux: sync.Mutex{},
		},
	}
}

// MetadataCache holds records returned by batch metadata requests, keyed by
// item kind and ID.
type MetadataCache struct {
	c *ccache.Cache[types.Metadata]
}

func metadataKey(kind types.Kind, id string) string {
	return kind.String() + ":" + id
}

func (c *MetadataCache) Get(kind types.Kind, id string) (types.Metadata, bool) {
	item := c.c.Get(metadataKey(kind, id))
	if nil == item || item.Expired() {
		return nil, false
	}

	return item.Value(), true
}

func (c *MetadataCache) Set(m types.Metadata, ttl time.Duration) {
	c.c.Set(metadataKey(m.ItemKind(), m.ItemID()), m, ttl)
}

type CoversCache struct {
	c   *ccache.Cache[[]byte]
	mux sync.Mutex
}

func (c *CoversCache) Fetch(
	url string,
	ttl time.Duration,
	fetch func() ([]byte, error),
) ([]byte, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	v, err := c.c.Fetch(url, ttl, fetch)
	if nil != err {
		return nil, fmt.Errorf("fetch cover: %w", err)
	}

	return v.Value(), nil
}

func (c *Cache) Stop() {
	c.Metadata.c.Stop()
	c.Covers.c.Stop()
}
