package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/xeptore/zotify/config"
	"github.com/xeptore/zotify/redact"
	"github.com/xeptore/zotify/spotify/types"
)

var (
	ErrDriverNotFound = errors.New("protocol driver not found")
	ErrLogin          = errors.New("login failed")
)

// Credentials are the reusable login credentials issued by a protocol driver.
// Data is opaque outside the driver.
type Credentials struct {
	Username string `json:"username"`
	Type     string `json:"type"`
	Data     []byte `json:"data"`
}

func (c Credentials) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("username", c.Username).
		Str("type", c.Type).
		Str("data", redact.Bytes(c.Data))
}

// Protocol is an authenticated client of the streaming backend.
type Protocol interface {
	// Login authenticates with stored credentials, or interactively when
	// creds is nil, and returns credentials to store for the next run.
	Login(ctx context.Context, creds *Credentials) (*Credentials, error)
	Account() types.Account
	// AccessToken returns a Web API bearer token.
	AccessToken(ctx context.Context) (string, error)
	// RequestAudioKey fails with *types.RateLimitedError or
	// *types.AcquisitionDeniedError.
	RequestAudioKey(ctx context.Context, item types.ContentItem, quality types.Quality) (types.AudioKey, error)
	StreamAudio(ctx context.Context, item types.ContentItem, key types.AudioKey, quality types.Quality) (io.ReadCloser, error)
	// Lyrics fails with types.ErrLyricsUnavailable when a track has none.
	Lyrics(ctx context.Context, trackID string) (*types.Lyrics, error)
	Close() error
}

// Driver constructs a Protocol.
type Driver func(logger zerolog.Logger, conf config.Session) (Protocol, error)

var (
	driversMux sync.RWMutex
	drivers    = make(map[string]Driver)
)

// Register makes a protocol driver available by name. It panics when called
// twice with the same name or with a nil driver.
func Register(name string, driver Driver) {
	driversMux.Lock()
	defer driversMux.Unlock()

	if nil == driver {
		panic("session: Register driver is nil")
	}

	if _, dup := drivers[name]; dup {
		panic("session: Register called twice for driver " + name)
	}
	drivers[name] = driver
}

func Drivers() []string {
	driversMux.RLock()
	defer driversMux.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// NewProtocol constructs the driver selected by conf.ProtocolDriver.
func NewProtocol(logger zerolog.Logger, conf config.Session) (Protocol, error) {
	driversMux.RLock()
	driver, ok := drivers[conf.ProtocolDriver]
	driversMux.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrDriverNotFound, conf.ProtocolDriver, Drivers())
	}

	p, err := driver(logger.With().Str("driver", conf.ProtocolDriver).Logger(), conf)
	if nil != err {
		return nil, fmt.Errorf("failed to construct protocol driver %s: %w", conf.ProtocolDriver, err)
	}

	return p, nil
}
