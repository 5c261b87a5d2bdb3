package types

import (
	"github.com/rs/zerolog"
)

type Account struct {
	Username string
	Country  string
	Premium  bool
}

func (a Account) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("username", a.Username).
		Str("country", a.Country).
		Bool("premium", a.Premium)
}

// AudioKey decrypts one audio file of an item. It is opaque outside the
// protocol driver that issued it.
type AudioKey struct {
	FileID string
	Key    []byte
}
