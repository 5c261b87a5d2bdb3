package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"go.etcd.io/bbolt"
)

var credentialsBucketName = []byte("credentials")

// CredentialStore persists login credentials per username.
type CredentialStore struct {
	db *bbolt.DB
}

func OpenCredentialStore(path string) (*CredentialStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o0700); nil != err {
		return nil, fmt.Errorf("failed to create credentials directory: %v", err)
	}

	opts := &bbolt.Options{ //nolint:exhaustruct
		NoFreelistSync: true,
		ReadOnly:       false,
		Timeout:        1 * time.Second,
		NoGrowSync:     false,
		FreelistType:   bbolt.FreelistArrayType,
	}
	db, err := bbolt.Open(path, 0o600, opts)
	if nil != err {
		return nil, fmt.Errorf("failed to open credentials database: %v", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(credentialsBucketName); nil != err {
			return fmt.Errorf("failed to create credentials bucket: %v", err)
		}

		return nil
	})
	if nil != err {
		return nil, errors.Join(err, db.Close())
	}

	return &CredentialStore{db: db}, nil
}

func (s *CredentialStore) Close() error {
	if err := s.db.Close(); nil != err {
		return fmt.Errorf("failed to close credentials database: %v", err)
	}

	return nil
}

// Load returns the stored credentials of username, or the only stored
// credentials when username is empty. It returns nil when there are none.
func (s *CredentialStore) Load(username string) (*Credentials, error) {
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(credentialsBucketName)
		if len(username) > 0 {
			raw = b.Get([]byte(username))
			return nil
		}

		if b.Stats().KeyN == 1 {
			_, raw = b.Cursor().First()
		}

		return nil
	})
	if nil != err {
		return nil, fmt.Errorf("failed to load credentials: %v", err)
	}

	if nil == raw {
		return nil, nil //nolint:nilnil
	}

	var creds Credentials
	if err := json.Unmarshal(raw, &creds); nil != err {
		return nil, fmt.Errorf("failed to decode stored credentials: %v", err)
	}

	return &creds, nil
}

func (s *CredentialStore) Store(creds Credentials) error {
	if len(creds.Username) == 0 {
		return errors.New("credentials have no username")
	}

	raw, err := json.Marshal(creds)
	if nil != err {
		return fmt.Errorf("failed to encode credentials: %v", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(credentialsBucketName).Put([]byte(creds.Username), raw)
	})
	if nil != err {
		return fmt.Errorf("failed to store credentials: %v", err)
	}

	return nil
}

func (s *CredentialStore) Delete(username string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(credentialsBucketName).Delete([]byte(username))
	})
	if nil != err {
		return fmt.Errorf("failed to delete credentials: %v", err)
	}

	return nil
}
