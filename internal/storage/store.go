// Package storage is the client's durable key/value store. It holds the few
// strings that must outlive a process, most importantly the auth token.
package storage

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// filePrefix is prepended to every key's file name so the store can clear its
// own entries without touching anything else in the directory.
const filePrefix = "pelusachat-"

// FileStore keeps each key in its own file under dir. Values are base64
// encoded on disk.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "create storage dir")
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, filePrefix+key)
}

// GetItem returns the value stored under key. Returns os.ErrNotExist when the
// key is absent.
func (s *FileStore) GetItem(key string) ([]byte, error) {
	b, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, os.ErrNotExist
		}
		return nil, errors.Wrapf(err, "read %q", key)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, errors.Wrapf(err, "decode %q", key)
	}
	return decoded, nil
}

// SetItem stores value under key, replacing any previous value.
func (s *FileStore) SetItem(key string, value []byte) error {
	encoded := base64.StdEncoding.EncodeToString(value)
	if err := os.WriteFile(s.path(key), []byte(encoded), 0o600); err != nil {
		return errors.Wrapf(err, "write %q", key)
	}
	return nil
}

// RemoveItem deletes the value stored under key. Removing an absent key is a
// no-op.
func (s *FileStore) RemoveItem(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "remove %q", key)
	}
	return nil
}

// Clear removes every entry this store owns.
func (s *FileStore) Clear() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return errors.Wrap(err, "list storage dir")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), filePrefix) {
			if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
				return errors.Wrapf(err, "remove %q", e.Name())
			}
		}
	}
	return nil
}
