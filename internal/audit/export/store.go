package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
)

// ErrKeyExists signals a write-once collision: the key already holds an
// object and the store refuses to replace it.
var ErrKeyExists = errors.New("export_key_exists")

// Store is a write-once object store for audit archives. Implementations
// must reject writes to an existing key so a repeated daily export cannot
// silently replace yesterday's archive.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Exists(ctx context.Context, key string) (bool, error)
}

// FileStore keeps archives on a local (or mounted) filesystem. The O_EXCL
// open makes the write-once property atomic at the storage layer.
type FileStore struct {
	root string
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

func (s *FileStore) Put(_ context.Context, key string, data []byte) error {
	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o440)
	if err != nil {
		if os.IsExist(err) {
			return ErrKeyExists
		}
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func (s *FileStore) Exists(_ context.Context, key string) (bool, error) {
	path := filepath.Join(s.root, filepath.FromSlash(key))
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
