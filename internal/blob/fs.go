package blob

import (
	"context"
	"io"
	"os"
	"path"

	"github.com/spf13/afero"
)

// FSStore keeps blobs as files on an afero filesystem.
type FSStore struct {
	fs afero.Fs
}

func NewFSStore(fs afero.Fs) *FSStore {
	return &FSStore{fs: fs}
}

// NewLocalStore roots a store at a directory of the host filesystem.
func NewLocalStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}
	return NewFSStore(afero.NewBasePathFs(afero.NewOsFs(), root)), nil
}

func (s *FSStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(key)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if info, err := f.Stat(); err == nil && info.IsDir() {
		f.Close()
		return nil, ErrNotFound
	}
	return f, nil
}

func (s *FSStore) Exists(ctx context.Context, key string) (bool, error) {
	key, err := CleanKey(key)
	if err != nil {
		return false, err
	}
	info, err := s.fs.Stat(key)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

func (s *FSStore) Put(ctx context.Context, key string, r io.Reader) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(path.Dir(key), 0755); err != nil {
		return err
	}
	f, err := s.fs.Create(key)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *FSStore) Delete(ctx context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	err = s.fs.Remove(key)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *FSStore) DeleteDir(ctx context.Context, prefix string) error {
	prefix, err := CleanKey(prefix)
	if err != nil {
		return err
	}
	return s.fs.RemoveAll(prefix)
}
