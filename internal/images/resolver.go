// Package images finds the files named in a spreadsheet's image columns,
// first in the extracted archive and then among images uploaded ahead of
// time to blob storage, and attaches them to products.
package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vrsandeep/catalog-importer/internal/blob"
)

// FindInDir looks for name among the direct children of dir, ignoring
// case. The name is trimmed and only its base is compared.
func FindInDir(dir, name string) (string, bool) {
	name = strings.TrimSpace(name)
	if dir == "" || name == "" {
		return "", false
	}
	base := filepath.Base(filepath.FromSlash(name))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(e.Name(), base) {
			return filepath.Join(dir, e.Name()), true
		}
	}
	return "", false
}

// Resolved is a local file ready to be attached. Release must be called
// once the file has been copied.
type Resolved struct {
	Path string
	// Name is the file name as written in the spreadsheet cell.
	Name    string
	release func()
}

func (r *Resolved) Release() {
	if r != nil && r.release != nil {
		r.release()
		r.release = nil
	}
}

// Resolver locates image files for one import run.
type Resolver struct {
	Blob blob.Storage
	// RemotePrefix is the blob prefix of images uploaded separately when the
	// archive would be too large.
	RemotePrefix string
	// ScratchDir receives temporary downloads of remote images.
	ScratchDir string
}

// Resolve returns (nil, nil) when the image exists neither in dir nor
// under the remote prefix.
func (r *Resolver) Resolve(ctx context.Context, dir, name string) (*Resolved, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	if p, ok := FindInDir(dir, name); ok {
		return &Resolved{Path: p, Name: filepath.Base(p)}, nil
	}
	if r.Blob == nil {
		return nil, nil
	}

	rel, err := blob.CleanKey(name)
	if err != nil {
		return nil, nil
	}
	key := blob.Join(r.RemotePrefix, rel)
	ok, err := r.Blob.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("check remote image %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	return r.download(ctx, key, name)
}

func (r *Resolver) download(ctx context.Context, key, name string) (*Resolved, error) {
	src, err := r.Blob.Open(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open remote image %s: %w", key, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(r.ScratchDir, "image-*"+filepath.Ext(name))
	if err != nil {
		return nil, fmt.Errorf("create temp image: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("download remote image %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}
	path := tmp.Name()
	return &Resolved{
		Path:    path,
		Name:    filepath.Base(filepath.FromSlash(name)),
		release: func() { os.Remove(path) },
	}, nil
}
