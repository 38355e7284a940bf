// Package blob stores uploaded import files, pre-uploaded product images
// and attached media behind one key/value interface.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrNotFound is returned by Open when no blob exists under the key.
var ErrNotFound = errors.New("blob not found")

// Storage keys are slash separated and relative, e.g. "imports/<id>/stock.xlsx".
type Storage interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, r io.Reader) error
	Delete(ctx context.Context, key string) error
	// DeleteDir removes every blob under prefix.
	DeleteDir(ctx context.Context, prefix string) error
}

// CleanKey normalizes key and rejects keys that climb out of the store.
func CleanKey(key string) (string, error) {
	key = strings.Trim(strings.ReplaceAll(key, "\\", "/"), "/")
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return "", fmt.Errorf("invalid blob key %q", key)
		}
	}
	key = path.Clean(key)
	if key == "." {
		return "", fmt.Errorf("empty blob key")
	}
	return key, nil
}

// Join builds a key from parts.
func Join(parts ...string) string {
	return strings.TrimPrefix(path.Join(parts...), "/")
}
