// Package archive unpacks uploaded image archives into scratch space.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mholt/archives"
	"github.com/vrsandeep/catalog-importer/internal/util"
)

var (
	ErrUnreadable  = errors.New("unreadable archive")
	ErrUnsupported = errors.New("unsupported archive format")
)

// ExtractZip writes every regular file of the zip at archivePath under
// destDir, keeping the archive's directory layout. Symlinks are skipped
// and entries that would escape destDir abort the extraction.
func ExtractZip(ctx context.Context, archivePath, destDir string) (int, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	format, _, err := archives.Identify(ctx, filepath.Base(archivePath), f)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if _, ok := format.(archives.Zip); !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupported, format.Extension())
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create extraction directory: %w", err)
	}

	count := 0
	err = archives.Zip{}.Extract(ctx, f, func(ctx context.Context, info archives.FileInfo) error {
		if info.IsDir() || info.LinkTarget != "" || !info.Mode().IsRegular() {
			return nil
		}
		target, err := util.SafeJoin(destDir, info.NameInArchive)
		if err != nil {
			return err
		}
		if err := writeEntry(info, target); err != nil {
			return fmt.Errorf("extract %s: %w", info.NameInArchive, err)
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return count, nil
}

func writeEntry(info archives.FileInfo, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	src, err := info.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
