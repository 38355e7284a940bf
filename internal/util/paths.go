package util

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	controlChars   = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	invalidChars   = regexp.MustCompile(`[\\/:*?"<>|]`)
	repeatedDashes = regexp.MustCompile(`-+`)
)

// EnsureWritableDir creates dir if needed and checks a file can be
// written inside it.
func EnsureWritableDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("directory path cannot be empty")
	}
	info, err := os.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("path exists but is not a directory: %s", dir)
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("cannot create directory: %w", err)
		}
	case err != nil:
		return fmt.Errorf("cannot access path: %w", err)
	}

	probe, err := os.CreateTemp(dir, ".write_check_*")
	if err != nil {
		return fmt.Errorf("no write permission for directory: %w", err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

// SafeJoin joins an archive entry name onto base and refuses names that
// would land outside it.
func SafeJoin(base, name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if name == "" || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("invalid entry name %q", name)
	}
	target := filepath.Join(base, filepath.FromSlash(name))
	rel, err := filepath.Rel(base, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("entry %q escapes extraction directory", name)
	}
	return target, nil
}

// SanitizeFileName removes characters that cannot appear in a file name
// on common filesystems. The extension is kept.
func SanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	safe := controlChars.ReplaceAllString(name, "")
	safe = invalidChars.ReplaceAllString(safe, "-")
	safe = strings.Trim(safe, " .")
	safe = repeatedDashes.ReplaceAllString(safe, "-")
	safe = strings.Trim(safe, "-")

	reserved := map[string]bool{
		"CON": true, "PRN": true, "AUX": true, "NUL": true,
		"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
		"COM6": true, "COM7": true, "COM8": true, "COM9": true,
		"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
		"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
	}
	stem := strings.TrimSuffix(safe, filepath.Ext(safe))
	if reserved[strings.ToUpper(stem)] {
		safe = stem + "_" + filepath.Ext(safe)
	}
	if safe == "" {
		safe = "file"
	}
	return safe
}
