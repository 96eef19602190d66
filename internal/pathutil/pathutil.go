// Package pathutil resolves canonical absolute paths and answers containment
// questions on whole path components.
package pathutil

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
)

// Canonical returns the absolute, cleaned form of path with a leading "~"
// expanded. Symlinks are resolved when fsys is backed by the operating system;
// in-memory filesystems have no links to resolve.
func Canonical(fsys afero.Fs, path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", path, err)
	}

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}

	if _, ok := fsys.(*afero.OsFs); ok {
		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return "", fmt.Errorf("resolve links in %q: %w", abs, err)
		}
		abs = resolved
	}

	return filepath.Clean(abs), nil
}

// IsWithin reports whether path equals root or lies below it. Only whole
// components match: /data/photos is not within /data/photo.
func IsWithin(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)

	if path == root {
		return true
	}
	if !strings.HasPrefix(path, root) {
		return false
	}
	if strings.HasSuffix(root, string(filepath.Separator)) {
		return true
	}
	return path[len(root)] == filepath.Separator
}
