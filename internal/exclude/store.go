// Package exclude persists the set of directories left out of every sync.
//
// The file holds one canonical absolute directory path per line. Blank lines
// and lines starting with '#' are ignored, as are relative paths left behind
// by hand edits.
package exclude

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/schaermu/tranquil/internal/pathutil"
)

// ErrNotDirectory is returned by Add for paths that are not existing
// directories.
var ErrNotDirectory = errors.New("not an existing directory")

const header = "# tranquil exclusions: one absolute directory per line\n"

// Store is the in-memory exclusion set backed by a file on fs.
type Store struct {
	fs     afero.Fs
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	paths map[string]struct{}
}

// Open loads the exclusion file at path. A missing or unreadable file yields
// an empty store; it is created on the first Save.
func Open(fsys afero.Fs, path string, logger *slog.Logger) *Store {
	s := &Store{
		fs:     fsys,
		path:   path,
		logger: logger,
		paths:  make(map[string]struct{}),
	}
	if err := s.Reload(); err != nil {
		logger.Warn("failed to load exclusions (nothing will be excluded)", "path", path, "error", err)
	}
	return s
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// IsExcluded reports whether dir is in the set. dir must be canonical.
func (s *Store) IsExcluded(dir string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.paths[filepath.Clean(dir)]
	return ok
}

// Add canonicalises dir, checks that it is an existing directory, adds it
// and saves the store. It returns the stored form.
func (s *Store) Add(dir string) (string, error) {
	canonical, err := pathutil.Canonical(s.fs, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", dir, ErrNotDirectory)
		}
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	info, err := s.fs.Stat(canonical)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%s: %w", dir, ErrNotDirectory)
	}

	s.mu.Lock()
	s.paths[canonical] = struct{}{}
	s.mu.Unlock()

	if err := s.Save(); err != nil {
		return "", err
	}
	s.logger.Info("excluded directory", "path", canonical)
	return canonical, nil
}

// Remove drops dir from the set and saves the store. It reports whether dir
// was present. The directory does not have to exist any more.
func (s *Store) Remove(dir string) (bool, error) {
	key := filepath.Clean(dir)
	if canonical, err := pathutil.Canonical(s.fs, dir); err == nil {
		key = canonical
	}

	s.mu.Lock()
	_, ok := s.paths[key]
	if !ok {
		// Entries for deleted directories were stored canonical; try the
		// literal form too.
		key = filepath.Clean(dir)
		_, ok = s.paths[key]
	}
	delete(s.paths, key)
	s.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := s.Save(); err != nil {
		return true, err
	}
	s.logger.Info("removed exclusion", "path", key)
	return true, nil
}

// List returns the excluded directories in lexical order.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.paths))
	for p := range s.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of excluded directories.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.paths)
}

// Prune drops every entry that no longer names a directory, saves the store
// and returns the dropped entries.
func (s *Store) Prune() ([]string, error) {
	var dropped []string

	s.mu.Lock()
	for p := range s.paths {
		info, err := s.fs.Stat(p)
		if err != nil || !info.IsDir() {
			delete(s.paths, p)
			dropped = append(dropped, p)
		}
	}
	s.mu.Unlock()

	sort.Strings(dropped)
	if len(dropped) == 0 {
		return nil, nil
	}
	for _, p := range dropped {
		s.logger.Info("pruned exclusion", "path", p)
	}
	return dropped, s.Save()
}

// Reload replaces the in-memory set with the file content. A missing file
// empties the set without error.
func (s *Store) Reload() error {
	paths := make(map[string]struct{})

	f, err := s.fs.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.replace(paths)
			return nil
		}
		s.replace(paths)
		return fmt.Errorf("failed to open exclusions: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) {
			s.logger.Warn("ignoring relative exclusion", "path", s.path, "line", lineNo, "value", line)
			continue
		}
		paths[filepath.Clean(line)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		s.replace(make(map[string]struct{}))
		return fmt.Errorf("failed to read exclusions: %w", err)
	}

	s.replace(paths)
	s.logger.Debug("loaded exclusions", "path", s.path, "count", len(paths))
	return nil
}

func (s *Store) replace(paths map[string]struct{}) {
	s.mu.Lock()
	s.paths = paths
	s.mu.Unlock()
}

// Save writes the set to the backing file, replacing it atomically.
func (s *Store) Save() error {
	var buf bytes.Buffer
	buf.WriteString(header)
	for _, p := range s.List() {
		buf.WriteString(p)
		buf.WriteByte('\n')
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, dir, ".exclusions-tmp-*")
	if err != nil {
		return fmt.Errorf("failed to save exclusions: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = s.fs.Remove(tmpPath)
	}()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to save exclusions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to save exclusions: %w", err)
	}
	if err := s.fs.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to save exclusions: %w", err)
	}
	return nil
}
