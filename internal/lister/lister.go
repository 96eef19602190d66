// Package lister enumerates a directory tree into a sorted entry sequence.
package lister

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/schaermu/tranquil/internal/entry"
	"github.com/schaermu/tranquil/internal/pathutil"
)

var (
	// ErrRootNotFound is returned when the root to list does not exist.
	ErrRootNotFound = errors.New("root does not exist")
	// ErrRootNotDir is returned when the root to list is not a directory.
	ErrRootNotDir = errors.New("root is not a directory")
)

// DefaultReservedNames are platform-managed directories that are never listed.
var DefaultReservedNames = []string{
	"$RECYCLE.BIN",
	"System Volume Information",
}

// Excluder decides whether a directory is left out of the listing.
type Excluder interface {
	IsExcluded(canonicalDir string) bool
}

// nothingExcluded is used when no Excluder is configured.
type nothingExcluded struct{}

func (nothingExcluded) IsExcluded(string) bool { return false }

// Skipped records a path that could not be enumerated.
type Skipped struct {
	Path string
	Err  error
}

// Listing is the result of enumerating one root.
type Listing struct {
	Root        string
	Entries     entry.Sequence
	Files       int
	Directories int
	// Irregular counts symlinks, devices and other non-regular files.
	Irregular int
	// Excluded counts directories left out by the Excluder.
	Excluded int
	Skipped  []Skipped
}

// Lister enumerates trees on a filesystem.
type Lister struct {
	fs       afero.Fs
	excluder Excluder
	reserved map[string]bool
	order    entry.Order
	logger   *slog.Logger
}

// Option configures a Lister.
type Option func(*Lister)

// WithExcluder sets the exclusion lookup consulted for every directory.
func WithExcluder(ex Excluder) Option {
	return func(l *Lister) {
		if ex != nil {
			l.excluder = ex
		}
	}
}

// WithReservedNames replaces the default reserved names.
func WithReservedNames(names []string) Option {
	return func(l *Lister) {
		l.reserved = reservedSet(names)
	}
}

// WithOrder sets the ordering used to sort the listing.
func WithOrder(order entry.Order) Option {
	return func(l *Lister) { l.order = order }
}

// New creates a Lister reading from fsys.
func New(fsys afero.Fs, logger *slog.Logger, opts ...Option) *Lister {
	l := &Lister{
		fs:       fsys,
		excluder: nothingExcluded{},
		reserved: reservedSet(DefaultReservedNames),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func reservedSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[strings.ToLower(name)] = true
	}
	return set
}

// Order returns the ordering the listing is sorted by.
func (l *Lister) Order() entry.Order {
	return l.order
}

// List enumerates root recursively. Only a missing or non-directory root is
// an error; unreadable subdirectories are recorded in Listing.Skipped and
// left out together with everything below them.
func (l *Lister) List(ctx context.Context, root string) (*Listing, error) {
	info, err := l.fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRootNotFound, root)
		}
		return nil, fmt.Errorf("failed to stat root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotDir, root)
	}

	base, err := pathutil.Canonical(l.fs, root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}

	// The root itself must be readable, otherwise there is nothing to compare.
	children, err := afero.ReadDir(l.fs, base)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate root %s: %w", base, err)
	}

	l.logger.Info("scanning", "root", base)

	listing := &Listing{Root: base}
	if err := l.walk(ctx, listing, base, children); err != nil {
		return nil, err
	}

	l.order.Sort(listing.Entries)

	l.logger.Info("scan complete",
		"root", base,
		"files", listing.Files,
		"directories", listing.Directories,
		"excluded", listing.Excluded,
		"skipped", len(listing.Skipped))

	return listing, nil
}

func (l *Lister) walk(ctx context.Context, listing *Listing, dir string, children []fs.FileInfo) error {
	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return err
		}

		if l.reserved[strings.ToLower(child.Name())] {
			l.logger.Debug("skipping reserved name", "path", filepath.Join(dir, child.Name()))
			continue
		}

		path := filepath.Join(dir, child.Name())

		switch {
		case child.Mode().IsRegular():
			if err := l.add(listing, path, child); err != nil {
				return err
			}
			listing.Files++

		case child.IsDir():
			if l.excluder.IsExcluded(path) {
				l.logger.Info("skipping excluded directory", "path", path)
				listing.Excluded++
				continue
			}

			grandchildren, err := afero.ReadDir(l.fs, path)
			if err != nil {
				l.logger.Warn("could not enumerate directory, skipping subtree", "path", path, "error", err)
				listing.Skipped = append(listing.Skipped, Skipped{Path: path, Err: err})
				continue
			}

			if err := l.add(listing, path, child); err != nil {
				return err
			}
			listing.Directories++

			if err := l.walk(ctx, listing, path, grandchildren); err != nil {
				return err
			}

		default:
			l.logger.Debug("skipping non-regular file", "path", path, "mode", child.Mode().String())
			listing.Irregular++
		}
	}
	return nil
}

func (l *Lister) add(listing *Listing, path string, info fs.FileInfo) error {
	e, err := entry.New(listing.Root, path, info)
	if err != nil {
		return fmt.Errorf("failed to build entry: %w", err)
	}
	listing.Entries = append(listing.Entries, e)
	return nil
}
