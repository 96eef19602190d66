package lister

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/tranquil/internal/entry"
	"github.com/schaermu/tranquil/internal/testutil"
)

type setExcluder map[string]bool

func (s setExcluder) IsExcluded(dir string) bool { return s[dir] }

func relPaths(seq entry.Sequence) []string {
	out := make([]string, 0, len(seq))
	for _, e := range seq {
		out = append(out, filepath.ToSlash(e.RelativePath))
	}
	return out
}

func memTree(t *testing.T) (afero.Fs, string) {
	t.Helper()

	fsys := afero.NewMemMapFs()
	root := filepath.FromSlash("/src")
	testutil.WriteFile(t, fsys, filepath.Join(root, "b.txt"), "b", testutil.Unix(100))
	testutil.WriteFile(t, fsys, filepath.Join(root, "a", "z.txt"), "zz", testutil.Unix(100))
	testutil.WriteFile(t, fsys, filepath.Join(root, "a", "c", "d.txt"), "ddd", testutil.Unix(100))
	testutil.WriteFile(t, fsys, filepath.Join(root, "a.txt"), "a", testutil.Unix(100))
	return fsys, root
}

func TestList_SortedByRelativePath(t *testing.T) {
	fsys, root := memTree(t)

	listing, err := New(fsys, testutil.Logger()).List(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "a.txt", "a/c", "a/c/d.txt", "a/z.txt", "b.txt"}, relPaths(listing.Entries))
	assert.Equal(t, 4, listing.Files)
	assert.Equal(t, 2, listing.Directories)
	assert.Equal(t, root, listing.Root)
	assert.Empty(t, listing.Skipped)

	for _, e := range listing.Entries {
		assert.Equal(t, root, e.BasePath)
		assert.Equal(t, filepath.Join(root, e.RelativePath), e.FullPath)
	}
	assert.Equal(t, int64(7), listing.Entries.TotalSize())
}

func TestList_FoldCaseOrder(t *testing.T) {
	fsys := afero.NewMemMapFs()
	root := filepath.FromSlash("/src")
	testutil.WriteFile(t, fsys, filepath.Join(root, "B.txt"), "", testutil.Unix(1))
	testutil.WriteFile(t, fsys, filepath.Join(root, "a.txt"), "", testutil.Unix(1))

	sensitive, err := New(fsys, testutil.Logger()).List(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"B.txt", "a.txt"}, relPaths(sensitive.Entries))

	folded, err := New(fsys, testutil.Logger(), WithOrder(entry.Order{FoldCase: true})).List(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "B.txt"}, relPaths(folded.Entries))
}

func TestList_ReservedNames(t *testing.T) {
	fsys, root := memTree(t)
	testutil.WriteFile(t, fsys, filepath.Join(root, "$RECYCLE.BIN", "junk"), "x", testutil.Unix(1))
	testutil.WriteFile(t, fsys, filepath.Join(root, "System Volume Information", "x"), "x", testutil.Unix(1))
	testutil.WriteFile(t, fsys, filepath.Join(root, "Thumbs.db"), "x", testutil.Unix(1))

	listing, err := New(fsys, testutil.Logger()).List(context.Background(), root)
	require.NoError(t, err)
	assert.NotContains(t, relPaths(listing.Entries), "$RECYCLE.BIN")
	assert.NotContains(t, relPaths(listing.Entries), "System Volume Information")
	assert.Contains(t, relPaths(listing.Entries), "Thumbs.db")

	custom, err := New(fsys, testutil.Logger(), WithReservedNames([]string{"thumbs.db"})).List(context.Background(), root)
	require.NoError(t, err)
	assert.NotContains(t, relPaths(custom.Entries), "Thumbs.db")
	assert.Contains(t, relPaths(custom.Entries), "$RECYCLE.BIN")
}

func TestList_ExcludedDirectory(t *testing.T) {
	fsys, root := memTree(t)
	excluder := setExcluder{filepath.Join(root, "a", "c"): true}

	listing, err := New(fsys, testutil.Logger(), WithExcluder(excluder)).List(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "a.txt", "a/z.txt", "b.txt"}, relPaths(listing.Entries))
	assert.Equal(t, 1, listing.Excluded)
}

func TestList_UnreadableSubdirectoryIsSkipped(t *testing.T) {
	base, root := memTree(t)
	blocked := filepath.Join(root, "a", "c")
	fsys := testutil.NewFaultFs(base, func(op, name string) error {
		if op == "open" && name == blocked {
			return fs.ErrPermission
		}
		return nil
	})

	listing, err := New(fsys, testutil.Logger()).List(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "a.txt", "a/z.txt", "b.txt"}, relPaths(listing.Entries))
	require.Len(t, listing.Skipped, 1)
	assert.Equal(t, blocked, listing.Skipped[0].Path)
	assert.ErrorIs(t, listing.Skipped[0].Err, fs.ErrPermission)
}

func TestList_RootErrors(t *testing.T) {
	fsys, root := memTree(t)
	l := New(fsys, testutil.Logger())

	_, err := l.List(context.Background(), filepath.FromSlash("/does/not/exist"))
	assert.ErrorIs(t, err, ErrRootNotFound)

	_, err = l.List(context.Background(), filepath.Join(root, "a.txt"))
	assert.ErrorIs(t, err, ErrRootNotDir)
}

func TestList_UnreadableRootIsFatal(t *testing.T) {
	base, root := memTree(t)
	fsys := testutil.NewFaultFs(base, func(op, name string) error {
		if op == "open" && name == root {
			return fs.ErrPermission
		}
		return nil
	})

	_, err := New(fsys, testutil.Logger()).List(context.Background(), root)
	assert.ErrorIs(t, err, fs.ErrPermission)
}

func TestList_Cancelled(t *testing.T) {
	fsys, root := memTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(fsys, testutil.Logger()).List(ctx, root)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestList_SkipsSymlinksOnDisk(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "real.txt"), []byte("x"), 0o644))
	if err := os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	listing, err := New(afero.NewOsFs(), testutil.Logger()).List(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"real.txt"}, relPaths(listing.Entries))
	assert.Equal(t, 1, listing.Irregular)
}
