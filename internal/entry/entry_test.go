package entry

import (
	"io/fs"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	dir     bool
}

func (f fakeInfo) Name() string       { return f.name }
func (f fakeInfo) Size() int64        { return f.size }
func (f fakeInfo) Mode() fs.FileMode  { return f.mode }
func (f fakeInfo) ModTime() time.Time { return f.modTime }
func (f fakeInfo) IsDir() bool        { return f.dir }
func (f fakeInfo) Sys() any           { return nil }

func at(sec int64) time.Time {
	return time.Unix(sec, 0)
}

func file(rel string, mtime int64) Entry {
	return Entry{Name: filepath.Base(rel), RelativePath: rel, ModTime: at(mtime)}
}

func dir(rel string, mtime int64) Entry {
	return Entry{Name: filepath.Base(rel), RelativePath: rel, ModTime: at(mtime), IsDir: true}
}

func TestNew(t *testing.T) {
	base := filepath.FromSlash("/root/src")
	full := filepath.Join(base, "docs", "a.txt")

	e, err := New(base, full, fakeInfo{name: "a.txt", size: 42, mode: 0o640, modTime: at(100)})
	require.NoError(t, err)

	assert.Equal(t, "a.txt", e.Name)
	assert.Equal(t, filepath.Join("docs", "a.txt"), e.RelativePath)
	assert.Equal(t, int64(42), e.Size)
	assert.Equal(t, fs.FileMode(0o640), e.Mode)
	assert.False(t, e.IsDir)
	assert.True(t, e.ModTime.Equal(at(100)))
}

func TestNew_DirectoryHasNoSize(t *testing.T) {
	base := filepath.FromSlash("/root/src")
	e, err := New(base, filepath.Join(base, "docs"), fakeInfo{name: "docs", size: 4096, mode: fs.ModeDir | 0o755, dir: true})
	require.NoError(t, err)

	assert.True(t, e.IsDir)
	assert.Zero(t, e.Size)
	assert.Equal(t, fs.FileMode(0o755), e.Mode)
}

func TestNew_RootWithTrailingSeparator(t *testing.T) {
	base := filepath.FromSlash("/")
	e, err := New(base, filepath.FromSlash("/etc"), fakeInfo{name: "etc", dir: true})
	require.NoError(t, err)
	assert.Equal(t, "etc", e.RelativePath)
}

func TestNew_RejectsPathsOutsideRoot(t *testing.T) {
	base := filepath.FromSlash("/root/src")
	for _, full := range []string{
		filepath.FromSlash("/root/src"),
		filepath.FromSlash("/root/srcother/a.txt"),
		filepath.FromSlash("/elsewhere/a.txt"),
	} {
		_, err := New(base, full, fakeInfo{name: filepath.Base(full)})
		assert.Error(t, err, full)
	}
}

func TestSequenceTotalSize(t *testing.T) {
	seq := Sequence{
		{RelativePath: "a", IsDir: true},
		{RelativePath: "a/b", Size: 10},
		{RelativePath: "c", Size: 32},
	}
	assert.Equal(t, int64(42), seq.TotalSize())
}
