package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
)

// Logger returns a logger that only reports errors, keeping test output quiet.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Unix is shorthand for a whole-second timestamp.
func Unix(sec int64) time.Time {
	return time.Unix(sec, 0)
}

// WriteFile creates path (and its parents) on fsys with content and mtime.
func WriteFile(t *testing.T, fsys afero.Fs, path, content string, mtime time.Time) {
	t.Helper()

	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := afero.WriteFile(fsys, path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := fsys.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

// Mkdir creates the directory path (and its parents) on fsys.
func Mkdir(t *testing.T, fsys afero.Fs, path string) {
	t.Helper()

	if err := fsys.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

// ReadFile returns the content of path or fails the test.
func ReadFile(t *testing.T, fsys afero.Fs, path string) string {
	t.Helper()

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// FaultFunc decides whether an operation on name fails. op is one of
// "open", "openfile", "mkdir", "remove", "rename", "stat" and "chtimes";
// for "rename" name is the new path.
type FaultFunc func(op, name string) error

// FaultFs wraps a filesystem and injects errors chosen by Fault.
type FaultFs struct {
	afero.Fs

	mu    sync.Mutex
	Fault FaultFunc
	calls map[string]int
}

// NewFaultFs wraps base with fault injection.
func NewFaultFs(base afero.Fs, fault FaultFunc) *FaultFs {
	return &FaultFs{Fs: base, Fault: fault, calls: make(map[string]int)}
}

// Calls returns how often op was invoked on name.
func (f *FaultFs) Calls(op, name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op+" "+name]
}

func (f *FaultFs) check(op, name string) error {
	f.mu.Lock()
	f.calls[op+" "+name]++
	f.mu.Unlock()

	if f.Fault == nil {
		return nil
	}
	return f.Fault(op, name)
}

func (f *FaultFs) Open(name string) (afero.File, error) {
	if err := f.check("open", name); err != nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: err}
	}
	return f.Fs.Open(name)
}

func (f *FaultFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if err := f.check("openfile", name); err != nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: err}
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func (f *FaultFs) Mkdir(name string, perm os.FileMode) error {
	if err := f.check("mkdir", name); err != nil {
		return &os.PathError{Op: "mkdir", Path: name, Err: err}
	}
	return f.Fs.Mkdir(name, perm)
}

func (f *FaultFs) Remove(name string) error {
	if err := f.check("remove", name); err != nil {
		return &os.PathError{Op: "remove", Path: name, Err: err}
	}
	return f.Fs.Remove(name)
}

func (f *FaultFs) Stat(name string) (os.FileInfo, error) {
	if err := f.check("stat", name); err != nil {
		return nil, &os.PathError{Op: "stat", Path: name, Err: err}
	}
	return f.Fs.Stat(name)
}

func (f *FaultFs) Chtimes(name string, atime, mtime time.Time) error {
	if err := f.check("chtimes", name); err != nil {
		return &os.PathError{Op: "chtimes", Path: name, Err: err}
	}
	return f.Fs.Chtimes(name, atime, mtime)
}

func (f *FaultFs) Rename(oldname, newname string) error {
	if err := f.check("rename", newname); err != nil {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: err}
	}
	return f.Fs.Rename(oldname, newname)
}
