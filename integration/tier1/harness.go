//go:build integration

package tier1

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/tranquil/internal/testutil"
)

const defaultTimeout = 5 * time.Minute

// Harness builds the tranquil binary once and runs it against a scratch
// workspace holding a source tree, a destination tree and a state directory.
type Harness struct {
	t       *testing.T
	binary  string
	workDir string
	keep    bool
}

// NewHarness creates a new test harness
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	return &Harness{
		t:    t,
		keep: os.Getenv("INTEGRATION_KEEP_WORKDIR") == "1",
	}
}

// Build compiles the binary into a temporary directory
func (h *Harness) Build(ctx context.Context) error {
	h.t.Helper()

	projectRoot, err := testutil.FindProjectRoot()
	if err != nil {
		return fmt.Errorf("get project root: %w", err)
	}

	workDir, err := os.MkdirTemp("", "tranquil-tier1-*")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	h.workDir = workDir
	h.binary = filepath.Join(workDir, "bin", "tranquil")

	h.t.Logf("Building %s", h.binary)
	cmd := exec.CommandContext(ctx, "go", "build", "-o", h.binary, "./cmd/tranquil")
	cmd.Dir = projectRoot
	cmd.Stdout = &testWriter{t: h.t, prefix: "[build] "}
	cmd.Stderr = &testWriter{t: h.t, prefix: "[build] "}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	return nil
}

// Cleanup removes the workspace
func (h *Harness) Cleanup() {
	h.t.Helper()
	if h.workDir == "" {
		return
	}

	if h.keep && h.t.Failed() {
		h.t.Logf("Test failed and INTEGRATION_KEEP_WORKDIR=1, keeping %s", h.workDir)
		return
	}
	if err := os.RemoveAll(h.workDir); err != nil {
		h.t.Logf("Warning: failed to remove work dir: %v", err)
	}
}

// Path returns an absolute path inside the workspace
func (h *Harness) Path(elem ...string) string {
	return filepath.Join(append([]string{h.workDir}, elem...)...)
}

// Exec runs the binary with stdin and returns stdout, stderr and exit code
func (h *Harness) Exec(ctx context.Context, stdin string, args ...string) (string, string, int, error) {
	h.t.Helper()
	if h.binary == "" {
		return "", "", 0, fmt.Errorf("binary not built")
	}

	cmd := exec.CommandContext(ctx, h.binary, args...)
	cmd.Stdin = strings.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return "", "", 0, fmt.Errorf("exec failed: %w", err)
		}
	}

	return stdout.String(), stderr.String(), exitCode, nil
}

// MustExec runs the binary and fails the test if it exits non-zero
func (h *Harness) MustExec(ctx context.Context, stdin string, args ...string) (string, string) {
	h.t.Helper()
	stdout, stderr, exitCode, err := h.Exec(ctx, stdin, args...)
	if err != nil {
		h.t.Fatalf("exec failed: %v", err)
	}
	if exitCode != 0 {
		h.t.Fatalf("command failed with exit code %d\nstdout: %s\nstderr: %s", exitCode, stdout, stderr)
	}
	return stdout, stderr
}

// WriteFile writes content to a workspace path and sets its modification time
func (h *Harness) WriteFile(path, content string, mtime time.Time) {
	h.t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		h.t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		h.t.Fatalf("write %s: %v", path, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		h.t.Fatalf("chtimes %s: %v", path, err)
	}
}

// ReadFile returns a workspace file's content
func (h *Harness) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	return string(data), err
}

// FileExists checks if a path exists
func (h *Harness) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ModTime returns the modification time of path
func (h *Harness) ModTime(path string) time.Time {
	h.t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		h.t.Fatalf("stat %s: %v", path, err)
	}
	return info.ModTime()
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)
