package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tranquil "github.com/schaermu/tranquil/internal/sync"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// countingRunner records how often a sync was started.
type countingRunner struct {
	calls atomic.Int32
	runs  chan struct{}
	err   error
}

func newCountingRunner() *countingRunner {
	return &countingRunner{runs: make(chan struct{}, 64)}
}

func (r *countingRunner) Run(context.Context) (*tranquil.Report, error) {
	r.calls.Add(1)
	r.runs <- struct{}{}
	if r.err != nil {
		return nil, r.err
	}
	return &tranquil.Report{}, nil
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestDebouncer_CoalescesTriggers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := &debouncer{clock: clock, delay: 2 * time.Second}

	fired := make(chan struct{}, 10)
	var count atomic.Int32
	cb := func() {
		count.Add(1)
		fired <- struct{}{}
	}

	d.trigger(cb)
	clock.Advance(time.Second)
	d.trigger(cb)
	clock.Advance(time.Second)
	d.trigger(cb)

	clock.Advance(2 * time.Second)
	waitFor(t, fired, "debounced callback")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())

	d.stop()
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := &debouncer{clock: clock, delay: time.Second}

	var count atomic.Int32
	d.trigger(func() { count.Add(1) })
	d.stop()

	clock.Advance(5 * time.Second)
	d.trigger(func() { count.Add(1) })
	clock.Advance(5 * time.Second)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, count.Load())
}

// blockingRunner blocks its first run until released.
type blockingRunner struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (r *blockingRunner) Run(context.Context) (*tranquil.Report, error) {
	r.mu.Lock()
	r.calls++
	first := r.calls == 1
	r.mu.Unlock()

	if first {
		close(r.started)
		<-r.release
	}
	return &tranquil.Report{}, nil
}

func TestPerformSync_SingleFlight(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	w := New(afero.NewMemMapFs(), "/src", runner, testLogger())

	done := make(chan struct{})
	go func() {
		w.performSync(context.Background())
		close(done)
	}()
	waitFor(t, runner.started, "first sync")

	// Both requests collapse into one pending re-run.
	w.performSync(context.Background())
	w.performSync(context.Background())

	close(runner.release)
	waitFor(t, done, "sync loop")

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, 2, runner.calls)
	assert.False(t, w.syncRunning)
	assert.False(t, w.syncPending)
}

func TestPerformSync_ErrorsAreLogged(t *testing.T) {
	runner := newCountingRunner()
	runner.err = errors.New("destination missing")
	w := New(afero.NewMemMapFs(), "/src", runner, testLogger())

	w.performSync(context.Background())
	assert.Equal(t, int32(1), runner.calls.Load())
	assert.False(t, w.syncRunning)
}

func TestPerformSync_CancelledContext(t *testing.T) {
	runner := newCountingRunner()
	w := New(afero.NewMemMapFs(), "/src", runner, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.performSync(ctx)

	assert.Zero(t, runner.calls.Load())
}

type excludeSet map[string]bool

func (e excludeSet) IsExcluded(dir string) bool { return e[dir] }

func TestStart_SyncsOnChanges(t *testing.T) {
	root := t.TempDir()
	excluded := filepath.Join(root, "cache")
	require.NoError(t, os.Mkdir(excluded, 0o755))

	runner := newCountingRunner()
	w := New(afero.NewOsFs(), root, runner, testLogger(),
		WithDebounce(20*time.Millisecond),
		WithExcluder(excludeSet{excluded: true}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()

	waitFor(t, runner.runs, "initial sync")

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	waitFor(t, runner.runs, "sync after file creation")

	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	waitFor(t, runner.runs, "sync after directory creation")

	require.NoError(t, os.WriteFile(filepath.Join(sub, "b.txt"), []byte("b"), 0o644))
	waitFor(t, runner.runs, "sync after change in new directory")

	before := runner.calls.Load()
	require.NoError(t, os.WriteFile(filepath.Join(excluded, "ignored.txt"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, before, runner.calls.Load(), "changes inside excluded directories are not watched")

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestStart_MissingRoot(t *testing.T) {
	runner := newCountingRunner()
	w := New(afero.NewOsFs(), filepath.Join(t.TempDir(), "missing"), runner, testLogger())

	err := w.Start(context.Background())
	assert.Error(t, err)
	assert.Zero(t, runner.calls.Load())
}
