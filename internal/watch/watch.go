// Package watch re-runs a sync whenever the source tree changes.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/schaermu/tranquil/internal/lister"
	tranquil "github.com/schaermu/tranquil/internal/sync"
)

// DefaultDebounce is how long the tree must be quiet before a sync starts.
const DefaultDebounce = 2 * time.Second

// Runner performs one sync.
type Runner interface {
	Run(ctx context.Context) (*tranquil.Report, error)
}

// Watcher watches a source tree and keeps the destination in sync.
type Watcher struct {
	fs       afero.Fs
	root     string
	runner   Runner
	excluder lister.Excluder
	logger   *slog.Logger

	syncMu      sync.Mutex // guards syncRunning and syncPending
	syncRunning bool       // whether a sync is currently in progress
	syncPending bool       // whether another sync is needed after the current one
	debounce    *debouncer
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithClock sets the clock driving the debounce timer.
func WithClock(c clockwork.Clock) Option {
	return func(w *Watcher) { w.debounce.clock = c }
}

// WithDebounce sets the quiet period before a sync starts.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce.delay = d
		}
	}
}

// WithExcluder keeps excluded directories out of the watch set.
func WithExcluder(ex lister.Excluder) Option {
	return func(w *Watcher) { w.excluder = ex }
}

// New creates a Watcher for root. fsys is used to discover the directories to
// watch; events always come from the operating system.
func New(fsys afero.Fs, root string, runner Runner, logger *slog.Logger, opts ...Option) *Watcher {
	w := &Watcher{
		fs:     fsys,
		root:   root,
		runner: runner,
		logger: logger,
		debounce: &debouncer{
			clock: clockwork.NewRealClock(),
			delay: DefaultDebounce,
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start performs an initial sync, then syncs again after every burst of
// changes below the root until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			w.logger.Warn("failed to close file watcher", "error", err)
		}
	}()

	if err := w.addTree(watcher, w.root); err != nil {
		return err
	}

	w.logger.Info("performing initial sync before watching", "root", w.root)
	w.performSync(ctx)

	w.logger.Info("watching for changes", "root", w.root, "debounce", w.debounce.delay)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping watcher")
			w.debounce.stop()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				w.debounce.stop()
				return nil
			}
			w.handleEvent(watcher, event)
			w.debounce.trigger(func() { w.performSync(ctx) })

		case err, ok := <-watcher.Errors:
			if !ok {
				w.debounce.stop()
				return nil
			}
			// Overflows lose events; a sync catches up with whatever changed.
			w.logger.Warn("file watcher error", "error", err)
			w.debounce.trigger(func() { w.performSync(ctx) })
		}
	}
}

// handleEvent starts watching directories created below the root.
func (w *Watcher) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	w.logger.Debug("change detected", "path", event.Name, "op", event.Op.String())

	if !event.Has(fsnotify.Create) {
		return
	}
	info, err := w.fs.Stat(event.Name)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.addTree(watcher, event.Name); err != nil {
		w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
	}
}

// addTree adds dir and every directory below it. fsnotify does not watch
// recursively. Unreadable and excluded directories are left out.
func (w *Watcher) addTree(watcher *fsnotify.Watcher, dir string) error {
	return afero.Walk(w.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("failed to walk %s: %w", dir, err)
			}
			w.logger.Warn("cannot watch directory", "path", path, "error", err)
			return filepath.SkipDir
		}
		if !info.IsDir() {
			return nil
		}
		if path != w.root && w.excluder != nil && w.excluder.IsExcluded(path) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			if path == dir {
				return fmt.Errorf("failed to watch %q: %w", path, err)
			}
			w.logger.Warn("cannot watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// performSync runs a sync unless one is in progress, in which case a single
// re-run is queued.
func (w *Watcher) performSync(ctx context.Context) {
	w.syncMu.Lock()
	if w.syncRunning {
		w.syncPending = true
		w.syncMu.Unlock()
		w.logger.Info("sync already in progress, queuing pending re-run")
		return
	}
	w.syncRunning = true
	w.syncMu.Unlock()

	for {
		if ctx.Err() != nil {
			w.syncMu.Lock()
			w.syncRunning = false
			w.syncPending = false
			w.syncMu.Unlock()
			return
		}

		report, err := w.runner.Run(ctx)
		switch {
		case err != nil:
			w.logger.Error("sync failed", "error", err)
		case !report.OK():
			w.logger.Warn("sync finished with failures", "failed", report.Failed, "skipped", report.Skipped)
		default:
			w.logger.Info("sync completed", "status", report.Status, "copied", report.Copied)
		}

		w.syncMu.Lock()
		if !w.syncPending {
			w.syncRunning = false
			w.syncMu.Unlock()
			return
		}
		w.syncPending = false
		w.syncMu.Unlock()

		w.logger.Info("re-running sync due to pending request")
	}
}

// debouncer delays a callback until triggers stop arriving for delay
type debouncer struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	timer    clockwork.Timer
	delay    time.Duration
	callback func()
	stopped  bool
	running  sync.WaitGroup
}

// trigger schedules the callback to run after the debounce delay
func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = d.clock.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.stopped {
			d.mu.Unlock()
			return
		}
		cb := d.callback
		d.running.Add(1)
		d.mu.Unlock()
		defer d.running.Done()

		if cb != nil {
			cb()
		}
	})
}

// stop cancels a scheduled callback and waits for a running one to return
func (d *debouncer) stop() {
	d.mu.Lock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()

	d.running.Wait()
}
