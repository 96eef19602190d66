// Package copier reproduces queued source entries at the destination tree.
package copier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/schaermu/tranquil/internal/delta"
	"github.com/schaermu/tranquil/internal/entry"
)

// maxBatch bounds how many files are taken off the queue at once, so a
// cancelled run stops promptly.
const maxBatch = 64

// Outcome is the result of processing one queued item.
type Outcome string

const (
	// Copied means the first attempt succeeded.
	Copied Outcome = "copied"
	// Retried means the destination file was removed after a permission
	// error and the second attempt succeeded.
	Retried Outcome = "retried"
	// Failed means the item could not be copied.
	Failed Outcome = "failed"
	// Skipped means the run was cancelled before the item was attempted.
	Skipped Outcome = "skipped"
)

// ItemResult describes what happened to one queued item.
type ItemResult struct {
	Source       string
	Destination  string
	RelativePath string
	IsDir        bool
	Size         int64
	Disposition  entry.Disposition
	Outcome      Outcome
	Attempts     int
	Err          error
}

// Result is the outcome of draining a queue.
type Result struct {
	Items   []ItemResult
	Copied  int
	Failed  int
	Skipped int
	Bytes   int64
}

// OK reports whether every queued item was copied.
func (r *Result) OK() bool {
	return r.Failed == 0 && r.Skipped == 0
}

// Failures returns the items that were not copied.
func (r *Result) Failures() []ItemResult {
	var out []ItemResult
	for _, it := range r.Items {
		if it.Outcome == Failed || it.Outcome == Skipped {
			out = append(out, it)
		}
	}
	return out
}

func (r *Result) add(it ItemResult) {
	r.Items = append(r.Items, it)
	switch it.Outcome {
	case Copied, Retried:
		r.Copied++
		r.Bytes += it.Size
	case Failed:
		r.Failed++
	case Skipped:
		r.Skipped++
	}
}

// Copier copies entries between two roots on one filesystem.
type Copier struct {
	fs      afero.Fs
	logger  *slog.Logger
	workers int
	order   entry.Order
}

// Option configures a Copier.
type Option func(*Copier)

// WithWorkers sets how many files may be copied concurrently. Directories
// are always created one at a time, after every earlier item finished.
func WithWorkers(n int) Option {
	return func(c *Copier) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithOrder sets the path ordering, used to keep two items that map to the
// same destination on a case-folding filesystem out of the same batch.
func WithOrder(order entry.Order) Option {
	return func(c *Copier) { c.order = order }
}

// New creates a Copier working on fsys.
func New(fsys afero.Fs, logger *slog.Logger, opts ...Option) *Copier {
	c := &Copier{fs: fsys, logger: logger, workers: 1}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CopyAll drains q, copying every item from below sourceRoot to the same
// relative location below destinationRoot. A failing item never stops the
// run; once ctx is cancelled the remaining items are recorded as skipped.
func (c *Copier) CopyAll(ctx context.Context, sourceRoot, destinationRoot string, q *delta.Queue) *Result {
	result := &Result{Items: make([]ItemResult, 0, q.Len())}

	for q.Len() > 0 {
		if ctx.Err() != nil {
			c.skipRemaining(result, q, sourceRoot, destinationRoot)
			break
		}

		batch := c.nextBatch(q)
		for _, res := range c.runBatch(ctx, sourceRoot, destinationRoot, batch) {
			result.add(res)
		}
	}

	c.logger.Info("copy finished",
		"copied", result.Copied,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"bytes", result.Bytes)

	return result
}

// nextBatch pops either a single directory or a run of files whose
// destinations are pairwise distinct.
func (c *Copier) nextBatch(q *delta.Queue) []delta.Item {
	first, _ := q.Pop()
	batch := []delta.Item{first}
	if first.Entry.IsDir || c.workers <= 1 {
		return batch
	}

	seen := map[string]bool{c.order.Key(first.Entry.RelativePath): true}
	for len(batch) < maxBatch {
		next, ok := q.Peek()
		if !ok || next.Entry.IsDir {
			break
		}
		key := c.order.Key(next.Entry.RelativePath)
		if seen[key] {
			break
		}
		seen[key] = true
		_, _ = q.Pop()
		batch = append(batch, next)
	}
	return batch
}

func (c *Copier) runBatch(ctx context.Context, sourceRoot, destinationRoot string, batch []delta.Item) []ItemResult {
	results := make([]ItemResult, len(batch))
	if len(batch) == 1 {
		results[0] = c.copyItem(sourceRoot, destinationRoot, batch[0])
		return results
	}

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, it := range batch {
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = skippedResult(sourceRoot, destinationRoot, it)
				return nil
			}
			results[i] = c.copyItem(sourceRoot, destinationRoot, it)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Copier) skipRemaining(result *Result, q *delta.Queue, sourceRoot, destinationRoot string) {
	c.logger.Warn("copy cancelled, skipping remaining items", "remaining", q.Len())
	for {
		it, ok := q.Pop()
		if !ok {
			return
		}
		result.add(skippedResult(sourceRoot, destinationRoot, it))
	}
}

func skippedResult(sourceRoot, destinationRoot string, it delta.Item) ItemResult {
	res := newItemResult(it)
	res.Destination, _ = DestinationPath(sourceRoot, destinationRoot, it.Entry.FullPath)
	res.Outcome = Skipped
	res.Err = context.Canceled
	return res
}

func newItemResult(it delta.Item) ItemResult {
	return ItemResult{
		Source:       it.Entry.FullPath,
		RelativePath: it.Entry.RelativePath,
		IsDir:        it.Entry.IsDir,
		Size:         it.Entry.Size,
		Disposition:  it.Disposition,
	}
}

// copyItem applies the retry policy: a permission error on a file removes
// the destination file and tries once more; a permission error on a
// directory and every other error are recorded without retrying.
func (c *Copier) copyItem(sourceRoot, destinationRoot string, it delta.Item) ItemResult {
	res := newItemResult(it)
	sp := it.Entry.FullPath

	dp, err := DestinationPath(sourceRoot, destinationRoot, sp)
	if err != nil {
		res.Outcome = Failed
		res.Err = err
		c.logger.Error("copy failed", "source", sp, "error", err)
		return res
	}
	res.Destination = dp

	c.logger.Info("copying", "source", sp, "dest", dp, "reason", it.Disposition.String())

	res.Attempts = 1
	err = c.copyEntry(it.Entry, dp)
	if err == nil {
		res.Outcome = Copied
		c.logger.Debug("copied", "dest", dp)
		return res
	}

	if errors.Is(err, fs.ErrPermission) && !it.Entry.IsDir {
		c.logger.Warn("access denied, removing destination file and retrying",
			"source", sp, "dest", dp, "error", err)

		if rmErr := c.fs.Remove(dp); rmErr != nil && !os.IsNotExist(rmErr) {
			c.logger.Debug("could not remove destination file", "dest", dp, "error", rmErr)
		}

		res.Attempts = 2
		err = c.copyEntry(it.Entry, dp)
		if err == nil {
			res.Outcome = Retried
			c.logger.Info("copied after retry", "dest", dp)
			return res
		}
	}

	res.Outcome = Failed
	res.Err = err
	c.logger.Error("copy failed, moving on to next item",
		"source", sp, "dest", dp, "attempts", res.Attempts, "error", err)
	return res
}

func (c *Copier) copyEntry(e entry.Entry, dp string) error {
	if e.IsDir {
		return c.copyDir(e, dp)
	}
	return c.copyFile(e, dp)
}

// copyDir creates dp with the source permissions. The owner always keeps
// rwx so the directory's children can be written afterwards. An existing
// non-directory at dp is replaced.
func (c *Copier) copyDir(e entry.Entry, dp string) error {
	mode := e.Mode | 0o700

	info, err := c.fs.Stat(dp)
	switch {
	case err == nil && info.IsDir():
	case err == nil:
		if err := c.fs.Remove(dp); err != nil {
			return fmt.Errorf("failed to replace %s: %w", dp, err)
		}
		if err := c.fs.Mkdir(dp, mode); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	case os.IsNotExist(err):
		if err := c.fs.Mkdir(dp, mode); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	default:
		return fmt.Errorf("failed to stat %s: %w", dp, err)
	}

	if err := c.fs.Chmod(dp, mode); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := c.fs.Chtimes(dp, e.ModTime, e.ModTime); err != nil {
		return fmt.Errorf("failed to set modification time: %w", err)
	}
	return nil
}

// copyFile writes the source content to a temporary file next to dp,
// applies mode and modification time, then renames it over dp.
func (c *Copier) copyFile(e entry.Entry, dp string) error {
	src, err := c.fs.Open(e.FullPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = src.Close()
	}()

	tmp, err := afero.TempFile(c.fs, filepath.Dir(dp), ".tranquil-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = c.fs.Remove(tmpPath)
	}() // no-op after a successful rename

	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := c.fs.Chmod(tmpPath, e.Mode); err != nil {
		return err
	}
	if err := c.fs.Chtimes(tmpPath, e.ModTime, e.ModTime); err != nil {
		return err
	}

	return c.fs.Rename(tmpPath, dp)
}
