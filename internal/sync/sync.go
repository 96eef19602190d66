// Package sync wires listing, delta computation and copying into one run.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/schaermu/tranquil/internal/copier"
	"github.com/schaermu/tranquil/internal/delta"
	"github.com/schaermu/tranquil/internal/entry"
	"github.com/schaermu/tranquil/internal/journal"
	"github.com/schaermu/tranquil/internal/lister"
	"github.com/schaermu/tranquil/internal/pathutil"
)

var (
	// ErrAborted is returned when the confirmation hook declines the copy.
	ErrAborted = errors.New("sync aborted")
	// ErrOverlappingRoots is returned when one root lies inside the other.
	ErrOverlappingRoots = errors.New("source and destination overlap")
)

// Lister enumerates one root
type Lister interface {
	List(ctx context.Context, root string) (*lister.Listing, error)
	Order() entry.Order
}

// Copier drains a copy queue
type Copier interface {
	CopyAll(ctx context.Context, sourceRoot, destinationRoot string, q *delta.Queue) *copier.Result
}

// Journal records finished runs
type Journal interface {
	RecordRun(ctx context.Context, run journal.Run) (int64, error)
}

// ConfirmFunc is asked before anything is copied. Returning false aborts the
// run.
type ConfirmFunc func(ctx context.Context, p *Preview) (bool, error)

// Preview is the outcome of listing both roots and comparing them
type Preview struct {
	Source      *lister.Listing
	Destination *lister.Listing
	Plan        *delta.Plan
}

// Engine orchestrates the sync process
type Engine struct {
	source      string
	destination string
	lister      Lister
	copier      Copier
	journal     Journal
	confirm     ConfirmFunc
	clock       clockwork.Clock
	logger      *slog.Logger
	dryRun      bool
}

// Option configures an Engine
type Option func(*Engine)

// WithJournal records every run that reaches the copy decision.
func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithConfirm installs a hook that may veto copying.
func WithConfirm(fn ConfirmFunc) Option {
	return func(e *Engine) { e.confirm = fn }
}

// WithDryRun makes Run log the queue instead of copying it.
func WithDryRun(dryRun bool) Option {
	return func(e *Engine) { e.dryRun = dryRun }
}

// WithClock sets the clock used for run timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// NewEngine creates a new sync engine
func NewEngine(source, destination string, l Lister, c Copier, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		source:      source,
		destination: destination,
		lister:      l,
		copier:      c,
		clock:       clockwork.NewRealClock(),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan lists source and destination concurrently and computes the copy
// queue. Failing to enumerate either root is an error.
func (e *Engine) Plan(ctx context.Context) (*Preview, error) {
	preview := &Preview{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		listing, err := e.lister.List(gctx, e.source)
		if err != nil {
			return fmt.Errorf("failed to list source: %w", err)
		}
		preview.Source = listing
		return nil
	})
	g.Go(func() error {
		listing, err := e.lister.List(gctx, e.destination)
		if err != nil {
			return fmt.Errorf("failed to list destination: %w", err)
		}
		preview.Destination = listing
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	src, dst := preview.Source.Root, preview.Destination.Root
	if pathutil.IsWithin(src, dst) || pathutil.IsWithin(dst, src) {
		return nil, fmt.Errorf("%w: %s and %s", ErrOverlappingRoots, src, dst)
	}

	preview.Plan = delta.Compute(preview.Source.Entries, preview.Destination.Entries, e.lister.Order())

	s := preview.Plan.Summary
	e.logger.Info("sync plan",
		"queued", s.Items,
		"missing", s.Missing,
		"stale", s.Stale,
		"in_sync", s.InSync,
		"dest_newer", s.DestNewer,
		"extra", s.Extra,
		"bytes", s.Bytes)

	for _, d := range preview.Plan.DestNewer {
		e.logger.Warn("destination is newer than source, leaving it alone", "path", d.RelativePath)
	}

	return preview, nil
}

// Run executes the complete sync process. The returned report is non-nil
// whenever both roots could be listed, including when the confirmation hook
// aborts the run (ErrAborted).
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	e.logger.Info("starting sync",
		"source", e.source,
		"destination", e.destination,
		"dry_run", e.dryRun)

	report := &Report{
		Source:      e.source,
		Destination: e.destination,
		DryRun:      e.dryRun,
		StartedAt:   e.clock.Now(),
	}

	preview, err := e.Plan(ctx)
	if err != nil {
		return nil, err
	}
	e.describe(report, preview)

	if !preview.Plan.Required() {
		e.logger.Info("backup not required, destination is up to date")
		report.Status = journal.StatusUpToDate
		return e.finish(ctx, report, nil), nil
	}

	if e.dryRun {
		e.logPlanDetails(preview.Plan)
		e.logger.Info("dry-run complete, no changes applied")
		report.Status = journal.StatusOK
		report.FinishedAt = e.clock.Now()
		return report, nil
	}

	if e.confirm != nil {
		ok, err := e.confirm(ctx, preview)
		if err != nil {
			return nil, fmt.Errorf("failed to confirm sync: %w", err)
		}
		if !ok {
			e.logger.Info("sync aborted before copying")
			report.Status = journal.StatusAborted
			return e.finish(ctx, report, nil), ErrAborted
		}
	}

	result := e.copier.CopyAll(ctx, report.Source, report.Destination, preview.Plan.Queue)
	report.applyResult(result)

	switch {
	case ctx.Err() != nil:
		report.Status = journal.StatusAborted
	case result.OK():
		report.Status = journal.StatusOK
	default:
		report.Status = journal.StatusFailed
	}

	report = e.finish(ctx, report, result)
	if report.OK() {
		e.logger.Info("sync completed successfully", "copied", report.Copied, "bytes", report.Bytes)
	} else {
		e.logger.Warn("sync completed with failures", "failed", report.Failed, "skipped", report.Skipped)
	}
	return report, nil
}

// describe copies listing statistics into the report. Source and destination
// are replaced by their canonical roots.
func (e *Engine) describe(report *Report, preview *Preview) {
	report.Source = preview.Source.Root
	report.Destination = preview.Destination.Root
	report.Summary = preview.Plan.Summary
	report.Scanned = ScanStats{
		SourceFiles:            preview.Source.Files,
		SourceDirectories:      preview.Source.Directories,
		DestinationFiles:       preview.Destination.Files,
		DestinationDirectories: preview.Destination.Directories,
		Excluded:               preview.Source.Excluded + preview.Destination.Excluded,
	}
	for _, d := range preview.Plan.DestNewer {
		report.DestNewer = append(report.DestNewer, d.RelativePath)
	}
	for _, listing := range []*lister.Listing{preview.Source, preview.Destination} {
		for _, s := range listing.Skipped {
			report.Unreadable = append(report.Unreadable, s.Path)
		}
	}
}

// finish stamps the report and records it in the journal. A journal failure
// is logged, never returned.
func (e *Engine) finish(ctx context.Context, report *Report, result *copier.Result) *Report {
	report.FinishedAt = e.clock.Now()
	if e.journal == nil {
		return report
	}

	id, err := e.journal.RecordRun(context.WithoutCancel(ctx), report.journalRun(result))
	if err != nil {
		e.logger.Warn("failed to record run in journal", "error", err)
		return report
	}
	report.RunID = id
	return report
}

// logPlanDetails logs every queued item for dry-run
func (e *Engine) logPlanDetails(plan *delta.Plan) {
	for _, it := range plan.Queue.Items() {
		e.logger.Info("[dry-run] would copy",
			"path", it.Entry.RelativePath,
			"reason", it.Disposition.String(),
			"dir", it.Entry.IsDir)
	}
}
