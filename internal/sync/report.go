package sync

import (
	"time"

	"github.com/schaermu/tranquil/internal/copier"
	"github.com/schaermu/tranquil/internal/delta"
	"github.com/schaermu/tranquil/internal/journal"
)

// Report describes a finished run
type Report struct {
	RunID       int64          `json:"run_id,omitempty"`
	Source      string         `json:"source"`
	Destination string         `json:"destination"`
	Status      journal.Status `json:"status"`
	DryRun      bool           `json:"dry_run"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`

	Scanned ScanStats     `json:"scanned"`
	Summary delta.Summary `json:"summary"`

	Copied  int   `json:"copied"`
	Failed  int   `json:"failed"`
	Skipped int   `json:"skipped"`
	Bytes   int64 `json:"bytes"`

	// DestNewer lists relative paths whose destination copy is newer
	DestNewer []string `json:"dest_newer,omitempty"`
	// Unreadable lists subtrees left out of a listing
	Unreadable []string  `json:"unreadable,omitempty"`
	Failures   []Failure `json:"failures,omitempty"`
}

// ScanStats counts what both listings contained
type ScanStats struct {
	SourceFiles            int `json:"source_files"`
	SourceDirectories      int `json:"source_directories"`
	DestinationFiles       int `json:"destination_files"`
	DestinationDirectories int `json:"destination_directories"`
	Excluded               int `json:"excluded"`
}

// Failure is an item that was not copied
type Failure struct {
	Path        string `json:"path"`
	Destination string `json:"destination"`
	Attempts    int    `json:"attempts"`
	Error       string `json:"error"`
}

// OK reports whether every queued item was copied
func (r *Report) OK() bool {
	return r.Failed == 0 && r.Skipped == 0
}

func (r *Report) applyResult(res *copier.Result) {
	r.Copied = res.Copied
	r.Failed = res.Failed
	r.Skipped = res.Skipped
	r.Bytes = res.Bytes

	for _, it := range res.Failures() {
		f := Failure{
			Path:        it.RelativePath,
			Destination: it.Destination,
			Attempts:    it.Attempts,
		}
		if it.Err != nil {
			f.Error = it.Err.Error()
		}
		r.Failures = append(r.Failures, f)
	}
}

// journalRun converts the report into a journal record
func (r *Report) journalRun(res *copier.Result) journal.Run {
	run := journal.Run{
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Source:      r.Source,
		Destination: r.Destination,
		Status:      r.Status,
		Queued:      r.Summary.Items,
		Copied:      r.Copied,
		Failed:      r.Failed,
		Skipped:     r.Skipped,
		Bytes:       r.Bytes,
	}
	if res == nil {
		return run
	}

	run.Items = make([]journal.Item, 0, len(res.Items))
	for _, it := range res.Items {
		item := journal.Item{
			RelativePath: it.RelativePath,
			IsDir:        it.IsDir,
			Disposition:  it.Disposition.String(),
			Outcome:      string(it.Outcome),
			Attempts:     it.Attempts,
			Size:         it.Size,
		}
		if it.Err != nil {
			item.Error = it.Err.Error()
		}
		run.Items = append(run.Items, item)
	}
	return run
}
