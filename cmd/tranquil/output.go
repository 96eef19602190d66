package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/schaermu/tranquil/internal/sync"
)

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// promptConfirm asks on out and reads the answer from in. Anything but y or
// yes declines.
func promptConfirm(in io.Reader, out io.Writer) sync.ConfirmFunc {
	reader := bufio.NewReader(in)
	return func(_ context.Context, p *sync.Preview) (bool, error) {
		printSummary(out, p)
		_, _ = fmt.Fprint(out, "Start the backup now? [y/N] ")

		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	}
}

func printSummary(out io.Writer, p *sync.Preview) {
	s := p.Plan.Summary
	_, _ = fmt.Fprintf(out, "Source:      %s (%d files, %d directories)\n",
		p.Source.Root, p.Source.Files, p.Source.Directories)
	_, _ = fmt.Fprintf(out, "Destination: %s (%d files, %d directories)\n",
		p.Destination.Root, p.Destination.Files, p.Destination.Directories)
	_, _ = fmt.Fprintf(out, "To copy:     %d items, %s (%d missing, %d stale)\n",
		s.Items, formatBytes(s.Bytes), s.Missing, s.Stale)
	if s.DestNewer > 0 {
		_, _ = fmt.Fprintf(out, "Kept:        %d newer at destination\n", s.DestNewer)
	}
}

func printPlan(out io.Writer, p *sync.Preview) {
	printSummary(out, p)
	if !p.Plan.Required() {
		_, _ = fmt.Fprintln(out, "Backup not required.")
		return
	}

	_, _ = fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "REASON\tSIZE\tPATH")
	for _, it := range p.Plan.Queue.Items() {
		size := "-"
		path := it.Entry.RelativePath
		if it.Entry.IsDir {
			path += "/"
		} else {
			size = formatBytes(it.Entry.Size)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", it.Disposition, size, path)
	}
	_ = tw.Flush()

	for _, d := range p.Plan.DestNewer {
		_, _ = fmt.Fprintf(out, "newer at destination, kept: %s\n", d.RelativePath)
	}
}

func printReport(out io.Writer, r *sync.Report) {
	switch {
	case r.Summary.Items == 0:
		_, _ = fmt.Fprintln(out, "Backup not required.")
	case r.DryRun:
		_, _ = fmt.Fprintf(out, "Dry run: %d items (%s) would be copied.\n", r.Summary.Items, formatBytes(r.Summary.Bytes))
	default:
		_, _ = fmt.Fprintf(out, "Copied %d of %d items (%s) in %s.\n",
			r.Copied, r.Summary.Items, formatBytes(r.Bytes), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}

	for _, path := range r.DestNewer {
		_, _ = fmt.Fprintf(out, "newer at destination, kept: %s\n", path)
	}
	for _, path := range r.Unreadable {
		_, _ = fmt.Fprintf(out, "could not read, skipped: %s\n", path)
	}
	if len(r.Failures) > 0 {
		_, _ = fmt.Fprintf(out, "%d items were not copied:\n", len(r.Failures))
		for _, f := range r.Failures {
			_, _ = fmt.Fprintf(out, "  %s: %s\n", f.Path, f.Error)
		}
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}
