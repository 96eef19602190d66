package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/schaermu/tranquil/internal/journal"
)

var historyCmd = &cobra.Command{
	Use:   "history [RUN_ID]",
	Short: "List recorded runs, or show the items of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}

	store, err := journal.Open(cfg.JournalPath())
	if err != nil {
		return fmt.Errorf("failed to open run journal: %w", err)
	}
	defer func() {
		_ = store.Close()
	}()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid run id %q", args[0])
		}
		run, err := store.Run(ctx, id)
		if err != nil {
			return err
		}
		printRun(out, run)
		return nil
	}

	runs, err := store.Runs(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tCOPIED\tFAILED\tSIZE\tSOURCE")
	for _, r := range runs {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%d/%d\t%d\t%s\t%s\n",
			r.ID, humanize.Time(r.StartedAt), r.Status, r.Copied, r.Queued, r.Failed,
			formatBytes(r.Bytes), r.Source)
	}
	return tw.Flush()
}

func printRun(out io.Writer, run journal.Run) {
	_, _ = fmt.Fprintf(out, "Run %d: %s\n", run.ID, run.Status)
	_, _ = fmt.Fprintf(out, "  %s -> %s\n", run.Source, run.Destination)
	_, _ = fmt.Fprintf(out, "  started %s, took %s\n",
		run.StartedAt.Format("2006-01-02 15:04:05"), run.FinishedAt.Sub(run.StartedAt))
	_, _ = fmt.Fprintf(out, "  copied %d of %d items (%s), %d failed, %d skipped\n",
		run.Copied, run.Queued, formatBytes(run.Bytes), run.Failed, run.Skipped)

	if len(run.Items) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "OUTCOME\tREASON\tATTEMPTS\tPATH\tERROR")
	for _, it := range run.Items {
		path := it.RelativePath
		if it.IsDir {
			path += "/"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", it.Outcome, it.Disposition, it.Attempts, path, it.Error)
	}
	_ = tw.Flush()
}
