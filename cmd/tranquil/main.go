package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/schaermu/tranquil/internal/config"
	"github.com/schaermu/tranquil/internal/copier"
	"github.com/schaermu/tranquil/internal/exclude"
	"github.com/schaermu/tranquil/internal/journal"
	"github.com/schaermu/tranquil/internal/lister"
	"github.com/schaermu/tranquil/internal/sync"
	"github.com/schaermu/tranquil/internal/watch"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	// Root overrides shared by sync, plan and watch
	sourceDir string
	destDir   string
	workers   int

	dryRun       bool
	assumeYes    bool
	jsonOutput   bool
	debounce     time.Duration
	historyLimit int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tranquil",
	Short: "Keep a backup copy of a directory tree up to date",
	Long: `tranquil makes a destination directory tree contain everything from a source
tree. Entries missing at the destination, or older there than in the source,
are copied. Nothing is ever deleted at the destination and copies that were
modified more recently than the source are left alone.

It can run once (sync), preview a run (plan) or keep watching the source
and sync after every burst of changes (watch).`,
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy new and changed entries from source to destination",
	Long: `Sync lists both trees, shows how much needs to be copied and asks for
confirmation before copying. Entries that fail to copy are reported at the end
and make the command exit with a non-zero status.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show every entry a sync would copy",
	Args:  cobra.NoArgs,
	RunE:  runPlan,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync now and again whenever the source changes",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "tranquil %s\n", version)
		_, _ = fmt.Fprintf(out, "  commit: %s\n", commit)
		_, _ = fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/tranquil/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	for _, cmd := range []*cobra.Command{syncCmd, planCmd, watchCmd} {
		cmd.Flags().StringVar(&sourceDir, "source", "", "source directory (overrides paths.source)")
		cmd.Flags().StringVar(&destDir, "destination", "", "destination directory (overrides paths.destination)")
	}
	for _, cmd := range []*cobra.Command{syncCmd, watchCmd} {
		cmd.Flags().IntVar(&workers, "workers", 1, "number of files copied concurrently (overrides sync.workers)")
	}

	// Sync command flags
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be copied without making changes")
	syncCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "copy without asking for confirmation")
	syncCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the run report as JSON")

	// Watch command flags
	watchCmd.Flags().DurationVar(&debounce, "debounce", 0, "quiet period before a sync starts (overrides watch.debounce)")

	// History command flags
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to list (0 lists all)")

	// Add commands
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(excludeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadSyncConfig(cmd, logger)
	if err != nil {
		return err
	}

	opts := []sync.Option{sync.WithDryRun(dryRun)}
	if !assumeYes && !dryRun {
		opts = append(opts, sync.WithConfirm(promptConfirm(cmd.InOrStdin(), cmd.OutOrStdout())))
	}

	engine, closeJournal := buildEngine(cfg, logger, opts...)
	defer closeJournal()

	out := cmd.OutOrStdout()
	report, err := engine.Run(ctx)
	if errors.Is(err, sync.ErrAborted) {
		_, _ = fmt.Fprintln(out, "Backup aborted, nothing was copied.")
		return nil
	}
	if err != nil {
		logger.Error("sync failed", "error", err)
		return err
	}

	if jsonOutput {
		if err := printJSON(out, report); err != nil {
			return err
		}
	} else {
		printReport(out, report)
	}

	if !report.OK() {
		return fmt.Errorf("%d of %d items were not copied", report.Failed+report.Skipped, report.Summary.Items)
	}
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadSyncConfig(cmd, logger)
	if err != nil {
		return err
	}

	engine, closeJournal := buildEngine(cfg, logger)
	defer closeJournal()

	preview, err := engine.Plan(ctx)
	if err != nil {
		logger.Error("planning failed", "error", err)
		return err
	}

	printPlan(cmd.OutOrStdout(), preview)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadSyncConfig(cmd, logger)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("debounce") {
		cfg.Watch.Debounce = debounce
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	engine, closeJournal := buildEngine(cfg, logger)
	defer closeJournal()

	fsys := afero.NewOsFs()
	w := watch.New(fsys, cfg.Paths.Source, engine, logger,
		watch.WithDebounce(cfg.Watch.Debounce),
		watch.WithExcluder(exclude.Open(fsys, cfg.ExclusionsPath(), logger)))

	return w.Start(ctx)
}

// buildEngine wires the sync engine from cfg. The returned func closes the
// journal. A journal that cannot be opened disables run recording only.
func buildEngine(cfg *config.Config, logger *slog.Logger, opts ...sync.Option) (*sync.Engine, func()) {
	fsys := afero.NewOsFs()
	order := cfg.Order()

	excludes := exclude.Open(fsys, cfg.ExclusionsPath(), logger)
	l := lister.New(fsys, logger,
		lister.WithExcluder(excludes),
		lister.WithReservedNames(cfg.Sync.ReservedNames),
		lister.WithOrder(order))
	c := copier.New(fsys, logger,
		copier.WithWorkers(cfg.Sync.Workers),
		copier.WithOrder(order))

	closeFn := func() {}
	j, err := journal.Open(cfg.JournalPath())
	if err != nil {
		logger.Warn("run journal unavailable, runs will not be recorded", "path", cfg.JournalPath(), "error", err)
	} else {
		opts = append(opts, sync.WithJournal(j))
		closeFn = func() {
			if err := j.Close(); err != nil {
				logger.Warn("failed to close run journal", "error", err)
			}
		}
	}

	return sync.NewEngine(cfg.Paths.Source, cfg.Paths.Destination, l, c, logger, opts...), closeFn
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Logs go to stderr so that reports and prompts own stdout
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// loadConfig reads --config, or the default file when it exists. Paths are
// not validated here.
func loadConfig(logger *slog.Logger) (*config.Config, error) {
	if cfgFile == "" {
		logger.Debug("loading configuration", "path", config.DefaultPath)
		cfg, err := config.LoadDefault()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}

	logger.Info("loading configuration", "path", cfgFile)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// loadSyncConfig loads the configuration, applies the root and worker flags
// and validates the result.
func loadSyncConfig(cmd *cobra.Command, logger *slog.Logger) (*config.Config, error) {
	cfg, err := loadConfig(logger)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.SetSource(sourceDir)
	}
	if flags.Changed("destination") {
		cfg.SetDestination(destDir)
	}
	if flags.Lookup("workers") != nil && flags.Changed("workers") {
		cfg.Sync.Workers = workers
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Debug("configuration loaded",
		"source", cfg.Paths.Source,
		"destination", cfg.Paths.Destination,
		"state_dir", cfg.Paths.StateDir,
		"case_sensitivity", cfg.Sync.CaseSensitivity,
		"workers", cfg.Sync.Workers)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
