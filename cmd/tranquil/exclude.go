package main

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/schaermu/tranquil/internal/exclude"
)

var excludeCmd = &cobra.Command{
	Use:   "exclude",
	Short: "Manage directories left out of every sync",
	Long: `Excluded directories are skipped, together with everything below them,
when listing either tree. The list is stored as one absolute path per line in
<state_dir>/exclusions.`,
}

var excludeAddCmd = &cobra.Command{
	Use:   "add DIR...",
	Short: "Exclude existing directories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openExclusions()
		if err != nil {
			return err
		}

		var failed int
		for _, dir := range args {
			stored, err := store.Add(dir)
			if errors.Is(err, exclude.ErrNotDirectory) {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s is not an existing directory\n", dir)
				failed++
				continue
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "excluded %s\n", stored)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d directories could not be excluded", failed, len(args))
		}
		return nil
	},
}

var excludeRemoveCmd = &cobra.Command{
	Use:   "remove DIR...",
	Short: "Stop excluding directories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openExclusions()
		if err != nil {
			return err
		}

		for _, dir := range args {
			removed, err := store.Remove(dir)
			if err != nil {
				return err
			}
			if removed {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", dir)
			} else {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s was not excluded\n", dir)
			}
		}
		return nil
	},
}

var excludeListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print excluded directories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openExclusions()
		if err != nil {
			return err
		}

		paths := store.List()
		if len(paths) == 0 {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No directories are excluded.")
			return nil
		}
		for _, p := range paths {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

var excludePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop excluded paths that are no longer directories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openExclusions()
		if err != nil {
			return err
		}

		dropped, err := store.Prune()
		if err != nil {
			return err
		}
		for _, p := range dropped {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "pruned %s\n", p)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d entries pruned, %d remaining\n", len(dropped), store.Len())
		return nil
	},
}

func init() {
	excludeCmd.AddCommand(excludeAddCmd)
	excludeCmd.AddCommand(excludeRemoveCmd)
	excludeCmd.AddCommand(excludeListCmd)
	excludeCmd.AddCommand(excludePruneCmd)
}

func openExclusions() (*exclude.Store, error) {
	logger := setupLogger()
	cfg, err := loadConfig(logger)
	if err != nil {
		return nil, err
	}
	return exclude.Open(afero.NewOsFs(), cfg.ExclusionsPath(), logger), nil
}
