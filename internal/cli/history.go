package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mailward/redeploy/internal/journal"
	"github.com/mailward/redeploy/internal/pipeline"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded deployment runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		stateDir, err := cfg.Deploy.ResolveStateDir()
		if err != nil {
			return err
		}
		jnl, err := journal.Open(journal.DefaultPath(stateDir))
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer jnl.Close()
		if err := jnl.Migrate(); err != nil {
			return fmt.Errorf("migrate journal: %w", err)
		}

		runs, err := jnl.ListRuns(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-32s %-10s %-12s %-20s %s\n", "RUN", "TARGET", "STATUS", "STARTED", "REASON")
		fmt.Fprintf(w, "%-32s %-10s %-12s %-20s %s\n",
			strings.Repeat("-", 32),
			strings.Repeat("-", 10),
			strings.Repeat("-", 12),
			strings.Repeat("-", 20),
			strings.Repeat("-", 6))
		for _, r := range runs {
			fmt.Fprintf(w, "%-32s %-10s %-12s %-20s %s\n",
				r.RunID, r.Target, r.Status, r.StartedAt, r.AbortReason)
		}
		return nil
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete archived run data, keeping the newest runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, _ := cmd.Flags().GetInt("keep")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		stateDir, err := cfg.Deploy.ResolveStateDir()
		if err != nil {
			return err
		}
		store, err := pipeline.DefaultStore(stateDir)
		if err != nil {
			return fmt.Errorf("open run store: %w", err)
		}

		removed, err := store.Prune(keep)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d run(s).\n", len(removed))
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum runs to list (0 = all)")
	historyPruneCmd.Flags().Int("keep", 20, "Number of newest runs to keep")
	historyCmd.AddCommand(historyPruneCmd)
}
