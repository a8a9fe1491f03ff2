package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailward/redeploy/internal/pipeline"
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show the most recent run (or a specific run) in detail",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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

		var run *pipeline.Run
		if len(args) == 1 {
			run, err = store.Get(args[0])
			if err != nil {
				return err
			}
		} else {
			run, err = store.Latest()
			if err != nil {
				return err
			}
			if run == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Run:     %s\n", run.ID)
		fmt.Fprintf(w, "Target:  %s (service %s)\n", run.Target, run.Service)
		fmt.Fprintf(w, "Status:  %s\n", run.Status)
		if run.Aborted {
			fmt.Fprintf(w, "Reason:  %s\n", run.AbortReason)
		}
		fmt.Fprintf(w, "Started: %s\n", run.StartedAt.Format("2006-01-02 15:04:05 MST"))
		if !run.FinishedAt.IsZero() {
			fmt.Fprintf(w, "Took:    %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
		}

		if len(run.Results) == 0 {
			return nil
		}
		fmt.Fprintf(w, "\n%-24s %-10s %-10s %s\n", "STAGE", "STATUS", "DURATION", "NOTE")
		for _, res := range run.Results {
			fmt.Fprintf(w, "%-24s %-10s %-10s %s\n",
				res.Name, res.Status, res.Duration().Round(time.Millisecond).String(), res.Note)
		}
		return nil
	},
}
