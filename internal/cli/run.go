package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mailward/redeploy/internal/command"
	"github.com/mailward/redeploy/internal/journal"
	"github.com/mailward/redeploy/internal/orchestrator"
	"github.com/mailward/redeploy/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the full redeploy pipeline",
	Long: `Execute the full redeploy pipeline against the configured target.

The run takes the target lock for its whole duration; a second run against the
same target waits for lock_wait, then fails. Interrupting the process kills the
in-flight command and aborts the run with reason "cancelled".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d := &cfg.Deploy

		stateDir, err := d.ResolveStateDir()
		if err != nil {
			return err
		}
		store, err := pipeline.DefaultStore(stateDir)
		if err != nil {
			return fmt.Errorf("open run store: %w", err)
		}

		jnl, err := journal.Open(journal.DefaultPath(stateDir))
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer jnl.Close()
		if err := jnl.Migrate(); err != nil {
			return fmt.Errorf("migrate journal: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		o := orchestrator.New(&command.ExecRunner{}, store, jnl, d, stateDir)
		o.SetProgress(cmd.ErrOrStderr())

		run, err := o.Execute(ctx)
		if err != nil {
			return err
		}
		if run.Aborted {
			// The reason goes to stderr and the process exits 1, so
			// calling automation can detect the failed deploy.
			return errors.New(run.AbortReason)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run %s succeeded (%d stages)\n", run.ID, len(run.Results))
		return nil
	},
}
