package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mailward/redeploy/internal/command"
	"github.com/mailward/redeploy/internal/orchestrator"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the resolved stage list without executing anything",
	Args:  cobra.NoArgs,
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

		o := orchestrator.New(&command.ExecRunner{}, nil, nil, d, stateDir)
		steps, err := o.Plan()
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-4s %-24s %-8s %-9s %s\n", "#", "STAGE", "KIND", "TOLERANT", "COMMAND")
		fmt.Fprintf(w, "%-4s %-24s %-8s %-9s %s\n",
			strings.Repeat("-", 4),
			strings.Repeat("-", 24),
			strings.Repeat("-", 8),
			strings.Repeat("-", 9),
			strings.Repeat("-", 7))
		for i, s := range steps {
			tolerant := "no"
			if s.ContinueOnFailure {
				tolerant = "yes"
			}
			detail := strings.Join(s.Argv, " ")
			if detail == "" {
				detail = "(in-process)"
			}
			if s.Dir != "" {
				detail += "  [" + s.Dir + "]"
			}
			fmt.Fprintf(w, "%-4d %-24s %-8s %-9s %s\n", i+1, s.Name, s.Kind, tolerant, detail)
		}
		return nil
	},
}
