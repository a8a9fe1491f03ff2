package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailward/redeploy/internal/smoke"
)

var smokeCmd = &cobra.Command{
	Use:   "smoke",
	Short: "Run the configured reachability probes",
	Long: `Run the configured reachability probes against the deployed service without
deploying anything. Exits nonzero if any probe fails.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s := cfg.Deploy.Smoke
		if len(s.Probes) == 0 {
			return fmt.Errorf("no smoke probes configured")
		}
		timeout, err := s.ParsedTimeout()
		if err != nil {
			return err
		}

		probes := make([]smoke.Probe, 0, len(s.Probes))
		for _, p := range s.Probes {
			probes = append(probes, smoke.Probe{Name: p.Name, Host: p.Host, Port: p.Port, Banner: p.Banner})
		}

		results := smoke.Run(cmd.Context(), probes, timeout)
		w := cmd.OutOrStdout()
		for _, r := range results {
			status := "PASS"
			detail := r.Banner
			if !r.OK {
				status = "FAIL"
				if r.Err != nil {
					detail = r.Err.Error()
				}
			}
			fmt.Fprintf(w, "[%s] %-16s %s:%d (%s) %s\n",
				status, r.Probe.Name, r.Probe.Host, r.Probe.Port,
				r.Latency.Round(time.Millisecond), detail)
		}

		if smoke.Failed(results) > 0 {
			return fmt.Errorf("%s", smoke.Summary(results))
		}
		return nil
	},
}
