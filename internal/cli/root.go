package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mailward/redeploy/internal/config"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "redeploy",
	Short: "redeploy — a fail-closed deployment pipeline for a supervised service",
	Long: `redeploy drives the full redeploy of a long-running service: stop, update
the checkout, rebuild frontend and backend, apply database migrations behind a
validation gate, repair signing-key permissions, and restart.

The pipeline is strictly sequential and aborts on the first fatal failure; an
aborted run exits nonzero with the reason on stderr. Runs are archived under
~/.redeploy/ (SQLite journal plus per-run JSON and raw stage output).`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to redeploy.yaml (default: ./redeploy.yaml, ~/.redeploy/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(smokeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig loads and validates the deployment config from --config
// or the default search path.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			fmt.Println("config:", e.Error())
		}
		return nil, fmt.Errorf("config has %d validation error(s)", len(errs))
	}
	return cfg, nil
}
