package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mailward/redeploy/internal/journal"
	"github.com/mailward/redeploy/internal/pipeline"
	"github.com/mailward/redeploy/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local status API",
	Long: `Start a read-only JSON API on localhost exposing run history, per-run stage
results, and raw stage output. Deploys still only start from the CLI.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")

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

		jnl, err := journal.Open(journal.DefaultPath(stateDir))
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer jnl.Close()
		if err := jnl.Migrate(); err != nil {
			return fmt.Errorf("migrate journal: %w", err)
		}

		return web.NewServer(store, jnl, port).Start()
	},
}

func init() {
	serveCmd.Flags().Int("port", 8321, "Port to listen on")
}
