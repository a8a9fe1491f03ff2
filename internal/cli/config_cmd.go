package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and scaffold the deployment config",
}

const starterConfig = `# redeploy deployment configuration.
# Commands are argv lists and are exec'd directly, never through a shell.
deploy:
  target: prod
  service: mail-api

  # step_timeout: 15m      # per-stage bound; omit for unbounded
  # lock_wait: 30s         # how long to wait for the target lock

  supervisor:
    stop: [pm2, stop, mail-api]
    restart: [pm2, restart, mail-api]
    save: [pm2, save]

  repo:
    dir: /var/www/mail
    fetch: [git, fetch, origin]
    reset: [git, reset, --hard, origin/main]

  frontend:
    dir: /var/www/mail/frontend
    install: [npm, ci]
    build: [npm, run, build]

  backend:
    dir: /var/www/mail/backend
    install: [npm, ci]
    build: [npm, run, build]

  assets:
    source_dir: /var/www/mail/frontend/dist
    dest_dir: /var/www/html

  migrations:
    dir: /var/www/mail/backend
    run: [npx, knex, migrate:latest]
    list: [npx, knex, migrate:list]
    marker: ".js"          # counted per line of the listing
    min_completed: 5
    # require: 20260801120000_add_dkim_keys.js

  keys:
    dir: /var/www/mail/backend/keys
    key_file: dkim-private.pem
    owner: deploy
    group: deploy
    dir_mode: "750"
    file_mode: "600"
    required: false        # missing key warns instead of aborting

  smoke:
    enabled: false
    timeout: 10s
    probes:
      - {name: mx, host: localhost, port: 25, banner: true}
      - {name: submission, host: localhost, port: 587, banner: true}
`

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented starter redeploy.yaml",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "redeploy.yaml"
		if cfgPath != "" {
			path = cfgPath
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s — edit it, then run `redeploy plan`.\n", path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the deployment config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Config is valid.")
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved config with defaults applied",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		_, _ = cmd.OutOrStdout().Write(data)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}
