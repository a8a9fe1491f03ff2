package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mailward/redeploy/internal/keys"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage signing-key file permissions",
}

var keysRepairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Apply the configured ownership and modes to the key tree",
	Long: `Apply the configured ownership and modes to the signing-key tree, outside of
a pipeline run. Useful after provisioning new key material by hand.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		k := cfg.Deploy.Keys
		if k.Dir == "" {
			return fmt.Errorf("no keys.dir configured")
		}
		dirMode, err := k.ParsedDirMode()
		if err != nil {
			return err
		}
		fileMode, err := k.ParsedFileMode()
		if err != nil {
			return err
		}

		out, err := keys.Repair(keys.Spec{
			Dir:      k.Dir,
			KeyFile:  k.KeyFile,
			Owner:    k.Owner,
			Group:    k.Group,
			DirMode:  dirMode,
			FileMode: fileMode,
			Required: k.Required,
		})
		if err != nil {
			return err
		}
		if out.Warning != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", out.Warning)
		}
		if out.Applied {
			fmt.Fprintf(cmd.OutOrStdout(), "Repaired %s (key file present).\n", k.Dir)
		}
		return nil
	},
}

func init() {
	keysCmd.AddCommand(keysRepairCmd)
}
