package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vaultsearch/vaultsearch/internal/config"
	"github.com/vaultsearch/vaultsearch/internal/errors"
)

func newConfigCmd() *cobra.Command {
	var vaultPath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the configuration",
		Long: `Without flags, prints the effective configuration. With --vault,
points vaultsearch at a new vault directory and saves it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if vaultPath != "" {
				abs, err := filepath.Abs(vaultPath)
				if err != nil {
					return errors.Wrap(errors.KindConfig, "resolve vault path", err).WithPath(vaultPath)
				}
				cfg, err := config.Load(config.DefaultDataDir())
				if err != nil && !errors.IsKind(err, errors.KindConfig) {
					return err
				}
				if cfg == nil {
					cfg = config.New()
					cfg.SetDataDir(config.DefaultDataDir())
				}
				cfg.VaultPath = abs
				if err := cfg.Validate(); err != nil {
					return err
				}
				if err := cfg.Save(); err != nil {
					return err
				}
				fmt.Fprintf(out, "Vault set to %s\n", abs)
				fmt.Fprintln(out, "Run 'vaultsearch index' to build its index.")
				return nil
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return errors.Wrap(errors.KindInternal, "encode configuration", err)
			}
			fmt.Fprintf(out, "# %s\n", filepath.Join(cfg.DataDir(), "config.yaml"))
			fmt.Fprint(out, string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&vaultPath, "vault", "", "Set the vault directory")
	return cmd
}
