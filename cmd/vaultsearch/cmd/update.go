package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultsearch/vaultsearch/internal/daemon"
	"github.com/vaultsearch/vaultsearch/internal/index"
	"github.com/vaultsearch/vaultsearch/internal/provider"
)

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Apply vault changes to the index incrementally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, cleanup := setupLogging(cfg, false)
			defer cleanup()
			out := cmd.OutOrStdout()

			// A running daemon owns the index; route the update
			// through it so the fresh snapshot is the one it serves.
			client := daemon.NewClient(cfg.SocketPath(), cfg.Daemon.ProbeTimeout)
			if client.IsRunning() {
				slow := daemon.NewClient(cfg.SocketPath(), cfg.Daemon.RequestTimeout)
				result, err := slow.Update(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Updated via daemon: +%d added, ~%d changed, -%d removed, %d unchanged\n",
					result.Added, result.Changed, result.Removed, result.Unchanged)
				return nil
			}

			prov, err := provider.New(cmd.Context(), cfg.Provider, logger)
			if err != nil {
				return err
			}
			defer prov.Close()

			store, err := index.NewStore(cfg.IndexDir())
			if err != nil {
				return err
			}
			store.SweepStaging()

			stats, err := index.NewBuilder(store, cfg, prov, logger).Update(cmd.Context())
			if err != nil {
				return err
			}
			store.SweepOld()

			fmt.Fprintf(out, "Updated: +%d added, ~%d changed, -%d removed, %d unchanged in %s\n",
				stats.Added, stats.Changed, stats.Removed, stats.Unchanged,
				stats.Duration.Round(time.Millisecond))
			if stats.Skipped > 0 {
				fmt.Fprintf(out, "Skipped %d documents (provider errors, see logs)\n", stats.Skipped)
			}
			return nil
		},
	}
}
