package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultsearch/vaultsearch/internal/config"
	"github.com/vaultsearch/vaultsearch/internal/daemon"
	"github.com/vaultsearch/vaultsearch/internal/index"
	"github.com/vaultsearch/vaultsearch/internal/provider"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Rebuild the search index from scratch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, cleanup := setupLogging(cfg, false)
			defer cleanup()

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

			builder := index.NewBuilder(store, cfg, prov, logger)
			stats, err := builder.Build(cmd.Context())
			if err != nil {
				return err
			}
			sweepUnlessDaemon(cfg, store)

			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d documents (%d chunks) in %s\n",
				stats.Documents, stats.Chunks, stats.Duration.Round(time.Millisecond))
			notifyDaemon(cmd.Context(), cfg)
			return nil
		},
	}
}

// sweepUnlessDaemon removes superseded snapshot directories, but only
// when no daemon may still be serving from one.
func sweepUnlessDaemon(cfg *config.Config, store *index.Store) {
	client := daemon.NewClient(cfg.SocketPath(), cfg.Daemon.ProbeTimeout)
	if client.IsRunning() {
		return
	}
	store.SweepOld()
}

// notifyDaemon asks a running daemon to pick up the new snapshot.
func notifyDaemon(ctx context.Context, cfg *config.Config) {
	client := daemon.NewClient(cfg.SocketPath(), cfg.Daemon.ProbeTimeout)
	if !client.IsRunning() {
		return
	}
	refreshCtx, cancel := context.WithTimeout(ctx, cfg.Daemon.RequestTimeout)
	defer cancel()
	_, _ = client.Update(refreshCtx)
}
