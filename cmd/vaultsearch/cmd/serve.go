package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vaultsearch/vaultsearch/internal/daemon"
	"github.com/vaultsearch/vaultsearch/internal/provider"
	"github.com/vaultsearch/vaultsearch/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var foregroundLogs bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the search daemon in the foreground",
		Long: `Run the search daemon. It loads the index once, keeps it warm,
serves queries over a unix socket, and refreshes the index when the
vault changes or the refresh interval elapses.

Stop it with 'vaultsearch stop' or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, cleanup := setupLogging(cfg, foregroundLogs)
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			prov, err := provider.New(ctx, cfg.Provider, logger)
			if err != nil {
				return err
			}
			defer prov.Close()

			srv, err := daemon.NewServer(cfg, prov, logger)
			if err != nil {
				return err
			}

			w, err := watcher.New(cfg.VaultPath, cfg.ExcludeDirs, cfg.Daemon.WatchDebounce, func() {
				if _, err := srv.Refresh(ctx); err != nil {
					logger.Warn("watch-triggered refresh failed", "error", err)
				}
			}, logger)
			if err != nil {
				logger.Warn("file watching disabled", "error", err)
			} else {
				go func() { _ = w.Run(ctx) }()
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on %s\n", cfg.VaultPath, cfg.SocketPath())
			return srv.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&foregroundLogs, "verbose", false, "Mirror logs to stderr")
	return cmd
}
