package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultsearch/vaultsearch/internal/daemon"
	"github.com/vaultsearch/vaultsearch/internal/errors"
	"github.com/vaultsearch/vaultsearch/internal/index"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and index status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			client := daemon.NewClient(cfg.SocketPath(), cfg.Daemon.ProbeTimeout)
			if client.IsRunning() {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Daemon:    %s (pid %d, up %s)\n", status.State, status.PID, status.Uptime)
				fmt.Fprintf(out, "Vault:     %s\n", status.VaultPath)
				fmt.Fprintf(out, "Index:     %d documents, %d chunks\n", status.Documents, status.Chunks)
				fmt.Fprintf(out, "Model:     %s\n", status.Model)
				if status.LastRefresh != "" {
					fmt.Fprintf(out, "Refreshed: %s (every %s)\n", status.LastRefresh, status.RefreshEvery)
				} else {
					fmt.Fprintf(out, "Refreshed: every %s\n", status.RefreshEvery)
				}
				return nil
			}

			fmt.Fprintln(out, "Daemon:    not running")
			fmt.Fprintf(out, "Vault:     %s\n", cfg.VaultPath)

			store, err := index.NewStore(cfg.IndexDir())
			if err != nil {
				return err
			}
			snap, err := store.Load()
			if err != nil {
				if errors.IsKind(err, errors.KindIndexNotFound) {
					fmt.Fprintln(out, "Index:     none (run 'vaultsearch index')")
					return nil
				}
				return err
			}
			defer snap.Close()

			fmt.Fprintf(out, "Index:     %d documents, %d chunks\n",
				snap.Manifest.DocumentCount, snap.Manifest.ChunkCount)
			fmt.Fprintf(out, "Model:     %s\n", snap.Manifest.EmbeddingModel)
			fmt.Fprintf(out, "Built:     %s\n", snap.Manifest.BuiltAt.Local().Format(time.RFC1123))
			return nil
		},
	}
}
