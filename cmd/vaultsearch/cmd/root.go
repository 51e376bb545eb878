// Package cmd provides the vaultsearch CLI commands.
package cmd

import (
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vaultsearch/vaultsearch/internal/config"
	"github.com/vaultsearch/vaultsearch/internal/logging"
	"github.com/vaultsearch/vaultsearch/pkg/version"
)

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd creates the root command. Running it with a bare query
// searches, so `vaultsearch "deploy checklist"` just works.
func NewRootCmd() *cobra.Command {
	var opts searchOptions

	root := &cobra.Command{
		Use:   "vaultsearch [query]",
		Short: "Hybrid search over a local markdown vault",
		Long: `vaultsearch indexes a markdown vault and answers queries with
hybrid retrieval: keyword matching and semantic similarity, fused and
optionally reranked.

A background daemon keeps the index warm; without one, queries fall
back to a one-shot in-process search with identical results.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runSearch(cmd.Context(), cmd, args, opts)
		},
	}
	root.SetVersionTemplate("vaultsearch version {{.Version}}\n")
	addSearchFlags(root, &opts)

	root.AddCommand(newSearchCmd())
	root.AddCommand(newIndexCmd())
	root.AddCommand(newUpdateCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newConfigCmd())

	return root
}

// loadConfig loads the effective configuration from the data directory
// and environment.
func loadConfig() (*config.Config, error) {
	return config.Load(config.DefaultDataDir())
}

// setupLogging directs logs to the data-dir log file. CLI output stays
// on stdout; stderr is reserved for errors.
func setupLogging(cfg *config.Config, toStderr bool) (*slog.Logger, func()) {
	logCfg := logging.DefaultConfig(cfg.LogLevel, filepath.Join(cfg.LogDir(), "vaultsearch.log"))
	logCfg.WriteToStderr = toStderr
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		logger, cleanup, _ = logging.Setup(logging.Config{Level: cfg.LogLevel})
	}
	return logger, cleanup
}
