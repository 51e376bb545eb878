package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vaultsearch/vaultsearch/internal/dispatch"
	"github.com/vaultsearch/vaultsearch/internal/search"
)

type searchOptions struct {
	topN     int
	jsonOut  bool
	filesOut bool
	fast     bool
	minScore float64
}

func addSearchFlags(cmd *cobra.Command, opts *searchOptions) {
	cmd.Flags().IntVarP(&opts.topN, "top-n", "n", search.DefaultTopN, "Maximum number of results")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Emit results as JSON")
	cmd.Flags().BoolVar(&opts.filesOut, "files", false, "Print matching file paths only")
	cmd.Flags().BoolVar(&opts.fast, "fast", false, "Skip the rerank stage")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "Drop results scoring below this value")
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the vault",
		Long: `Search the vault with hybrid retrieval.

Examples:
  vaultsearch search "oauth client setup"
  vaultsearch search "standup notes" -n 5 --fast
  vaultsearch search "incident postmortem" --json
  vaultsearch search "deploy" --files --min-score 0.5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, args, opts)
		},
	}
	addSearchFlags(cmd, &opts)
	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, args []string, opts searchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, cleanup := setupLogging(cfg, false)
	defer cleanup()

	query := strings.Join(args, " ")
	hits, viaDaemon, err := dispatch.New(cfg, logger).Search(ctx, search.Query{
		Text:     query,
		TopN:     opts.topN,
		Fast:     opts.fast,
		MinScore: opts.minScore,
	})
	if err != nil {
		return err
	}
	logger.Info("search completed", "query", query, "hits", len(hits), "daemon", viaDaemon)

	out := cmd.OutOrStdout()
	switch {
	case opts.jsonOut:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	case opts.filesOut:
		for _, h := range hits {
			fmt.Fprintln(out, h.Path)
		}
		return nil
	default:
		if len(hits) == 0 {
			fmt.Fprintln(out, "No results.")
			return nil
		}
		for _, h := range hits {
			fmt.Fprintf(out, "%d. %s (%s) [%.2f]\n", h.Rank, h.Title, h.Path, h.Score)
			if h.Preview != "" {
				fmt.Fprintf(out, "   %s\n", h.Preview)
			}
		}
		return nil
	}
}
