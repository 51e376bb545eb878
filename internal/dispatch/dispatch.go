// Package dispatch routes queries to the daemon when one is running
// and falls back to a one-shot in-process search when not. Both paths
// return the same result shape.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/vaultsearch/vaultsearch/internal/config"
	"github.com/vaultsearch/vaultsearch/internal/daemon"
	"github.com/vaultsearch/vaultsearch/internal/index"
	"github.com/vaultsearch/vaultsearch/internal/provider"
	"github.com/vaultsearch/vaultsearch/internal/search"
)

// Dispatcher picks the query path for one CLI invocation.
type Dispatcher struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates a dispatcher.
func New(cfg *config.Config, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{cfg: cfg, logger: logger}
}

// Search answers q via the daemon when it responds within the probe
// timeout, otherwise in-process. viaDaemon reports which path served
// the query.
func (d *Dispatcher) Search(ctx context.Context, q search.Query) (hits []search.Hit, viaDaemon bool, err error) {
	client := daemon.NewClient(d.cfg.SocketPath(), d.cfg.Daemon.ProbeTimeout)

	probeCtx, cancel := context.WithTimeout(ctx, d.cfg.Daemon.ProbeTimeout)
	probeErr := client.Ping(probeCtx)
	cancel()
	if probeErr == nil {
		full := daemon.NewClient(d.cfg.SocketPath(), d.cfg.Daemon.RequestTimeout)
		hits, err := full.Search(ctx, daemon.SearchParams{
			Query:    q.Text,
			TopN:     q.TopN,
			Fast:     q.Fast,
			MinScore: q.MinScore,
		})
		return hits, true, err
	}

	d.logger.Debug("daemon unavailable, searching in-process", "error", probeErr)
	hits, err = d.searchLocal(ctx, q)
	return hits, false, err
}

// searchLocal runs the query against the published snapshot without a
// daemon. The snapshot stays on disk; only the open handles close.
func (d *Dispatcher) searchLocal(ctx context.Context, q search.Query) ([]search.Hit, error) {
	prov, err := provider.New(ctx, d.cfg.Provider, d.logger)
	if err != nil {
		return nil, err
	}
	defer prov.Close()

	store, err := index.NewStore(d.cfg.IndexDir())
	if err != nil {
		return nil, err
	}
	snap, err := store.Load()
	if err != nil {
		return nil, err
	}
	defer snap.Close()

	engine := search.NewEngine(prov, d.logger,
		search.WithWeights(search.Weights{
			Lexical:  d.cfg.Search.LexicalWeight,
			Semantic: d.cfg.Search.SemanticWeight,
		}),
		search.WithRRFConstant(d.cfg.Search.RRFConstant))
	return engine.Search(ctx, snap, q)
}
