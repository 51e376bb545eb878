package provider

import (
	"context"
	"log/slog"
	"strings"

	"github.com/vaultsearch/vaultsearch/internal/config"
	"github.com/vaultsearch/vaultsearch/internal/errors"
)

// New builds the configured provider wrapped in an embedding cache.
//
// An empty provider name auto-detects: the HTTP provider is used when its
// server answers, otherwise the static provider takes over with a logged
// warning. Naming a provider explicitly makes its failure fatal instead.
func New(ctx context.Context, cfg config.ProviderConfig, logger *slog.Logger) (Provider, error) {
	inner, err := build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewCachedProvider(inner, cfg.CacheSize), nil
}

func build(ctx context.Context, cfg config.ProviderConfig, logger *slog.Logger) (Provider, error) {
	httpCfg := HTTPConfig{
		Endpoint:    cfg.Endpoint,
		Model:       cfg.Model,
		RerankModel: cfg.RerankModel,
		BatchSize:   cfg.BatchSize,
		Timeout:     cfg.Timeout,
	}

	switch strings.ToLower(cfg.Name) {
	case "ollama":
		return NewHTTPProvider(ctx, httpCfg)
	case "static":
		return NewStaticProvider(), nil
	case "":
		p, err := NewHTTPProvider(ctx, httpCfg)
		if err == nil {
			return p, nil
		}
		logger.Warn("embedding server unavailable, falling back to static embeddings",
			"endpoint", httpCfg.Endpoint,
			"error", err.Error())
		return NewStaticProvider(), nil
	default:
		return nil, errors.Newf(errors.KindConfig, "unknown provider %q", cfg.Name)
	}
}
