package provider

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultsearch/vaultsearch/internal/config"
	"github.com/vaultsearch/vaultsearch/internal/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFactoryStatic(t *testing.T) {
	p, err := New(context.Background(), config.ProviderConfig{Name: "static"}, discardLogger())
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	assert.Equal(t, "static", p.ModelName())
}

func TestFactoryAutoFallsBackToStatic(t *testing.T) {
	cfg := config.ProviderConfig{
		Name:     "",
		Endpoint: "http://127.0.0.1:1",
		Timeout:  200 * time.Millisecond,
	}
	p, err := New(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	assert.Equal(t, "static", p.ModelName())
}

func TestFactoryExplicitOllamaFails(t *testing.T) {
	cfg := config.ProviderConfig{
		Name:     "ollama",
		Endpoint: "http://127.0.0.1:1",
		Timeout:  200 * time.Millisecond,
	}
	_, err := New(context.Background(), cfg, discardLogger())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindProvider))
}

func TestFactoryUnknownName(t *testing.T) {
	_, err := New(context.Background(), config.ProviderConfig{Name: "bogus"}, discardLogger())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}
