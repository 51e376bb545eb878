package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultsearch/vaultsearch/internal/errors"
)

// fakeEmbedServer answers /api/embed with fixed-width vectors and
// /v1/rerank with descending scores.
func fakeEmbedServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embed":
			var req embedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			var n int
			switch input := req.Input.(type) {
			case string:
				n = 1
			case []any:
				n = len(input)
			}
			embeddings := make([][]float32, n)
			for i := range embeddings {
				vec := make([]float32, dims)
				vec[i%dims] = 1
				embeddings[i] = vec
			}
			require.NoError(t, json.NewEncoder(w).Encode(embedResponse{Embeddings: embeddings}))
		case "/v1/rerank":
			var req rerankRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			resp := rerankResponse{}
			for i := range req.Documents {
				resp.Results = append(resp.Results, struct {
					Index          int     `json:"index"`
					RelevanceScore float64 `json:"relevance_score"`
				}{Index: i, RelevanceScore: 1.0 / float64(i+1)})
			}
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		case "/api/tags":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestHTTPProviderDetectsDimensions(t *testing.T) {
	srv := fakeEmbedServer(t, 8)
	defer srv.Close()

	p, err := NewHTTPProvider(context.Background(), HTTPConfig{
		Endpoint: srv.URL,
		Model:    "test-model",
	})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	assert.Equal(t, 8, p.Dimensions())
	assert.Equal(t, "test-model", p.ModelName())
	assert.True(t, p.Available(context.Background()))
}

func TestHTTPProviderEmbedBatch(t *testing.T) {
	srv := fakeEmbedServer(t, 4)
	defer srv.Close()

	p, err := NewHTTPProvider(context.Background(), HTTPConfig{
		Endpoint:  srv.URL,
		Model:     "test-model",
		BatchSize: 2,
	})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	batch, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, batch, 3)
	for _, vec := range batch {
		assert.Len(t, vec, 4)
	}
}

func TestHTTPProviderRerank(t *testing.T) {
	srv := fakeEmbedServer(t, 4)
	defer srv.Close()

	p, err := NewHTTPProvider(context.Background(), HTTPConfig{
		Endpoint:        srv.URL,
		Model:           "test-model",
		RerankModel:     "test-rerank",
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	scores, err := p.Rerank(context.Background(), "query", []string{"x", "y", "z"})
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Greater(t, scores[0], scores[1])
	assert.Greater(t, scores[1], scores[2])
}

func TestHTTPProviderRerankWithoutModel(t *testing.T) {
	srv := fakeEmbedServer(t, 4)
	defer srv.Close()

	p, err := NewHTTPProvider(context.Background(), HTTPConfig{
		Endpoint:        srv.URL,
		Model:           "test-model",
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	_, err = p.Rerank(context.Background(), "query", []string{"x"})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindProvider))
}

func TestHTTPProviderUnreachable(t *testing.T) {
	_, err := NewHTTPProvider(context.Background(), HTTPConfig{
		Endpoint: "http://127.0.0.1:1",
		Model:    "test-model",
	})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindProvider))
}

func TestHTTPProviderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(context.Background(), HTTPConfig{
		Endpoint:        srv.URL,
		Model:           "missing",
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	_, err = p.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindProvider))
}
