package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/vaultsearch/vaultsearch/internal/errors"
)

// DefaultEndpoint is the Ollama API base URL.
const DefaultEndpoint = "http://localhost:11434"

// HTTPConfig configures the HTTP provider.
type HTTPConfig struct {
	Endpoint    string
	Model       string
	RerankModel string
	BatchSize   int
	Timeout     time.Duration

	// Dimensions, when zero, is detected from a probe embedding.
	Dimensions int

	// SkipHealthCheck bypasses the startup probe. Tests only.
	SkipHealthCheck bool
}

// HTTPProvider talks to an Ollama-compatible server: /api/embed for
// embeddings and /v1/rerank for cross-encoder scoring.
type HTTPProvider struct {
	client *http.Client
	cfg    HTTPConfig
	dims   int

	mu     sync.RWMutex
	closed bool
}

var _ Provider = (*HTTPProvider)(nil)

type embedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// NewHTTPProvider creates the provider and, unless skipped, probes the
// server to confirm the model answers and to detect dimensions.
func NewHTTPProvider(ctx context.Context, cfg HTTPConfig) (*HTTPProvider, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        8,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     10 * time.Second,
	}
	// No client-level timeout; each request carries its own context
	// deadline so long cold loads and short probes can coexist.
	p := &HTTPProvider{
		client: &http.Client{Transport: transport},
		cfg:    cfg,
		dims:   cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		probeCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		vec, err := p.Embed(probeCtx, "dimension probe")
		if err != nil {
			transport.CloseIdleConnections()
			return nil, err
		}
		if p.dims == 0 {
			p.dims = len(vec)
		}
	}
	return p, nil
}

func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != 1 {
		return nil, errors.Newf(errors.KindProvider, "expected 1 embedding, got %d", len(embeddings))
	}
	return normalizeVector(embeddings[0]), nil
}

func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(texts))
		batch, err := p.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(batch) != end-start {
			return nil, errors.Newf(errors.KindProvider, "expected %d embeddings, got %d", end-start, len(batch))
		}
		for _, vec := range batch {
			results = append(results, normalizeVector(vec))
		}
	}
	return results, nil
}

func (p *HTTPProvider) embed(ctx context.Context, input any) ([][]float32, error) {
	if p.isClosed() {
		return nil, errors.New(errors.KindProvider, "provider is closed")
	}

	var resp embedResponse
	if err := p.post(ctx, "/api/embed", embedRequest{Model: p.cfg.Model, Input: input}, &resp); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

// Rerank requires a configured rerank model; without one it reports a
// provider error and the caller keeps its fused ordering.
func (p *HTTPProvider) Rerank(ctx context.Context, query string, texts []string) ([]float64, error) {
	if p.isClosed() {
		return nil, errors.New(errors.KindProvider, "provider is closed")
	}
	if p.cfg.RerankModel == "" {
		return nil, errors.New(errors.KindProvider, "no rerank model configured")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	var resp rerankResponse
	req := rerankRequest{Model: p.cfg.RerankModel, Query: query, Documents: texts}
	if err := p.post(ctx, "/v1/rerank", req, &resp); err != nil {
		return nil, err
	}

	scores := make([]float64, len(texts))
	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, errors.Newf(errors.KindProvider, "rerank returned out-of-range index %d", r.Index)
		}
		scores[r.Index] = r.RelevanceScore
	}
	return scores, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, reqBody, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.cfg.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(errors.KindProvider, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrap(errors.KindProvider, "provider unreachable", err).
			WithSuggestion("check that the embedding server is running, or set provider to 'static'")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Newf(errors.KindProvider, "provider returned status %d: %s", resp.StatusCode, string(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(errors.KindProvider, "malformed provider response", err)
	}
	return nil
}

func (p *HTTPProvider) Dimensions() int   { return p.dims }
func (p *HTTPProvider) ModelName() string { return p.cfg.Model }

// Available checks the server with a short probe.
func (p *HTTPProvider) Available(ctx context.Context) bool {
	if p.isClosed() {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.cfg.Endpoint+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (p *HTTPProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if t, ok := p.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}

func (p *HTTPProvider) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}
