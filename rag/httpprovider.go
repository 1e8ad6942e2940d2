// HTTPProvider is a generic RAG Provider that queries an external
// retrieval endpoint over HTTP, grounded on the teacher's rerank provider
// family (llm/rerank/cohere.go, jina.go, voyage.go): a small JSON
// request/response contract, one struct per named external service, built
// from config rather than hardcoded. Unlike the rerank providers (each
// pinned to one vendor's wire format), spec.md §4.6 treats every RAG
// provider as an external collaborator with no fixed vendor — HTTPProvider
// is the one concrete wire format the core ships, for gateways that speak
// this simple shape; a host wanting a vendor-specific protocol supplies
// its own rag.Provider implementation instead of configuring this one.
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/RobLe3/claudette-sub003/pool"
	"github.com/RobLe3/claudette-sub003/types"
)

// HTTPConfig configures one HTTPProvider instance.
type HTTPConfig struct {
	Name       string
	Endpoint   string
	HealthPath string
	APIKey     string
	Timeout    time.Duration
}

// HTTPProvider is the generic HTTP-backed rag.Provider.
type HTTPProvider struct {
	cfg    HTTPConfig
	pool   *pool.Pool
	logger *zap.Logger

	connected atomic.Bool
}

// NewHTTPProvider builds an HTTPProvider. p is the shared Connection Pool
// every backend adapter also issues requests through (§4.6: provider
// queries race the request deadline the same way adapter sends do).
func NewHTTPProvider(cfg HTTPConfig, p *pool.Pool, logger *zap.Logger) *HTTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPProvider{cfg: cfg, pool: p, logger: logger}
}

func (h *HTTPProvider) Name() string { return h.cfg.Name }

func (h *HTTPProvider) headers() http.Header {
	hdr := http.Header{}
	hdr.Set("Content-Type", "application/json")
	if h.cfg.APIKey != "" {
		hdr.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}
	return hdr
}

type httpQueryRequest struct {
	Query      string  `json:"query"`
	MaxResults int     `json:"maxResults,omitempty"`
	Threshold  float64 `json:"threshold,omitempty"`
	Context    string  `json:"context,omitempty"`
}

type httpQueryResult struct {
	Content  string            `json:"content"`
	Score    float64           `json:"score"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type httpQueryResponse struct {
	Results        []httpQueryResult `json:"results"`
	StrategySource string            `json:"strategySource,omitempty"`
}

// Query implements rag.Provider. It never returns a partial result: a
// non-2xx status or malformed body is surfaced as an error so Enhance can
// move on to the next provider in the chain.
func (h *HTTPProvider) Query(ctx context.Context, req QueryRequest) (types.RAGContextResult, error) {
	body, err := json.Marshal(httpQueryRequest{
		Query: req.Query, MaxResults: req.MaxResults, Threshold: req.Threshold, Context: req.Context,
	})
	if err != nil {
		return types.RAGContextResult{}, fmt.Errorf("rag: encode query: %w", err)
	}

	start := time.Now()
	result, err := h.pool.Request(ctx, http.MethodPost, h.cfg.Endpoint, h.headers(), body, h.cfg.Timeout)
	elapsed := time.Since(start)
	if err != nil {
		return types.RAGContextResult{}, fmt.Errorf("rag: provider %s: %w", h.cfg.Name, err)
	}
	if result.Status < 200 || result.Status >= 300 {
		return types.RAGContextResult{}, fmt.Errorf("rag: provider %s returned status %d", h.cfg.Name, result.Status)
	}

	var parsed httpQueryResponse
	if err := json.Unmarshal(result.Body, &parsed); err != nil {
		return types.RAGContextResult{}, fmt.Errorf("rag: provider %s: decode response: %w", h.cfg.Name, err)
	}

	results := make([]types.RAGResult, len(parsed.Results))
	for i, r := range parsed.Results {
		results[i] = types.RAGResult{Content: r.Content, Score: r.Score, Source: r.Source, Metadata: r.Metadata}
	}

	source := types.StrategySourceVector
	switch strings.ToLower(parsed.StrategySource) {
	case string(types.StrategySourceGraph):
		source = types.StrategySourceGraph
	case string(types.StrategySourceHybrid):
		source = types.StrategySourceHybrid
	}

	return types.RAGContextResult{
		Results:        results,
		TotalResults:   len(results),
		ProcessingMs:   elapsed.Milliseconds(),
		StrategySource: source,
	}, nil
}

// HealthCheck performs a cheap GET against HealthPath (defaulting to the
// query endpoint itself) to decide whether this provider participates in
// the current fallback chain attempt.
func (h *HTTPProvider) HealthCheck(ctx context.Context) bool {
	if !h.connected.Load() {
		return false
	}
	path := h.cfg.HealthPath
	if path == "" {
		path = h.cfg.Endpoint
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	result, err := h.pool.Request(ctx, http.MethodGet, path, h.headers(), nil, 3*time.Second)
	return err == nil && result.Status < 400
}

// Connect marks the provider as eligible for the fallback chain. The HTTP
// provider has no persistent connection to establish; Connect exists to
// satisfy rag.Provider's lifecycle contract for providers that do (a host
// supplying a stateful implementation would dial here).
func (h *HTTPProvider) Connect(ctx context.Context) error {
	h.connected.Store(true)
	return nil
}

func (h *HTTPProvider) Disconnect(ctx context.Context) error {
	h.connected.Store(false)
	return nil
}

func (h *HTTPProvider) Status() string {
	if h.connected.Load() {
		return "connected"
	}
	return "disconnected"
}
