// Package types holds the data model shared across Claudette's components:
// requests, responses, backend descriptors, health and failure records, and
// RAG results. Mirrors the teacher's convention of centralizing wire-level
// shared shapes in one package rather than duplicating them per component.
package types

import "time"

// ContextStrategy selects how retrieved RAG context is merged into a prompt.
type ContextStrategy string

const (
	StrategyPrepend ContextStrategy = "prepend"
	StrategyAppend  ContextStrategy = "append"
	StrategyInject  ContextStrategy = "inject"
)

// FileRef is a reference to a file attached to a request. Only its Hash is
// used for fingerprinting; Content is forwarded to the backend unmodified.
type FileRef struct {
	Name    string
	Hash    string
	Content []byte
}

// RequestOptions carries the optional per-call overrides from spec.md §3.
type RequestOptions struct {
	Backend         string
	Model           string
	MaxTokens       int
	Temperature     float64
	HasTemperature  bool
	BypassCache     bool
	UseRAG          bool
	RAGStrict       bool
	RAGQuery        string
	RAGProvider     string
	ContextStrategy ContextStrategy
	TimeoutMs       int
}

// Request is the immutable input to Runtime.Optimize.
type Request struct {
	Prompt    string
	Files     []FileRef
	Options   RequestOptions
	RequestID string
	TraceID   string
}

// ResponseMetadata carries the non-essential, diagnostic fields of a Response.
type ResponseMetadata struct {
	Model           string
	FinishReason    string
	TokenSource     string // "reported" | "estimated"
	RAGSources      []string
	RAGStatus       string // "", "ok", "error"
	RoutingDecision string
	Coalesced       bool
}

// Response is the immutable result of Runtime.Optimize.
type Response struct {
	Content      string
	BackendUsed  string
	TokensInput  int
	TokensOutput int
	CostEUR      float64
	LatencyMs    int64
	CacheHit     bool
	Metadata     ResponseMetadata
}

// BackendType distinguishes cloud-hosted from self-hosted backends.
type BackendType string

const (
	BackendCloud      BackendType = "cloud"
	BackendSelfHosted BackendType = "self_hosted"
)

// Variant is the closed set of wire-protocol adapters (§4.2, §9 OQ1).
type Variant string

const (
	VariantOpenAI           Variant = "openai"
	VariantAnthropicClaude  Variant = "anthropic_claude"
	VariantQwenCompatible   Variant = "qwen_compatible"
	VariantOllamaLocal      Variant = "ollama_local"
)

// BackendDescriptor is the static configuration of one registered backend.
type BackendDescriptor struct {
	Name          string
	Variant       Variant
	Type          BackendType
	Enabled       bool
	Priority      int
	BaseURL       string
	APIKey        string
	Model         string
	MaxTokens     int
	Temperature   float64
	CostPerKToken float64
	HealthPath    string
}

// MaskedAPIKey returns the key with all but the last 4 characters replaced,
// for safe inclusion in logs and diagnostics (§4.10).
func (d BackendDescriptor) MaskedAPIKey() string {
	if len(d.APIKey) <= 4 {
		if d.APIKey == "" {
			return ""
		}
		return "****"
	}
	return "****" + d.APIKey[len(d.APIKey)-4:]
}

// HealthRecord is the per-backend health cache entry (§3, §4.4).
type HealthRecord struct {
	Backend       string
	Healthy       bool
	LatencyMs     int64
	LastProbe     time.Time
	FailureStreak int
}

// Stale reports whether the record is older than the given TTL.
func (h HealthRecord) Stale(ttl time.Duration) bool {
	return h.LastProbe.IsZero() || time.Since(h.LastProbe) > ttl
}

// FailureKind is the closed classification of an adapter-observed failure.
type FailureKind string

const (
	FailureTimeout    FailureKind = "timeout"
	FailureConnection FailureKind = "connection"
	FailureRateLimit  FailureKind = "rate_limit"
	FailureAuth       FailureKind = "auth"
	FailureServer     FailureKind = "server_error"
	FailureClient     FailureKind = "client_error"
	FailureOther      FailureKind = "other"
)

// FailureRecord is one entry in a backend's sliding failure window (§3).
type FailureRecord struct {
	Timestamp time.Time
	Kind      FailureKind
	Backend   string
}

// BreakerStateKind is one of the three circuit breaker states (§4.3).
type BreakerStateKind string

const (
	BreakerClosed   BreakerStateKind = "closed"
	BreakerOpen     BreakerStateKind = "open"
	BreakerHalfOpen BreakerStateKind = "half_open"
)

// RecoveryStrategy is the wait policy a breaker emits to the router (§4.3).
type RecoveryStrategy string

const (
	StrategyImmediateRetry     RecoveryStrategy = "immediate_retry"
	StrategyLinearBackoff      RecoveryStrategy = "linear_backoff"
	StrategyExponentialBackoff RecoveryStrategy = "exponential_backoff"
	StrategyCircuitOpen        RecoveryStrategy = "circuit_open"
)

// CacheEntry is one stored fingerprint → response mapping (§3, §4.5).
type CacheEntry struct {
	Fingerprint string
	Response    Response
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Size        int64
	HitCount    int
	LastAccess  time.Time
}

// Expired reports whether the entry's TTL has elapsed as of now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// RAGResult is one retrieved context item (§3, §4.6).
type RAGResult struct {
	Content  string
	Score    float64
	Source   string
	Metadata map[string]string
}

// StrategySource identifies the retrieval mechanism behind a RAGContextResult.
type StrategySource string

const (
	StrategySourceVector StrategySource = "vector"
	StrategySourceGraph  StrategySource = "graph"
	StrategySourceHybrid StrategySource = "hybrid"
)

// RAGContextResult is the transient output of one RAG provider query (§3).
type RAGContextResult struct {
	Results        []RAGResult
	TotalResults   int
	ProcessingMs   int64
	StrategySource StrategySource
}

// HealthSnapshot is the administrative view returned by Runtime.Status (§4.9).
type HealthSnapshot struct {
	Healthy  bool
	Backends []BackendHealthView
	Cache    CacheHealthView
	Version  string
}

// BackendHealthView is one entry of HealthSnapshot.Backends.
type BackendHealthView struct {
	Name      string
	Healthy   bool
	LatencyMs int64
	State     BreakerStateKind
}

// CacheHealthView is the cache section of HealthSnapshot.
type CacheHealthView struct {
	HitRate float64
	Entries int
	SizeMB  float64
}
