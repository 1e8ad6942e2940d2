// Package config defines Claudette's configuration schema (§6) and
// validates it: default application, weight normalization, and a
// structured report of issues rather than a bare error.
package config

import (
	"fmt"
	"sort"

	"github.com/RobLe3/claudette-sub003/types"
)

// BackendConfig is one entry of the "backends" section of the schema.
type BackendConfig struct {
	Enabled       bool    `json:"enabled" yaml:"enabled"`
	Priority      int     `json:"priority" yaml:"priority"`
	CostPerKToken float64 `json:"costPerKToken" yaml:"costPerKToken"`
	Model         string  `json:"model" yaml:"model"`
	MaxTokens     int     `json:"maxTokens" yaml:"maxTokens"`
	Temperature   float64 `json:"temperature" yaml:"temperature"`
	BaseURL       string  `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
	APIKey        string  `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	Variant       string  `json:"variant" yaml:"variant"`
}

// FeaturesConfig toggles optional subsystems.
type FeaturesConfig struct {
	Caching                bool `json:"caching" yaml:"caching"`
	CostOptimization       bool `json:"costOptimization" yaml:"costOptimization"`
	SmartRouting           bool `json:"smartRouting" yaml:"smartRouting"`
	PerformanceMonitoring  bool `json:"performanceMonitoring" yaml:"performanceMonitoring"`
	Compression            bool `json:"compression" yaml:"compression"`
	Summarization           bool `json:"summarization" yaml:"summarization"`
}

// ThresholdsConfig holds the tunable numeric limits.
type ThresholdsConfig struct {
	CacheTTLSeconds  int     `json:"cacheTtlSeconds" yaml:"cacheTtlSeconds"`
	MaxCacheEntries  int     `json:"maxCacheEntries" yaml:"maxCacheEntries"`
	MaxCacheBytes    int64   `json:"maxCacheBytes" yaml:"maxCacheBytes"`
	CostWarningEur   float64 `json:"costWarningEur" yaml:"costWarningEur"`
	MaxContextTokens int     `json:"maxContextTokens" yaml:"maxContextTokens"`
}

// RAGConfig configures the RAG Orchestrator.
type RAGConfig struct {
	Providers       map[string]map[string]any `json:"providers" yaml:"providers"`
	FallbackChain   []string                   `json:"fallbackChain" yaml:"fallbackChain"`
	DefaultProvider string                     `json:"defaultProvider,omitempty" yaml:"defaultProvider,omitempty"`
}

// RouterWeights are the three scoring weights from §4.7.
type RouterWeights struct {
	Cost         float64 `json:"cost" yaml:"cost"`
	Latency      float64 `json:"latency" yaml:"latency"`
	Availability float64 `json:"availability" yaml:"availability"`
}

// RouterConfig configures the Adaptive Router.
type RouterConfig struct {
	Weights     RouterWeights `json:"weights" yaml:"weights"`
	MaxAttempts int           `json:"maxAttempts" yaml:"maxAttempts"`
}

// CacheStoreConfig selects and configures the Cache's cold (persistent)
// tier (§4.5, §6 "persisted state layout"). At most one of RedisAddr or
// DataDir is expected to be set; RedisAddr takes precedence when both are.
type CacheStoreConfig struct {
	RedisAddr string `json:"redisAddr,omitempty" yaml:"redisAddr,omitempty"`
	DataDir   string `json:"dataDir,omitempty" yaml:"dataDir,omitempty"`
}

// Config is the full schema from spec.md §6.
type Config struct {
	Backends   map[string]BackendConfig `json:"backends" yaml:"backends"`
	Features   FeaturesConfig           `json:"features" yaml:"features"`
	Thresholds ThresholdsConfig         `json:"thresholds" yaml:"thresholds"`
	RAG        RAGConfig                `json:"rag" yaml:"rag"`
	Router     RouterConfig             `json:"router" yaml:"router"`
	CacheStore CacheStoreConfig         `json:"cacheStore,omitempty" yaml:"cacheStore,omitempty"`
}

// Issue is one finding from Validate.
type Issue struct {
	Field   string
	Message string
}

// Report is the structured result of Validate; a config with Fatal findings
// must not be used to construct a Runtime.
type Report struct {
	Issues []Issue
	Fatal  bool
}

func (r *Report) addFatal(field, msg string, args ...any) {
	r.Issues = append(r.Issues, Issue{Field: field, Message: fmt.Sprintf(msg, args...)})
	r.Fatal = true
}

func (r *Report) addWarning(field, msg string, args ...any) {
	r.Issues = append(r.Issues, Issue{Field: field, Message: fmt.Sprintf(msg, args...)})
}

// defaultWeights is applied when weights sum to ~0 (§8 boundary).
var defaultWeights = RouterWeights{Cost: 1.0 / 3, Latency: 1.0 / 3, Availability: 1.0 / 3}

// supportedVariants is the closed adapter set from §4.2.
var supportedVariants = map[string]bool{
	string(types.VariantOpenAI):          true,
	string(types.VariantAnthropicClaude): true,
	string(types.VariantQwenCompatible):  true,
	string(types.VariantOllamaLocal):     true,
}

// WithDefaults returns a copy of cfg with safe defaults applied for every
// zero-valued field that has one (§4.10: "defaults are applied where safe").
func WithDefaults(cfg Config) Config {
	if cfg.Thresholds.CacheTTLSeconds <= 0 {
		cfg.Thresholds.CacheTTLSeconds = 3600
	}
	if cfg.Thresholds.MaxCacheEntries <= 0 {
		cfg.Thresholds.MaxCacheEntries = 10000
	}
	if cfg.Thresholds.MaxCacheBytes <= 0 {
		cfg.Thresholds.MaxCacheBytes = 64 * 1024 * 1024
	}
	if cfg.Router.MaxAttempts <= 0 {
		cfg.Router.MaxAttempts = 3
	}
	cfg.Router.Weights = NormalizeWeights(cfg.Router.Weights)
	return cfg
}

// NormalizeWeights rescales w so its components sum to 1.0. When the sum is
// ~0 it returns a uniform split (§8 boundary: "Weight normalization when
// weights sum to 0 selects uniformly").
func NormalizeWeights(w RouterWeights) RouterWeights {
	sum := w.Cost + w.Latency + w.Availability
	if sum < 1e-9 {
		return defaultWeights
	}
	return RouterWeights{
		Cost:         w.Cost / sum,
		Latency:      w.Latency / sum,
		Availability: w.Availability / sum,
	}
}

// Validate checks cfg against the schema and invariants, returning a
// structured Report. It never panics on malformed input.
func Validate(cfg Config) Report {
	var report Report

	if len(cfg.Backends) == 0 {
		report.addFatal("backends", "at least one backend must be configured")
	}

	names := make([]string, 0, len(cfg.Backends))
	for name := range cfg.Backends {
		names = append(names, name)
	}
	sort.Strings(names)

	anyUsable := false
	for _, name := range names {
		b := cfg.Backends[name]
		field := fmt.Sprintf("backends.%s", name)
		if !supportedVariants[b.Variant] {
			report.addFatal(field+".variant", "unknown backend variant %q", b.Variant)
			continue
		}
		if b.Enabled && b.APIKey == "" && b.Variant != string(types.VariantOllamaLocal) {
			report.addWarning(field+".apiKey", "backend enabled without an apiKey; it will be unusable until credentials are resolved")
		}
		if b.CostPerKToken < 0 {
			report.addFatal(field+".costPerKToken", "costPerKToken must be >= 0")
		}
		if b.MaxTokens < 0 {
			report.addFatal(field+".maxTokens", "maxTokens must be >= 0")
		}
		if b.Enabled {
			anyUsable = true
		}
	}
	if len(cfg.Backends) > 0 && !anyUsable {
		report.addFatal("backends", "no backend is enabled")
	}

	sum := cfg.Router.Weights.Cost + cfg.Router.Weights.Latency + cfg.Router.Weights.Availability
	if sum > 1e-9 && (sum < 0.99 || sum > 1.01) {
		report.addWarning("router.weights", "weights sum to %.4f, not 1.0 +/- 0.01; normalizing", sum)
	}

	if cfg.Router.MaxAttempts < 0 {
		report.addFatal("router.maxAttempts", "maxAttempts must be >= 0")
	}

	for _, name := range cfg.RAG.FallbackChain {
		if _, ok := cfg.RAG.Providers[name]; !ok {
			report.addFatal("rag.fallbackChain", "fallback chain references unregistered provider %q", name)
		}
	}
	if cfg.RAG.DefaultProvider != "" {
		if _, ok := cfg.RAG.Providers[cfg.RAG.DefaultProvider]; !ok {
			report.addFatal("rag.defaultProvider", "default provider %q is not registered", cfg.RAG.DefaultProvider)
		}
	}

	return report
}
