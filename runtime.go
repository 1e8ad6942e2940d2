// Package claudette is the AI-middleware core described by spec.md: a
// single Runtime value (§9: "reframe as a process-wide Runtime value
// owned by the Lifecycle Controller") that owns the Connection Pool,
// Adaptive Router, per-backend Circuit Breakers, Health Monitor,
// two-tier Cache, RAG Orchestrator, and Observability collector, and
// exposes exactly the library surface of spec.md §6: Optimize, Status,
// Config, ValidateConfig, Cleanup, Metrics.
//
// There is no package-level singleton: New returns an independent
// Runtime so a host process — or a test — can construct several
// isolated instances side by side.
package claudette

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/RobLe3/claudette-sub003/backend"
	"github.com/RobLe3/claudette-sub003/backend/anthropic"
	"github.com/RobLe3/claudette-sub003/backend/ollamalocal"
	"github.com/RobLe3/claudette-sub003/backend/openai"
	"github.com/RobLe3/claudette-sub003/backend/qwencompatible"
	"github.com/RobLe3/claudette-sub003/cache"
	"github.com/RobLe3/claudette-sub003/cache/coldredis"
	"github.com/RobLe3/claudette-sub003/cache/coldsqlite"
	"github.com/RobLe3/claudette-sub003/config"
	claudetteerrors "github.com/RobLe3/claudette-sub003/errors"
	"github.com/RobLe3/claudette-sub003/health"
	"github.com/RobLe3/claudette-sub003/lifecycle"
	"github.com/RobLe3/claudette-sub003/observability"
	"github.com/RobLe3/claudette-sub003/pool"
	"github.com/RobLe3/claudette-sub003/rag"
	"github.com/RobLe3/claudette-sub003/router"
	"github.com/RobLe3/claudette-sub003/tokenizer"
	"github.com/RobLe3/claudette-sub003/types"
)

// Version is reported in every HealthSnapshot (§4.9).
const Version = "0.1.0"

// defaultTimeoutMs is applied when options.timeoutMs is unset (§5).
const defaultTimeoutMs = 60_000

// Runtime is Claudette's process-wide value: every component lives here,
// addressed by the packages above rather than through package-level
// globals (§9).
type Runtime struct {
	logger *zap.Logger

	mu  sync.RWMutex
	cfg config.Config

	pool           *pool.Pool
	router         *router.Router
	cache          *cache.Cache
	cold           cache.ColdStore
	health         *health.Monitor
	rag            *rag.Registry
	metrics        *observability.Collector
	tracer         *observability.Tracer
	tracerProvider *sdktrace.TracerProvider
	costs          *observability.CostTracker

	lifecycle        *lifecycle.Controller[*Runtime]
	uninstallSignals func()
}

// New constructs and initializes a Runtime from cfg (§4.8's init order:
// load config -> validate -> construct Pool -> register Adapters -> start
// Health Monitor -> initialize Cache tiers -> install signal handlers).
// New returns once Adapters are registered; health probes and the cold
// cache tier may still be warming in the background.
func New(cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, claudetteerrors.New(claudetteerrors.ConfigInvalid, "config must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	full := config.WithDefaults(*cfg)
	report := config.Validate(full)
	if report.Fatal {
		return nil, claudetteerrors.New(claudetteerrors.ConfigInvalid, fmt.Sprintf("invalid configuration: %d issue(s)", len(report.Issues)))
	}

	rt := &Runtime{
		cfg:       full,
		logger:    logger,
		lifecycle: lifecycle.New[*Runtime](logger),
	}

	if _, err := rt.Initialize(context.Background()); err != nil {
		return nil, err
	}
	return rt, nil
}

// Initialize runs (or, for a concurrent caller arriving mid-flight,
// shares) the Runtime's one build sequence (§4.8: "idempotent and
// single-flight: concurrent callers share the same in-progress
// initialization"). Exported so a host that received a Runtime whose New
// call is still warming can re-await the same result.
func (rt *Runtime) Initialize(ctx context.Context) (*Runtime, error) {
	return rt.lifecycle.Initialize(func() (*Runtime, error) {
		return rt.build(ctx)
	})
}

func (rt *Runtime) build(ctx context.Context) (*Runtime, error) {
	rt.pool = pool.New(rt.logger)
	rt.metrics = observability.New()
	rt.costs = observability.NewCostTracker()
	if tp, err := observability.InstallSDKTracerProvider("claudette", Version, 1.0); err != nil {
		rt.logger.Warn("otel sdk tracer provider unavailable, falling back to the current global provider", zap.Error(err))
	} else {
		rt.tracerProvider = tp
	}
	rt.tracer = observability.NewTracer()
	rt.health = health.New(rt.logger)
	rt.router = router.New(rt.cfg.Router.Weights, rt.cfg.Router.MaxAttempts, rt.health, rt.metrics, rt.logger)

	names := make([]string, 0, len(rt.cfg.Backends))
	for name := range rt.cfg.Backends {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		desc := buildDescriptor(name, rt.cfg.Backends[name])
		adapter, err := buildAdapter(desc, rt.pool, rt.logger)
		if err != nil {
			return nil, err
		}
		rt.router.Register(desc, adapter)
		rt.health.Register(adapter)
	}

	cold, err := buildColdStore(rt.cfg.CacheStore, rt.logger)
	if err != nil {
		rt.logger.Warn("cold cache tier unavailable, continuing hot-tier only", zap.Error(err))
		cold = nil
	}
	rt.cold = cold
	rt.cache = cache.New(
		rt.cfg.Thresholds.MaxCacheEntries,
		rt.cfg.Thresholds.MaxCacheBytes,
		time.Duration(rt.cfg.Thresholds.CacheTTLSeconds)*time.Second,
		cold, rt.logger, rt.metrics,
	)

	ragRegistry, err := buildRAGRegistry(rt.cfg.RAG, rt.pool, rt.logger)
	if err != nil {
		return nil, err
	}
	rt.rag = ragRegistry
	for _, p := range ragRegistry.All() {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if cerr := p.Connect(cctx); cerr != nil {
			rt.logger.Warn("rag provider connect failed", zap.String("provider", p.Name()), zap.Error(cerr))
		}
		cancel()
	}

	rt.health.Start(ctx)

	rt.lifecycle.RegisterShutdownStep(lifecycle.Step{
		Name: "health_monitor",
		Run:  func(context.Context) error { rt.health.Stop(); return nil },
	})
	rt.lifecycle.RegisterShutdownStep(lifecycle.Step{
		Name:    "rag_providers",
		Timeout: 2 * time.Second,
		Run: func(ctx context.Context) error {
			for _, p := range rt.rag.All() {
				_ = p.Disconnect(ctx)
			}
			return nil
		},
	})
	rt.lifecycle.RegisterShutdownStep(lifecycle.Step{
		Name:    "pool",
		Timeout: 5 * time.Second,
		Run:     func(ctx context.Context) error { return rt.pool.Shutdown(ctx) },
	})
	rt.lifecycle.RegisterShutdownStep(lifecycle.Step{
		Name: "cold_tier",
		Run: func(context.Context) error {
			if rt.cold != nil {
				return rt.cold.Close()
			}
			return nil
		},
	})
	rt.lifecycle.RegisterShutdownStep(lifecycle.Step{
		Name:    "tracer_provider",
		Timeout: 2 * time.Second,
		Run: func(ctx context.Context) error {
			if rt.tracerProvider != nil {
				return rt.tracerProvider.Shutdown(ctx)
			}
			return nil
		},
	})

	rt.uninstallSignals = rt.lifecycle.InstallSignalHandlers(context.Background(), rt.Cleanup)

	return rt, nil
}

// buildDescriptor turns one configured backend entry into the static
// descriptor the Router and adapters consume.
func buildDescriptor(name string, bc config.BackendConfig) types.BackendDescriptor {
	variant := types.Variant(bc.Variant)
	btype := types.BackendCloud
	if variant == types.VariantOllamaLocal {
		btype = types.BackendSelfHosted
	}
	return types.BackendDescriptor{
		Name:          name,
		Variant:       variant,
		Type:          btype,
		Enabled:       bc.Enabled,
		Priority:      bc.Priority,
		BaseURL:       bc.BaseURL,
		APIKey:        bc.APIKey,
		Model:         bc.Model,
		MaxTokens:     bc.MaxTokens,
		Temperature:   bc.Temperature,
		CostPerKToken: bc.CostPerKToken,
	}
}

// buildAdapter dispatches on the closed variant set (§4.2, §9).
func buildAdapter(desc types.BackendDescriptor, p *pool.Pool, logger *zap.Logger) (backend.Adapter, error) {
	switch desc.Variant {
	case types.VariantOpenAI:
		return openai.New(desc, p, logger), nil
	case types.VariantAnthropicClaude:
		return anthropic.New(desc, p, logger), nil
	case types.VariantQwenCompatible:
		return qwencompatible.New(desc, p, logger), nil
	case types.VariantOllamaLocal:
		return ollamalocal.New(desc, p, logger), nil
	default:
		return nil, claudetteerrors.New(claudetteerrors.ConfigInvalid, fmt.Sprintf("unsupported backend variant %q for %q", desc.Variant, desc.Name))
	}
}

// buildColdStore selects the Cache's persistent tier from config (§4.5,
// §6). An empty CacheStoreConfig yields a nil store: the cold tier is a
// weak reference and its absence must not affect correctness.
func buildColdStore(cfg config.CacheStoreConfig, logger *zap.Logger) (cache.ColdStore, error) {
	switch {
	case cfg.RedisAddr != "":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return coldredis.New(client), nil
	case cfg.DataDir != "":
		return coldsqlite.Open(filepath.Join(cfg.DataDir, "cache.db"), logger)
	default:
		return nil, nil
	}
}

// buildRAGRegistry builds one rag.HTTPProvider per configured provider
// entry (§4.6, §6). Provider-specific fields are read permissively from
// the schema's open "provider-specific" map.
func buildRAGRegistry(cfg config.RAGConfig, p *pool.Pool, logger *zap.Logger) (*rag.Registry, error) {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	providers := make([]rag.Provider, 0, len(names))
	for _, name := range names {
		raw := cfg.Providers[name]
		endpoint, _ := raw["endpoint"].(string)
		if endpoint == "" {
			return nil, claudetteerrors.New(claudetteerrors.ConfigInvalid, fmt.Sprintf("rag.providers.%s missing endpoint", name))
		}
		apiKey, _ := raw["apiKey"].(string)
		healthPath, _ := raw["healthPath"].(string)
		timeout := 5 * time.Second
		if ms, ok := raw["timeoutMs"].(float64); ok && ms > 0 {
			timeout = time.Duration(ms) * time.Millisecond
		}
		providers = append(providers, rag.NewHTTPProvider(rag.HTTPConfig{
			Name: name, Endpoint: endpoint, HealthPath: healthPath, APIKey: apiKey, Timeout: timeout,
		}, p, logger))
	}
	return rag.NewRegistry(providers, cfg.FallbackChain, cfg.DefaultProvider), nil
}

// Optimize is the library's single entry point (§2, §6): it enriches the
// prompt via RAG, consults the cache, routes to a backend with fallback,
// and records cost/latency/observability for the call.
func (rt *Runtime) Optimize(ctx context.Context, prompt string, files []types.FileRef, opts types.RequestOptions) (types.Response, error) {
	timeoutMs := opts.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = defaultTimeoutMs
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	requestID := uuid.NewString()
	ctx, span := rt.tracer.StartOptimize(ctx, observability.RequestAttrs{
		RequestID: requestID, Backend: opts.Backend, UseRAG: opts.UseRAG,
	})

	start := time.Now()
	var resp types.Response
	var retErr error
	defer func() {
		errCode := ""
		if retErr != nil {
			errCode = string(claudetteerrors.GetCode(retErr))
		}
		rt.tracer.EndOptimize(span, observability.ResponseAttrs{
			BackendUsed:     resp.BackendUsed,
			CacheHit:        resp.CacheHit,
			RAGStatus:       resp.Metadata.RAGStatus,
			RoutingDecision: resp.Metadata.RoutingDecision,
			ErrorCode:       errCode,
			Duration:        time.Since(start),
			CostEUR:         resp.CostEUR,
		})
	}()

	mergedPrompt := prompt
	var ragSources []string
	ragStatus := ""
	if opts.UseRAG {
		rt.metrics.RecordRAGQuery()
		merged, sources, status, err := rt.rag.Enhance(ctx, prompt, opts)
		ragStatus = status
		if err != nil {
			rt.metrics.RecordRAGError()
			retErr = claudetteerrors.New(claudetteerrors.RAGUnavailable, "rag enhancement failed").WithCause(err)
			return types.Response{}, retErr
		}
		if status == "error" {
			rt.metrics.RecordRAGFallback()
			rt.metrics.RecordRAGError()
		}
		mergedPrompt, ragSources = merged, sources
	}

	fingerprint := computeFingerprint(mergedPrompt, files, opts)

	if opts.BypassCache {
		r, err := rt.execute(ctx, mergedPrompt, opts)
		if err != nil {
			retErr = err
			return types.Response{}, err
		}
		r.Metadata.RAGStatus = ragStatus
		r.Metadata.RAGSources = ragSources
		resp = r
		return resp, nil
	}

	entry, fromCache, coalesced, err := rt.cache.GetOrLoad(ctx, fingerprint, func(ctx context.Context) (types.CacheEntry, error) {
		r, rerr := rt.execute(ctx, mergedPrompt, opts)
		if rerr != nil {
			return types.CacheEntry{}, rerr
		}
		r.Metadata.RAGStatus = ragStatus
		r.Metadata.RAGSources = ragSources
		return types.CacheEntry{Fingerprint: fingerprint, Response: r, Size: int64(len(r.Content))}, nil
	})
	if err != nil {
		retErr = err
		return types.Response{}, err
	}

	resp = entry.Response
	resp.CacheHit = fromCache
	if fromCache {
		resp.CostEUR = 0
	}
	resp.Metadata.Coalesced = coalesced
	return resp, nil
}

// execute runs the Adaptive Router's selection/fallback loop for one
// (possibly RAG-enriched) prompt.
func (rt *Runtime) execute(ctx context.Context, prompt string, opts types.RequestOptions) (types.Response, error) {
	estTokens, _ := tokenizer.NewEstimatorTokenizer("").CountTokens(prompt)

	result, err := rt.router.Execute(ctx, opts.Backend, 0, estTokens, func(ctx context.Context, c *router.Candidate) (types.Response, error) {
		model, maxTokens, temperature := opts.Model, opts.MaxTokens, c.Descriptor.Temperature
		if model == "" {
			model = c.Descriptor.Model
		}
		if maxTokens == 0 {
			maxTokens = c.Descriptor.MaxTokens
		}
		if opts.HasTemperature {
			temperature = opts.Temperature
		}
		return c.Adapter.Send(ctx, backend.SendRequest{
			Prompt: prompt, Model: model, MaxTokens: maxTokens, Temperature: temperature,
		})
	})
	if err != nil {
		return types.Response{}, err
	}

	resp := result.Response
	resp.Metadata.RoutingDecision = result.RoutingDecision
	rt.costs.Track(resp.TokensInput, resp.TokensOutput, resp.CostEUR)
	rt.metrics.RecordTokensAndCost(resp.BackendUsed, resp.TokensInput, resp.TokensOutput, resp.CostEUR)
	return resp, nil
}

// Status returns the administrative health snapshot (§4.9, §6).
func (rt *Runtime) Status(ctx context.Context) (types.HealthSnapshot, error) {
	rt.metrics.SetPoolGauges(rt.pool.ActiveSockets(), rt.pool.FreeSockets())

	candidates := rt.router.Candidates()
	views := make([]types.BackendHealthView, 0, len(candidates))
	anyHealthy := false
	for _, c := range candidates {
		rec := rt.health.Get(c.Descriptor.Name)
		state := c.Breaker.State()
		views = append(views, types.BackendHealthView{
			Name: c.Descriptor.Name, Healthy: rec.Healthy, LatencyMs: rec.LatencyMs, State: state,
		})
		if c.Descriptor.Enabled && rec.Healthy && state != types.BreakerOpen {
			anyHealthy = true
		}
	}

	entries, bytes := rt.cache.Stats()
	return types.HealthSnapshot{
		Healthy:  anyHealthy,
		Backends: views,
		Cache: types.CacheHealthView{
			HitRate: rt.metrics.CacheHitRate(),
			Entries: entries,
			SizeMB:  float64(bytes) / (1024 * 1024),
		},
		Version: Version,
	}, nil
}

// Config returns the effective, defaulted configuration this Runtime was
// built from (§6).
func (rt *Runtime) Config() config.Config {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.cfg
}

// ValidateConfig validates an arbitrary config without mutating the
// Runtime (§4.10, §6).
func (rt *Runtime) ValidateConfig(cfg config.Config) config.Report {
	return config.Validate(cfg)
}

// Metrics renders every counter/histogram/gauge in Prometheus exposition
// format (§4.9, §6).
func (rt *Runtime) Metrics() string {
	rt.metrics.SetPoolGauges(rt.pool.ActiveSockets(), rt.pool.FreeSockets())

	text, err := rt.metrics.Export()
	if err != nil {
		rt.logger.Warn("metrics export failed", zap.Error(err))
		return ""
	}
	return text
}

// Cleanup runs the Lifecycle Controller's ordered shutdown sequence
// (§4.8): stop Health Monitor, disconnect RAG providers, close the Pool
// (up to 5s for in-flight requests), release cold-tier handles.
func (rt *Runtime) Cleanup(ctx context.Context) error {
	if rt.uninstallSignals != nil {
		rt.uninstallSignals()
	}
	return rt.lifecycle.Shutdown(ctx)
}
