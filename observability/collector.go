// Package observability implements the Observability surface (spec.md
// §4.9): Prometheus counters/histograms/gauges for every metric the spec
// names, a per-call OpenTelemetry trace span, cost accounting, and a
// health snapshot builder. Grounded on internal/metrics/collector.go's
// promauto-vector-and-namespacing convention, generalized from that
// package's HTTP/LLM/Agent/DB metric families to exactly the counters
// spec.md §4.9 lists.
package observability

import (
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/RobLe3/claudette-sub003/types"
)

// Collector owns every Prometheus metric listed in spec.md §4.9, scoped to
// a private registry so multiple Runtime instances (as required by §9's
// "Global singletons ... enables multiple isolated instances in tests")
// never collide on Prometheus's global default registry.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestsSuccess *prometheus.CounterVec
	requestsFailure *prometheus.CounterVec
	latencyMs       *prometheus.HistogramVec

	tokensInputTotal  *prometheus.CounterVec
	tokensOutputTotal *prometheus.CounterVec
	costEurTotal      *prometheus.CounterVec

	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheSizeBytes  prometheus.Gauge
	cacheEntries    prometheus.Gauge

	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec

	ragQueriesTotal   prometheus.Counter
	ragFallbacksTotal prometheus.Counter
	ragErrorsTotal    prometheus.Counter

	poolActiveSockets prometheus.Gauge
	poolFreeSockets   prometheus.Gauge
}

const namespace = "claudette"

// New builds a Collector registered against a fresh, private
// prometheus.Registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{registry: reg}

	factory := promauto.With(reg)

	c.requestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "requests_total", Help: "Total optimize() calls per backend.",
	}, []string{"backend"})
	c.requestsSuccess = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "requests_success", Help: "Successful optimize() calls per backend.",
	}, []string{"backend"})
	c.requestsFailure = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "requests_failure", Help: "Failed optimize() calls per backend and failure kind.",
	}, []string{"backend", "kind"})
	c.latencyMs = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "latency_ms", Help: "optimize() latency in milliseconds.",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	}, []string{"backend"})

	c.tokensInputTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "tokens_input_total", Help: "Total input tokens consumed per backend.",
	}, []string{"backend"})
	c.tokensOutputTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "tokens_output_total", Help: "Total output tokens produced per backend.",
	}, []string{"backend"})
	c.costEurTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "cost_eur_total", Help: "Total cost in EUR per backend.",
	}, []string{"backend"})

	c.cacheHits = factory.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "cache_hits", Help: "Total cache hits."})
	c.cacheMisses = factory.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "cache_misses", Help: "Total cache misses."})
	c.cacheSizeBytes = factory.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "cache_size_bytes", Help: "Current hot-tier size in bytes."})
	c.cacheEntries = factory.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "cache_entries", Help: "Current hot-tier entry count."})

	c.breakerState = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "breaker_state", Help: "Circuit breaker state per backend (0=closed,1=half_open,2=open).",
	}, []string{"backend"})
	c.breakerTransitions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "breaker_transitions_total", Help: "Circuit breaker transitions.",
	}, []string{"from", "to"})

	c.ragQueriesTotal = factory.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rag_queries_total", Help: "Total RAG enhance() invocations."})
	c.ragFallbacksTotal = factory.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rag_fallbacks_total", Help: "Total RAG enhancements that fell back to the unenriched prompt."})
	c.ragErrorsTotal = factory.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rag_errors_total", Help: "Total RAG degradations (ragStatus=error)."})

	c.poolActiveSockets = factory.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "pool_active_sockets", Help: "Connection Pool in-flight requests."})
	c.poolFreeSockets = factory.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "pool_free_sockets", Help: "Connection Pool idle headroom."})

	return c
}

// RecordRequest updates the per-backend request counters and latency
// histogram for one completed optimize() attempt (success or failure).
func (c *Collector) RecordRequest(backend string, success bool, failureKind string, latency time.Duration) {
	c.requestsTotal.WithLabelValues(backend).Inc()
	if success {
		c.requestsSuccess.WithLabelValues(backend).Inc()
	} else {
		c.requestsFailure.WithLabelValues(backend, failureKind).Inc()
	}
	c.latencyMs.WithLabelValues(backend).Observe(float64(latency.Milliseconds()))
}

// RecordTokensAndCost updates token and cost counters for one successful
// call (§9 OQ2: cost is always computed, never left at zero).
func (c *Collector) RecordTokensAndCost(backend string, tokensIn, tokensOut int, costEUR float64) {
	c.tokensInputTotal.WithLabelValues(backend).Add(float64(tokensIn))
	c.tokensOutputTotal.WithLabelValues(backend).Add(float64(tokensOut))
	c.costEurTotal.WithLabelValues(backend).Add(costEUR)
}

// RecordCacheHit/RecordCacheMiss update the cache hit/miss counters.
func (c *Collector) RecordCacheHit()  { c.cacheHits.Inc() }
func (c *Collector) RecordCacheMiss() { c.cacheMisses.Inc() }

// SetCacheSize updates the cache size gauges, called after every hot-tier
// mutation.
func (c *Collector) SetCacheSize(entries int, bytes int64) {
	c.cacheEntries.Set(float64(entries))
	c.cacheSizeBytes.Set(float64(bytes))
}

// breakerStateValue maps a breaker state to the gauge's numeric encoding.
func breakerStateValue(state types.BreakerStateKind) float64 {
	switch state {
	case types.BreakerHalfOpen:
		return 1
	case types.BreakerOpen:
		return 2
	default:
		return 0
	}
}

// RecordBreakerTransition updates the breaker_state gauge and
// breaker_transitions_total counter (wired to circuitbreaker.Breaker's
// OnStateChange callback by the Adaptive Router).
func (c *Collector) RecordBreakerTransition(backend string, from, to types.BreakerStateKind) {
	c.breakerState.WithLabelValues(backend).Set(breakerStateValue(to))
	c.breakerTransitions.WithLabelValues(string(from), string(to)).Inc()
}

// RecordRAGQuery, RecordRAGFallback, RecordRAGError update the RAG
// Orchestrator's counters.
func (c *Collector) RecordRAGQuery()    { c.ragQueriesTotal.Inc() }
func (c *Collector) RecordRAGFallback() { c.ragFallbacksTotal.Inc() }
func (c *Collector) RecordRAGError()    { c.ragErrorsTotal.Inc() }

// SetPoolGauges mirrors the Connection Pool's live socket counts into the
// pool_active_sockets/pool_free_sockets gauges.
func (c *Collector) SetPoolGauges(active, free int64) {
	c.poolActiveSockets.Set(float64(active))
	c.poolFreeSockets.Set(float64(free))
}

// CacheHitRate reports hits/(hits+misses) observed so far, used by
// Runtime.Status to populate the cache health view (§4.9). Returns 0 when
// no lookups have happened yet.
func (c *Collector) CacheHitRate() float64 {
	hits := counterValue(c.cacheHits)
	misses := counterValue(c.cacheMisses)
	total := hits + misses
	if total == 0 {
		return 0
	}
	return hits / total
}

// Export renders every registered metric in the Prometheus text exposition
// format (spec.md §6's metrics() → text).
func (c *Collector) Export() (string, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return "", err
	}
	sort.Slice(families, func(i, j int) bool {
		return families[i].GetName() < families[j].GetName()
	})

	var sb strings.Builder
	enc := expfmt.NewEncoder(&sb, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

// gaugeValue is a small helper used by tests to read back a gauge's
// current value without depending on Export()'s text format.
func gaugeValue(g prometheus.Gauge) float64 {
	var m dto.Metric
	_ = g.Write(&m)
	return m.GetGauge().GetValue()
}

// counterValue is gaugeValue's counterpart for plain Counters.
func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	_ = c.Write(&m)
	return m.GetCounter().GetValue()
}
