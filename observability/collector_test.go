package observability

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobLe3/claudette-sub003/types"
)

func TestRecordRequestUpdatesCountersAndLatency(t *testing.T) {
	c := New()
	c.RecordRequest("openai", true, "", 120*time.Millisecond)
	c.RecordRequest("openai", false, "rate_limit", 50*time.Millisecond)

	out, err := c.Export()
	require.NoError(t, err)
	assert.Contains(t, out, "claudette_requests_total")
	assert.Contains(t, out, `backend="openai"`)
	assert.Contains(t, out, "claudette_requests_failure")
	assert.Contains(t, out, `kind="rate_limit"`)
}

func TestRecordTokensAndCost(t *testing.T) {
	c := New()
	c.RecordTokensAndCost("anthropic_claude", 100, 50, 0.002)

	out, err := c.Export()
	require.NoError(t, err)
	assert.Contains(t, out, "claudette_tokens_input_total")
	assert.Contains(t, out, "claudette_cost_eur_total")
}

func TestCacheCountersAndGauges(t *testing.T) {
	c := New()
	c.RecordCacheHit()
	c.RecordCacheHit()
	c.RecordCacheMiss()
	c.SetCacheSize(10, 2048)

	assert.Equal(t, float64(2), counterValue(c.cacheHits))
	assert.Equal(t, float64(2048), gaugeValue(c.cacheSizeBytes))
	assert.Equal(t, float64(10), gaugeValue(c.cacheEntries))
}

func TestCacheHitRate(t *testing.T) {
	c := New()
	assert.Equal(t, 0.0, c.CacheHitRate())

	c.RecordCacheHit()
	c.RecordCacheHit()
	c.RecordCacheHit()
	c.RecordCacheMiss()

	assert.InDelta(t, 0.75, c.CacheHitRate(), 1e-9)
}

func TestBreakerStateValue(t *testing.T) {
	assert.Equal(t, float64(0), breakerStateValue(types.BreakerClosed))
	assert.Equal(t, float64(1), breakerStateValue(types.BreakerHalfOpen))
	assert.Equal(t, float64(2), breakerStateValue(types.BreakerOpen))
}

func TestRecordBreakerTransitionUpdatesGaugeAndCounter(t *testing.T) {
	c := New()
	c.RecordBreakerTransition("openai", types.BreakerClosed, types.BreakerOpen)

	out, err := c.Export()
	require.NoError(t, err)
	assert.Contains(t, out, "claudette_breaker_state")
	assert.Contains(t, out, "claudette_breaker_transitions_total")
	assert.True(t, strings.Contains(out, `from="closed"`) || strings.Contains(out, `from="open"`))
}

func TestRAGCounters(t *testing.T) {
	c := New()
	c.RecordRAGQuery()
	c.RecordRAGFallback()
	c.RecordRAGError()

	out, err := c.Export()
	require.NoError(t, err)
	assert.Contains(t, out, "claudette_rag_queries_total 1")
	assert.Contains(t, out, "claudette_rag_fallbacks_total 1")
	assert.Contains(t, out, "claudette_rag_errors_total 1")
}

func TestSetPoolGauges(t *testing.T) {
	c := New()
	c.SetPoolGauges(3, 7)
	assert.Equal(t, float64(3), gaugeValue(c.poolActiveSockets))
	assert.Equal(t, float64(7), gaugeValue(c.poolFreeSockets))
}

func TestCostTrackerAccumulatesAverages(t *testing.T) {
	ct := NewCostTracker()
	ct.Track(100, 50, 0.01)
	ct.Track(200, 100, 0.02)

	summary := ct.Summary()
	assert.Equal(t, 2, summary.RequestCount)
	assert.InDelta(t, 0.03, summary.TotalCostEUR, 1e-9)
	assert.Equal(t, 450, summary.TotalTokens)
	assert.InDelta(t, 0.015, summary.AvgCostPerReq, 1e-9)

	ct.Reset()
	assert.Equal(t, CostSummary{}, ct.Summary())
}
