package observability

import "sync"

// CostSummary is a point-in-time rollup of cost/token counters, ported
// near-verbatim in shape from the teacher's llm/observability/cost.go
// CostSummary.
type CostSummary struct {
	TotalCostEUR    float64
	TotalTokens     int
	TokensInput     int
	TokensOutput    int
	RequestCount    int
	AvgCostPerReq   float64
	AvgTokensPerReq float64
}

// CostTracker accumulates cost and token counters across calls. Unlike the
// teacher's CostTracker, which looks prices up from a static
// provider:model table, Claudette's cost is always derived from the
// backend descriptor's costPerKToken (§9 OQ2: cost is never left at its
// zero value) — the caller passes in the already-computed costEUR rather
// than asking the tracker to price it.
type CostTracker struct {
	mu      sync.Mutex
	summary CostSummary
}

// NewCostTracker creates an empty tracker.
func NewCostTracker() *CostTracker {
	return &CostTracker{}
}

// Track records one completed call's token counts and cost.
func (t *CostTracker) Track(tokensInput, tokensOutput int, costEUR float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.summary.TotalCostEUR += costEUR
	t.summary.TokensInput += tokensInput
	t.summary.TokensOutput += tokensOutput
	t.summary.TotalTokens += tokensInput + tokensOutput
	t.summary.RequestCount++

	t.summary.AvgCostPerReq = t.summary.TotalCostEUR / float64(t.summary.RequestCount)
	t.summary.AvgTokensPerReq = float64(t.summary.TotalTokens) / float64(t.summary.RequestCount)
}

// Summary returns a snapshot of the accumulated totals.
func (t *CostTracker) Summary() CostSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.summary
}

// Reset zeroes the tracker, used by long-running hosts that want
// per-window rather than lifetime cost summaries.
func (t *CostTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary = CostSummary{}
}
