// Package router implements the Adaptive Router (spec.md §4.7): backend
// scoring, selection, fallback sequencing, and the wait schedule applied
// between attempts. Grounded on llm/router/router.go's WeightedRouter
// (filterCandidates -> scoreCandidates -> weightedSelect pipeline),
// generalized from the teacher's weighted-random selection to the spec's
// deterministic lowest-score-wins rule, and on llm/resilient_provider.go's
// ResilientProvider decorator for the per-attempt breaker-gated adapter
// call.
package router

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/RobLe3/claudette-sub003/backend"
	"github.com/RobLe3/claudette-sub003/circuitbreaker"
	"github.com/RobLe3/claudette-sub003/config"
	claudetteerrors "github.com/RobLe3/claudette-sub003/errors"
	"github.com/RobLe3/claudette-sub003/health"
	"github.com/RobLe3/claudette-sub003/retry"
	"github.com/RobLe3/claudette-sub003/types"
)

const (
	referenceCostEUR    = 0.01
	referenceLatencyMs  = 10000.0
	availabilityDecayMs = 3_600_000.0
	decayGraceWindow    = 60 * time.Second
)

// Candidate is one registered backend: its static descriptor, its adapter,
// and its own circuit breaker (§9's "BackendTable owned by the Runtime").
type Candidate struct {
	Descriptor types.BackendDescriptor
	Adapter    backend.Adapter
	Breaker    *circuitbreaker.Breaker
}

// HealthSource is the subset of health.Monitor the Router depends on.
type HealthSource interface {
	Get(backend string) types.HealthRecord
	RecordOutcome(backend string, success bool, latencyMs int64)
}

// Metrics is the subset of observability.Collector the Router updates.
type Metrics interface {
	RecordRequest(backend string, success bool, failureKind string, latency time.Duration)
	RecordBreakerTransition(backend string, from, to types.BreakerStateKind)
}

type backendStats struct {
	avgLatencyMs  float64
	failureCount  int
	lastFailureAt time.Time
}

// Router selects and invokes backends per request, applying §4.7's scoring,
// fallback, and wait-schedule rules.
type Router struct {
	logger      *zap.Logger
	health      HealthSource
	metrics     Metrics
	weights     config.RouterWeights
	maxAttempts int

	mu         sync.RWMutex
	candidates []*Candidate
	byName     map[string]*Candidate

	statsMu sync.Mutex
	stats   map[string]*backendStats
}

// New constructs an empty Router. Register each configured backend before
// routing requests.
func New(weights config.RouterWeights, maxAttempts int, health HealthSource, metrics Metrics, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Router{
		logger:      logger,
		health:      health,
		metrics:     metrics,
		weights:     weights,
		maxAttempts: maxAttempts,
		byName:      make(map[string]*Candidate),
		stats:       make(map[string]*backendStats),
	}
}

// Register adds a backend and its own circuit breaker to the table, wired
// to the Router's breaker-transition metric (§4.9).
func (r *Router) Register(desc types.BackendDescriptor, adapter backend.Adapter) {
	br := circuitbreaker.New(desc.Name, r.logger, circuitbreaker.WithOnStateChange(r.onBreakerTransition))
	c := &Candidate{Descriptor: desc, Adapter: adapter, Breaker: br}

	r.mu.Lock()
	r.candidates = append(r.candidates, c)
	r.byName[desc.Name] = c
	r.mu.Unlock()

	r.statsMu.Lock()
	r.stats[desc.Name] = &backendStats{}
	r.statsMu.Unlock()
}

func (r *Router) onBreakerTransition(backendName string, from, to types.BreakerStateKind) {
	if r.metrics != nil {
		r.metrics.RecordBreakerTransition(backendName, from, to)
	}
}

// Candidates returns every registered candidate in registration order, for
// the Runtime's Status() snapshot.
func (r *Router) Candidates() []*Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Candidate, len(r.candidates))
	copy(out, r.candidates)
	return out
}

// usable implements §3's invariant: enabled, credentialed, within the
// health TTL, healthy, and not breaker-open.
func (r *Router) usable(c *Candidate) bool {
	if !c.Descriptor.Enabled {
		return false
	}
	if c.Descriptor.APIKey == "" && c.Descriptor.Variant != types.VariantOllamaLocal {
		return false
	}
	if r.health != nil {
		rec := r.health.Get(c.Descriptor.Name)
		if rec.Stale(health.TTL) || !rec.Healthy {
			return false
		}
	}
	return c.Breaker.State() != types.BreakerOpen
}

func (r *Router) statFor(name string) *backendStats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	st, ok := r.stats[name]
	if !ok {
		st = &backendStats{}
		r.stats[name] = st
	}
	return st
}

// recordLatency folds latencyMs into the backend's rolling average with an
// exponential moving average (alpha=0.2), the simplest stable estimator
// that does not require retaining a full sample history.
func (r *Router) recordLatency(name string, latencyMs int64) {
	st := r.statFor(name)
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	if st.avgLatencyMs == 0 {
		st.avgLatencyMs = float64(latencyMs)
		return
	}
	st.avgLatencyMs = st.avgLatencyMs*0.8 + float64(latencyMs)*0.2
}

func (r *Router) recordFailure(name string) {
	st := r.statFor(name)
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	st.failureCount++
	st.lastFailureAt = time.Now()
}

// score implements S = w_c*C + w_l*L + w_a*A (§4.7). estTokens seeds the
// cost component's estimateCost call; output tokens are unknown before the
// call so the estimate treats estTokens as all-input.
func (r *Router) score(c *Candidate, estTokens int) float64 {
	costEUR := c.Adapter.EstimateCost(estTokens, 0)
	costComponent := math.Min(costEUR/referenceCostEUR, 1.0)

	st := r.statFor(c.Descriptor.Name)
	r.statsMu.Lock()
	avgLatency := st.avgLatencyMs
	failureCount := st.failureCount
	lastFailureAt := st.lastFailureAt
	r.statsMu.Unlock()

	latencyComponent := math.Min(avgLatency/referenceLatencyMs, 1.0)

	availability := math.Min(float64(failureCount)/10.0, 1.0)
	if !lastFailureAt.IsZero() {
		since := time.Since(lastFailureAt)
		if since > decayGraceWindow {
			decay := math.Max(0.1, 1-float64(since.Milliseconds())/availabilityDecayMs)
			availability *= decay
		}
	}

	return r.weights.Cost*costComponent + r.weights.Latency*latencyComponent + r.weights.Availability*availability
}

// selectCandidate applies §4.7 step 1-3: forced-backend resolution or
// lowest-score selection with priority/registration-order tiebreakers.
func (r *Router) selectCandidate(forcedBackend string, exclude map[string]bool, estTokens int) (*Candidate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if forcedBackend != "" {
		c, ok := r.byName[forcedBackend]
		if !ok || exclude[forcedBackend] || !r.usable(c) {
			return nil, claudetteerrors.New(claudetteerrors.NoBackend,
				fmt.Sprintf("backend %q is not usable", forcedBackend))
		}
		return c, nil
	}

	var best *Candidate
	var bestScore float64
	for _, c := range r.candidates {
		if exclude[c.Descriptor.Name] || !r.usable(c) {
			continue
		}
		s := r.score(c, estTokens)
		switch {
		case best == nil:
			best, bestScore = c, s
		case s < bestScore:
			best, bestScore = c, s
		case s == bestScore && c.Descriptor.Priority < best.Descriptor.Priority:
			best, bestScore = c, s
		}
	}
	if best == nil {
		return nil, claudetteerrors.New(claudetteerrors.NoBackend, "no usable backend")
	}
	return best, nil
}

// transportKinds are the failure kinds eligible for forced-backend's
// single same-backend retry (§4.7: "a retryable transport error").
var transportKinds = map[types.FailureKind]bool{
	types.FailureConnection: true,
	types.FailureTimeout:    true,
}

func kindForCode(code claudetteerrors.Code) types.FailureKind {
	switch code {
	case claudetteerrors.BackendAuth:
		return types.FailureAuth
	case claudetteerrors.BackendRateLimit:
		return types.FailureRateLimit
	case claudetteerrors.BackendTimeout:
		return types.FailureTimeout
	case claudetteerrors.BackendConnection:
		return types.FailureConnection
	case claudetteerrors.BackendServer:
		return types.FailureServer
	case claudetteerrors.BackendClient, claudetteerrors.ContextLengthExceeded:
		return types.FailureClient
	default:
		return types.FailureOther
	}
}

// waitFor computes the §4.7 wait-schedule duration, jittered +/-15%
// (retry.Jitter).
func waitFor(strategy types.RecoveryStrategy, attempt int) time.Duration {
	switch strategy {
	case types.StrategyLinearBackoff:
		return retry.Jitter(retry.Linear(250*time.Millisecond, attempt))
	case types.StrategyExponentialBackoff:
		return retry.Jitter(retry.Exponential(500*time.Millisecond, attempt, 30*time.Second))
	default:
		return 0
	}
}

// Result is the outcome of one Execute call.
type Result struct {
	Response        types.Response
	RoutingDecision string
}

// Execute runs the §4.7 selection/execution/fallback loop: up to
// maxAttempts backend attempts (or, in forced mode, a single same-backend
// transport retry), honoring options.TimeoutMs as a hard ceiling.
func (r *Router) Execute(ctx context.Context, forcedBackend string, timeoutMs int, estTokens int, send func(context.Context, *Candidate) (types.Response, error)) (Result, error) {
	if timeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
	}

	exclude := make(map[string]bool)
	var decision []string
	var lastErr error

	forced := forcedBackend != ""
	transportRetriesLeft := 1

	for attempt := 1; attempt <= r.maxAttempts || forced; attempt++ {
		candidate, err := r.selectCandidate(forcedBackend, exclude, estTokens)
		if err != nil {
			if lastErr != nil {
				return Result{}, lastErr
			}
			return Result{RoutingDecision: joinDecision(decision)}, err
		}

		admit, strategy := candidate.Breaker.Allow()
		if !admit {
			exclude[candidate.Descriptor.Name] = true
			decision = append(decision, candidate.Descriptor.Name+":breaker_open")
			if forced {
				return Result{RoutingDecision: joinDecision(decision)}, claudetteerrors.New(
					claudetteerrors.NoBackend, "forced backend breaker is open").WithBackend(candidate.Descriptor.Name)
			}
			if w := waitFor(strategy, attempt); w > 0 {
				sleep(ctx, w)
			}
			continue
		}

		start := time.Now()
		resp, sendErr := send(ctx, candidate)
		latency := time.Since(start)

		if sendErr == nil {
			candidate.Breaker.RecordSuccess()
			r.recordLatency(candidate.Descriptor.Name, latency.Milliseconds())
			if r.health != nil {
				r.health.RecordOutcome(candidate.Descriptor.Name, true, latency.Milliseconds())
			}
			if r.metrics != nil {
				r.metrics.RecordRequest(candidate.Descriptor.Name, true, "", latency)
			}
			decision = append(decision, candidate.Descriptor.Name)
			return Result{Response: resp, RoutingDecision: joinDecision(decision)}, nil
		}

		code := claudetteerrors.GetCode(sendErr)
		kind := kindForCode(code)
		strategy = candidate.Breaker.RecordFailure(kind)
		r.recordFailure(candidate.Descriptor.Name)
		if r.health != nil {
			r.health.RecordOutcome(candidate.Descriptor.Name, false, latency.Milliseconds())
		}
		if r.metrics != nil {
			r.metrics.RecordRequest(candidate.Descriptor.Name, false, string(kind), latency)
		}
		decision = append(decision, candidate.Descriptor.Name+":"+string(kind))
		lastErr = sendErr

		if !claudetteerrors.IsRetryable(sendErr) {
			return Result{RoutingDecision: joinDecision(decision)}, sendErr
		}

		if forced {
			if transportKinds[kind] && transportRetriesLeft > 0 {
				transportRetriesLeft--
				if w := waitFor(strategy, attempt); w > 0 {
					sleep(ctx, w)
				}
				continue
			}
			return Result{RoutingDecision: joinDecision(decision)}, sendErr
		}

		exclude[candidate.Descriptor.Name] = true
		if attempt >= r.maxAttempts {
			return Result{RoutingDecision: joinDecision(decision)}, sendErr
		}
		if w := waitFor(strategy, attempt); w > 0 {
			sleep(ctx, w)
		}
	}

	return Result{RoutingDecision: joinDecision(decision)}, lastErr
}

func joinDecision(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "->"
		}
		out += p
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// sortedNames is a small helper used by tests and Status() builders that
// want deterministic backend ordering.
func sortedNames(candidates []*Candidate) []string {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Descriptor.Name
	}
	sort.Strings(names)
	return names
}
