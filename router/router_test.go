package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobLe3/claudette-sub003/backend"
	"github.com/RobLe3/claudette-sub003/circuitbreaker"
	"github.com/RobLe3/claudette-sub003/config"
	claudetteerrors "github.com/RobLe3/claudette-sub003/errors"
	"github.com/RobLe3/claudette-sub003/types"
)

type fakeHealth struct{ healthy map[string]bool }

func newFakeHealth(names ...string) *fakeHealth {
	h := &fakeHealth{healthy: make(map[string]bool)}
	for _, n := range names {
		h.healthy[n] = true
	}
	return h
}

func (h *fakeHealth) Get(backend string) types.HealthRecord {
	return types.HealthRecord{Backend: backend, Healthy: h.healthy[backend], LastProbe: time.Now()}
}
func (h *fakeHealth) RecordOutcome(backend string, success bool, latencyMs int64) {}

type fakeAdapter struct {
	name    string
	results []func() (types.Response, error)
	calls   int
}

func (a *fakeAdapter) Name() string { return a.name }
func (a *fakeAdapter) Send(ctx context.Context, req backend.SendRequest) (types.Response, error) {
	i := a.calls
	if i >= len(a.results) {
		i = len(a.results) - 1
	}
	a.calls++
	return a.results[i]()
}
func (a *fakeAdapter) ProbeHealth(ctx context.Context) (bool, int64) { return true, 10 }
func (a *fakeAdapter) EstimateCost(in, out int) float64              { return 0.0001 }
func (a *fakeAdapter) ValidateConfig() []backend.Issue               { return nil }
func (a *fakeAdapter) Supports(option string) bool                   { return true }

func ok(content, name string) func() (types.Response, error) {
	return func() (types.Response, error) {
		return types.Response{Content: content, BackendUsed: name}, nil
	}
}

func fail(code claudetteerrors.Code, retryable bool) func() (types.Response, error) {
	return func() (types.Response, error) {
		return types.Response{}, claudetteerrors.New(code, "boom").WithRetryable(retryable)
	}
}

func desc(name string) types.BackendDescriptor {
	return types.BackendDescriptor{Name: name, Enabled: true, APIKey: "key", Variant: types.VariantOpenAI}
}

func newRouter(h HealthSource) *Router {
	weights := config.RouterWeights{Cost: 0.4, Latency: 0.4, Availability: 0.2}
	return New(weights, 3, h, nil, nil)
}

func sendVia(adapters map[string]*fakeAdapter) func(context.Context, *Candidate) (types.Response, error) {
	return func(ctx context.Context, c *Candidate) (types.Response, error) {
		return adapters[c.Descriptor.Name].Send(ctx, backend.SendRequest{})
	}
}

func TestForcedBackendFailureNoFallback(t *testing.T) {
	h := newFakeHealth("openai", "claude")
	r := newRouter(h)
	r.Register(desc("openai"), nil)
	r.Register(desc("claude"), nil)

	adapters := map[string]*fakeAdapter{
		"openai": {name: "openai", results: []func() (types.Response, error){fail(claudetteerrors.BackendAuth, false)}},
		"claude": {name: "claude", results: []func() (types.Response, error){ok("pong", "claude")}},
	}

	_, err := r.Execute(context.Background(), "openai", 0, 10, sendVia(adapters))
	require.Error(t, err)
	assert.Equal(t, claudetteerrors.BackendAuth, claudetteerrors.GetCode(err))
	assert.Equal(t, 0, adapters["claude"].calls)
	assert.Equal(t, 1, adapters["openai"].calls)
}

func TestFallbackChainAfterRetryableFailures(t *testing.T) {
	h := newFakeHealth("openai", "claude")
	r := newRouter(h)
	r.Register(desc("openai"), nil)
	r.Register(desc("claude"), nil)

	adapters := map[string]*fakeAdapter{
		"openai": {name: "openai", results: []func() (types.Response, error){
			fail(claudetteerrors.BackendServer, true),
		}},
		"claude": {name: "claude", results: []func() (types.Response, error){ok("pong", "claude")}},
	}
	// selectCandidate scores every usable candidate through its Adapter.
	r.byName["openai"].Adapter = adapters["openai"]
	r.byName["claude"].Adapter = adapters["claude"]

	result, err := r.Execute(context.Background(), "", 0, 10, sendVia(adapters))
	require.NoError(t, err)
	assert.Equal(t, "pong", result.Response.Content)
	assert.Equal(t, "claude", result.Response.BackendUsed)
}

func TestBreakerOpenSkipsToNextBackend(t *testing.T) {
	h := newFakeHealth("openai", "claude")
	r := newRouter(h)
	r.Register(desc("openai"), nil)
	r.Register(desc("claude"), nil)

	openai := r.byName["openai"]
	for i := 0; i < 10; i++ {
		openai.Breaker.RecordFailure(types.FailureServer)
	}
	require.Equal(t, types.BreakerOpen, openai.Breaker.State())

	adapters := map[string]*fakeAdapter{
		"openai": {name: "openai", results: []func() (types.Response, error){ok("should-not-be-called", "openai")}},
		"claude": {name: "claude", results: []func() (types.Response, error){ok("pong", "claude")}},
	}
	// selectCandidate scores every usable candidate through its Adapter.
	r.byName["openai"].Adapter = adapters["openai"]
	r.byName["claude"].Adapter = adapters["claude"]

	result, err := r.Execute(context.Background(), "", 0, 10, sendVia(adapters))
	require.NoError(t, err)
	assert.Equal(t, "claude", result.Response.BackendUsed)
	assert.Equal(t, 0, adapters["openai"].calls)
}

func TestNoUsableBackendReturnsNoBackend(t *testing.T) {
	h := newFakeHealth()
	r := newRouter(h)
	r.Register(types.BackendDescriptor{Name: "openai", Enabled: false}, nil)

	_, err := r.Execute(context.Background(), "", 0, 10, sendVia(map[string]*fakeAdapter{}))
	require.Error(t, err)
	assert.Equal(t, claudetteerrors.NoBackend, claudetteerrors.GetCode(err))
}

func TestForcedBackendTransportErrorRetriesOnceSameBackend(t *testing.T) {
	h := newFakeHealth("openai")
	r := newRouter(h)
	r.Register(desc("openai"), nil)

	adapters := map[string]*fakeAdapter{
		"openai": {name: "openai", results: []func() (types.Response, error){
			fail(claudetteerrors.BackendConnection, true),
			ok("recovered", "openai"),
		}},
	}

	result, err := r.Execute(context.Background(), "openai", 0, 10, sendVia(adapters))
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Response.Content)
	assert.Equal(t, 2, adapters["openai"].calls)
}

func TestEqualScoresFallBackToRegistrationOrder(t *testing.T) {
	weights := config.RouterWeights{Cost: 1, Latency: 0, Availability: 0}
	r := New(weights, 3, newFakeHealth("cheap", "pricey"), nil, nil)
	r.Register(desc("cheap"), nil)
	r.Register(desc("pricey"), nil)

	r.byName["cheap"].Adapter = &fakeAdapter{name: "cheap"}
	r.byName["pricey"].Adapter = &fakeAdapter{name: "pricey"}

	// Both fakeAdapter.EstimateCost return the same constant, so scores
	// tie; registration order (cheap registered first) should win.
	candidate, err := r.selectCandidate("", map[string]bool{}, 1000)
	require.NoError(t, err)
	assert.Equal(t, "cheap", candidate.Descriptor.Name)
}

func TestCircuitBreakerOptionCompiles(t *testing.T) {
	// Sanity check that circuitbreaker.New + WithOnStateChange used by
	// Register still compiles against the current breaker API.
	b := circuitbreaker.New("x", nil, circuitbreaker.WithOnStateChange(func(string, types.BreakerStateKind, types.BreakerStateKind) {}))
	assert.Equal(t, types.BreakerClosed, b.State())
}
