package openaicompat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobLe3/claudette-sub003/backend"
	claudetteerrors "github.com/RobLe3/claudette-sub003/errors"
	"github.com/RobLe3/claudette-sub003/pool"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*Provider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	p := New(Config{
		Name:          "test-backend",
		BaseURL:       srv.URL,
		APIKey:        "sk-test",
		DefaultModel:  "gpt-4o-mini",
		CostPerKToken: 0.01,
	}, pool.New(nil), nil)
	return p, srv
}

func TestSendSuccessReportedTokens(t *testing.T) {
	p, srv := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Write([]byte(`{"model":"gpt-4o-mini","choices":[{"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2}}`))
	})
	defer srv.Close()

	resp, err := p.Send(context.Background(), backend.SendRequest{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	assert.Equal(t, 5, resp.TokensInput)
	assert.Equal(t, 2, resp.TokensOutput)
	assert.Equal(t, "reported", resp.Metadata.TokenSource)
	assert.InDelta(t, 0.00007, resp.CostEUR, 1e-9)
}

func TestSendEstimatesWhenUsageMissing(t *testing.T) {
	p, srv := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model":"gpt-4o-mini","choices":[{"message":{"role":"assistant","content":"hi there"},"finish_reason":"stop"}]}`))
	})
	defer srv.Close()

	resp, err := p.Send(context.Background(), backend.SendRequest{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "estimated", resp.Metadata.TokenSource)
	assert.Greater(t, resp.TokensInput, 0)
}

func TestSendClassifiesAuthFailure(t *testing.T) {
	p, srv := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid api key"}`))
	})
	defer srv.Close()

	_, err := p.Send(context.Background(), backend.SendRequest{Prompt: "hello"})
	require.Error(t, err)
	assert.Equal(t, claudetteerrors.BackendAuth, claudetteerrors.GetCode(err))
	assert.False(t, claudetteerrors.IsRetryable(err))
}

func TestSendClassifiesContextLengthExceeded(t *testing.T) {
	p, srv := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"This model's maximum context length is 4096 tokens"}`))
	})
	defer srv.Close()

	_, err := p.Send(context.Background(), backend.SendRequest{Prompt: "hello"})
	require.Error(t, err)
	assert.Equal(t, claudetteerrors.ContextLengthExceeded, claudetteerrors.GetCode(err))
}

func TestSendClassifiesRateLimit(t *testing.T) {
	p, srv := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	defer srv.Close()

	_, err := p.Send(context.Background(), backend.SendRequest{Prompt: "hello"})
	require.Error(t, err)
	assert.Equal(t, claudetteerrors.BackendRateLimit, claudetteerrors.GetCode(err))
	assert.True(t, claudetteerrors.IsRetryable(err))
}

func TestProbeHealthHealthy(t *testing.T) {
	p, srv := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	healthy, latency := p.ProbeHealth(context.Background())
	assert.True(t, healthy)
	assert.GreaterOrEqual(t, latency, int64(0))
}

func TestProbeHealthUnhealthy(t *testing.T) {
	p, srv := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer srv.Close()

	healthy, _ := p.ProbeHealth(context.Background())
	assert.False(t, healthy)
}

func TestValidateConfigFlagsMissingFields(t *testing.T) {
	p := New(Config{Name: "bare"}, pool.New(nil), nil)
	issues := p.ValidateConfig()
	assert.Len(t, issues, 2)
}
