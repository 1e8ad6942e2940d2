package rag

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobLe3/claudette-sub003/pool"
)

func newTestHTTPProvider(t *testing.T, handler http.HandlerFunc) (*HTTPProvider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	p := NewHTTPProvider(HTTPConfig{Name: "docs", Endpoint: srv.URL + "/query", APIKey: "key"}, pool.New(nil), nil)
	return p, srv
}

func TestHTTPProviderQuerySuccess(t *testing.T) {
	p, srv := newTestHTTPProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{"results":[{"content":"doc one","score":0.9,"source":"kb"}],"strategySource":"hybrid"}`))
	})
	defer srv.Close()

	require.NoError(t, p.Connect(context.Background()))

	result, err := p.Query(context.Background(), QueryRequest{Query: "how do I configure this"})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "doc one", result.Results[0].Content)
	assert.Equal(t, 1, result.TotalResults)
}

func TestHTTPProviderQueryErrorStatus(t *testing.T) {
	p, srv := newTestHTTPProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer srv.Close()

	_, err := p.Query(context.Background(), QueryRequest{Query: "x"})
	require.Error(t, err)
}

func TestHTTPProviderHealthCheckRequiresConnect(t *testing.T) {
	p, srv := newTestHTTPProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	assert.False(t, p.HealthCheck(context.Background()), "unconnected provider must report unhealthy")

	require.NoError(t, p.Connect(context.Background()))
	assert.True(t, p.HealthCheck(context.Background()))

	require.NoError(t, p.Disconnect(context.Background()))
	assert.Equal(t, "disconnected", p.Status())
}
