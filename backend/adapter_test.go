package backend

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/RobLe3/claudette-sub003/types"
)

func TestClassifyHTTPStatusTable(t *testing.T) {
	cases := []struct {
		status    int
		wantKind  types.FailureKind
		retryable bool
	}{
		{http.StatusUnauthorized, types.FailureAuth, false},
		{http.StatusForbidden, types.FailureAuth, false},
		{http.StatusBadRequest, types.FailureClient, false},
		{http.StatusNotFound, types.FailureClient, false},
		{http.StatusUnprocessableEntity, types.FailureClient, false},
		{http.StatusRequestTimeout, types.FailureTimeout, true},
		{http.StatusGatewayTimeout, types.FailureTimeout, true},
		{http.StatusConflict, types.FailureRateLimit, true},
		{http.StatusTooManyRequests, types.FailureRateLimit, true},
		{http.StatusInternalServerError, types.FailureServer, true},
		{http.StatusBadGateway, types.FailureServer, true},
		{http.StatusServiceUnavailable, types.FailureServer, true},
	}
	for _, c := range cases {
		kind, retryable := ClassifyHTTPStatus(c.status)
		assert.Equal(t, c.wantKind, kind, "status %d", c.status)
		assert.Equal(t, c.retryable, retryable, "status %d", c.status)
	}
}

func TestClassifyHTTPStatusSuccess(t *testing.T) {
	kind, retryable := ClassifyHTTPStatus(http.StatusOK)
	assert.Equal(t, types.FailureKind(""), kind)
	assert.True(t, retryable)
}

func TestIsContextLengthExceededDetectsMarker(t *testing.T) {
	assert.True(t, IsContextLengthExceeded(http.StatusBadRequest, `{"error":"This model's maximum context length is 4096 tokens"}`))
	assert.True(t, IsContextLengthExceeded(http.StatusBadRequest, `{"error":"context_length_exceeded"}`))
	assert.False(t, IsContextLengthExceeded(http.StatusBadRequest, `{"error":"invalid json"}`))
	assert.False(t, IsContextLengthExceeded(http.StatusInternalServerError, `maximum context length`))
}

func TestEstimateCost(t *testing.T) {
	assert.InDelta(t, 0.03, EstimateCost(2000, 1000, 0.01), 1e-9)
}
