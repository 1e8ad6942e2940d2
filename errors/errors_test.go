package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsRetryability(t *testing.T) {
	cases := []struct {
		code      Code
		retryable bool
	}{
		{BackendTimeout, true},
		{BackendRateLimit, true},
		{BackendConnection, true},
		{BackendServer, true},
		{BackendAuth, false},
		{BackendClient, false},
		{ConfigInvalid, false},
		{CredentialMissing, false},
		{ContextLengthExceeded, false},
	}
	for _, c := range cases {
		err := New(c.code, "boom")
		assert.Equal(t, c.retryable, err.Retryable, "code=%s", c.code)
	}
}

func TestWithCauseUnwraps(t *testing.T) {
	cause := errors.New("underlying")
	err := New(Internal, "wrapped").WithCause(cause)
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "underlying")
	assert.NotContains(t, err.Error(), "wrapped: wrapped")
}

func TestIsRetryableAndGetCode(t *testing.T) {
	err := New(BackendTimeout, "slow")
	assert.True(t, IsRetryable(err))
	assert.Equal(t, BackendTimeout, GetCode(err))

	assert.False(t, IsRetryable(errors.New("plain")))
	assert.Equal(t, Code(""), GetCode(errors.New("plain")))
}

func TestWithRetryableOverride(t *testing.T) {
	err := New(BackendServer, "500").WithRetryable(false)
	assert.False(t, err.Retryable)
}

func TestWithBackend(t *testing.T) {
	err := New(BackendAuth, "denied").WithBackend("openai")
	assert.Equal(t, "openai", err.Backend)
}
