package claudette

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/RobLe3/claudette-sub003/types"
)

func TestComputeFingerprintStableUnderWhitespaceVariation(t *testing.T) {
	opts := types.RequestOptions{Model: "gpt-4o-mini", MaxTokens: 256}
	a := computeFingerprint("  hello   world  ", nil, opts)
	b := computeFingerprint("hello world", nil, opts)
	assert.Equal(t, a, b)
}

func TestComputeFingerprintIndependentOfFileOrder(t *testing.T) {
	opts := types.RequestOptions{Model: "gpt-4o-mini"}
	a := computeFingerprint("p", []types.FileRef{{Hash: "h1"}, {Hash: "h2"}}, opts)
	b := computeFingerprint("p", []types.FileRef{{Hash: "h2"}, {Hash: "h1"}}, opts)
	assert.Equal(t, a, b)
}

func TestComputeFingerprintDiffersOnOptionsSubset(t *testing.T) {
	base := computeFingerprint("p", nil, types.RequestOptions{Model: "a", MaxTokens: 10})
	diffModel := computeFingerprint("p", nil, types.RequestOptions{Model: "b", MaxTokens: 10})
	diffTokens := computeFingerprint("p", nil, types.RequestOptions{Model: "a", MaxTokens: 20})
	diffTemp := computeFingerprint("p", nil, types.RequestOptions{Model: "a", MaxTokens: 10, HasTemperature: true, Temperature: 0.5})

	assert.NotEqual(t, base, diffModel)
	assert.NotEqual(t, base, diffTokens)
	assert.NotEqual(t, base, diffTemp)
}

func TestComputeFingerprintIgnoresUnsetTemperatureFlag(t *testing.T) {
	a := computeFingerprint("p", nil, types.RequestOptions{Temperature: 0.9, HasTemperature: false})
	b := computeFingerprint("p", nil, types.RequestOptions{Temperature: 0, HasTemperature: false})
	assert.Equal(t, a, b, "temperature must only affect the fingerprint when explicitly set")
}

func TestNormalizePromptCollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", normalizePrompt("  a\tb\n\nc  "))
}
