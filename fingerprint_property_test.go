package claudette

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/RobLe3/claudette-sub003/types"
)

// computeFingerprint must be a pure function of its inputs: the same
// prompt, file hashes, and options subset always produce the same digest,
// regardless of how many times it's recomputed or what order the files
// were passed in (§3, §9 OQ3).
func TestProperty_ComputeFingerprintIsDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("recomputing the fingerprint for identical input yields identical output", prop.ForAll(
		func(prompt, model string, maxTokens int) bool {
			opts := types.RequestOptions{Model: model, MaxTokens: maxTokens}
			a := computeFingerprint(prompt, nil, opts)
			b := computeFingerprint(prompt, nil, opts)
			return a == b
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.IntRange(0, 1<<20),
	))

	properties.TestingRun(t)
}

func TestProperty_ComputeFingerprintIndependentOfFileOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("shuffling file hashes does not change the fingerprint", prop.ForAll(
		func(h1, h2, h3 string) bool {
			opts := types.RequestOptions{Model: "gpt-4o-mini"}
			forward := []types.FileRef{{Hash: h1}, {Hash: h2}, {Hash: h3}}
			reversed := []types.FileRef{{Hash: h3}, {Hash: h2}, {Hash: h1}}
			return computeFingerprint("p", forward, opts) == computeFingerprint("p", reversed, opts)
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
