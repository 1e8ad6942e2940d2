package config

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// NormalizeWeights must rescale any non-degenerate triple so its components
// sum to 1.0, and must fall back to the uniform split when the input sums to
// ~0 (§8 boundary).
func TestProperty_NormalizeWeightsSumsToOne(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("normalized weights sum to 1 and stay non-negative", prop.ForAll(
		func(cost, latency, availability float64) bool {
			w := RouterWeights{Cost: cost, Latency: latency, Availability: availability}
			got := NormalizeWeights(w)

			sum := got.Cost + got.Latency + got.Availability
			if math.Abs(sum-1.0) > 1e-6 {
				t.Logf("normalized sum = %v, want ~1.0 (input %+v)", sum, w)
				return false
			}

			if got.Cost < 0 || got.Latency < 0 || got.Availability < 0 {
				t.Logf("normalized weights must stay non-negative for non-negative input: %+v", got)
				return false
			}
			return true
		},
		gen.Float64Range(0, 1000),
		gen.Float64Range(0, 1000),
		gen.Float64Range(0, 1000),
	))

	properties.TestingRun(t)
}

func TestProperty_NormalizeWeightsIsIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("normalizing an already-normalized weight set is a no-op", prop.ForAll(
		func(cost, latency, availability float64) bool {
			w := RouterWeights{Cost: cost, Latency: latency, Availability: availability}
			once := NormalizeWeights(w)
			twice := NormalizeWeights(once)

			return math.Abs(once.Cost-twice.Cost) < 1e-9 &&
				math.Abs(once.Latency-twice.Latency) < 1e-9 &&
				math.Abs(once.Availability-twice.Availability) < 1e-9
		},
		gen.Float64Range(0, 1000),
		gen.Float64Range(0, 1000),
		gen.Float64Range(0, 1000),
	))

	properties.TestingRun(t)
}

func TestProperty_NormalizeWeightsZeroSumFallsBackToUniform(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("a near-zero weight sum normalizes to the uniform split", prop.ForAll(
		func(epsilon float64) bool {
			got := NormalizeWeights(RouterWeights{Cost: epsilon, Latency: epsilon, Availability: epsilon})
			return got == defaultWeights
		},
		gen.Float64Range(0, 1e-10),
	))

	properties.TestingRun(t)
}
