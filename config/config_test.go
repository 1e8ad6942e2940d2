package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	return Config{
		Backends: map[string]BackendConfig{
			"openai": {Enabled: true, Variant: "openai", APIKey: "sk-test", Model: "gpt-4o", CostPerKToken: 0.005},
		},
		Router: RouterConfig{Weights: RouterWeights{Cost: 0.4, Latency: 0.4, Availability: 0.2}, MaxAttempts: 3},
	}
}

func TestValidateHappyPath(t *testing.T) {
	report := Validate(validConfig())
	assert.False(t, report.Fatal, "%+v", report.Issues)
}

func TestValidateNoBackends(t *testing.T) {
	report := Validate(Config{})
	assert.True(t, report.Fatal)
}

func TestValidateUnknownVariant(t *testing.T) {
	cfg := validConfig()
	cfg.Backends["weird"] = BackendConfig{Enabled: true, Variant: "flexcon"}
	report := Validate(cfg)
	assert.True(t, report.Fatal)
}

func TestValidateNoEnabledBackend(t *testing.T) {
	cfg := validConfig()
	b := cfg.Backends["openai"]
	b.Enabled = false
	cfg.Backends["openai"] = b
	report := Validate(cfg)
	assert.True(t, report.Fatal)
}

func TestValidateUnregisteredFallbackChainEntry(t *testing.T) {
	cfg := validConfig()
	cfg.RAG.FallbackChain = []string{"docs"}
	report := Validate(cfg)
	assert.True(t, report.Fatal)
}

func TestNormalizeWeightsSumZeroSelectsUniform(t *testing.T) {
	w := NormalizeWeights(RouterWeights{})
	assert.InDelta(t, 1.0/3, w.Cost, 1e-9)
	assert.InDelta(t, 1.0/3, w.Latency, 1e-9)
	assert.InDelta(t, 1.0/3, w.Availability, 1e-9)
}

func TestNormalizeWeightsRescales(t *testing.T) {
	w := NormalizeWeights(RouterWeights{Cost: 2, Latency: 2, Availability: 1})
	assert.InDelta(t, 1.0, w.Cost+w.Latency+w.Availability, 1e-9)
	assert.InDelta(t, 0.4, w.Cost, 1e-9)
}

func TestWithDefaults(t *testing.T) {
	cfg := WithDefaults(Config{})
	assert.Equal(t, 3600, cfg.Thresholds.CacheTTLSeconds)
	assert.Equal(t, 10000, cfg.Thresholds.MaxCacheEntries)
	assert.Equal(t, 3, cfg.Router.MaxAttempts)
}

func TestValidateConfigIdentityRoundTrip(t *testing.T) {
	cfg := WithDefaults(validConfig())
	report1 := Validate(cfg)
	report2 := Validate(cfg)
	assert.Equal(t, report1, report2)
	assert.False(t, report1.Fatal)
}
