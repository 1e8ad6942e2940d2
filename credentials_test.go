package claudette

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/RobLe3/claudette-sub003/config"
	"github.com/RobLe3/claudette-sub003/types"
)

func TestApplyEnvCredentialsFillsEmptyFieldsFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OLLAMA_BASE_URL", "http://localhost:11434")

	cfg := config.Config{Backends: map[string]config.BackendConfig{
		"openai": {Variant: string(types.VariantOpenAI)},
		"local":  {Variant: string(types.VariantOllamaLocal)},
	}}

	got := ApplyEnvCredentials(cfg)
	assert.Equal(t, "sk-from-env", got.Backends["openai"].APIKey)
	assert.Equal(t, "http://localhost:11434", got.Backends["local"].BaseURL)
}

func TestApplyEnvCredentialsNeverOverwritesExistingValue(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg := config.Config{Backends: map[string]config.BackendConfig{
		"openai": {Variant: string(types.VariantOpenAI), APIKey: "sk-already-set"},
	}}

	got := ApplyEnvCredentials(cfg)
	assert.Equal(t, "sk-already-set", got.Backends["openai"].APIKey)
}

func TestApplyEnvCredentialsOllamaFallsBackToFlexconKey(t *testing.T) {
	t.Setenv("FLEXCON_API_KEY", "flexcon-secret")

	cfg := config.Config{Backends: map[string]config.BackendConfig{
		"local": {Variant: string(types.VariantOllamaLocal)},
	}}

	got := ApplyEnvCredentials(cfg)
	assert.Equal(t, "flexcon-secret", got.Backends["local"].APIKey)
}
