// Package ollamalocal is the "ollama_local" variant adapter (spec.md
// §4.2, §9 OQ1): the openaicompat base against a self-hosted endpoint with
// no credential requirement, grounded on the same embed-and-override
// pattern as the cloud variants but skipping the Authorization header when
// no API key is configured (a self-hosted Ollama instance typically has
// none).
package ollamalocal

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/RobLe3/claudette-sub003/backend/openaicompat"
	"github.com/RobLe3/claudette-sub003/pool"
	"github.com/RobLe3/claudette-sub003/types"
)

const defaultBaseURL = "http://localhost:11434"

// New builds the ollama_local variant adapter.
func New(desc types.BackendDescriptor, p *pool.Pool, logger *zap.Logger) *openaicompat.Provider {
	baseURL := desc.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return openaicompat.New(openaicompat.Config{
		Name:          desc.Name,
		BaseURL:       baseURL,
		APIKey:        desc.APIKey,
		DefaultModel:  desc.Model,
		MaxTokens:     desc.MaxTokens,
		Temperature:   desc.Temperature,
		CostPerKToken: desc.CostPerKToken,
		BuildHeaders: func(req *http.Request, apiKey string) {
			req.Header.Set("Content-Type", "application/json")
			if apiKey != "" {
				req.Header.Set("Authorization", "Bearer "+apiKey)
			}
		},
	}, p, logger)
}
