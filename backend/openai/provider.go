// Package openai is the "openai" variant adapter (spec.md §4.2): the
// openaicompat base with OpenAI's default base URL and no header
// overrides, mirroring the teacher's llm/providers/openai package's thin
// wrapping of openaicompat.Provider.
package openai

import (
	"go.uber.org/zap"

	"github.com/RobLe3/claudette-sub003/backend/openaicompat"
	"github.com/RobLe3/claudette-sub003/pool"
	"github.com/RobLe3/claudette-sub003/types"
)

const defaultBaseURL = "https://api.openai.com"

// New builds the openai variant adapter from a backend descriptor.
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
	}, p, logger)
}
