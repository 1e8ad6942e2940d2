// Package qwencompatible is the "qwen_compatible" variant adapter
// (spec.md §4.2, §9 OQ1): the openaicompat base pointed at a
// user-configured baseURL, the same way the teacher's llm/providers/qwen
// package overrides only BaseURL/default model on top of
// openaicompat.Provider to proxy Qwen through an OpenAI-compatible
// gateway.
package qwencompatible

import (
	"go.uber.org/zap"

	"github.com/RobLe3/claudette-sub003/backend/openaicompat"
	"github.com/RobLe3/claudette-sub003/pool"
	"github.com/RobLe3/claudette-sub003/types"
)

// New builds the qwen_compatible variant adapter. Unlike openai, there is
// no sensible default BaseURL: a gateway URL must be configured.
func New(desc types.BackendDescriptor, p *pool.Pool, logger *zap.Logger) *openaicompat.Provider {
	return openaicompat.New(openaicompat.Config{
		Name:          desc.Name,
		BaseURL:       desc.BaseURL,
		APIKey:        desc.APIKey,
		DefaultModel:  desc.Model,
		MaxTokens:     desc.MaxTokens,
		Temperature:   desc.Temperature,
		CostPerKToken: desc.CostPerKToken,
	}, p, logger)
}
