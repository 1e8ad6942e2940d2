package qwencompatible

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/RobLe3/claudette-sub003/pool"
	"github.com/RobLe3/claudette-sub003/types"
)

func TestNewRequiresConfiguredBaseURL(t *testing.T) {
	p := New(types.BackendDescriptor{Name: "qwen-gateway", BaseURL: "https://gateway.internal/v1", Model: "qwen-plus"}, pool.New(nil), nil)
	assert.Equal(t, "https://gateway.internal/v1", p.Cfg.BaseURL)

	issues := p.ValidateConfig()
	assert.Empty(t, issues)
}

func TestNewWithoutBaseURLFailsValidation(t *testing.T) {
	p := New(types.BackendDescriptor{Name: "qwen-gateway", Model: "qwen-plus"}, pool.New(nil), nil)
	issues := p.ValidateConfig()
	assert.NotEmpty(t, issues)
}
