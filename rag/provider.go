// Package rag implements the RAG Orchestrator (spec.md §4.6): a registry of
// named providers, an ordered fallback chain, and the prepend/append/inject
// context strategies. Generalized from the teacher's single-retriever
// config→runtime bridge (rag/factory.go's NewRetrieverFromConfig) to
// building and registering N named providers and iterating a fallback
// chain over them; the template assembly is grounded on
// rag/context_provider.go's SimpleContextProvider.
package rag

import (
	"context"
	"fmt"

	"github.com/RobLe3/claudette-sub003/types"
)

// QueryRequest is the input to a Provider's Query call.
type QueryRequest struct {
	Query      string
	MaxResults int
	Threshold  float64
	Context    string
	Metadata   map[string]string
}

// Provider is a single retrieval backend registered under a unique name.
type Provider interface {
	Name() string
	Query(ctx context.Context, req QueryRequest) (types.RAGContextResult, error)
	HealthCheck(ctx context.Context) bool
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Status() string
}

// Registry holds providers by unique name plus the ordered fallback chain
// consulted by Enhance.
type Registry struct {
	providers     map[string]Provider
	fallbackChain []string
	defaultName   string
}

// NewRegistry builds a registry. fallbackChain and defaultName are not
// validated against providers here; config.Validate performs that check
// before a Registry is constructed from a live config.
func NewRegistry(providers []Provider, fallbackChain []string, defaultName string) *Registry {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Registry{providers: m, fallbackChain: fallbackChain, defaultName: defaultName}
}

// All returns every registered provider, in no particular order, for the
// Lifecycle Controller's connect/disconnect sweep.
func (r *Registry) All() []Provider {
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	return out
}

// Provider looks up a registered provider by name.
func (r *Registry) Provider(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

var errAllUnhealthy = fmt.Errorf("rag: no provider in the fallback chain is healthy")
