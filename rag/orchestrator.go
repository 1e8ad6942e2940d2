package rag

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/RobLe3/claudette-sub003/types"
)

// chainFor resolves the ordered provider names to try: a request-pinned
// provider takes priority over the registry's configured fallback chain.
func (r *Registry) chainFor(pinned string) []string {
	if pinned != "" {
		return []string{pinned}
	}
	if len(r.fallbackChain) > 0 {
		return r.fallbackChain
	}
	if r.defaultName != "" {
		return []string{r.defaultName}
	}
	return nil
}

// Enhance runs the fallback chain and merges any retrieved context into
// prompt per the requested ContextStrategy. It never returns an error
// unless strict is true and every provider in the chain failed or was
// unhealthy; otherwise it degrades gracefully and reports ragStatus="error".
func (r *Registry) Enhance(ctx context.Context, prompt string, opts types.RequestOptions) (mergedPrompt string, sources []string, ragStatus string, err error) {
	if !opts.UseRAG {
		return prompt, nil, "", nil
	}

	chain := r.chainFor(opts.RAGProvider)
	qreq := QueryRequest{Query: opts.RAGQuery}
	if qreq.Query == "" {
		qreq.Query = prompt
	}

	var result types.RAGContextResult
	found := false
	var lastErr error

	for _, name := range chain {
		p, ok := r.providers[name]
		if !ok {
			continue
		}
		if !p.HealthCheck(ctx) {
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		var attempt types.RAGContextResult
		g.Go(func() error {
			res, qerr := p.Query(gctx, qreq)
			attempt = res
			return qerr
		})
		if werr := g.Wait(); werr != nil {
			lastErr = werr
			continue
		}
		result = attempt
		found = true
		break
	}

	if !found {
		if opts.RAGStrict {
			if lastErr == nil {
				lastErr = errAllUnhealthy
			}
			return prompt, nil, "error", fmt.Errorf("rag: strict mode requires a successful provider: %w", lastErr)
		}
		return prompt, nil, "error", nil
	}

	for _, res := range result.Results {
		sources = append(sources, res.Source)
	}

	if len(result.Results) == 0 {
		return prompt, sources, "ok", nil
	}

	merged := ApplyStrategy(prompt, buildContextText(result.Results), opts.ContextStrategy)
	return merged, sources, "ok", nil
}

// buildContextText renders retrieved results as a numbered list, the shape
// both the prepend and append templates embed.
func buildContextText(results []types.RAGResult) string {
	lines := make([]string, len(results))
	for i, r := range results {
		lines[i] = fmt.Sprintf("%d. %s", i+1, r.Content)
	}
	return strings.Join(lines, "\n")
}

// ApplyStrategy merges contextText into prompt per the closed strategy set
// (§4.6). inject falls back to prepend when the literal "{context}" token
// is absent from prompt.
func ApplyStrategy(prompt, contextText string, strategy types.ContextStrategy) string {
	switch strategy {
	case types.StrategyAppend:
		return fmt.Sprintf("%s\n\nContext:\n%s", prompt, contextText)
	case types.StrategyInject:
		const token = "{context}"
		if strings.Contains(prompt, token) {
			return strings.Replace(prompt, token, contextText, 1)
		}
		return fmt.Sprintf("Context:\n%s\n\n%s", contextText, prompt)
	case types.StrategyPrepend:
		fallthrough
	default:
		return fmt.Sprintf("Context:\n%s\n\n%s", contextText, prompt)
	}
}
