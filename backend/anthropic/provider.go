// Package anthropic is the "anthropic_claude" variant adapter (spec.md
// §4.2): the Anthropic Messages API wire format, which differs from the
// OpenAI-compatible base enough (top-level "system" field, required
// max_tokens, content-block responses) to warrant its own encode/decode
// rather than embedding openaicompat.Provider. Grounded on the teacher's
// llm/providers/anthropic package shape and the Messages API field names
// visible in the teacher's (indirect, unimported) anthropic-sdk-go
// dependency; Claudette hand-rolls the HTTP the same way every other
// variant does instead of vendoring a provider SDK.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/RobLe3/claudette-sub003/backend"
	claudetteerrors "github.com/RobLe3/claudette-sub003/errors"
	"github.com/RobLe3/claudette-sub003/pool"
	"github.com/RobLe3/claudette-sub003/tokenizer"
	"github.com/RobLe3/claudette-sub003/types"
)

const (
	defaultBaseURL       = "https://api.anthropic.com"
	messagesPath         = "/v1/messages"
	anthropicVersion     = "2023-06-01"
	healthProbeTimeout   = 3 * time.Second
	healthProbeMaxTokens = 1
)

// Config configures a Provider instance.
type Config struct {
	Name          string
	BaseURL       string
	APIKey        string
	DefaultModel  string
	MaxTokens     int
	Temperature   float64
	CostPerKToken float64
}

// Provider implements backend.Adapter for the Anthropic Messages API.
type Provider struct {
	cfg    Config
	pool   *pool.Pool
	logger *zap.Logger
	tok    tokenizer.Tokenizer
}

// New constructs the anthropic_claude variant adapter from a backend
// descriptor.
func New(desc types.BackendDescriptor, p *pool.Pool, logger *zap.Logger) *Provider {
	baseURL := desc.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg: Config{
			Name:          desc.Name,
			BaseURL:       baseURL,
			APIKey:        desc.APIKey,
			DefaultModel:  desc.Model,
			MaxTokens:     desc.MaxTokens,
			Temperature:   desc.Temperature,
			CostPerKToken: desc.CostPerKToken,
		},
		pool:   p,
		logger: logger,
		tok:    tokenizer.NewEstimatorTokenizer(desc.Model),
	}
}

func (p *Provider) Name() string { return p.cfg.Name }

func (p *Provider) headers() http.Header {
	h := http.Header{}
	h.Set("x-api-key", p.cfg.APIKey)
	h.Set("anthropic-version", anthropicVersion)
	h.Set("Content-Type", "application/json")
	return h
}

func (p *Provider) endpoint() string {
	return p.cfg.BaseURL + messagesPath
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type messagesResponse struct {
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      usage          `json:"usage"`
}

// Send implements backend.Adapter. Unlike the OpenAI-compatible variants,
// max_tokens is required by the wire API: a zero value falls back to the
// descriptor's configured MaxTokens and, failing that, a safe minimum.
func (p *Provider) Send(ctx context.Context, req backend.SendRequest) (types.Response, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.cfg.MaxTokens
	}
	if maxTokens == 0 {
		maxTokens = 1024
	}

	body := messagesRequest{
		Model:       model,
		System:      req.SystemHint,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return types.Response{}, claudetteerrors.New(claudetteerrors.Internal, "encode request").WithCause(err).WithBackend(p.Name())
	}

	start := time.Now()
	result, err := p.pool.Request(ctx, http.MethodPost, p.endpoint(), p.headers(), payload, 0)
	latency := time.Since(start)
	if err != nil {
		return types.Response{}, claudetteerrors.New(claudetteerrors.BackendConnection, "transport failure").
			WithCause(err).WithBackend(p.Name()).WithRetryable(true)
	}
	if result.Status >= 400 {
		return types.Response{}, p.classifyFailure(result.Status, string(result.Body))
	}

	var parsed messagesResponse
	if err := json.Unmarshal(result.Body, &parsed); err != nil {
		return types.Response{}, claudetteerrors.New(claudetteerrors.BackendServer, "malformed response body").
			WithCause(err).WithBackend(p.Name())
	}

	content := ""
	for _, block := range parsed.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	tokenSource := "reported"
	tokensIn, tokensOut := parsed.Usage.InputTokens, parsed.Usage.OutputTokens
	if tokensIn == 0 && tokensOut == 0 {
		tokenSource = "estimated"
		if n, err := p.tok.CountTokens(req.Prompt); err == nil {
			tokensIn = n
		}
		if n, err := p.tok.CountTokens(content); err == nil {
			tokensOut = n
		}
	}

	return types.Response{
		Content:      content,
		BackendUsed:  p.Name(),
		TokensInput:  tokensIn,
		TokensOutput: tokensOut,
		CostEUR:      backend.EstimateCost(tokensIn, tokensOut, p.cfg.CostPerKToken),
		LatencyMs:    latency.Milliseconds(),
		Metadata: types.ResponseMetadata{
			Model:        parsed.Model,
			FinishReason: parsed.StopReason,
			TokenSource:  tokenSource,
		},
	}, nil
}

func (p *Provider) classifyFailure(status int, body string) error {
	if backend.IsContextLengthExceeded(status, body) {
		return claudetteerrors.New(claudetteerrors.ContextLengthExceeded, "prompt exceeds model context window").WithBackend(p.Name())
	}
	kind, retryable := backend.ClassifyHTTPStatus(status)
	code := codeForKind(kind)
	return claudetteerrors.New(code, fmt.Sprintf("backend returned status %d", status)).
		WithBackend(p.Name()).WithRetryable(retryable)
}

func codeForKind(kind types.FailureKind) claudetteerrors.Code {
	switch kind {
	case types.FailureAuth:
		return claudetteerrors.BackendAuth
	case types.FailureTimeout:
		return claudetteerrors.BackendTimeout
	case types.FailureRateLimit:
		return claudetteerrors.BackendRateLimit
	case types.FailureConnection:
		return claudetteerrors.BackendConnection
	case types.FailureServer:
		return claudetteerrors.BackendServer
	default:
		return claudetteerrors.BackendClient
	}
}

// ProbeHealth implements backend.Adapter: a minimal one-token completion,
// the cheapest authenticated call the Messages API supports (there is no
// free-standing health endpoint, unlike the OpenAI-compatible /v1/models
// list) (§4.2).
func (p *Provider) ProbeHealth(ctx context.Context) (bool, int64) {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	body := messagesRequest{
		Model:     p.cfg.DefaultModel,
		Messages:  []anthropicMessage{{Role: "user", Content: "ping"}},
		MaxTokens: healthProbeMaxTokens,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return false, 0
	}

	start := time.Now()
	result, err := p.pool.Request(ctx, http.MethodPost, p.endpoint(), p.headers(), payload, healthProbeTimeout)
	latency := time.Since(start).Milliseconds()
	if err != nil || result.Status >= 400 {
		return false, latency
	}
	return true, latency
}

func (p *Provider) EstimateCost(inputTokens, outputTokens int) float64 {
	return backend.EstimateCost(inputTokens, outputTokens, p.cfg.CostPerKToken)
}

func (p *Provider) ValidateConfig() []backend.Issue {
	var issues []backend.Issue
	if p.cfg.BaseURL == "" {
		issues = append(issues, backend.Issue{Field: "baseURL", Message: "baseURL must not be empty"})
	}
	if p.cfg.DefaultModel == "" {
		issues = append(issues, backend.Issue{Field: "model", Message: "model must not be empty"})
	}
	return issues
}

func (p *Provider) Supports(option string) bool {
	switch option {
	case "chat", "system":
		return true
	default:
		return false
	}
}
