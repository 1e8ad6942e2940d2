// Package openaicompat is the shared OpenAI-wire-format Backend Adapter
// base (spec.md §4.2): request/response encoding, health probe via a
// models-list GET, and failure classification. The openai, qwen_compatible,
// and ollama_local variants construct this base through New with their own
// BaseURL default and, for ollama_local, their own header construction,
// much the way the teacher's
// deepseek/qwen/glm/grok packages embed
// llm/providers/openaicompat.Provider.
package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/RobLe3/claudette-sub003/backend"
	claudetteerrors "github.com/RobLe3/claudette-sub003/errors"
	"github.com/RobLe3/claudette-sub003/pool"
	"github.com/RobLe3/claudette-sub003/tokenizer"
	"github.com/RobLe3/claudette-sub003/types"
)

const (
	defaultCompletionPath = "/v1/chat/completions"
	defaultHealthPath     = "/v1/models"
	healthProbeTimeout    = 3 * time.Second
)

// Config configures a Provider instance.
type Config struct {
	Name           string
	BaseURL        string
	APIKey         string
	DefaultModel   string
	MaxTokens      int
	Temperature    float64
	CostPerKToken  float64
	CompletionPath string
	HealthPath     string

	// BuildHeaders lets a variant override auth header construction; nil
	// uses the default "Authorization: Bearer <apiKey>".
	BuildHeaders func(req *http.Request, apiKey string)
}

// Provider is the base OpenAI-compatible Adapter. The variant packages
// (see backend/openai, backend/ollamalocal) return a *Provider built by New
// directly; per-variant behavior comes from Config (BaseURL, BuildHeaders).
type Provider struct {
	Cfg    Config
	Pool   *pool.Pool
	Logger *zap.Logger
	Tok    tokenizer.Tokenizer
}

// New constructs a Provider; p is the shared Connection Pool all adapters
// issue requests through.
func New(cfg Config, p *pool.Pool, logger *zap.Logger) *Provider {
	if cfg.CompletionPath == "" {
		cfg.CompletionPath = defaultCompletionPath
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = defaultHealthPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		Cfg:    cfg,
		Pool:   p,
		Logger: logger,
		Tok:    tokenizer.ForModel(cfg.DefaultModel),
	}
}

func (p *Provider) Name() string { return p.Cfg.Name }

func (p *Provider) headers() http.Header {
	req := &http.Request{Header: http.Header{}}
	if p.Cfg.BuildHeaders != nil {
		p.Cfg.BuildHeaders(req, p.Cfg.APIKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+p.Cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")
	}
	return req.Header
}

func (p *Provider) endpoint(path string) string {
	return strings.TrimRight(p.Cfg.BaseURL, "/") + path
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage"`
}

// Send implements backend.Adapter.
func (p *Provider) Send(ctx context.Context, req backend.SendRequest) (types.Response, error) {
	model := req.Model
	if model == "" {
		model = p.Cfg.DefaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.Cfg.MaxTokens
	}

	var messages []chatMessage
	if req.SystemHint != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemHint})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return types.Response{}, claudetteerrors.New(claudetteerrors.Internal, "encode request").WithCause(err).WithBackend(p.Name())
	}

	headers := p.headers()

	start := time.Now()
	result, err := p.Pool.Request(ctx, http.MethodPost, p.endpoint(p.Cfg.CompletionPath), headers, payload, 0)
	latency := time.Since(start)
	if err != nil {
		return types.Response{}, claudetteerrors.New(claudetteerrors.BackendConnection, "transport failure").
			WithCause(err).WithBackend(p.Name()).WithRetryable(true)
	}

	if result.Status >= 400 {
		return types.Response{}, p.classifyFailure(result.Status, string(result.Body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(result.Body, &parsed); err != nil {
		return types.Response{}, claudetteerrors.New(claudetteerrors.BackendServer, "malformed response body").
			WithCause(err).WithBackend(p.Name())
	}
	if len(parsed.Choices) == 0 {
		return types.Response{}, claudetteerrors.New(claudetteerrors.BackendServer, "response contained no choices").WithBackend(p.Name())
	}

	content := parsed.Choices[0].Message.Content
	tokenSource := "reported"
	tokensIn, tokensOut := 0, 0
	if parsed.Usage != nil {
		tokensIn, tokensOut = parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens
	} else {
		tokenSource = "estimated"
		if n, err := p.Tok.CountTokens(req.Prompt); err == nil {
			tokensIn = n
		}
		if n, err := p.Tok.CountTokens(content); err == nil {
			tokensOut = n
		}
	}

	return types.Response{
		Content:      content,
		BackendUsed:  p.Name(),
		TokensInput:  tokensIn,
		TokensOutput: tokensOut,
		CostEUR:      backend.EstimateCost(tokensIn, tokensOut, p.Cfg.CostPerKToken),
		LatencyMs:    latency.Milliseconds(),
		Metadata: types.ResponseMetadata{
			Model:        parsed.Model,
			FinishReason: parsed.Choices[0].FinishReason,
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

// ProbeHealth implements backend.Adapter: a cheap authenticated GET against
// the models-list endpoint with a 3s timeout (§4.2).
func (p *Provider) ProbeHealth(ctx context.Context) (bool, int64) {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	headers := p.headers()

	start := time.Now()
	result, err := p.Pool.Request(ctx, http.MethodGet, p.endpoint(p.Cfg.HealthPath), headers, nil, healthProbeTimeout)
	latency := time.Since(start).Milliseconds()
	if err != nil || result.Status >= 400 {
		return false, latency
	}
	return true, latency
}

func (p *Provider) EstimateCost(inputTokens, outputTokens int) float64 {
	return backend.EstimateCost(inputTokens, outputTokens, p.Cfg.CostPerKToken)
}

func (p *Provider) ValidateConfig() []backend.Issue {
	var issues []backend.Issue
	if p.Cfg.BaseURL == "" {
		issues = append(issues, backend.Issue{Field: "baseURL", Message: "baseURL must not be empty"})
	}
	if p.Cfg.DefaultModel == "" {
		issues = append(issues, backend.Issue{Field: "model", Message: "model must not be empty"})
	}
	return issues
}

func (p *Provider) Supports(option string) bool {
	switch option {
	case "chat":
		return true
	default:
		return false
	}
}
