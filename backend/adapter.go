// Package backend defines the Backend Adapter contract (spec.md §4.2): the
// capability set every wire-protocol variant implements, the shared HTTP
// status -> failure-kind classification table, and cost accounting.
// Grounded on the teacher's llm/providers/common.go (MapHTTPError) and the
// openaicompat/anthropic provider shape, generalized from a streaming chat
// API to the single synchronous send the spec requires.
package backend

import (
	"context"
	"net/http"
	"strings"

	"github.com/RobLe3/claudette-sub003/types"
)

// SendRequest is the normalized input an Adapter turns into its own wire
// format.
type SendRequest struct {
	Prompt      string
	SystemHint  string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Issue is one configuration problem surfaced by ValidateConfig.
type Issue struct {
	Field   string
	Message string
}

// Adapter is the capability set every backend variant implements (§4.2).
type Adapter interface {
	Name() string
	Send(ctx context.Context, req SendRequest) (types.Response, error)
	ProbeHealth(ctx context.Context) (healthy bool, latencyMs int64)
	EstimateCost(inputTokens, outputTokens int) float64
	ValidateConfig() []Issue
	Supports(option string) bool
}

// EstimateCost computes costEUR = (tokensInput+tokensOutput)/1000 *
// costPerKToken (§4.2), shared by every variant.
func EstimateCost(inputTokens, outputTokens int, costPerKToken float64) float64 {
	return float64(inputTokens+outputTokens) / 1000.0 * costPerKToken
}

// classificationRule is one row of the §4.2 HTTP status -> kind table.
type classificationRule struct {
	statuses  map[int]bool
	kind      types.FailureKind
	retryable bool
}

var rules = []classificationRule{
	{statuses: intSet(401, 403), kind: types.FailureAuth, retryable: false},
	{statuses: intSet(408, 504), kind: types.FailureTimeout, retryable: true},
	{statuses: intSet(409, 425, 429), kind: types.FailureRateLimit, retryable: true},
	{statuses: intSet(400, 404, 422), kind: types.FailureClient, retryable: false},
}

func intSet(codes ...int) map[int]bool {
	m := make(map[int]bool, len(codes))
	for _, c := range codes {
		m[c] = true
	}
	return m
}

var contextLengthMarkers = []string{
	"context_length_exceeded",
	"maximum context length",
}

// ClassifyHTTPStatus maps an HTTP status to a failure kind per §4.2's
// table. Callers must check IsContextLengthExceeded first: a
// context-length error arrives as a 400 that would otherwise classify as
// a plain client_error.
func ClassifyHTTPStatus(status int) (types.FailureKind, bool) {
	for _, rule := range rules {
		if rule.statuses[status] {
			return rule.kind, rule.retryable
		}
	}
	if status >= 500 && status != http.StatusGatewayTimeout {
		return types.FailureServer, true
	}
	if status >= 200 && status < 300 {
		return "", true
	}
	return types.FailureOther, false
}

// IsContextLengthExceeded reports whether a 400 response body matches the
// context-length-exceeded markers (§4.2).
func IsContextLengthExceeded(status int, body string) bool {
	if status != http.StatusBadRequest {
		return false
	}
	lower := strings.ToLower(body)
	for _, marker := range contextLengthMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
