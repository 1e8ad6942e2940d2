// Package errors implements Claudette's closed error taxonomy: every
// failure surfaced across component boundaries is a *Error carrying a
// classified Code, a Retryable flag, and an optional cause chain.
package errors

import "fmt"

// Code is one of the closed set of error classifications a caller of the
// library can switch on.
type Code string

const (
	ConfigInvalid         Code = "config_invalid"
	CredentialMissing     Code = "credential_missing"
	NoBackend             Code = "no_backend"
	BackendAuth           Code = "backend_auth"
	BackendRateLimit      Code = "backend_rate_limit"
	BackendTimeout        Code = "backend_timeout"
	BackendConnection     Code = "backend_connection"
	BackendServer         Code = "backend_server"
	BackendClient         Code = "backend_client"
	ContextLengthExceeded Code = "context_length_exceeded"
	CacheUnavailable      Code = "cache_unavailable"
	RAGUnavailable        Code = "rag_unavailable"
	Cancelled             Code = "cancelled"
	Internal              Code = "internal"
)

// retryableCodes lists the codes that are retryable by default. Backend
// is per-instance overridable via WithRetryable but most call sites rely
// on this table.
var retryableCodes = map[Code]bool{
	BackendTimeout:    true,
	BackendRateLimit:  true,
	BackendConnection: true,
	BackendServer:     true,
}

// Error is the single result-or-error type used at every component
// boundary in Claudette (§7). It never leaks credentials: Message and
// Error() must not include API keys; Cause is retained for logs only.
type Error struct {
	Code      Code   `json:"code"`
	Backend   string `json:"backend,omitempty"`
	Retryable bool   `json:"retryable"`
	Message   string `json:"message"`
	Cause     error  `json:"-"`
}

// New creates an Error with the default retryability for its code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Retryable: retryableCodes[code]}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithCause attaches an underlying cause, retained for logs only.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithBackend annotates the error with the backend name that produced it.
func (e *Error) WithBackend(backend string) *Error {
	e.Backend = backend
	return e
}

// WithRetryable overrides the default retryability for this instance.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable reports whether err is a *Error marked retryable.
func IsRetryable(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Retryable
}

// GetCode extracts the Code from err, returning "" if err is not a *Error.
func GetCode(err error) Code {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
