// Package pool implements the process-wide Connection Pool (spec.md §4.1):
// one keep-alive *http.Client per origin, TLS-hardened the way the
// teacher's internal/tlsutil.SecureTransport does it, with bounded
// transport-level retry and per-origin rate-limited admission.
package pool

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/RobLe3/claudette-sub003/retry"
)

const (
	defaultMaxSockets     = 50
	defaultMaxFreeSockets = 10
	defaultIdleSocketTTL  = 30 * time.Second
	defaultRequestTimeout = 30 * time.Second
	defaultConnectTimeout = 5 * time.Second

	maxTransportRetries = 2
	retryBase           = 250 * time.Millisecond
	retryCap            = 2 * time.Second
)

// Result is the pool's response shape, handed back to the calling Backend
// Adapter to decode per its own wire format.
type Result struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Option configures a Pool at construction time.
type Option func(*Pool)

func WithMaxSockets(n int) Option         { return func(p *Pool) { p.maxSockets = n } }
func WithMaxFreeSockets(n int) Option     { return func(p *Pool) { p.maxFreeSockets = n } }
func WithIdleSocketTTL(d time.Duration) Option { return func(p *Pool) { p.idleSocketTTL = d } }
func WithConnectTimeout(d time.Duration) Option { return func(p *Pool) { p.connectTimeout = d } }

// Pool is a process-wide registry of per-origin HTTP clients.
type Pool struct {
	logger *zap.Logger

	maxSockets     int
	maxFreeSockets int
	idleSocketTTL  time.Duration
	connectTimeout time.Duration

	mu      sync.RWMutex
	origins map[string]*originClient

	active    atomic.Int64
	closing   chan struct{}
	closeOnce sync.Once
}

type originClient struct {
	client  *http.Client
	limiter *rate.Limiter
}

// New creates an empty Pool; per-origin clients are created lazily on
// first Request.
func New(logger *zap.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		logger:         logger,
		maxSockets:     defaultMaxSockets,
		maxFreeSockets: defaultMaxFreeSockets,
		idleSocketTTL:  defaultIdleSocketTTL,
		connectTimeout: defaultConnectTimeout,
		origins:        make(map[string]*originClient),
		closing:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) clientFor(origin string) *originClient {
	p.mu.RLock()
	oc, ok := p.origins[origin]
	p.mu.RUnlock()
	if ok {
		return oc
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if oc, ok := p.origins[origin]; ok {
		return oc
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			},
		},
		DialContext: (&net.Dialer{
			Timeout:   p.connectTimeout,
			KeepAlive: p.idleSocketTTL,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxConnsPerHost:       p.maxSockets,
		MaxIdleConnsPerHost:   p.maxFreeSockets,
		IdleConnTimeout:       p.idleSocketTTL,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	oc := &originClient{
		client:  &http.Client{Transport: transport, Timeout: defaultRequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(p.maxSockets), p.maxSockets),
	}
	p.origins[origin] = oc
	return oc
}

// Request issues one HTTP call, applying admission control and up to
// maxTransportRetries automatic retries for transport-level failures only
// (§4.1). Non-transport failures (e.g. a 5xx response) are returned as a
// populated Result with no error; classification into the shared failure
// taxonomy is the Backend Adapter's job.
func (p *Pool) Request(ctx context.Context, method, rawURL string, headers http.Header, body []byte, timeout time.Duration) (*Result, error) {
	select {
	case <-p.closing:
		return nil, errors.New("pool: shutting down")
	default:
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	oc := p.clientFor(u.Scheme + "://" + u.Host)

	p.active.Add(1)
	defer p.active.Add(-1)

	var lastErr error
	for attempt := 1; attempt <= maxTransportRetries+1; attempt++ {
		if err := oc.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := p.do(reqCtx, oc.client, method, rawURL, headers, body)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isTransportError(err) || attempt > maxTransportRetries {
			return nil, err
		}

		wait := retry.Jitter(retry.Exponential(retryBase, attempt, retryCap))
		p.logger.Debug("pool transport retry",
			zap.String("url", rawURL), zap.Int("attempt", attempt), zap.Duration("wait", wait))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (p *Pool) do(ctx context.Context, client *http.Client, method, rawURL string, headers http.Header, body []byte) (*Result, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Result{Status: resp.StatusCode, Headers: resp.Header, Body: respBody}, nil
}

// isTransportError reports whether err originates below the HTTP layer:
// connection reset, DNS failure, or TLS handshake failure (§4.1). A
// non-2xx HTTP response is never a transport error.
func isTransportError(err error) bool {
	// *url.Error itself satisfies net.Error, so unwrap it first.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return isTransportError(urlErr.Err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return false
}

// Shutdown stops admitting new requests, waits up to 5s for in-flight
// requests to finish, then closes idle connections on every origin
// (§4.8's Lifecycle Controller shutdown sequence).
func (p *Pool) Shutdown(ctx context.Context) error {
	p.closeOnce.Do(func() { close(p.closing) })
	p.drain(ctx)

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, oc := range p.origins {
		oc.client.CloseIdleConnections()
	}
	return nil
}

// drain waits up to 5s for in-flight requests to reach zero, or returns
// early if ctx is cancelled first.
func (p *Pool) drain(ctx context.Context) {
	deadline := time.Now().Add(5 * time.Second)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for p.active.Load() > 0 && time.Now().Before(deadline) {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			p.logger.Warn("pool shutdown: context cancelled before drain completed")
			return
		}
	}
	if p.active.Load() > 0 {
		p.logger.Warn("pool shutdown: in-flight requests did not drain in time",
			zap.Int64("remaining", p.active.Load()))
	}
}

// ActiveSockets backs the pool_active_sockets gauge (§4.9): the number of
// requests currently in flight across all origins.
func (p *Pool) ActiveSockets() int64 {
	return p.active.Load()
}

// FreeSockets backs the pool_free_sockets gauge: the configured per-origin
// idle-connection headroom, summed across registered origins. Go's
// transport does not expose a live idle-socket count per origin.
func (p *Pool) FreeSockets() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return int64(len(p.origins) * p.maxFreeSockets)
}
