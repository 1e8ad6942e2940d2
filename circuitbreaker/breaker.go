// Package circuitbreaker implements the per-backend circuit breaker state
// machine from spec.md §4.3: a three-state machine (closed/open/half_open)
// with per-failure-kind thresholds and an adaptive cool-down, generalized
// from the teacher's single fixed-threshold breaker
// (llm/circuitbreaker/breaker.go) to the per-kind table and formula below.
package circuitbreaker

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/RobLe3/claudette-sub003/types"
)

// thresholds is the per-kind consecutive-failure threshold from §4.3.
var thresholds = map[types.FailureKind]int{
	types.FailureAuth:       3,
	types.FailureServer:     7,
	types.FailureConnection: 10,
	types.FailureRateLimit:  3,
}

const defaultThreshold = 5

func threshold(kind types.FailureKind) int {
	if t, ok := thresholds[kind]; ok {
		return t
	}
	return defaultThreshold
}

// kindStrategy maps a failure kind to the recovery strategy the Router
// should apply when retrying with another backend (§4.7's wait schedule
// is keyed off this value).
func kindStrategy(kind types.FailureKind) types.RecoveryStrategy {
	switch kind {
	case types.FailureRateLimit:
		return types.StrategyLinearBackoff
	case types.FailureTimeout, types.FailureConnection, types.FailureServer:
		return types.StrategyExponentialBackoff
	default:
		return types.StrategyImmediateRetry
	}
}

const (
	baseCoolDown = 45 * time.Second
	maxCoolDown  = 720 * time.Second
	windowSize   = 20
	streakWindow = 60 * time.Second
)

// Breaker is one backend's circuit breaker. The zero value is not usable;
// construct with New. Safe for concurrent use; all state transitions are
// serialized per backend (§5).
type Breaker struct {
	backend string
	logger  *zap.Logger

	onStateChange func(backend string, from, to types.BreakerStateKind)

	mu    sync.Mutex
	state types.BreakerStateKind

	calls []callOutcome // last windowSize calls, success or failure

	streakKind  types.FailureKind
	streakCount int
	streakFirst time.Time

	probeInFlight bool
	resetDeadline time.Time

	reopenStreak int
	lastOpenKind types.FailureKind
}

type callOutcome struct {
	success bool
	kind    types.FailureKind
	at      time.Time
}

// Option configures a Breaker at construction time.
type Option func(*Breaker)

// WithOnStateChange registers a callback invoked (asynchronously, matching
// the teacher's convention) on every state transition.
func WithOnStateChange(fn func(backend string, from, to types.BreakerStateKind)) Option {
	return func(b *Breaker) { b.onStateChange = fn }
}

// New creates a closed breaker for the given backend name.
func New(backend string, logger *zap.Logger, opts ...Option) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Breaker{
		backend: backend,
		logger:  logger,
		state:   types.BreakerClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current state.
func (b *Breaker) State() types.BreakerStateKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed, and the strategy the Router
// should use if it may not (or, for half_open, whether this caller won the
// single admitted probe).
func (b *Breaker) Allow() (admit bool, strategy types.RecoveryStrategy) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case types.BreakerClosed:
		return true, types.StrategyImmediateRetry

	case types.BreakerOpen:
		if time.Now().Before(b.resetDeadline) {
			return false, types.StrategyCircuitOpen
		}
		b.setState(types.BreakerHalfOpen)
		b.probeInFlight = true
		return true, types.StrategyImmediateRetry

	case types.BreakerHalfOpen:
		if b.probeInFlight {
			return false, types.StrategyCircuitOpen
		}
		b.probeInFlight = true
		return true, types.StrategyImmediateRetry

	default:
		return false, types.StrategyCircuitOpen
	}
}

// RecordSuccess reports a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pushCall(callOutcome{success: true, at: time.Now()})
	b.streakCount = 0

	switch b.state {
	case types.BreakerHalfOpen:
		b.probeInFlight = false
		b.reopenStreak = 0
		b.lastOpenKind = ""
		b.setState(types.BreakerClosed)
	case types.BreakerOpen:
		b.logger.Warn("breaker received success while open", zap.String("backend", b.backend))
	}
}

// RecordFailure reports a failed call of the given kind and returns the
// recovery strategy the Router should apply.
func (b *Breaker) RecordFailure(kind types.FailureKind) types.RecoveryStrategy {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.pushCall(callOutcome{kind: kind, at: now})
	b.updateStreak(kind, now)

	switch b.state {
	case types.BreakerHalfOpen:
		b.probeInFlight = false
		b.openWith(kind, now)
		return types.StrategyCircuitOpen

	case types.BreakerClosed:
		if b.shouldOpen(kind, now) {
			b.openWith(kind, now)
			return types.StrategyCircuitOpen
		}
		return kindStrategy(kind)

	default: // Open: no call should have been admitted, but stay defensive.
		return types.StrategyCircuitOpen
	}
}

func (b *Breaker) updateStreak(kind types.FailureKind, now time.Time) {
	if b.streakKind == kind && now.Sub(b.streakFirst) <= streakWindow {
		b.streakCount++
		return
	}
	b.streakKind = kind
	b.streakCount = 1
	b.streakFirst = now
}

// shouldOpen implements the two closed->open trigger rules from §4.3.
func (b *Breaker) shouldOpen(kind types.FailureKind, now time.Time) bool {
	if b.streakCount >= threshold(kind) && now.Sub(b.streakFirst) <= streakWindow {
		return true
	}

	if len(b.calls) >= 5 {
		failures := 0
		for _, c := range b.calls {
			if !c.success {
				failures++
			}
		}
		if float64(failures)/float64(len(b.calls)) >= 0.5 {
			return true
		}
	}
	return false
}

// openWith transitions into Open and computes the adaptive cool-down
// (§4.3): base 45s, doubled for every consecutive reopen driven by the
// same dominant failure kind, capped at 720s. A reopen triggered by a
// different dominant kind resets the exponent ("resets cool-down base").
func (b *Breaker) openWith(dominantKind types.FailureKind, now time.Time) {
	if dominantKind == b.lastOpenKind {
		b.reopenStreak++
	} else {
		b.reopenStreak = 1
		b.lastOpenKind = dominantKind
	}

	exp := b.reopenStreak - 1
	if exp > 4 {
		exp = 4
	}
	cooldown := baseCoolDown * time.Duration(1<<uint(exp))
	if cooldown > maxCoolDown {
		cooldown = maxCoolDown
	}

	b.resetDeadline = now.Add(cooldown)
	b.setState(types.BreakerOpen)
}

func (b *Breaker) pushCall(c callOutcome) {
	b.calls = append(b.calls, c)
	if len(b.calls) > windowSize {
		b.calls = b.calls[len(b.calls)-windowSize:]
	}
}

func (b *Breaker) setState(next types.BreakerStateKind) {
	prev := b.state
	b.state = next
	if prev == next {
		return
	}
	b.logger.Info("breaker state transition",
		zap.String("backend", b.backend),
		zap.String("from", string(prev)),
		zap.String("to", string(next)))
	if b.onStateChange != nil {
		cb := b.onStateChange
		go cb(b.backend, prev, next)
	}
}
