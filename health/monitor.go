// Package health implements the Health Monitor (spec.md §4.4): a 30s-TTL
// cache of per-backend health records, refreshed by a background ticker
// and by on-demand async probes triggered on cache staleness. Grounded on
// the teacher's llm/router.HealthChecker (ticker-driven checkAll probing
// every registered backend under a context.WithTimeout guard) and
// llm/health_monitor.go's ProviderProbeResult struct shape, generalized
// from router-owned probing to an independently owned per-backend
// sync.RWMutex-guarded TTL cache.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/RobLe3/claudette-sub003/types"
)

const (
	// TTL is the maximum age of a health record before optimize must
	// trigger an async refresh (§4.4, §8 invariant).
	TTL = 30 * time.Second

	probeInterval = 30 * time.Second
	probeDeadline = 3 * time.Second
)

// Prober is the subset of backend.Adapter the Health Monitor depends on.
type Prober interface {
	Name() string
	ProbeHealth(ctx context.Context) (healthy bool, latencyMs int64)
}

// Monitor owns the health record for every registered backend and the
// background probe loop.
type Monitor struct {
	logger *zap.Logger

	mu      sync.RWMutex
	records map[string]types.HealthRecord
	probers map[string]Prober
	refreshing map[string]bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
}

// New creates a Monitor with no registered backends. Call Register for
// each backend before Start.
func New(logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		logger:     logger,
		records:    make(map[string]types.HealthRecord),
		probers:    make(map[string]Prober),
		refreshing: make(map[string]bool),
		stop:       make(chan struct{}),
	}
}

// Register adds a backend to the monitor and schedules an immediate
// warm-up probe that runs asynchronously; Register returns before it
// completes. Until the warm-up lands, Get reports the pessimistic
// assumption healthy=true (§4.4). LastProbe is seeded to now rather than
// left zero so the fresh record reads as within-TTL, not stale: a
// zero-value LastProbe is indistinguishable from "never probed" to
// Stale(), and §8's "a backend with no history and no failures is always
// selectable" must hold for the entire warm-up window, not just after the
// warm-up probe (below) happens to land first.
func (m *Monitor) Register(p Prober) {
	m.mu.Lock()
	m.probers[p.Name()] = p
	if _, ok := m.records[p.Name()]; !ok {
		m.records[p.Name()] = types.HealthRecord{Backend: p.Name(), Healthy: true, LastProbe: time.Now()}
	}
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), probeDeadline)
		defer cancel()
		m.probeOne(ctx, p)
	}()
}

// Get returns the current health record for backend. If the record is
// stale (older than TTL) it schedules an asynchronous refresh but does
// not block the caller (§4.4: "triggers an async refresh but does not
// block").
func (m *Monitor) Get(backend string) types.HealthRecord {
	m.mu.RLock()
	rec, ok := m.records[backend]
	prober, hasProber := m.probers[backend]
	refreshing := m.refreshing[backend]
	m.mu.RUnlock()

	if !ok {
		return types.HealthRecord{Backend: backend, Healthy: true}
	}
	if hasProber && rec.Stale(TTL) && !refreshing {
		m.scheduleRefresh(prober)
	}
	return rec
}

func (m *Monitor) scheduleRefresh(p Prober) {
	m.mu.Lock()
	if m.refreshing[p.Name()] {
		m.mu.Unlock()
		return
	}
	m.refreshing[p.Name()] = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), probeDeadline)
		defer cancel()
		m.probeOne(ctx, p)
		m.mu.Lock()
		m.refreshing[p.Name()] = false
		m.mu.Unlock()
	}()
}

func (m *Monitor) probeOne(ctx context.Context, p Prober) {
	healthy, latencyMs := p.ProbeHealth(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.records[p.Name()]
	streak := prev.FailureStreak
	if healthy {
		streak = 0
	} else {
		streak++
	}
	m.records[p.Name()] = types.HealthRecord{
		Backend:       p.Name(),
		Healthy:       healthy,
		LatencyMs:     latencyMs,
		LastProbe:     time.Now(),
		FailureStreak: streak,
	}
	m.logger.Debug("health probe completed",
		zap.String("backend", p.Name()), zap.Bool("healthy", healthy), zap.Int64("latencyMs", latencyMs))
}

// RecordOutcome lets the Adaptive Router update a backend's health record
// from the outcome of a live call, without waiting for the next probe
// tick (§3: health record is "mutated by Health Monitor and by every
// completed call").
func (m *Monitor) RecordOutcome(backend string, success bool, latencyMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.records[backend]
	streak := prev.FailureStreak
	if success {
		streak = 0
	} else {
		streak++
	}
	m.records[backend] = types.HealthRecord{
		Backend:       backend,
		Healthy:       success || streak < 3,
		LatencyMs:     latencyMs,
		LastProbe:     time.Now(),
		FailureStreak: streak,
	}
}

// Start launches the background probe loop, ticking every 30s (§4.4).
func (m *Monitor) Start(ctx context.Context) {
	m.ticker = time.NewTicker(probeInterval)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-m.ticker.C:
				m.checkAll(ctx)
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Monitor) checkAll(parent context.Context) {
	m.mu.RLock()
	probers := make([]Prober, 0, len(m.probers))
	for _, p := range m.probers {
		probers = append(probers, p)
	}
	m.mu.RUnlock()

	for _, p := range probers {
		ctx, cancel := context.WithTimeout(parent, probeDeadline)
		m.probeOne(ctx, p)
		cancel()
	}
}

// Stop halts the background probe loop. Per §4.4/§4.8, the scheduler is
// stopped before the Connection Pool on shutdown; Stop does not cancel
// in-flight probes beyond their own deadline.
func (m *Monitor) Stop() {
	if m.ticker != nil {
		m.ticker.Stop()
	}
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	m.wg.Wait()
}
