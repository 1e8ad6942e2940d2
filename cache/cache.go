// Package cache implements the two-tier response Cache (spec.md §4.5): a
// hot in-memory tier with pressure-aware scored eviction, a pluggable cold
// tier (cache.ColdStore) for durability, and single-flight coalescing of
// concurrent upstream calls on the same fingerprint.
//
// The hot tier is ported from llm/cache/prompt_cache.go's LRUCache
// (map + doubly-linked list for O(1) recency tracking), generalized from
// pure LRU capacity eviction to the pressure-banded scored eviction spec.md
// §4.5 requires. Cold-tier failures are logged and ignored exactly as in
// MultiLevelCache.Get/Set — the cache is a performance optimization, not a
// contract.
package cache

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/RobLe3/claudette-sub003/types"
)

// ErrNotFound is returned by a ColdStore when the fingerprint is absent or
// its TTL has elapsed.
var ErrNotFound = errors.New("cache: entry not found")

// ColdStore is the pluggable persistent tier (§4.5). Implementations:
// cache/coldredis and cache/coldsqlite.
type ColdStore interface {
	Get(ctx context.Context, fingerprint string) (types.CacheEntry, error)
	Set(ctx context.Context, entry types.CacheEntry) error
	Delete(ctx context.Context, fingerprint string) error
	Close() error
}

// Metrics is the subset of observability.Collector the Cache updates.
type Metrics interface {
	RecordCacheHit()
	RecordCacheMiss()
	SetCacheSize(entries int, bytes int64)
}

// PressureBand is one of the four occupancy bands from spec.md §4.5.
type PressureBand string

const (
	PressureLow      PressureBand = "low"
	PressureMedium   PressureBand = "medium"
	PressureHigh     PressureBand = "high"
	PressureCritical PressureBand = "critical"
)

// recencyCapHours is the cap on the recency term of the eviction score
// (spec.md §4.5: "recency is hours-since-last-access (capped 168)").
const recencyCapHours = 168.0

type node struct {
	fingerprint string
	entry       types.CacheEntry
	prev, next  *node
}

// Cache is the two-tier response cache.
type Cache struct {
	mu         sync.RWMutex
	items      map[string]*node
	head, tail *node // head = most recently used, tail = least recently used
	bytes      int64

	maxEntries int
	maxBytes   int64
	defaultTTL time.Duration

	cold    ColdStore
	logger  *zap.Logger
	metrics Metrics
	group   singleflight.Group

	leadersMu sync.Mutex
	leaders   map[string]bool // fingerprint -> a Do call for it is in flight
}

// New builds a Cache. cold may be nil (hot-tier only).
func New(maxEntries int, maxBytes int64, defaultTTL time.Duration, cold ColdStore, logger *zap.Logger, metrics Metrics) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		items:      make(map[string]*node),
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		defaultTTL: defaultTTL,
		cold:       cold,
		logger:     logger,
		metrics:    metrics,
		leaders:    make(map[string]bool),
	}
}

// Get returns the entry for fingerprint, or ok=false if absent or expired
// in both tiers. A cold-tier hit is backfilled into the hot tier
// (read-through, §4.5).
func (c *Cache) Get(ctx context.Context, fingerprint string) (types.CacheEntry, bool) {
	now := time.Now()

	c.mu.Lock()
	n, ok := c.items[fingerprint]
	if ok {
		if n.entry.Expired(now) {
			c.removeNode(n)
			ok = false
		} else {
			n.entry.HitCount++
			n.entry.LastAccess = now
			c.moveToHead(n)
		}
	}
	c.mu.Unlock()

	if ok {
		c.recordHit()
		return n.entry, true
	}

	if c.cold != nil {
		entry, err := c.cold.Get(ctx, fingerprint)
		if err == nil {
			if entry.Expired(now) {
				c.recordMiss()
				return types.CacheEntry{}, false
			}
			entry.HitCount++
			entry.LastAccess = now
			c.insertHot(entry)
			c.recordHit()
			return entry, true
		}
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("cold cache get failed", zap.String("fingerprint", fingerprint), zap.Error(err))
		}
	}

	c.recordMiss()
	return types.CacheEntry{}, false
}

// Set writes entry to both tiers (write-through). Cold-tier failures are
// logged and do not fail the call (§4.5).
func (c *Cache) Set(ctx context.Context, entry types.CacheEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.ExpiresAt.IsZero() {
		entry.ExpiresAt = entry.CreatedAt.Add(c.defaultTTL)
	}
	entry.LastAccess = entry.CreatedAt

	c.insertHot(entry)

	if c.cold != nil {
		if err := c.cold.Set(ctx, entry); err != nil {
			c.logger.Warn("cold cache set failed", zap.String("fingerprint", entry.Fingerprint), zap.Error(err))
		}
	}
}

// Delete removes fingerprint from both tiers.
func (c *Cache) Delete(ctx context.Context, fingerprint string) {
	c.mu.Lock()
	if n, ok := c.items[fingerprint]; ok {
		c.removeNode(n)
	}
	c.mu.Unlock()

	if c.cold != nil {
		if err := c.cold.Delete(ctx, fingerprint); err != nil {
			c.logger.Warn("cold cache delete failed", zap.String("fingerprint", fingerprint), zap.Error(err))
		}
	}
}

// Loader produces a fresh entry on a cache miss.
type Loader func(ctx context.Context) (types.CacheEntry, error)

// GetOrLoad returns the cached entry for fingerprint, or invokes load to
// fill it. Concurrent misses on the same fingerprint coalesce to a single
// invocation of load (§4.5: "at most one upstream call per fingerprint may
// be in flight"); waiters share the resulting entry. The second return
// value reports whether the entry came from cache; the third reports
// whether this caller merely joined another caller's in-flight load
// (metadata.coalesced, spec.md §8 scenario 6) rather than triggering it.
//
// singleflight.Group.Do's own "shared" return is true for every caller
// attached to a Do call, including the one that originated it, so it can't
// tell a leader from a follower. leaders tracks who originated the call for
// each fingerprint so only followers are reported as coalesced.
func (c *Cache) GetOrLoad(ctx context.Context, fingerprint string, load Loader) (entry types.CacheEntry, fromCache bool, coalesced bool, err error) {
	if entry, ok := c.Get(ctx, fingerprint); ok {
		return entry, true, false, nil
	}

	c.leadersMu.Lock()
	isLeader := !c.leaders[fingerprint]
	c.leaders[fingerprint] = true
	c.leadersMu.Unlock()

	v, err := c.group.Do(fingerprint, func() (any, error) {
		entry, loadErr := load(ctx)
		if loadErr != nil {
			return types.CacheEntry{}, loadErr
		}
		c.Set(ctx, entry)
		return entry, nil
	})

	if isLeader {
		c.leadersMu.Lock()
		delete(c.leaders, fingerprint)
		c.leadersMu.Unlock()
	}

	if err != nil {
		return types.CacheEntry{}, false, false, err
	}
	return v.(types.CacheEntry), false, !isLeader, nil
}

func (c *Cache) recordHit() {
	if c.metrics != nil {
		c.metrics.RecordCacheHit()
	}
}

func (c *Cache) recordMiss() {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss()
	}
}

// insertHot adds or replaces entry in the hot tier and applies
// pressure-aware eviction afterward.
func (c *Cache) insertHot(entry types.CacheEntry) {
	c.mu.Lock()
	if n, ok := c.items[entry.Fingerprint]; ok {
		c.bytes -= n.entry.Size
		n.entry = entry
		c.bytes += entry.Size
		c.moveToHead(n)
	} else {
		n := &node{fingerprint: entry.Fingerprint, entry: entry}
		c.items[entry.Fingerprint] = n
		c.addToHead(n)
		c.bytes += entry.Size
	}
	c.evictLocked(time.Now())
	entries, bytes := len(c.items), c.bytes
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetCacheSize(entries, bytes)
	}
}

// pressure returns the worse of the byte-capacity and entry-count ratios.
// Callers must hold at least a read lock.
func (c *Cache) pressure() float64 {
	var byBytes, byEntries float64
	if c.maxBytes > 0 {
		byBytes = float64(c.bytes) / float64(c.maxBytes)
	}
	if c.maxEntries > 0 {
		byEntries = float64(len(c.items)) / float64(c.maxEntries)
	}
	if byBytes > byEntries {
		return byBytes
	}
	return byEntries
}

// Band reports the current pressure band.
func (c *Cache) Band() PressureBand {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return bandFor(c.pressure())
}

func bandFor(p float64) PressureBand {
	switch {
	case p > 0.95:
		return PressureCritical
	case p > 0.85:
		return PressureHigh
	case p > 0.75:
		return PressureMedium
	default:
		return PressureLow
	}
}

// evictLocked applies the pressure-banded eviction policy (§4.5). Callers
// must hold c.mu for writing.
func (c *Cache) evictLocked(now time.Time) {
	band := bandFor(c.pressure())
	switch band {
	case PressureLow:
		return
	case PressureMedium:
		for c.pressure() > 0.75 && len(c.items) > 0 {
			c.evictLowestScored(now)
		}
	case PressureHigh:
		target := c.maxEntries / 2
		if target < 1 {
			target = 1
		}
		for len(c.items) > target {
			c.evictLowestScored(now)
		}
	case PressureCritical:
		c.items = make(map[string]*node)
		c.head, c.tail = nil, nil
		c.bytes = 0
	}
}

// score implements popularity·0.4 − recency·0.4 − size·0.2 (§4.5). Lower
// scores are evicted first.
func score(entry types.CacheEntry, now time.Time) float64 {
	popularity := math.Log(1 + float64(entry.HitCount))
	recencyHours := now.Sub(entry.LastAccess).Hours()
	if recencyHours > recencyCapHours {
		recencyHours = recencyCapHours
	}
	if recencyHours < 0 {
		recencyHours = 0
	}
	sizeKB := float64(entry.Size) / 1024.0
	return popularity*0.4 - recencyHours*0.4 - sizeKB*0.2
}

// evictLowestScored removes the single lowest-scored entry, breaking ties
// by ascending LastAccess (§4.5). Callers must hold c.mu for writing.
func (c *Cache) evictLowestScored(now time.Time) {
	if len(c.items) == 0 {
		return
	}
	var victim *node
	var victimScore float64
	for _, n := range c.items {
		s := score(n.entry, now)
		if victim == nil || s < victimScore ||
			(s == victimScore && n.entry.LastAccess.Before(victim.entry.LastAccess)) {
			victim = n
			victimScore = s
		}
	}
	if victim != nil {
		c.removeNode(victim)
	}
}

// Stats returns the current hot-tier occupancy.
func (c *Cache) Stats() (entries int, bytes int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items), c.bytes
}

func (c *Cache) addToHead(n *node) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *Cache) removeNode(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	c.bytes -= n.entry.Size
	delete(c.items, n.fingerprint)
}

func (c *Cache) moveToHead(n *node) {
	if n == c.head {
		return
	}
	c.removeNode(n)
	n.next, n.prev = nil, nil
	c.items[n.fingerprint] = n
	c.bytes += n.entry.Size
	c.addToHead(n)
}
