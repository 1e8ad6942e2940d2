// pool.go adapts internal/database/pool.go's PoolManager from a
// GORM-backed connection pool to a plain database/sql pool over
// modernc.org/sqlite: same MaxIdleConns/MaxOpenConns/ConnMaxLifetime
// knobs and background health-check loop, with the GORM layer and
// transaction helper dropped since the cold store only issues direct
// SQL statements.
package coldsqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// PoolConfig mirrors internal/database/pool.go's PoolConfig, minus the
// GORM-specific knobs.
type PoolConfig struct {
	MaxIdleConns        int
	MaxOpenConns        int
	ConnMaxLifetime     time.Duration
	ConnMaxIdleTime     time.Duration
	HealthCheckInterval time.Duration
}

// DefaultPoolConfig returns the teacher's defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        2,
		MaxOpenConns:        8,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

// pool wraps a *sql.DB with the teacher's pool-manager lifecycle
// (health-check loop, idempotent Close).
type pool struct {
	db     *sql.DB
	config PoolConfig
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
}

func openPool(path string, config PoolConfig, logger *zap.Logger) (*pool, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	p := &pool{db: db, config: config, logger: logger, stop: make(chan struct{})}
	if config.HealthCheckInterval > 0 {
		go p.healthCheckLoop()
	}
	return p, nil
}

func (p *pool) healthCheckLoop() {
	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.mu.RLock()
			closed := p.closed
			p.mu.RUnlock()
			if closed {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := p.db.PingContext(ctx); err != nil {
				p.logger.Warn("cold cache db health check failed", zap.Error(err))
			}
			cancel()
		case <-p.stop:
			return
		}
	}
}

func (p *pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.stop)
	return p.db.Close()
}
