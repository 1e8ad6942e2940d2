// Package coldsqlite implements cache.ColdStore against an embedded
// modernc.org/sqlite database, matching spec.md §6's literal schema:
// entries(fingerprint TEXT PRIMARY KEY, body BLOB, created_at INT,
// expires_at INT, hit_count INT, last_access INT, size INT), with a daily
// compaction pass removing expired rows. Grounded on internal/database's
// PoolManager (adapted in pool.go, GORM stripped) for connection-pool
// lifecycle and on the embedded-sqlite stack (modernc.org/sqlite) already
// used elsewhere in the pack for durable local storage.
package coldsqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/RobLe3/claudette-sub003/cache"
	"github.com/RobLe3/claudette-sub003/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	fingerprint TEXT PRIMARY KEY,
	body        BLOB NOT NULL,
	created_at  INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL,
	hit_count   INTEGER NOT NULL DEFAULT 0,
	last_access INTEGER NOT NULL,
	size        INTEGER NOT NULL
);`

const compactionInterval = 24 * time.Hour

// Store is a cache.ColdStore backed by an embedded sqlite database file.
type Store struct {
	pool   *pool
	logger *zap.Logger
	stop   chan struct{}
}

// Open creates (or opens) the sqlite database at path and starts its
// background connection health-check and daily compaction loops.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p, err := openPool(path, DefaultPoolConfig(), logger)
	if err != nil {
		return nil, err
	}
	if _, err := p.db.Exec(schema); err != nil {
		_ = p.Close()
		return nil, err
	}

	s := &Store{pool: p, logger: logger, stop: make(chan struct{})}
	go s.compactionLoop()
	return s, nil
}

func (s *Store) compactionLoop() {
	ticker := time.NewTicker(compactionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n, err := s.Compact(context.Background()); err != nil {
				s.logger.Warn("cold cache compaction failed", zap.Error(err))
			} else if n > 0 {
				s.logger.Info("cold cache compaction removed expired rows", zap.Int64("rows", n))
			}
		case <-s.stop:
			return
		}
	}
}

// Compact removes rows whose expires_at has elapsed, returning the count
// removed.
func (s *Store) Compact(ctx context.Context) (int64, error) {
	res, err := s.pool.db.ExecContext(ctx, `DELETE FROM entries WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// bodyRow is the JSON payload stored in the body column: everything in
// types.CacheEntry except the columns broken out for querying.
type bodyRow struct {
	Response types.Response `json:"response"`
}

// Get returns cache.ErrNotFound when fingerprint is absent or expired.
func (s *Store) Get(ctx context.Context, fingerprint string) (types.CacheEntry, error) {
	row := s.pool.db.QueryRowContext(ctx,
		`SELECT body, created_at, expires_at, hit_count, last_access, size FROM entries WHERE fingerprint = ?`,
		fingerprint)

	var (
		body                             []byte
		createdAt, expiresAt, lastAccess int64
		hitCount, size                   int64
	)
	if err := row.Scan(&body, &createdAt, &expiresAt, &hitCount, &lastAccess, &size); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.CacheEntry{}, cache.ErrNotFound
		}
		return types.CacheEntry{}, err
	}

	if expiresAt < time.Now().Unix() {
		return types.CacheEntry{}, cache.ErrNotFound
	}

	var br bodyRow
	if err := json.Unmarshal(body, &br); err != nil {
		return types.CacheEntry{}, err
	}

	return types.CacheEntry{
		Fingerprint: fingerprint,
		Response:    br.Response,
		CreatedAt:   time.Unix(createdAt, 0),
		ExpiresAt:   time.Unix(expiresAt, 0),
		HitCount:    int(hitCount),
		LastAccess:  time.Unix(lastAccess, 0),
		Size:        size,
	}, nil
}

// Set upserts entry's row.
func (s *Store) Set(ctx context.Context, entry types.CacheEntry) error {
	body, err := json.Marshal(bodyRow{Response: entry.Response})
	if err != nil {
		return err
	}
	_, err = s.pool.db.ExecContext(ctx, `
		INSERT INTO entries (fingerprint, body, created_at, expires_at, hit_count, last_access, size)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			body = excluded.body,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			hit_count = excluded.hit_count,
			last_access = excluded.last_access,
			size = excluded.size`,
		entry.Fingerprint, body, entry.CreatedAt.Unix(), entry.ExpiresAt.Unix(),
		entry.HitCount, entry.LastAccess.Unix(), entry.Size)
	return err
}

// Delete removes fingerprint's row.
func (s *Store) Delete(ctx context.Context, fingerprint string) error {
	_, err := s.pool.db.ExecContext(ctx, `DELETE FROM entries WHERE fingerprint = ?`, fingerprint)
	return err
}

// Close stops the compaction loop and the underlying connection pool.
func (s *Store) Close() error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	return s.pool.Close()
}
