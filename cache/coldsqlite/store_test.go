package coldsqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/RobLe3/claudette-sub003/cache"
	"github.com/RobLe3/claudette-sub003/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSetThenGetRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := types.CacheEntry{
		Fingerprint: "fp1",
		Response:    types.Response{Content: "hello", BackendUsed: "openai"},
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(time.Hour),
		HitCount:    2,
		LastAccess:  time.Now(),
		Size:        42,
	}
	require.NoError(t, s.Set(ctx, entry))

	got, err := s.Get(ctx, "fp1")
	require.NoError(t, err)
	require.Equal(t, "hello", got.Response.Content)
	require.Equal(t, int64(42), got.Size)
}

func TestGetExpiredReturnsErrNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	entry := types.CacheEntry{
		Fingerprint: "fp2",
		CreatedAt:   time.Now().Add(-2 * time.Hour),
		ExpiresAt:   time.Now().Add(-time.Hour),
	}
	require.NoError(t, s.Set(ctx, entry))

	_, err := s.Get(ctx, "fp2")
	require.ErrorIs(t, err, cache.ErrNotFound)
}

func TestCompactRemovesExpiredRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	expired := types.CacheEntry{Fingerprint: "old", ExpiresAt: time.Now().Add(-time.Minute)}
	fresh := types.CacheEntry{Fingerprint: "new", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, s.Set(ctx, expired))
	require.NoError(t, s.Set(ctx, fresh))

	n, err := s.Compact(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = s.Get(ctx, "new")
	require.NoError(t, err)
}

func TestDeleteRemovesRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	entry := types.CacheEntry{Fingerprint: "fp3", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, s.Set(ctx, entry))
	require.NoError(t, s.Delete(ctx, "fp3"))

	_, err := s.Get(ctx, "fp3")
	require.ErrorIs(t, err, cache.ErrNotFound)
}
