package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMaskedAPIKey(t *testing.T) {
	assert.Equal(t, "", BackendDescriptor{}.MaskedAPIKey())
	assert.Equal(t, "****", BackendDescriptor{APIKey: "ab"}.MaskedAPIKey())
	assert.Equal(t, "****cdef", BackendDescriptor{APIKey: "sk-ant-abcdef"}.MaskedAPIKey())
}

func TestHealthRecordStale(t *testing.T) {
	fresh := HealthRecord{LastProbe: time.Now()}
	assert.False(t, fresh.Stale(30*time.Second))

	old := HealthRecord{LastProbe: time.Now().Add(-time.Minute)}
	assert.True(t, old.Stale(30*time.Second))

	assert.True(t, HealthRecord{}.Stale(30*time.Second))
}

func TestCacheEntryExpired(t *testing.T) {
	now := time.Now()
	e := CacheEntry{ExpiresAt: now.Add(-time.Second)}
	assert.True(t, e.Expired(now))

	e2 := CacheEntry{ExpiresAt: now.Add(time.Second)}
	assert.False(t, e2.Expired(now))

	assert.False(t, CacheEntry{}.Expired(now))
}
