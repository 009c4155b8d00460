package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/factharvest/internal/model"
)

func TestPageKey(t *testing.T) {
	a := PageKey("https://site/a")
	assert.Contains(t, a, "factharvest:v1:page:")
	assert.NotEqual(t, a, PageKey("https://site/b"), "different URLs must have different keys")
	assert.Equal(t, a, PageKey("https://site/a"), "key must be stable")
}

func TestDiskCache_RoundTripAndExpiry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	key := PageKey("https://site/a")

	require.NoError(t, c.Set(key, []byte("<html>a</html>"), 0))
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "<html>a</html>", string(got))

	require.NoError(t, c.Set(key, []byte("old"), time.Nanosecond))
	time.Sleep(2 * time.Millisecond)
	_, ok = c.Get(key)
	assert.False(t, ok, "expired entry should miss")
	assert.NoFileExists(t, c.path(key), "expired entry should be removed")
}

func TestDiskCache_CorruptEntryMisses(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	key := PageKey("https://site/a")

	require.NoError(t, os.WriteFile(c.path(key), []byte("{not json"), 0o644))
	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestDiskCache_DeleteMissingIsNotAnError(t *testing.T) {
	c := NewDiskCache(filepath.Join(t.TempDir(), "cache"), time.Hour)
	assert.NoError(t, c.Delete("nope"))
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	c := NewLayeredCache(time.Minute, dir, time.Hour)
	key := PageKey("https://site/a")

	require.NoError(t, c.disk.Set(key, []byte("page"), 0))
	_, ok := c.memory.Get(key)
	require.False(t, ok, "memory layer should start empty")

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "page", string(got))
	_, ok = c.memory.Get(key)
	assert.True(t, ok, "disk hit should be promoted to memory")
}

func TestFromConfig(t *testing.T) {
	assert.Nil(t, FromConfig(model.CacheConfig{Enabled: false}))

	c := FromConfig(model.CacheConfig{Enabled: true, Dir: t.TempDir(), MemoryTTL: time.Minute, DiskTTL: time.Hour})
	require.NotNil(t, c)
	assert.NoError(t, c.Set("k", []byte("v"), 0))
}
