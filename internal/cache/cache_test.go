package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	k := Key("quickjs", "b1", "app.js", []byte("1+1"))
	assert.Equal(t, k, Key("quickjs", "b1", "app.js", []byte("1+1")))
	assert.Contains(t, k, "quickjs:")

	assert.NotEqual(t, k, Key("quickjs", "b2", "app.js", []byte("1+1")))
	assert.NotEqual(t, k, Key("quickjs", "b1", "main.js", []byte("1+1")))
	assert.NotEqual(t, k, Key("quickjs", "b1", "app.js", []byte("1+2")))
	assert.NotEqual(t, Key("q", "ab", "c", nil), Key("q", "a", "bc", nil))
}

func TestLocalCache(t *testing.T) {
	c := NewLocalCache()

	_, ok := c.Get("k")
	assert.False(t, ok)

	code := []byte("KBC1-payload")
	c.Set("k", code)
	code[0] = 'X'

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "KBC1-payload", string(got))

	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats["key_count"])
	assert.EqualValues(t, 1, stats["hits"])
	assert.EqualValues(t, 1, stats["misses"])

	c.Remove("k")
	_, ok = c.Get("k")
	assert.False(t, ok)

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	c.Clear()
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.NoError(t, c.Close())
}

func TestNewCache_DefaultsToLocal(t *testing.T) {
	c, err := NewCache(CacheConfig{})
	require.NoError(t, err)
	assert.IsType(t, &LocalCache{}, c)
}

func TestCacheConfig_Redis(t *testing.T) {
	rc := CacheConfig{
		Type:        CacheTypeRedis,
		RedisAddr:   "localhost:6379",
		RedisDB:     2,
		RedisPrefix: "p:",
		TTL:         time.Hour,
	}.redis()
	assert.Equal(t, "localhost:6379", rc.Addr)
	assert.Equal(t, 2, rc.DB)
	assert.Equal(t, "p:", rc.Prefix)
	assert.Equal(t, time.Hour, rc.TTL)
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("JSHOST_REDIS_ADDR")
	if addr == "" {
		t.Skip("JSHOST_REDIS_ADDR not set")
	}
	c, err := NewCache(CacheConfig{Type: CacheTypeRedis, RedisAddr: addr, RedisPrefix: "jshost:test:", TTL: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, time.Minute, c.(*RedisCache).ttl)
	defer c.Close()
	defer c.Clear()

	c.Set("k", []byte("code"))
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "code", string(got))

	c.Remove("k")
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	_, err := NewRedisCache(RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
