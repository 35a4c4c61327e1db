package jshost

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yejune/go-jshost/internal/cache"
	"github.com/yejune/go-jshost/internal/jsruntime"
)

func TestConfig_Defaults(t *testing.T) {
	c := Config{}
	require.NoError(t, c.Validate())

	assert.Equal(t, jsruntime.DefaultRuntimeType(), c.Runtime)
	assert.EqualValues(t, DefaultMaxStackSize, c.MaxStackSize)
	assert.Equal(t, jsruntime.DefaultMaxPendingJobs, c.MaxPendingJobs)
	assert.NotZero(t, c.CallTimeout)
	assert.Equal(t, "jshost", c.Name)
}

func TestConfig_DisableStackGuard(t *testing.T) {
	c := Config{MaxStackSize: 4096, DisableStackGuard: true}
	require.NoError(t, c.Validate())
	assert.Zero(t, c.MaxStackSize)
}

func TestConfig_AssetDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.js"), []byte("1"), 0o644))

	c := Config{AssetDir: dir}
	require.NoError(t, c.Validate())
	require.NotNil(t, c.Assets)

	c = Config{AssetDir: filepath.Join(dir, "a.js")}
	assert.Error(t, c.Validate())
}

func TestConfig_Cache(t *testing.T) {
	c := Config{Cache: cache.CacheConfig{Type: "memcached"}}
	assert.Error(t, c.Validate())

	c = Config{Cache: cache.CacheConfig{Type: cache.CacheTypeRedis}}
	assert.Error(t, c.Validate())
}
