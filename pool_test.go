package jshost

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool(t *testing.T) {
	p, err := NewPool(PoolConfig{
		PoolSize: 3,
		Host:     Config{Logger: quietLogger(), AppEnv: "production"},
	})
	require.NoError(t, err)
	defer p.Close(context.Background())

	var wg sync.WaitGroup
	errs := make(chan error, 12)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := p.Eval(context.Background(), "var s = 0; for (var i = 0; i < 100; i++) s += i; s", "sum.js")
			if err == nil && report.Result != "4950" {
				err = assert.AnError
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	stats := p.Stats(context.Background())
	assert.Equal(t, 3, stats["pool_size"])
	assert.EqualValues(t, 12, stats["total_served"])
	assert.Equal(t, 0, stats["in_use"])
}

func TestPool_GetTimesOut(t *testing.T) {
	p, err := NewPool(PoolConfig{
		PoolSize: 1,
		Host:     Config{Logger: quietLogger(), AppEnv: "production", DisableCache: true},
	})
	require.NoError(t, err)
	defer p.Close(context.Background())

	h, err := p.Get(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p.Put(h)
	require.NoError(t, p.Close(context.Background()))
	_, err = p.Get(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_StatsIncludeCache(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("6 * 7"), 0o644))

	p, err := NewPool(PoolConfig{
		PoolSize: 1,
		Host:     Config{Logger: quietLogger(), AppEnv: "production", FileRoot: dir},
	})
	require.NoError(t, err)
	defer p.Close(context.Background())

	for i := 0; i < 3; i++ {
		report, err := p.RunFile(context.Background(), "app.js")
		require.NoError(t, err)
		assert.Equal(t, "42", report.Result)
		assert.Equal(t, i > 0, report.CacheHit)
	}

	cs, ok := p.Stats(context.Background())["cache"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "local", cs["type"])
	assert.Equal(t, 1, cs["key_count"])
	assert.EqualValues(t, 2, cs["hits"])
	assert.EqualValues(t, 1, cs["misses"])

	p.ClearCache()
	cs = p.Stats(context.Background())["cache"].(map[string]interface{})
	assert.Equal(t, 0, cs["key_count"])

	report, err := p.RunFile(context.Background(), "app.js")
	require.NoError(t, err)
	assert.False(t, report.CacheHit)
}

func TestPool_StatsWithoutCache(t *testing.T) {
	p, err := NewPool(PoolConfig{
		PoolSize: 1,
		Host:     Config{Logger: quietLogger(), AppEnv: "production", DisableCache: true},
	})
	require.NoError(t, err)
	defer p.Close(context.Background())

	stats := p.Stats(context.Background())
	assert.Equal(t, false, stats["shared_cache"])
	assert.NotContains(t, stats, "cache")
}
