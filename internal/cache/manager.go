package cache

import (
	"context"
	"sync"
	"sync/atomic"
)

// LocalCache is an in-memory cache implementation
// It implements the Cache interface
type LocalCache struct {
	lock    sync.RWMutex
	entries map[string][]byte

	hits   atomic.Int64
	misses atomic.Int64
}

// NewLocalCache creates a new in-memory cache
func NewLocalCache() *LocalCache {
	return &LocalCache{entries: make(map[string][]byte)}
}

func (lc *LocalCache) Get(key string) ([]byte, bool) {
	lc.lock.RLock()
	defer lc.lock.RUnlock()
	code, ok := lc.entries[key]
	if !ok {
		lc.misses.Add(1)
		return nil, false
	}
	lc.hits.Add(1)
	return code, true
}

func (lc *LocalCache) Set(key string, code []byte) {
	stored := make([]byte, len(code))
	copy(stored, code)
	lc.lock.Lock()
	defer lc.lock.Unlock()
	lc.entries[key] = stored
}

func (lc *LocalCache) Remove(key string) {
	lc.lock.Lock()
	defer lc.lock.Unlock()
	delete(lc.entries, key)
}

// Clear removes all cached data
func (lc *LocalCache) Clear() {
	lc.lock.Lock()
	defer lc.lock.Unlock()
	lc.entries = make(map[string][]byte)
}

func (lc *LocalCache) Stats(ctx context.Context) (map[string]interface{}, error) {
	lc.lock.RLock()
	defer lc.lock.RUnlock()
	var size int
	for _, code := range lc.entries {
		size += len(code)
	}
	return map[string]interface{}{
		"type":      "local",
		"key_count": len(lc.entries),
		"bytes":     size,
		"hits":      lc.hits.Load(),
		"misses":    lc.misses.Load(),
	}, nil
}

func (lc *LocalCache) Close() error {
	return nil
}
