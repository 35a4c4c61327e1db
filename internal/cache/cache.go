// Package cache stores compiled bytecode keyed by engine build and source
// content.
package cache

import (
	"context"
	"encoding/binary"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// CacheType selects a Cache implementation.
type CacheType string

const (
	CacheTypeLocal CacheType = "local"
	CacheTypeRedis CacheType = "redis"
)

// Cache holds enveloped bytecode. Implementations are safe for concurrent
// use; a failing backend behaves as a miss.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, code []byte)
	Remove(key string)
	Clear()
	Stats(ctx context.Context) (map[string]interface{}, error)
	Close() error
}

// CacheConfig configures NewCache.
type CacheConfig struct {
	Type          CacheType
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool
	RedisPrefix   string
	// TTL expires Redis entries; zero keeps them until evicted.
	TTL time.Duration
}

// NewCache creates a cache based on the config
func NewCache(config CacheConfig) (Cache, error) {
	switch config.Type {
	case CacheTypeRedis:
		return NewRedisCache(config.redis())
	default:
		return NewLocalCache(), nil
	}
}

func (config CacheConfig) redis() RedisConfig {
	return RedisConfig{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
		TTL:      config.TTL,
		UseTLS:   config.RedisTLS,
		Prefix:   config.RedisPrefix,
	}
}

// Key derives a cache key from the engine identity, the script name and its
// source. Any change to one of them yields a different key.
func Key(runtime, build, name string, source []byte) string {
	d := xxhash.New()
	for _, part := range []string{runtime, build, name} {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(part)))
		_, _ = d.Write(n[:])
		_, _ = d.WriteString(part)
	}
	_, _ = d.Write(source)
	return runtime + ":" + strconv.FormatUint(d.Sum64(), 16)
}
