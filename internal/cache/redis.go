package cache

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares compiled bytecode between hosts via Redis
type RedisCache struct {
	client  *redis.Client
	ttl     time.Duration
	prefix  string
	timeout time.Duration
}

// RedisConfig configures the Redis cache
type RedisConfig struct {
	Addr     string        // Redis address (e.g., "localhost:6379")
	Password string        // Redis password (empty for no auth)
	DB       int           // Redis database number
	TTL      time.Duration // Cache TTL (0 = no expiration)
	Prefix   string        // Key prefix (default: "jshost:bc:")
	UseTLS   bool          // Enable TLS connection
}

// NewRedisCache connects to Redis and checks the connection.
func NewRedisCache(config RedisConfig) (*RedisCache, error) {
	opts := &redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	}
	if config.UseTLS {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}
	return newRedisCache(redis.NewClient(opts), config)
}

func newRedisCache(client *redis.Client, config RedisConfig) (*RedisCache, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	prefix := config.Prefix
	if prefix == "" {
		prefix = "jshost:bc:"
	}
	return &RedisCache{
		client:  client,
		ttl:     config.TTL,
		prefix:  prefix,
		timeout: 2 * time.Second,
	}, nil
}

func (rc *RedisCache) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), rc.timeout)
}

// Get retrieves bytecode from Redis. Any backend error is a miss.
func (rc *RedisCache) Get(key string) ([]byte, bool) {
	ctx, cancel := rc.ctx()
	defer cancel()
	data, err := rc.client.Get(ctx, rc.prefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores bytecode in Redis
func (rc *RedisCache) Set(key string, code []byte) {
	ctx, cancel := rc.ctx()
	defer cancel()
	rc.client.Set(ctx, rc.prefix+key, code, rc.ttl)
}

// Remove deletes one entry
func (rc *RedisCache) Remove(key string) {
	ctx, cancel := rc.ctx()
	defer cancel()
	rc.client.Del(ctx, rc.prefix+key)
}

// Clear removes all keys under the prefix
func (rc *RedisCache) Clear() {
	ctx := context.Background()
	pattern := rc.prefix + "*"
	var cursor uint64
	for {
		keys, nextCursor, err := rc.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			break
		}

		if len(keys) > 0 {
			rc.client.Del(ctx, keys...)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Stats returns cache statistics
func (rc *RedisCache) Stats(ctx context.Context) (map[string]interface{}, error) {
	info, err := rc.client.Info(ctx, "stats").Result()
	if err != nil {
		return nil, err
	}

	pattern := rc.prefix + "*"
	var count int64
	var cursor uint64
	for {
		keys, nextCursor, err := rc.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		count += int64(len(keys))
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return map[string]interface{}{
		"type":       "redis",
		"key_count":  count,
		"prefix":     rc.prefix,
		"redis_info": info,
	}, nil
}
