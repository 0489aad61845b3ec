package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Variant is a finished response body stored alongside its content type.
type Variant struct {
	ContentType string
	Data        []byte
}

// RedisVariantCache stores encoded variants keyed by the canonical request
// string, so every parameter that affects pixels is part of the key.
type RedisVariantCache struct {
	client    redis.UniversalClient
	ttl       time.Duration
	keyPrefix string
}

func NewRedisVariantCache(client redis.UniversalClient, ttl time.Duration, keyPrefix string) (*RedisVariantCache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive")
	}
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = "shrinkray:variant"
	}

	return &RedisVariantCache{
		client:    client,
		ttl:       ttl,
		keyPrefix: keyPrefix,
	}, nil
}

// Get returns the cached variant for the canonical request, or ok=false on a
// miss.
func (c *RedisVariantCache) Get(ctx context.Context, canonical string) (Variant, bool, error) {
	key := c.key(canonical)
	values, err := c.client.HMGet(ctx, key, "content_type", "data").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Variant{}, false, nil
		}
		return Variant{}, false, fmt.Errorf("read cached variant: %w", err)
	}

	contentType, okType := values[0].(string)
	data, okData := values[1].(string)
	if !okType || !okData || data == "" {
		return Variant{}, false, nil
	}

	return Variant{ContentType: contentType, Data: []byte(data)}, true, nil
}

// Set stores the variant with the configured TTL. Cache writes are best
// effort; callers log and continue on error.
func (c *RedisVariantCache) Set(ctx context.Context, canonical string, v Variant) error {
	key := c.key(canonical)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, "content_type", v.ContentType, "data", v.Data)
	pipe.PExpire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write cached variant: %w", err)
	}
	return nil
}

func (c *RedisVariantCache) key(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return c.keyPrefix + ":" + hex.EncodeToString(sum[:])
}
