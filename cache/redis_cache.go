package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"warelay/whatsapp"

	"github.com/redis/go-redis/v9"
)

// RedisCache keeps resolved media metadata for less than the provider URL lifetime.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func mediaKey(mediaID string) string {
	return fmt.Sprintf("media:%s", mediaID)
}

func (c *RedisCache) GetMedia(ctx context.Context, mediaID string) (*whatsapp.MediaInfo, error) {
	raw, err := c.rdb.Get(ctx, mediaKey(mediaID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}

	var info whatsapp.MediaInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode cached media %s: %w", mediaID, err)
	}
	return &info, nil
}

func (c *RedisCache) StoreMedia(ctx context.Context, info *whatsapp.MediaInfo) error {
	if info == nil || info.ID == "" {
		return errors.New("media info without id")
	}

	b, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, mediaKey(info.ID), b, c.ttl).Err()
}
