package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/babyforge/babyforge/internal/metrics"
)

// URLCache remembers the public URL obtained for previously uploaded
// content.
type URLCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, url string, ttl time.Duration) error
}

// RedisCache is a URLCache backed by Redis.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache creates a Redis-backed URL cache.
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: "babyforge:upload:"}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, url string, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.prefix+key, url, ttl).Err()
}

// CachedUploader wraps an Uploader with a content-addressed URL cache,
// so re-running a pipeline with the same source photos skips the
// re-upload. Cache failures degrade to a plain upload, never to a
// pipeline failure.
type CachedUploader struct {
	next    Uploader
	cache   URLCache
	ttl     time.Duration
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewCachedUploader wraps next with the given cache. A zero ttl defaults
// to 24 hours, matching the typical lifetime of provider-hosted files.
func NewCachedUploader(next Uploader, cache URLCache, ttl time.Duration, logger *zap.Logger, collector *metrics.Collector) *CachedUploader {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedUploader{next: next, cache: cache, ttl: ttl, logger: logger, metrics: collector}
}

// Upload returns a cached URL for identical content when available.
func (u *CachedUploader) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	key := contentKey(data, contentType)

	if url, ok, err := u.cache.Get(ctx, key); err == nil && ok {
		u.metrics.RecordUploadCache(true)
		u.logger.Debug("upload cache hit", zap.String("name", name))
		return url, nil
	} else if err != nil {
		u.logger.Warn("upload cache read failed", zap.Error(err))
	}
	u.metrics.RecordUploadCache(false)

	url, err := u.next.Upload(ctx, name, data, contentType)
	if err != nil {
		return "", err
	}
	if err := u.cache.Set(ctx, key, url, u.ttl); err != nil {
		u.logger.Warn("upload cache write failed", zap.Error(err))
	}
	return url, nil
}

func contentKey(data []byte, contentType string) string {
	h := sha256.New()
	h.Write([]byte(contentType))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
