package mediacache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 7 * 24 * time.Hour

// Client is the subset of the redis client the cache needs, kept small so
// tests can run against miniredis and deployments without redis inject nil.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Cache stores media analysis results keyed by tenant and content digest so
// repeated stickers, images and audios skip the vendor round-trip.
type Cache struct {
	client Client
	ttl    time.Duration
	log    *slog.Logger
}

func New(client Client, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		client: client,
		ttl:    defaultTTL,
		log:    log.With(slog.String("service", "mediacache")),
	}
}

// Key derives the cache key for a media payload. The digest is taken over the
// raw bytes so the same file shared from different URLs still hits.
func Key(tenantID string, data []byte) string {
	sum := sha256.Sum256(data)
	return "media:" + tenantID + ":" + hex.EncodeToString(sum[:])
}

// Get returns the cached analysis for key, or "" on miss. Redis being down is
// treated as a miss, never a failure.
func (c *Cache) Get(ctx context.Context, key string) string {
	if c.client == nil {
		return ""
	}
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("media cache read failed", slog.String("error", err.Error()))
		}
		return ""
	}
	c.bumpHits(ctx, key)
	return val
}

// Set stores an analysis result. Failures are logged and swallowed.
func (c *Cache) Set(ctx context.Context, key, analysis string) {
	if c.client == nil || analysis == "" {
		return
	}
	if err := c.client.Set(ctx, key, analysis, c.ttl).Err(); err != nil {
		c.log.Warn("media cache write failed", slog.String("error", err.Error()))
	}
}

func (c *Cache) bumpHits(ctx context.Context, key string) {
	counter := key + ":hits"
	if err := c.client.Incr(ctx, counter).Err(); err != nil {
		return
	}
	_ = c.client.Expire(ctx, counter, c.ttl).Err()
}
