package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"deepsearch-workers/internal/common/logger"
	"deepsearch-workers/internal/common/metrics"

	"github.com/redis/go-redis/v9"
)

const pageCachePrefix = "research:page:"

// CachedFetcher keeps extracted page text in Redis. Unavailable pages are not
// cached so a later round can retry them.
type CachedFetcher struct {
	next   Fetcher
	redis  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedFetcher(next Fetcher, redisClient *redis.Client, ttl time.Duration, log logger.Logger) *CachedFetcher {
	return &CachedFetcher{
		next:   next,
		redis:  redisClient,
		ttl:    ttl,
		logger: log,
	}
}

func (c *CachedFetcher) Fetch(ctx context.Context, url string) (string, bool) {
	key := pageCacheKey(url)
	if val, err := c.redis.Get(ctx, key).Result(); err == nil {
		metrics.ResearchPagesFetched.WithLabelValues("cached").Inc()
		return val, true
	} else if err != redis.Nil {
		c.logger.Warn("page cache read failed", map[string]interface{}{
			"url":   url,
			"error": err.Error(),
		})
	}

	text, ok := c.next.Fetch(ctx, url)
	if !ok {
		return "", false
	}

	if err := c.redis.Set(ctx, key, text, c.ttl).Err(); err != nil {
		c.logger.Warn("page cache write failed", map[string]interface{}{
			"url":   url,
			"error": err.Error(),
		})
	}
	return text, true
}

func pageCacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return pageCachePrefix + hex.EncodeToString(sum[:])
}

var _ Fetcher = (*CachedFetcher)(nil)
