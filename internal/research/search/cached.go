package search

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"deepsearch-workers/internal/common/logger"
	"deepsearch-workers/internal/common/metrics"

	"github.com/redis/go-redis/v9"
)

const searchCachePrefix = "research:search:"

// CachedProvider serves repeated queries from Redis. Failed searches are
// never cached.
type CachedProvider struct {
	next   Provider
	redis  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedProvider(next Provider, redisClient *redis.Client, ttl time.Duration, log logger.Logger) *CachedProvider {
	return &CachedProvider{next: next, redis: redisClient, ttl: ttl, logger: log}
}

func (c *CachedProvider) Search(ctx context.Context, query string) ([]Result, error) {
	key := c.buildCacheKey(query)
	if val, err := c.redis.Get(ctx, key).Result(); err == nil {
		var cached []Result
		if err := json.Unmarshal([]byte(val), &cached); err == nil {
			metrics.ResearchSearchQueries.WithLabelValues("cached").Inc()
			return cached, nil
		}
	} else if err != redis.Nil {
		c.logger.Warn("search cache read failed", map[string]interface{}{
			"query": query,
			"error": err.Error(),
		})
	}

	results, err := c.next.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(results); err == nil {
		if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("search cache write failed", map[string]interface{}{
				"query": query,
				"error": err.Error(),
			})
		}
	}
	return results, nil
}

func (c *CachedProvider) buildCacheKey(query string) string {
	return searchCachePrefix + strings.ToLower(strings.Join(strings.Fields(query), " "))
}

var _ Provider = (*CachedProvider)(nil)
