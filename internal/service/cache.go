package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/tox-signal-mcp-server/internal/domain"
)

const cacheKeyPrefix = "toxsig:analysis:"

// AnalysisCache keeps finished analyses in a bounded in-memory LRU (tier 1)
// and, when configured, in Redis (tier 2). Entries are keyed by study id and
// input digest so a changed bundle never hits a stale result.
type AnalysisCache struct {
	memory *expirable.LRU[string, *domain.StudyAnalysis]
	redis  *redis.Client
	ttl    time.Duration
	logger *logrus.Logger

	memoryHits  atomic.Int64
	redisHits   atomic.Int64
	misses      atomic.Int64
	redisErrors atomic.Int64
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	MemoryHits  int64 `json:"memory_hits"`
	RedisHits   int64 `json:"redis_hits"`
	Misses      int64 `json:"misses"`
	RedisErrors int64 `json:"redis_errors"`
	Entries     int   `json:"entries"`
}

// NewAnalysisCache creates the cache. An empty RedisURL keeps the cache
// in-process only.
func NewAnalysisCache(cfg domain.CacheConfig, logger *logrus.Logger) (*AnalysisCache, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 256
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 15 * time.Minute
	}

	c := &AnalysisCache{
		memory: expirable.NewLRU[string, *domain.StudyAnalysis](cfg.MaxEntries, nil, cfg.DefaultTTL),
		ttl:    cfg.DefaultTTL,
		logger: logger,
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		if cfg.PoolSize > 0 {
			opts.PoolSize = cfg.PoolSize
		}
		c.redis = redis.NewClient(opts)
	}
	return c, nil
}

// CacheKey builds the cache key of one analysis. The study id is escaped so
// that no id is a prefix of another id's keys and no glob character reaches
// a Redis SCAN pattern.
func CacheKey(studyID, digest string) string {
	return studyKeyPrefix(studyID) + digest
}

func studyKeyPrefix(studyID string) string {
	return cacheKeyPrefix + url.QueryEscape(studyID) + ":"
}

// Get returns a cached analysis. Redis hits are promoted to memory. Redis
// failures are logged and treated as misses.
func (c *AnalysisCache) Get(ctx context.Context, studyID, digest string) (*domain.StudyAnalysis, bool) {
	key := CacheKey(studyID, digest)
	if analysis, ok := c.memory.Get(key); ok {
		c.memoryHits.Add(1)
		return analysis, true
	}

	if c.redis != nil {
		raw, err := c.redis.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var analysis domain.StudyAnalysis
			if err := json.Unmarshal(raw, &analysis); err == nil {
				c.redisHits.Add(1)
				c.memory.Add(key, &analysis)
				return &analysis, true
			}
			c.logger.WithField("key", key).Warn("Discarding undecodable cached analysis")
		case errors.Is(err, redis.Nil):
		default:
			c.redisErrors.Add(1)
			c.logger.WithError(err).WithField("key", key).Warn("Redis cache lookup failed")
		}
	}

	c.misses.Add(1)
	return nil, false
}

// Set stores an analysis under its study id and input digest.
func (c *AnalysisCache) Set(ctx context.Context, analysis *domain.StudyAnalysis) {
	if analysis == nil || analysis.InputDigest == "" {
		return
	}
	key := CacheKey(analysis.StudyID, analysis.InputDigest)
	c.memory.Add(key, analysis)

	if c.redis == nil {
		return
	}
	raw, err := json.Marshal(analysis)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to encode analysis for cache")
		return
	}
	if err := c.redis.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.redisErrors.Add(1)
		c.logger.WithError(err).WithField("key", key).Warn("Redis cache write failed")
	}
}

// Invalidate drops every cached analysis of a study.
func (c *AnalysisCache) Invalidate(ctx context.Context, studyID string) error {
	prefix := studyKeyPrefix(studyID)
	for _, key := range c.memory.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.memory.Remove(key)
		}
	}
	if c.redis == nil {
		return nil
	}

	iter := c.redis.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cached analyses: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cached analyses: %w", err)
	}
	return nil
}

// Stats returns a snapshot of the cache counters.
func (c *AnalysisCache) Stats() CacheStats {
	return CacheStats{
		MemoryHits:  c.memoryHits.Load(),
		RedisHits:   c.redisHits.Load(),
		Misses:      c.misses.Load(),
		RedisErrors: c.redisErrors.Load(),
		Entries:     c.memory.Len(),
	}
}

// Close releases the Redis connection pool.
func (c *AnalysisCache) Close() error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}

// Ping checks the Redis tier. It is nil for an in-process cache.
func (c *AnalysisCache) Ping(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}
