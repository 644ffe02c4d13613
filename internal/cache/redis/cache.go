package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BarkinBalci/dora-metrics-service/internal/cache"
	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
)

// Cache stores aggregation results in Redis so several API replicas share
// the refresher's output
type Cache struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

// NewClient connects to the Redis URL and verifies the connection
func NewClient(ctx context.Context, url string, log *zap.Logger) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info("Redis connection established", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return client, nil
}

// NewCache creates a Redis-backed result cache
func NewCache(client goredis.UniversalClient, prefix string, ttl time.Duration, log *zap.Logger) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		log:    log,
	}
}

func (c *Cache) key(sourceID string) string {
	return c.prefix + sourceID
}

// Set stores the result under its source ID with the cache TTL
func (c *Cache) Set(ctx context.Context, result *domain.AggregationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := c.client.Set(ctx, c.key(result.SourceID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}
	return nil
}

// Get returns the cached result or cache.ErrNotCached
func (c *Cache) Get(ctx context.Context, sourceID string) (*domain.AggregationResult, error) {
	data, err := c.client.Get(ctx, c.key(sourceID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, cache.ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read result: %w", err)
	}
	return decode(data)
}

// List returns every cached result ordered by source ID
func (c *Cache) List(ctx context.Context) ([]*domain.AggregationResult, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan results: %w", err)
	}
	if len(keys) == 0 {
		return []*domain.AggregationResult{}, nil
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}

	out := make([]*domain.AggregationResult, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// expired between SCAN and MGET
			continue
		}
		result, err := decode([]byte(s))
		if err != nil {
			c.log.Warn("Skipping undecodable cached result", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		out = append(out, result)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out, nil
}

func decode(data []byte) (*domain.AggregationResult, error) {
	var result domain.AggregationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &result, nil
}
