// Package rediscache stores computed leaderboards in Redis so repeated reads
// skip the aggregation queries. Entries expire after a TTL and every
// committed event drops them.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tutu-network/learnquest/internal/domain"
)

// DefaultTTL bounds how stale a cached leaderboard can get.
const DefaultTTL = 5 * time.Minute

const keyPrefix = "learnquest:leaderboard:"

// scanBatch is the SCAN COUNT hint and the DEL batch size.
const scanBatch = 100

var _ domain.LeaderboardCache = (*Cache)(nil)

// Config holds the Redis connection settings.
type Config struct {
	Addr        string
	Password    string
	DB          int
	TTL         time.Duration
	DialTimeout time.Duration
}

// Cache is a Redis-backed leaderboard cache.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	return NewWithClient(client, cfg.TTL), nil
}

// NewWithClient wraps an existing client. ttl <= 0 selects DefaultTTL.
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// Key returns the Redis key of one leaderboard. The window start is part of
// the key so a board is never served past the end of its window.
func Key(k domain.BoardKey) string {
	var since int64
	if !k.Since.IsZero() {
		since = k.Since.Unix()
	}
	return fmt.Sprintf("%s%s:%s:%d:%d", keyPrefix, k.Metric, k.Period, since, k.Limit)
}

// Get returns a cached leaderboard. ok is false on a miss.
func (c *Cache) Get(ctx context.Context, key domain.BoardKey) ([]domain.RankedEntry, bool, error) {
	data, err := c.client.Get(ctx, Key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var entries []domain.RankedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, false, fmt.Errorf("decode cached leaderboard: %w", err)
	}
	if entries == nil {
		entries = []domain.RankedEntry{}
	}
	return entries, true, nil
}

// Set stores a leaderboard with the configured TTL.
func (c *Cache) Set(ctx context.Context, key domain.BoardKey, entries []domain.RankedEntry) error {
	if entries == nil {
		entries = []domain.RankedEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode leaderboard: %w", err)
	}
	if err := c.client.Set(ctx, Key(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Invalidate deletes every cached leaderboard.
func (c *Cache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", scanBatch).Iterator()
	keys := make([]string, 0, scanBatch)

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= scanBatch {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	return nil
}

// Ping checks that Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}
