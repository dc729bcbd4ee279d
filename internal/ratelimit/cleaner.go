package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cleaner removes rate-limit keys whose windows hold no recent requests, and prunes the
// in-memory fallback.
type Cleaner struct {
	client   redis.UniversalClient
	memory   *MemoryLimiter
	log      *slog.Logger
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
}

func NewCleaner(client redis.UniversalClient, memory *MemoryLimiter, log *slog.Logger, interval, maxAge time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		client:   client,
		memory:   memory,
		log:      log,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Run cleans on every tick until ctx is canceled.
func (c *Cleaner) Run(ctx context.Context) {
	if c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("rate limit cleaner stopped", slog.String("reason", ctx.Err().Error()))
			return
		case <-ticker.C:
			c.Cleanup(ctx)
		}
	}
}

// Cleanup runs one pass and returns the number of keys removed.
func (c *Cleaner) Cleanup(ctx context.Context) int {
	removed := 0
	if c.memory != nil {
		removed += c.memory.Cleanup(c.maxAge)
	}
	if c.client == nil || ctx.Err() != nil {
		return removed
	}

	const scanCount = 100
	cutoff := c.now().Add(-c.maxAge).UnixMilli()

	iter := c.client.Scan(ctx, 0, keyPrefix+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		pipe := c.client.TxPipeline()
		pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%d", cutoff))
		cardCmd := pipe.ZCard(ctx, key)
		if _, err := pipe.Exec(ctx); err != nil {
			c.log.Warn("cleanup pipeline failed", slog.String("key", key), slog.Any("error", err))
			continue
		}

		if cardCmd.Val() > 0 {
			continue
		}
		if err := c.client.Del(ctx, key).Err(); err != nil {
			c.log.Warn("failed to delete empty rate limit key", slog.String("key", key), slog.Any("error", err))
			continue
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		c.log.Error("rate limit scan failed", slog.Any("error", err))
	}

	if removed > 0 {
		c.log.Info("rate limit keys cleaned", slog.Int("keys_removed", removed))
	}
	return removed
}
