package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// RedisLimiter keeps one sorted set of request timestamps per key.
type RedisLimiter struct {
	client redis.UniversalClient
	log    *slog.Logger
	now    func() time.Time
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client redis.UniversalClient, log *slog.Logger) *RedisLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &RedisLimiter{
		client: client,
		log:    log,
		now:    time.Now,
	}
}

// Allow records the request and evaluates the sliding window ending now.
func (l *RedisLimiter) Allow(ctx context.Context, key string, rule Rule) (Decision, error) {
	if l.client == nil {
		return Decision{}, errors.New("redis client is not configured for rate limiting")
	}

	now := l.now()
	windowStart := now.Add(-rule.Window)
	redisKey := keyPrefix + key

	if rule.Limit <= 0 {
		return Decision{ResetAt: now.Add(rule.Window)}, ErrLimitExceeded
	}

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("(%d", windowStart.UnixMilli()))
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	})
	countCmd := pipe.ZCard(ctx, redisKey)
	oldestCmd := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	pipe.Expire(ctx, redisKey, rule.Window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Error("rate limiter pipeline failed", slog.String("key", key), slog.Any("error", err))
		return Decision{}, err
	}

	count := int(countCmd.Val())
	decision := Decision{
		Allowed:   count <= rule.Limit,
		Remaining: max(rule.Limit-count, 0),
		ResetAt:   now.Add(rule.Window),
	}
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		decision.ResetAt = time.UnixMilli(int64(oldest[0].Score)).Add(rule.Window)
	}

	if !decision.Allowed {
		return decision, ErrLimitExceeded
	}
	return decision, nil
}
