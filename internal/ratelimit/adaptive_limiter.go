package ratelimit

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Proton-105/mintwatch/pkg/metrics"
)

// AdaptiveLimiter uses the shared Redis limiter and falls back to a stricter
// in-memory limiter while Redis fails.
type AdaptiveLimiter struct {
	primary  Limiter
	fallback Limiter
	log      *slog.Logger
}

func NewAdaptiveLimiter(primary, fallback Limiter, log *slog.Logger) *AdaptiveLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &AdaptiveLimiter{
		primary:  primary,
		fallback: fallback,
		log:      log,
	}
}

func (a *AdaptiveLimiter) Allow(ctx context.Context, key string, rule Rule) (Decision, error) {
	decision, err := a.primary.Allow(ctx, key, rule)
	if err == nil || errors.Is(err, ErrLimitExceeded) {
		metrics.RecordRateLimit("redis", decision.Allowed)
		return decision, err
	}

	metrics.RecordRateLimitBackendError()
	a.log.Warn("redis limiter failed, falling back to in-memory", slog.String("key", key), slog.Any("error", err))

	// each replica only sees its own share of traffic
	strict := rule
	strict.Limit = max(rule.Limit/2, 1)

	decision, err = a.fallback.Allow(ctx, key, strict)
	if err == nil || errors.Is(err, ErrLimitExceeded) {
		metrics.RecordRateLimit("memory", decision.Allowed)
	}
	return decision, err
}
