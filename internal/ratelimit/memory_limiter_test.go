package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/mintwatch/pkg/config"
)

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	c := newClock()
	limiter := NewMemoryLimiter()
	limiter.now = c.now
	ctx := context.Background()
	rule := Rule{Limit: 2, Window: time.Minute}

	for i := 0; i < 2; i++ {
		_, err := limiter.Allow(ctx, "u1", rule)
		require.NoError(t, err)
	}

	decision, err := limiter.Allow(ctx, "u1", rule)
	require.ErrorIs(t, err, ErrLimitExceeded)
	assert.Equal(t, c.t.Add(time.Minute), decision.ResetAt)
	assert.Equal(t, 60, decision.RetryAfter(c.t))

	c.advance(time.Minute + time.Second)
	_, err = limiter.Allow(ctx, "u1", rule)
	assert.NoError(t, err)
}

func TestMemoryLimiter_Cleanup(t *testing.T) {
	c := newClock()
	limiter := NewMemoryLimiter()
	limiter.now = c.now

	_, err := limiter.Allow(context.Background(), "idle", Rule{Limit: 1, Window: time.Minute})
	require.NoError(t, err)

	c.advance(time.Hour)
	assert.Equal(t, 1, limiter.Cleanup(10*time.Minute))
	assert.Empty(t, limiter.buckets)
}

func TestRules(t *testing.T) {
	rules := NewRules(config.RateLimitConfig{
		PerUser:   config.RateLimitRule{Limit: 30, Window: "1m"},
		Whitelist: []string{" ops-user ", ""},
	})

	rule, err := rules.PerUser()
	require.NoError(t, err)
	assert.Equal(t, Rule{Limit: 30, Window: time.Minute}, rule)

	assert.True(t, rules.IsWhitelisted("ops-user"))
	assert.False(t, rules.IsWhitelisted(""))

	testCases := []struct {
		name string
		rule config.RateLimitRule
	}{
		{name: "missing window", rule: config.RateLimitRule{Limit: 1}},
		{name: "bad window", rule: config.RateLimitRule{Limit: 1, Window: "soon"}},
		{name: "zero limit", rule: config.RateLimitRule{Limit: 0, Window: "1m"}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRules(config.RateLimitConfig{PerUser: tc.rule}).PerUser()
			assert.Error(t, err)
		})
	}
}
