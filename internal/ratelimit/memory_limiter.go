package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a process-local sliding window used when Redis is unavailable.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
	now     func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		buckets: make(map[string][]time.Time),
		now:     time.Now,
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, rule Rule) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	requests := keepRecent(m.buckets[key], now.Add(-rule.Window))

	allowed := len(requests) < rule.Limit
	if allowed {
		requests = append(requests, now)
	}
	m.buckets[key] = requests

	decision := Decision{
		Allowed:   allowed,
		Remaining: max(rule.Limit-len(requests), 0),
		ResetAt:   now.Add(rule.Window),
	}
	if len(requests) > 0 {
		decision.ResetAt = requests[0].Add(rule.Window)
	}

	if !allowed {
		return decision, ErrLimitExceeded
	}
	return decision, nil
}

// Cleanup drops keys idle for longer than maxAge.
func (m *MemoryLimiter) Cleanup(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxAge)
	removed := 0
	for key, requests := range m.buckets {
		if len(requests) == 0 || requests[len(requests)-1].Before(cutoff) {
			delete(m.buckets, key)
			removed++
		}
	}
	return removed
}

// keepRecent drops timestamps before windowStart; reqs is sorted ascending.
func keepRecent(reqs []time.Time, windowStart time.Time) []time.Time {
	first := 0
	for first < len(reqs) && reqs[first].Before(windowStart) {
		first++
	}
	if first == 0 {
		return reqs
	}
	return append(reqs[:0], reqs[first:]...)
}
