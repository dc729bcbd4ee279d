package idempotency

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestGenerateKey(t *testing.T) {
	a := GenerateKey("sms", "u1", int64(7), "+15550001")
	b := GenerateKey("sms", "u1", int64(7), "+15550001")
	c := GenerateKey("sms", "u1", int64(8), "+15550001")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "sms:"))
	assert.NotContains(t, a, "15550001")
}

func TestManager_RunsOnceThenServesFromCache(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	m := NewManager(NewRedisStore(client, testLogger()), testLogger(), time.Minute)

	calls := 0
	op := func(ctx context.Context) (interface{}, error) {
		calls++
		return "sent", nil
	}

	first, err := m.Execute(ctx, "k1", time.Hour, op)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, "sent", first.Response)

	second, err := m.Execute(ctx, "k1", time.Hour, op)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, "sent", second.Response)

	assert.Equal(t, 1, calls)
	assert.False(t, mr.Exists("idempotency:k1:lock"))
	assert.Equal(t, time.Hour, mr.TTL("idempotency:k1"))
}

func TestManager_FailedOperationCanBeRetried(t *testing.T) {
	ctx := context.Background()
	_, client := setupRedis(t)
	m := NewManager(NewRedisStore(client, testLogger()), testLogger(), time.Minute)

	boom := errors.New("provider down")
	_, err := m.Execute(ctx, "k2", time.Hour, func(ctx context.Context) (interface{}, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	res, err := m.Execute(ctx, "k2", time.Hour, func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
}

func TestManager_HeldLockReportsInProgress(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	m := NewManager(NewRedisStore(client, testLogger()), testLogger(), time.Minute)

	require.NoError(t, mr.Set("idempotency:k3:lock", "1"))

	_, err := m.Execute(ctx, "k3", time.Hour, func(ctx context.Context) (interface{}, error) {
		t.Fatal("operation must not run while another holder owns the key")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrRequestInProgress)
}

func TestManager_StoreUnavailable(t *testing.T) {
	mr, client := setupRedis(t)
	m := NewManager(NewRedisStore(client, testLogger()), testLogger(), time.Minute)
	mr.Close()

	_, err := m.Execute(context.Background(), "k4", time.Hour, func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrRequestInProgress)
}

func TestCleaner_RemovesKeysWithoutExpiry(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)

	require.NoError(t, mr.Set("idempotency:stale", "x"))
	require.NoError(t, mr.Set("idempotency:fresh", "x"))
	mr.SetTTL("idempotency:fresh", time.Hour)
	require.NoError(t, mr.Set("idempotency:too-long", "x"))
	mr.SetTTL("idempotency:too-long", 200*time.Hour)
	require.NoError(t, mr.Set("other:key", "x"))

	removed := NewCleaner(client, testLogger(), time.Minute, 72*time.Hour).Cleanup(ctx)

	assert.Equal(t, 2, removed)
	assert.False(t, mr.Exists("idempotency:stale"))
	assert.False(t, mr.Exists("idempotency:too-long"))
	assert.True(t, mr.Exists("idempotency:fresh"))
	assert.True(t, mr.Exists("other:key"))
}
