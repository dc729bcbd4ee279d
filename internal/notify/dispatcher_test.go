package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/mintwatch/internal/domain"
	apperrors "github.com/Proton-105/mintwatch/internal/errors"
	"github.com/Proton-105/mintwatch/internal/i18n"
	"github.com/Proton-105/mintwatch/internal/idempotency"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	mu    sync.Mutex
	calls map[string]int
	fail  func(to string, attempt int) error
	last  string
}

func newRecordingSender(fail func(to string, attempt int) error) *recordingSender {
	return &recordingSender{calls: make(map[string]int), fail: fail}
}

func (s *recordingSender) Send(_ context.Context, to, body string) error {
	s.mu.Lock()
	s.calls[to]++
	attempt := s.calls[to]
	s.last = body
	s.mu.Unlock()

	if s.fail != nil {
		return s.fail(to, attempt)
	}
	return nil
}

func (s *recordingSender) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func testOptions() Options {
	return Options{
		Provider:    "test",
		MaxParallel: 2,
		Retry: apperrors.RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
			Multiplier:     2,
		},
		// a high floor keeps the breaker closed in tests that expect failures
		Breaker: apperrors.BreakerSettings{MinRequests: 1000},
	}
}

func testTranslator(t *testing.T) i18n.Translator {
	t.Helper()

	m, err := i18n.Load("en")
	require.NoError(t, err)
	return m.Translator("en")
}

func expiredRecord() domain.MintRecord {
	record := domain.NewMintRecord(domain.MintInput{
		TokenID:       7,
		TxHash:        "0xhash",
		Payload:       "a shower thought",
		WalletAddress: "0xwallet",
	}, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	return record
}

func TestDispatcher_PartialFailureIsolated(t *testing.T) {
	sender := newRecordingSender(func(to string, _ int) error {
		if to == "+15550002" {
			return apperrors.NewDeliveryError("test", errors.New("invalid number"), false)
		}
		return nil
	})
	d := NewDispatcher(sender, nil, testTranslator(t), testOptions(), testLogger())

	out, err := d.Dispatch(context.Background(), "u1", expiredRecord(), []string{"+15550001", "+15550002", "+15550003"})
	require.NoError(t, err)

	assert.Equal(t, []string{"+15550001", "+15550003"}, out.Delivered)
	require.Len(t, out.Failed, 1)
	assert.Equal(t, "+15550002", out.Failed[0].Contact)
	assert.Equal(t, apperrors.CodeDeliveryFailure, out.Failed[0].Code)
	assert.Empty(t, out.Skipped)
	assert.Contains(t, sender.last, "a shower thought")
}

func TestDispatcher_EmptyContacts(t *testing.T) {
	sender := newRecordingSender(nil)
	d := NewDispatcher(sender, nil, testTranslator(t), testOptions(), testLogger())

	out, err := d.Dispatch(context.Background(), "u1", expiredRecord(), []string{"", "  "})
	require.NoError(t, err)

	assert.Empty(t, out.Delivered)
	assert.Empty(t, out.Failed)
	assert.Zero(t, sender.total())
}

func TestDispatcher_InvalidInput(t *testing.T) {
	d := NewDispatcher(newRecordingSender(nil), nil, nil, testOptions(), testLogger())

	noExpiry := expiredRecord()
	noExpiry.ExpiresAt = time.Time{}
	negative := expiredRecord()
	negative.TokenID = -1

	testCases := []struct {
		name   string
		userID string
		record domain.MintRecord
	}{
		{name: "empty user id", userID: "", record: expiredRecord()},
		{name: "negative token id", userID: "u1", record: negative},
		{name: "missing expiry", userID: "u1", record: noExpiry},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Dispatch(context.Background(), tc.userID, tc.record, []string{"+1"})
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))
		})
	}
}

func TestDispatcher_DuplicateContactsSentOnce(t *testing.T) {
	sender := newRecordingSender(nil)
	d := NewDispatcher(sender, nil, testTranslator(t), testOptions(), testLogger())

	out, err := d.Dispatch(context.Background(), "u1", expiredRecord(), []string{"+1", " +1 ", "+2"})
	require.NoError(t, err)

	assert.Equal(t, []string{"+1", "+2"}, out.Delivered)
	assert.Equal(t, 2, sender.total())
}

func TestDispatcher_RetriesTransientFailures(t *testing.T) {
	sender := newRecordingSender(func(_ string, attempt int) error {
		if attempt < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	d := NewDispatcher(sender, nil, testTranslator(t), testOptions(), testLogger())

	out, err := d.Dispatch(context.Background(), "u1", expiredRecord(), []string{"+1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"+1"}, out.Delivered)
	assert.Equal(t, 3, sender.total())
}

func TestDispatcher_OpenBreakerFailsFast(t *testing.T) {
	sender := newRecordingSender(func(string, int) error {
		return apperrors.NewDeliveryError("test", errors.New("provider down"), false)
	})
	opts := testOptions()
	opts.MaxParallel = 1
	opts.Breaker = apperrors.BreakerSettings{MinRequests: 1, OpenTimeout: time.Hour}
	d := NewDispatcher(sender, nil, nil, opts, testLogger())

	out, err := d.Dispatch(context.Background(), "u1", expiredRecord(), []string{"+1", "+2", "+3"})
	require.NoError(t, err)

	assert.Len(t, out.Failed, 3)
	assert.Equal(t, 1, sender.total())
}

func TestDispatcher_ReceiptsPreventDuplicateSends(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	receipts := idempotency.NewManager(idempotency.NewRedisStore(client, testLogger()), testLogger(), time.Minute)
	sender := newRecordingSender(nil)
	d := NewDispatcher(sender, receipts, testTranslator(t), testOptions(), testLogger())

	first, err := d.Dispatch(context.Background(), "u1", expiredRecord(), []string{"+1", "+2"})
	require.NoError(t, err)
	assert.Len(t, first.Delivered, 2)

	second, err := d.Dispatch(context.Background(), "u1", expiredRecord(), []string{"+1", "+2", "+3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"+3"}, second.Delivered)
	assert.Equal(t, []string{"+1", "+2"}, second.Skipped)

	assert.Equal(t, 3, sender.total())
}

func TestDispatcher_ContactHeldByAnotherRunIsInProgress(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := idempotency.NewRedisStore(client, testLogger())
	locked, err := store.Lock(context.Background(), idempotency.GenerateKey("sms", "u1", int64(7), "+1"), time.Minute)
	require.NoError(t, err)
	require.True(t, locked)

	sender := newRecordingSender(nil)
	d := NewDispatcher(sender, idempotency.NewManager(store, testLogger(), time.Minute), nil, testOptions(), testLogger())

	out, err := d.Dispatch(context.Background(), "u1", expiredRecord(), []string{"+1", "+2"})
	require.NoError(t, err)

	assert.Equal(t, []string{"+1"}, out.InProgress)
	assert.Equal(t, []string{"+2"}, out.Delivered)
	assert.Empty(t, out.Skipped)
	assert.Equal(t, 1, sender.total())
}

func TestDispatcher_FailedDeliveryLeavesNoReceipt(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	receipts := idempotency.NewManager(idempotency.NewRedisStore(client, testLogger()), testLogger(), time.Minute)
	failing := true
	sender := newRecordingSender(func(string, int) error {
		if failing {
			return apperrors.NewDeliveryError("test", errors.New("rejected"), false)
		}
		return nil
	})
	d := NewDispatcher(sender, receipts, nil, testOptions(), testLogger())

	out, err := d.Dispatch(context.Background(), "u1", expiredRecord(), []string{"+1"})
	require.NoError(t, err)
	require.Len(t, out.Failed, 1)

	failing = false
	out, err = d.Dispatch(context.Background(), "u1", expiredRecord(), []string{"+1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"+1"}, out.Delivered)
}

func TestDispatcher_ReceiptStoreDownStillSends(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	receipts := idempotency.NewManager(idempotency.NewRedisStore(client, testLogger()), testLogger(), time.Minute)
	sender := newRecordingSender(nil)
	d := NewDispatcher(sender, receipts, nil, testOptions(), testLogger())

	out, err := d.Dispatch(context.Background(), "u1", expiredRecord(), []string{"+1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"+1"}, out.Delivered)
	assert.Equal(t, 1, sender.total())
}

func TestNormalizeContacts(t *testing.T) {
	assert.Equal(t, []string{"+1", "+2"}, NormalizeContacts([]string{" +1", "", "+2", "+1 "}))
	assert.Empty(t, NormalizeContacts(nil))
}
