package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// ErrRequestInProgress is returned when another worker currently holds the key.
var ErrRequestInProgress = errors.New("request with this key is already in progress")

const defaultLockTTL = 5 * time.Minute

type Operation func(ctx context.Context) (interface{}, error)

type Result struct {
	Response  interface{}
	FromCache bool
}

// Manager runs an operation at most once per key within the receipt TTL.
type Manager interface {
	Execute(
		ctx context.Context,
		key string,
		ttl time.Duration,
		fn Operation,
	) (*Result, error)
}

type manager struct {
	store   Store
	log     *slog.Logger
	lockTTL time.Duration
	now     func() time.Time
}

// NewManager builds a Manager. lockTTL bounds how long a crashed holder blocks the key.
func NewManager(store Store, log *slog.Logger, lockTTL time.Duration) Manager {
	if log == nil {
		log = slog.Default()
	}
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}

	return &manager{
		store:   store,
		log:     log,
		lockTTL: lockTTL,
		now:     time.Now,
	}
}

// Execute returns the stored result when key already completed, ErrRequestInProgress when
// another caller holds it, and otherwise runs fn and records its result for ttl.
// A failed fn leaves no record so the operation can be attempted again.
func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}

	locked, err := m.store.Lock(ctx, key, m.lockTTL)
	if err != nil {
		return nil, err
	}

	if !locked {
		if res, err := m.cached(ctx, key); err != nil || res != nil {
			return res, err
		}
		return nil, ErrRequestInProgress
	}

	defer func() {
		// release even when ctx was canceled mid-operation
		if err := m.store.ReleaseLock(context.WithoutCancel(ctx), key); err != nil {
			m.log.Warn("idempotency lock not released", slog.String("key", key), slog.Any("error", err))
		}
	}()

	if res, err := m.cached(ctx, key); err != nil || res != nil {
		return res, err
	}

	result, err := fn(ctx)
	if err != nil {
		return nil, err
	}

	responseBytes, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	if err := m.store.Set(context.WithoutCancel(ctx), key, &Record{
		Status:      StatusCompleted,
		Response:    responseBytes,
		CompletedAt: m.now().UTC(),
	}, ttl); err != nil {
		m.log.Error("idempotency record not stored, operation may repeat",
			slog.String("key", key),
			slog.Any("error", err),
		)
	}

	return &Result{
		Response:  result,
		FromCache: false,
	}, nil
}

func (m *manager) cached(ctx context.Context, key string) (*Result, error) {
	record, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if record == nil || record.Status != StatusCompleted {
		return nil, nil
	}

	var response interface{}
	if len(record.Response) > 0 {
		if err := json.Unmarshal(record.Response, &response); err != nil {
			return nil, err
		}
	}

	return &Result{Response: response, FromCache: true}, nil
}
