package usercache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Proton-105/mintwatch/internal/domain"
	"github.com/Proton-105/mintwatch/internal/repository"
	"github.com/Proton-105/mintwatch/pkg/redis"
)

// CachedStore decorates a RecordStore with a Redis read-through cache for user
// profiles and friend contacts. Mint records are never cached; the expiry scan
// always reads them from the store.
type CachedStore struct {
	repository.RecordStore
	kv  redis.KV
	ttl time.Duration
	log *slog.Logger
}

// NewCachedStore wraps store. A nil kv disables caching.
func NewCachedStore(store repository.RecordStore, kv redis.KV, ttl time.Duration, log *slog.Logger) *CachedStore {
	if log == nil {
		log = slog.Default()
	}

	return &CachedStore{
		RecordStore: store,
		kv:          kv,
		ttl:         ttl,
		log:         log,
	}
}

func (c *CachedStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var cached domain.User
	if c.load(ctx, userKey(id), &cached) {
		return &cached, nil
	}

	user, err := c.RecordStore.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	c.store(ctx, userKey(id), user)
	return user, nil
}

func (c *CachedStore) GetFriendContacts(ctx context.Context, userID string) ([]string, error) {
	var cached []string
	if c.load(ctx, contactsKey(userID), &cached) {
		return cached, nil
	}

	phones, err := c.RecordStore.GetFriendContacts(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, contactsKey(userID), phones)
	return phones, nil
}

func (c *CachedStore) CreateUser(ctx context.Context, user *domain.User) error {
	err := c.RecordStore.CreateUser(ctx, user)
	if user != nil {
		c.Invalidate(ctx, user.ID)
	}
	return err
}

func (c *CachedStore) AppendMintRecord(ctx context.Context, userID string, record domain.MintRecord) error {
	defer c.Invalidate(ctx, userID)
	return c.RecordStore.AppendMintRecord(ctx, userID, record)
}

func (c *CachedStore) SetFriendContacts(ctx context.Context, userID string, phones []string, at time.Time) error {
	defer c.Invalidate(ctx, userID)
	return c.RecordStore.SetFriendContacts(ctx, userID, phones, at)
}

func (c *CachedStore) CompleteTutorial(ctx context.Context, userID string, at time.Time) error {
	defer c.Invalidate(ctx, userID)
	return c.RecordStore.CompleteTutorial(ctx, userID, at)
}

func (c *CachedStore) SetWalletAddress(ctx context.Context, userID, address string, at time.Time) error {
	defer c.Invalidate(ctx, userID)
	return c.RecordStore.SetWalletAddress(ctx, userID, address, at)
}

// Invalidate removes the cached profile and contacts for userID.
func (c *CachedStore) Invalidate(ctx context.Context, userID string) {
	if c.kv == nil {
		return
	}

	for _, key := range []string{userKey(userID), contactsKey(userID)} {
		if err := c.kv.Delete(ctx, key); err != nil {
			c.log.Warn("user cache invalidate failed", slog.String("key", key), slog.Any("error", err))
		}
	}
}

func (c *CachedStore) load(ctx context.Context, key string, dst any) bool {
	if c.kv == nil {
		return false
	}

	data, err := c.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.log.Warn("user cache read failed", slog.String("key", key), slog.Any("error", err))
		}
		return false
	}

	if err := json.Unmarshal([]byte(data), dst); err != nil {
		c.log.Warn("user cache entry is corrupt", slog.String("key", key), slog.Any("error", err))
		return false
	}

	return true
}

func (c *CachedStore) store(ctx context.Context, key string, value any) {
	if c.kv == nil {
		return
	}

	payload, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("user cache encode failed", slog.String("key", key), slog.Any("error", err))
		return
	}

	if err := c.kv.Set(ctx, key, payload, c.ttl); err != nil {
		c.log.Warn("user cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

func userKey(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}

func contactsKey(userID string) string {
	return fmt.Sprintf("user:%s:contacts", userID)
}
