package user

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/mintwatch/internal/domain"
	apperrors "github.com/Proton-105/mintwatch/internal/errors"
	"github.com/Proton-105/mintwatch/internal/repository"
)

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *repository.MemoryStore) {
	t.Helper()

	store := repository.NewMemoryStore()
	svc := NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return fixedNow }
	return svc, store
}

func TestGetOrCreate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, created, err := svc.GetOrCreate(ctx, "u1", domain.Profile{Email: "a@example.com", DisplayName: "Ann"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "a@example.com", u.Email)
	assert.Equal(t, fixedNow, u.CreatedAt)
	assert.False(t, u.OnboardingComplete)

	again, created, err := svc.GetOrCreate(ctx, "u1", domain.Profile{DisplayName: "ignored"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Ann", again.DisplayName)
}

func TestGetOrCreate_Validation(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.GetOrCreate(context.Background(), " ", domain.Profile{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))

	_, _, err = svc.GetOrCreate(context.Background(), "u1", domain.Profile{Email: "not-an-email"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))
}

func TestGetOrCreate_StoreDown(t *testing.T) {
	svc, store := newTestService(t)
	store.Fail = func(string, string) error { return errors.New("connection refused") }

	_, _, err := svc.GetOrCreate(context.Background(), "u1", domain.Profile{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeStoreUnavailable))
}

func TestOnboardingFlow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.GetOrCreate(ctx, "u1", domain.Profile{})
	require.NoError(t, err)

	phones, err := svc.SaveFriendPhones(ctx, "u1", []string{" +15550001", "+15550002", "+15550001", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"+15550001", "+15550002"}, phones)

	require.NoError(t, svc.CompleteTutorial(ctx, "u1"))
	require.NoError(t, svc.SaveWalletAddress(ctx, "u1", " 0xabc "))

	state, err := svc.Session(ctx, "u1", domain.Profile{})
	require.NoError(t, err)
	assert.True(t, state.SignedIn)
	assert.True(t, state.OnboardingComplete)
	assert.True(t, state.TutorialCompleted)
	assert.Equal(t, []string{"+15550001", "+15550002"}, state.FriendsPhones)
	require.NotNil(t, state.WalletAddress)
	assert.Equal(t, "0xabc", *state.WalletAddress)

	friends, err := svc.FriendPhones(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, phones, friends)
}

func TestUpdatesOnUnknownUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SaveFriendPhones(ctx, "ghost", []string{"+1"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	assert.True(t, apperrors.HasCode(svc.CompleteTutorial(ctx, "ghost"), apperrors.CodeNotFound))
	assert.True(t, apperrors.HasCode(svc.SaveWalletAddress(ctx, "ghost", "0x1"), apperrors.CodeNotFound))

	_, err = svc.RecordMint(ctx, "ghost", domain.MintInput{TokenID: 1, TxHash: "0x1", WalletAddress: "0xw"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestRecordMint(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.GetOrCreate(ctx, "u1", domain.Profile{})
	require.NoError(t, err)

	in := domain.MintInput{TokenID: 42, TxHash: "0xtx", Payload: "thought", DurationSeconds: 30, WalletAddress: "0xw"}
	record, err := svc.RecordMint(ctx, "u1", in)
	require.NoError(t, err)
	assert.True(t, record.IsActive)
	assert.Equal(t, fixedNow, record.MintedAt)
	assert.Equal(t, fixedNow.Add(24*time.Hour), record.ExpiresAt)

	stored, ok := store.Record("u1", 42)
	require.True(t, ok)
	assert.Equal(t, record, stored)

	_, err = svc.RecordMint(ctx, "u1", in)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeStateConflict))

	history, err := svc.History(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRecordMint_Validation(t *testing.T) {
	svc, _ := newTestService(t)

	testCases := []struct {
		name string
		in   domain.MintInput
	}{
		{name: "missing tx hash", in: domain.MintInput{TokenID: 1, WalletAddress: "0xw"}},
		{name: "missing wallet", in: domain.MintInput{TokenID: 1, TxHash: "0x1"}},
		{name: "negative token", in: domain.MintInput{TokenID: -1, TxHash: "0x1", WalletAddress: "0xw"}},
		{name: "negative duration", in: domain.MintInput{TokenID: 1, TxHash: "0x1", WalletAddress: "0xw", DurationSeconds: -5}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RecordMint(context.Background(), "u1", tc.in)
			assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))
		})
	}
}

func TestHistoryAndFriends_UnknownUserIsEmpty(t *testing.T) {
	svc, _ := newTestService(t)

	history, err := svc.History(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.NotNil(t, history)

	friends, err := svc.FriendPhones(context.Background(), "ghost")
	require.NoError(t, err)
	assert.NotNil(t, friends)
}

func TestOnAuthChange(t *testing.T) {
	signedOut := OnAuthChange(nil)
	assert.False(t, signedOut.SignedIn)
	assert.Empty(t, signedOut.UserID)
	assert.NotNil(t, signedOut.FriendsPhones)

	wallet := "0xw"
	u := &domain.User{ID: "u1", OnboardingComplete: true, FriendsPhones: []string{"+1"}, WalletAddress: &wallet}
	state := OnAuthChange(u)
	assert.Equal(t, domain.SessionState{
		SignedIn:           true,
		UserID:             "u1",
		OnboardingComplete: true,
		FriendsPhones:      []string{"+1"},
		WalletAddress:      &wallet,
	}, state)

	u.FriendsPhones[0] = "+2"
	assert.Equal(t, []string{"+1"}, state.FriendsPhones)
}
