package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Proton-105/mintwatch/internal/domain"
)

// MemoryStore is an in-process RecordStore. It backs tests and local runs without PostgreSQL.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	records  map[string][]domain.MintRecord
	contacts map[string][]string

	// Fail, when set, is consulted before every operation; a non-nil result is returned as is.
	Fail func(op, userID string) error
}

var _ RecordStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*domain.User),
		records:  make(map[string][]domain.MintRecord),
		contacts: make(map[string][]string),
	}
}

// Seed stores a user with its records and contacts, replacing anything present.
func (m *MemoryStore) Seed(user domain.User, records []domain.MintRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := user
	u.FriendsPhones = nil
	m.users[user.ID] = &u
	m.records[user.ID] = append([]domain.MintRecord(nil), records...)
	m.contacts[user.ID] = dedupe(user.FriendsPhones)
}

// Record returns a copy of the stored record.
func (m *MemoryStore) Record(userID string, tokenID int64) (domain.MintRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.records[userID] {
		if r.TokenID == tokenID {
			return r, true
		}
	}
	return domain.MintRecord{}, false
}

func (m *MemoryStore) fail(op, userID string) error {
	if m.Fail == nil {
		return nil
	}
	return m.Fail(op, userID)
}

func (m *MemoryStore) GetUser(_ context.Context, id string) (*domain.User, error) {
	if err := m.fail("GetUser", id); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}

	out := *u
	out.FriendsPhones = append([]string{}, m.contacts[id]...)
	return &out, nil
}

func (m *MemoryStore) CreateUser(_ context.Context, user *domain.User) error {
	if err := m.fail("CreateUser", user.ID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; ok {
		return ErrUserExists
	}

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	u := *user
	u.FriendsPhones = nil
	m.users[user.ID] = &u
	return nil
}

func (m *MemoryStore) ListMintRecords(_ context.Context, userID string) ([]domain.MintRecord, error) {
	if err := m.fail("ListMintRecords", userID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := append([]domain.MintRecord{}, m.records[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].MintedAt.Before(out[j].MintedAt) })
	return out, nil
}

func (m *MemoryStore) ConditionalDeactivate(_ context.Context, userID string, tokenID int64, notifiedAt time.Time) (bool, error) {
	if err := m.fail("ConditionalDeactivate", userID); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	records := m.records[userID]
	for i := range records {
		if records[i].TokenID != tokenID {
			continue
		}
		if !records[i].IsActive {
			return false, nil
		}
		at := notifiedAt.UTC()
		records[i].IsActive = false
		records[i].NotifiedAt = &at
		return true, nil
	}

	return false, nil
}

func (m *MemoryStore) AppendMintRecord(_ context.Context, userID string, record domain.MintRecord) error {
	if err := m.fail("AppendMintRecord", userID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}

	for _, r := range m.records[userID] {
		if r.TokenID == record.TokenID {
			return ErrDuplicateMint
		}
	}

	m.records[userID] = append(m.records[userID], record)
	at := record.MintedAt
	u.LastMintAt = &at
	return nil
}

func (m *MemoryStore) GetFriendContacts(_ context.Context, userID string) ([]string, error) {
	if err := m.fail("GetFriendContacts", userID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string{}, m.contacts[userID]...), nil
}

func (m *MemoryStore) ListUserIDs(_ context.Context) ([]string, error) {
	if err := m.fail("ListUserIDs", ""); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, records := range m.records {
		for _, r := range records {
			if r.IsActive {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) SetFriendContacts(_ context.Context, userID string, phones []string, at time.Time) error {
	if err := m.fail("SetFriendContacts", userID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}

	m.contacts[userID] = dedupe(phones)
	u.OnboardingComplete = true
	if u.OnboardingCompletedAt == nil {
		t := at.UTC()
		u.OnboardingCompletedAt = &t
	}
	return nil
}

func (m *MemoryStore) CompleteTutorial(_ context.Context, userID string, at time.Time) error {
	if err := m.fail("CompleteTutorial", userID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}

	u.TutorialCompleted = true
	if u.TutorialCompletedAt == nil {
		t := at.UTC()
		u.TutorialCompletedAt = &t
	}
	return nil
}

func (m *MemoryStore) SetWalletAddress(_ context.Context, userID, address string, at time.Time) error {
	if err := m.fail("SetWalletAddress", userID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}

	t := at.UTC()
	u.WalletAddress = &address
	u.WalletConnectedAt = &t
	return nil
}

func (m *MemoryStore) CountRecords(_ context.Context, now time.Time) (RecordCounts, error) {
	if err := m.fail("CountRecords", ""); err != nil {
		return RecordCounts{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var counts RecordCounts
	for _, records := range m.records {
		for _, r := range records {
			switch {
			case !r.IsActive:
				counts.Inactive++
			case r.ExpiredAt(now):
				counts.Expired++
			default:
				counts.Active++
			}
		}
	}
	return counts, nil
}

func dedupe(phones []string) []string {
	seen := make(map[string]struct{}, len(phones))
	out := make([]string, 0, len(phones))
	for _, p := range phones {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
