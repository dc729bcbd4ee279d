package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Proton-105/mintwatch/internal/domain"
)

var (
	// ErrNotFound is returned when the requested user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUserExists is returned by CreateUser when the id is already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrDuplicateMint is returned when a record with the same token id already exists for the user.
	ErrDuplicateMint = errors.New("mint record already exists")
)

// RecordCounts is a point-in-time breakdown of all mint records.
type RecordCounts struct {
	Active   int64
	Expired  int64
	Inactive int64
}

// RecordStore persists users, their friend contacts and their mint records.
type RecordStore interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) error
	ListMintRecords(ctx context.Context, userID string) ([]domain.MintRecord, error)
	// ConditionalDeactivate flips an active record to inactive and reports whether this call did it.
	ConditionalDeactivate(ctx context.Context, userID string, tokenID int64, notifiedAt time.Time) (bool, error)
	AppendMintRecord(ctx context.Context, userID string, record domain.MintRecord) error
	GetFriendContacts(ctx context.Context, userID string) ([]string, error)

	// ListUserIDs returns the users owning at least one active record.
	ListUserIDs(ctx context.Context) ([]string, error)
	SetFriendContacts(ctx context.Context, userID string, phones []string, at time.Time) error
	CompleteTutorial(ctx context.Context, userID string, at time.Time) error
	SetWalletAddress(ctx context.Context, userID, address string, at time.Time) error
	CountRecords(ctx context.Context, now time.Time) (RecordCounts, error)
}
