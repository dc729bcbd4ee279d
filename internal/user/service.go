// Package user covers the account side of the product: sign-in, onboarding, tutorial,
// wallet and the mint history the expiry job later works on.
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"

	"github.com/Proton-105/mintwatch/internal/domain"
	apperrors "github.com/Proton-105/mintwatch/internal/errors"
	"github.com/Proton-105/mintwatch/internal/notify"
	"github.com/Proton-105/mintwatch/internal/repository"
)

type friendsInput struct {
	Phones []string `validate:"max=50,dive,required,max=32"`
}

type walletInput struct {
	Address string `validate:"required,max=128"`
}

// Service applies user operations to the record store.
type Service struct {
	store    repository.RecordStore
	validate *validator.Validate
	now      func() time.Time
	log      *slog.Logger
}

func NewService(store repository.RecordStore, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
		log:      log.With(slog.String("component", "user")),
	}
}

// GetOrCreate returns the user with id, creating it from profile on first sight.
func (s *Service) GetOrCreate(ctx context.Context, id string, profile domain.Profile) (*domain.User, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false, apperrors.NewValidationError("user id is required")
	}
	if err := s.check(profile); err != nil {
		return nil, false, err
	}

	u, err := s.store.GetUser(ctx, id)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, storeError(err)
	}

	u = &domain.User{
		ID:            id,
		Email:         profile.Email,
		DisplayName:   profile.DisplayName,
		PhotoURL:      profile.PhotoURL,
		FriendsPhones: []string{},
		CreatedAt:     s.now().UTC(),
	}

	switch err := s.store.CreateUser(ctx, u); {
	case err == nil:
		s.log.InfoContext(ctx, "user created", slog.String("user_id", id))
		return u, true, nil
	case errors.Is(err, repository.ErrUserExists):
		// lost a race with a concurrent first sign-in
		existing, err := s.store.GetUser(ctx, id)
		if err != nil {
			return nil, false, storeError(err)
		}
		return existing, false, nil
	default:
		return nil, false, storeError(err)
	}
}

// Session loads or creates the user and derives its session state.
func (s *Service) Session(ctx context.Context, id string, profile domain.Profile) (domain.SessionState, error) {
	u, _, err := s.GetOrCreate(ctx, id, profile)
	if err != nil {
		return domain.SessionState{}, err
	}
	return OnAuthChange(u), nil
}

// SaveFriendPhones replaces the friend contacts and completes onboarding.
func (s *Service) SaveFriendPhones(ctx context.Context, id string, phones []string) ([]string, error) {
	phones = notify.NormalizeContacts(phones)
	if err := s.check(friendsInput{Phones: phones}); err != nil {
		return nil, err
	}

	if err := s.store.SetFriendContacts(ctx, id, phones, s.now()); err != nil {
		return nil, userError(err)
	}

	s.log.InfoContext(ctx, "friend contacts saved", slog.String("user_id", id), slog.Int("count", len(phones)))
	return phones, nil
}

// FriendPhones returns the saved contacts; an unknown user has none.
func (s *Service) FriendPhones(ctx context.Context, id string) ([]string, error) {
	phones, err := s.store.GetFriendContacts(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	if phones == nil {
		phones = []string{}
	}
	return phones, nil
}

func (s *Service) CompleteTutorial(ctx context.Context, id string) error {
	if err := s.store.CompleteTutorial(ctx, id, s.now()); err != nil {
		return userError(err)
	}
	return nil
}

func (s *Service) SaveWalletAddress(ctx context.Context, id, address string) error {
	address = strings.TrimSpace(address)
	if err := s.check(walletInput{Address: address}); err != nil {
		return err
	}

	if err := s.store.SetWalletAddress(ctx, id, address, s.now()); err != nil {
		return userError(err)
	}
	return nil
}

// RecordMint appends a new active record expiring one MintLifetime from now.
func (s *Service) RecordMint(ctx context.Context, id string, in domain.MintInput) (domain.MintRecord, error) {
	in.TxHash = strings.TrimSpace(in.TxHash)
	in.WalletAddress = strings.TrimSpace(in.WalletAddress)
	if err := s.check(in); err != nil {
		return domain.MintRecord{}, err
	}

	record := domain.NewMintRecord(in, s.now())

	err := s.store.AppendMintRecord(ctx, id, record)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrDuplicateMint):
		return domain.MintRecord{}, apperrors.NewStateError(fmt.Sprintf("mint record for token %d already exists", in.TokenID))
	default:
		return domain.MintRecord{}, userError(err)
	}

	s.log.InfoContext(ctx, "mint recorded",
		slog.String("user_id", id),
		slog.Int64("token_id", record.TokenID),
		slog.Time("expires_at", record.ExpiresAt),
	)
	return record, nil
}

// History lists the user's records oldest first; an unknown user has none.
func (s *Service) History(ctx context.Context, id string) ([]domain.MintRecord, error) {
	records, err := s.store.ListMintRecords(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	if records == nil {
		records = []domain.MintRecord{}
	}
	return records, nil
}

func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperrors.NewValidationError(fmt.Sprintf("%s failed %q validation", fe.Namespace(), fe.Tag()))
	}
	return apperrors.NewValidationError(err.Error())
}

func userError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFoundError("user")
	}
	return storeError(err)
}

func storeError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.NewDatabaseError(err)
}
