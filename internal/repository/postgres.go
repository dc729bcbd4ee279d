package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/mintwatch/internal/domain"
	apperrors "github.com/Proton-105/mintwatch/internal/errors"
)

const (
	selectUser = `
		SELECT id, email, display_name, photo_url, wallet_address, onboarding_complete,
		       tutorial_completed, created_at, onboarding_completed_at, tutorial_completed_at,
		       wallet_connected_at, last_mint_at
		FROM users
		WHERE id = $1`

	insertUser = `
		INSERT INTO users (id, email, display_name, photo_url, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`

	selectMintRecords = `
		SELECT token_id, tx_hash, payload, duration_seconds, wallet_address,
		       minted_at, expires_at, is_active, notified_at
		FROM mint_records
		WHERE user_id = $1
		ORDER BY minted_at, token_id`

	deactivateRecord = `
		UPDATE mint_records
		SET is_active = FALSE, notified_at = $3
		WHERE user_id = $1 AND token_id = $2 AND is_active = TRUE`

	touchLastMint = `UPDATE users SET last_mint_at = $2 WHERE id = $1`

	insertMintRecord = `
		INSERT INTO mint_records (user_id, token_id, tx_hash, payload, duration_seconds,
		                          wallet_address, minted_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		ON CONFLICT (user_id, token_id) DO NOTHING`

	selectFriendContacts = `SELECT phone FROM friend_contacts WHERE user_id = $1 ORDER BY phone`

	selectUserIDsWithActive = `SELECT DISTINCT user_id FROM mint_records WHERE is_active ORDER BY user_id`

	completeOnboarding = `
		UPDATE users
		SET onboarding_complete = TRUE,
		    onboarding_completed_at = COALESCE(onboarding_completed_at, $2)
		WHERE id = $1`

	deleteFriendContacts = `DELETE FROM friend_contacts WHERE user_id = $1`

	insertFriendContact = `
		INSERT INTO friend_contacts (user_id, phone) VALUES ($1, $2)
		ON CONFLICT (user_id, phone) DO NOTHING`

	completeTutorial = `
		UPDATE users
		SET tutorial_completed = TRUE,
		    tutorial_completed_at = COALESCE(tutorial_completed_at, $2)
		WHERE id = $1`

	updateWallet = `UPDATE users SET wallet_address = $2, wallet_connected_at = $3 WHERE id = $1`

	countRecords = `
		SELECT COUNT(*) FILTER (WHERE is_active AND expires_at > $1),
		       COUNT(*) FILTER (WHERE is_active AND expires_at <= $1),
		       COUNT(*) FILTER (WHERE NOT is_active)
		FROM mint_records`
)

// PostgresStore is the RecordStore backed by PostgreSQL.
type PostgresStore struct {
	db  *sql.DB
	log *slog.Logger
}

var _ RecordStore = (*PostgresStore)(nil)

// NewPostgresStore creates a new SQL-backed record store.
func NewPostgresStore(db *sql.DB, log *slog.Logger) *PostgresStore {
	if log == nil {
		log = slog.Default()
	}

	return &PostgresStore{
		db:  db,
		log: log,
	}
}

// GetUser loads a user together with the friend contact set.
func (s *PostgresStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var (
		user        domain.User
		wallet      sql.NullString
		onboardedAt sql.NullTime
		tutorialAt  sql.NullTime
		walletAt    sql.NullTime
		lastMint    sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, selectUser, id).Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PhotoURL,
		&wallet,
		&user.OnboardingComplete,
		&user.TutorialCompleted,
		&user.CreatedAt,
		&onboardedAt,
		&tutorialAt,
		&walletAt,
		&lastMint,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, s.fail("select user", err, id)
	}

	if wallet.Valid {
		user.WalletAddress = &wallet.String
	}
	user.OnboardingCompletedAt = timePtr(onboardedAt)
	user.TutorialCompletedAt = timePtr(tutorialAt)
	user.WalletConnectedAt = timePtr(walletAt)
	user.LastMintAt = timePtr(lastMint)

	phones, err := s.GetFriendContacts(ctx, id)
	if err != nil {
		return nil, err
	}
	user.FriendsPhones = phones

	return &user, nil
}

// CreateUser inserts the profile part of user. Friend contacts are written by SetFriendContacts.
func (s *PostgresStore) CreateUser(ctx context.Context, user *domain.User) error {
	if user == nil || user.ID == "" {
		return apperrors.NewValidationError("user id is required")
	}

	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
		user.CreatedAt = createdAt
	}

	res, err := s.db.ExecContext(ctx, insertUser, user.ID, user.Email, user.DisplayName, user.PhotoURL, createdAt)
	if err != nil {
		return s.fail("insert user", err, user.ID)
	}

	if n, err := res.RowsAffected(); err != nil {
		return s.fail("insert user rows affected", err, user.ID)
	} else if n == 0 {
		return ErrUserExists
	}

	return nil
}

// ListMintRecords returns the user's records ordered by mint time. An unknown user has none.
func (s *PostgresStore) ListMintRecords(ctx context.Context, userID string) ([]domain.MintRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectMintRecords, userID)
	if err != nil {
		return nil, s.fail("select mint records", err, userID)
	}
	defer rows.Close()

	records := make([]domain.MintRecord, 0)
	for rows.Next() {
		var (
			record     domain.MintRecord
			notifiedAt sql.NullTime
		)

		if err := rows.Scan(
			&record.TokenID,
			&record.TxHash,
			&record.Payload,
			&record.DurationSeconds,
			&record.WalletAddress,
			&record.MintedAt,
			&record.ExpiresAt,
			&record.IsActive,
			&notifiedAt,
		); err != nil {
			return nil, s.fail("scan mint record", err, userID)
		}

		record.NotifiedAt = timePtr(notifiedAt)
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, s.fail("iterate mint records", err, userID)
	}

	return records, nil
}

// ConditionalDeactivate only changes a record that is still active, so concurrent
// runs agree on a single winner.
func (s *PostgresStore) ConditionalDeactivate(ctx context.Context, userID string, tokenID int64, notifiedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, deactivateRecord, userID, tokenID, notifiedAt.UTC())
	if err != nil {
		return false, s.fail("deactivate mint record", err, userID)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, s.fail("deactivate rows affected", err, userID)
	}

	return n == 1, nil
}

func (s *PostgresStore) AppendMintRecord(ctx context.Context, userID string, record domain.MintRecord) error {
	err := withTx(ctx, s.db, func(ctx context.Context, tx dbtx) error {
		res, err := tx.ExecContext(ctx, touchLastMint, userID, record.MintedAt)
		if err != nil {
			return fmt.Errorf("touch last mint: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("touch last mint rows affected: %w", err)
		} else if n == 0 {
			return ErrNotFound
		}

		res, err = tx.ExecContext(ctx, insertMintRecord,
			userID,
			record.TokenID,
			record.TxHash,
			record.Payload,
			record.DurationSeconds,
			record.WalletAddress,
			record.MintedAt,
			record.ExpiresAt,
		)
		if err != nil {
			return fmt.Errorf("insert mint record: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("insert mint record rows affected: %w", err)
		} else if n == 0 {
			return ErrDuplicateMint
		}

		return nil
	})

	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateMint) {
		return err
	}

	return s.fail("append mint record", err, userID)
}

func (s *PostgresStore) GetFriendContacts(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, selectFriendContacts, userID)
	if err != nil {
		return nil, s.fail("select friend contacts", err, userID)
	}
	defer rows.Close()

	phones := make([]string, 0)
	for rows.Next() {
		var phone string
		if err := rows.Scan(&phone); err != nil {
			return nil, s.fail("scan friend contact", err, userID)
		}
		phones = append(phones, phone)
	}

	if err := rows.Err(); err != nil {
		return nil, s.fail("iterate friend contacts", err, userID)
	}

	return phones, nil
}

func (s *PostgresStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, selectUserIDsWithActive)
	if err != nil {
		return nil, s.fail("select user ids", err, "")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, s.fail("scan user id", err, "")
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, s.fail("iterate user ids", err, "")
	}

	return ids, nil
}

// SetFriendContacts replaces the contact set and marks onboarding complete.
func (s *PostgresStore) SetFriendContacts(ctx context.Context, userID string, phones []string, at time.Time) error {
	err := withTx(ctx, s.db, func(ctx context.Context, tx dbtx) error {
		res, err := tx.ExecContext(ctx, completeOnboarding, userID, at.UTC())
		if err != nil {
			return fmt.Errorf("complete onboarding: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("complete onboarding rows affected: %w", err)
		} else if n == 0 {
			return ErrNotFound
		}

		if _, err := tx.ExecContext(ctx, deleteFriendContacts, userID); err != nil {
			return fmt.Errorf("delete friend contacts: %w", err)
		}

		for _, phone := range phones {
			if _, err := tx.ExecContext(ctx, insertFriendContact, userID, phone); err != nil {
				return fmt.Errorf("insert friend contact: %w", err)
			}
		}

		return nil
	})

	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}

	return s.fail("set friend contacts", err, userID)
}

func (s *PostgresStore) CompleteTutorial(ctx context.Context, userID string, at time.Time) error {
	return s.updateUser(ctx, "complete tutorial", completeTutorial, userID, at.UTC())
}

func (s *PostgresStore) SetWalletAddress(ctx context.Context, userID, address string, at time.Time) error {
	return s.updateUser(ctx, "update wallet", updateWallet, userID, address, at.UTC())
}

func (s *PostgresStore) CountRecords(ctx context.Context, now time.Time) (RecordCounts, error) {
	var counts RecordCounts
	if err := s.db.QueryRowContext(ctx, countRecords, now.UTC()).Scan(&counts.Active, &counts.Expired, &counts.Inactive); err != nil {
		return RecordCounts{}, s.fail("count records", err, "")
	}

	return counts, nil
}

func (s *PostgresStore) updateUser(ctx context.Context, op, query string, userID string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, append([]any{userID}, args...)...)
	if err != nil {
		return s.fail(op, err, userID)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return s.fail(op+" rows affected", err, userID)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *PostgresStore) fail(op string, err error, userID string) error {
	s.log.Error("record store operation failed",
		slog.String("op", op),
		slog.String("user_id", userID),
		slog.Any("error", err),
	)

	return apperrors.NewDatabaseError(fmt.Errorf("%s: %w", op, err))
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
