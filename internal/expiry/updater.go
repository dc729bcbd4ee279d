package expiry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apperrors "github.com/Proton-105/mintwatch/internal/errors"
	"github.com/Proton-105/mintwatch/internal/state"
)

// UpdateResult reports what a Commit did.
type UpdateResult int

const (
	// UpdateApplied means this call deactivated the record.
	UpdateApplied UpdateResult = iota
	// UpdateAlreadyProcessed means another run deactivated it first.
	UpdateAlreadyProcessed
)

func (r UpdateResult) String() string {
	if r == UpdateApplied {
		return "applied"
	}
	return "already_processed"
}

// Deactivator is the conditional write the updater relies on.
type Deactivator interface {
	ConditionalDeactivate(ctx context.Context, userID string, tokenID int64, notifiedAt time.Time) (bool, error)
}

// Updater commits a finished dispatch by deactivating the record with a compare-and-set.
type Updater struct {
	store Deactivator
	log   *slog.Logger
}

func NewUpdater(store Deactivator, log *slog.Logger) *Updater {
	if log == nil {
		log = slog.Default()
	}
	return &Updater{store: store, log: log}
}

// Commit marks the record inactive with notifiedAt = now if it is still active.
// Losing the race is not an error.
func (u *Updater) Commit(ctx context.Context, userID string, tokenID int64, now time.Time) (UpdateResult, error) {
	changed, err := u.store.ConditionalDeactivate(ctx, userID, tokenID, now)
	if err != nil {
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			err = apperrors.NewDatabaseError(err)
		}
		return UpdateAlreadyProcessed, err
	}

	if !changed {
		u.log.Debug("record already deactivated by another run",
			slog.String("user_id", userID),
			slog.Int64("token_id", tokenID),
		)
		return UpdateAlreadyProcessed, nil
	}

	if err := state.Transition(state.StateNotifying, state.StateInactive); err != nil {
		u.log.Error("unexpected lifecycle transition", slog.Any("error", err))
	}

	return UpdateApplied, nil
}
