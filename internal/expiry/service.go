package expiry

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Proton-105/mintwatch/internal/domain"
	apperrors "github.com/Proton-105/mintwatch/internal/errors"
	"github.com/Proton-105/mintwatch/internal/notify"
	"github.com/Proton-105/mintwatch/internal/state"
	"github.com/Proton-105/mintwatch/pkg/logger"
	"github.com/Proton-105/mintwatch/pkg/metrics"
)

// maxSummaryErrors caps the error details kept in a summary; counts stay exact.
const maxSummaryErrors = 100

// Store is the part of the record store a run reads and writes.
type Store interface {
	Deactivator
	ListMintRecords(ctx context.Context, userID string) ([]domain.MintRecord, error)
	GetFriendContacts(ctx context.Context, userID string) ([]string, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

// Dispatcher notifies the contacts of one expired record.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID string, record domain.MintRecord, contacts []string) (notify.Outcome, error)
}

// Alerter is told about runs that finished with failures.
type Alerter interface {
	RunFailed(ctx context.Context, scope Scope, summary domain.Summary) error
}

type Options struct {
	UserConcurrency   int
	RecordConcurrency int
	// Deadline bounds how long a run keeps starting new work; zero means no deadline.
	Deadline time.Duration
}

// Service is the job trigger: for every user in scope it runs scan, dispatch and update per record.
type Service struct {
	store      Store
	dispatcher Dispatcher
	updater    *Updater
	alerter    Alerter
	opts       Options
	now        func() time.Time
	log        *slog.Logger
}

func NewService(store Store, dispatcher Dispatcher, alerter Alerter, opts Options, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if opts.UserConcurrency <= 0 {
		opts.UserConcurrency = 1
	}
	if opts.RecordConcurrency <= 0 {
		opts.RecordConcurrency = 1
	}

	log = log.With(slog.String("component", "expiry"))

	return &Service{
		store:      store,
		dispatcher: dispatcher,
		updater:    NewUpdater(store, log),
		alerter:    alerter,
		opts:       opts,
		now:        time.Now,
		log:        log,
	}
}

// Run processes scope and returns its summary. Only an invalid scope is returned as an
// error; every other failure is counted and described in the summary.
//
// Once the deadline passes or ctx is canceled no new user or record is started. Work
// already started runs to completion on a context detached from both, so a dispatched
// record is always followed by its state update.
func (s *Service) Run(ctx context.Context, scope Scope) (domain.Summary, error) {
	if err := scope.Validate(); err != nil {
		return domain.Summary{}, err
	}
	scope.UserID = strings.TrimSpace(scope.UserID)

	start := s.now()
	agg := &aggregator{summary: domain.Summary{StartedAt: start.UTC()}}

	runCtx := ctx
	if s.opts.Deadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.opts.Deadline)
		defer cancel()
	}
	work := context.WithoutCancel(ctx)

	log := s.log.With(
		slog.String("trigger", scope.Trigger),
		slog.Bool("all", scope.All),
		slog.String("correlation_id", logger.CorrelationIDFromContext(ctx)),
	)
	log.Info("expiry run started", slog.String("user_id", scope.UserID))

	userIDs := []string{scope.UserID}
	if scope.All {
		ids, err := s.store.ListUserIDs(work)
		if err != nil {
			agg.fail(domain.SummaryError{}, storeError(err))
			ids = nil
		}
		userIDs = ids
	}

	sem := make(chan struct{}, s.opts.UserConcurrency)
	var wg sync.WaitGroup

users:
	for _, userID := range userIDs {
		select {
		case <-runCtx.Done():
			agg.markPartial()
			break users
		case sem <- struct{}{}:
		}

		if runCtx.Err() != nil {
			<-sem
			agg.markPartial()
			break
		}

		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			defer func() { <-sem }()

			s.processUser(runCtx, work, userID, agg)
		}(userID)
	}

	wg.Wait()

	summary := agg.result()
	summary.FinishedAt = s.now().UTC()

	trigger := scope.Trigger
	if trigger == "" {
		trigger = "unknown"
	}
	metrics.ObserveRun(trigger, summary, summary.FinishedAt.Sub(summary.StartedAt))

	log.Info("expiry run finished",
		slog.Int("users", summary.Users),
		slog.Int("checked", summary.Checked),
		slog.Int("expired", summary.Expired),
		slog.Int("notified", summary.Notified),
		slog.Int("failed", summary.Failed),
		slog.Int("updated", summary.Updated),
		slog.Int("already_processed", summary.AlreadyProcessed),
		slog.Int("in_progress", summary.InProgress),
		slog.Int("skipped", summary.Skipped),
		slog.Bool("partial", summary.Partial),
	)

	if summary.Failed > 0 && s.alerter != nil {
		if err := s.alerter.RunFailed(work, scope, summary); err != nil {
			log.Warn("failure alert not delivered", slog.Any("error", err))
		}
	}

	return summary, nil
}

func (s *Service) processUser(runCtx, work context.Context, userID string, agg *aggregator) {
	records, err := s.store.ListMintRecords(work, userID)
	if err != nil {
		agg.fail(domain.SummaryError{UserID: userID}, storeError(err))
		return
	}

	expired, _, inactive := Partition(records, s.now())
	agg.addScan(len(records), len(expired), len(inactive))

	if len(expired) == 0 {
		return
	}

	contacts, err := s.store.GetFriendContacts(work, userID)
	if err != nil {
		agg.fail(domain.SummaryError{UserID: userID}, storeError(err))
		return
	}

	sem := make(chan struct{}, s.opts.RecordConcurrency)
	var wg sync.WaitGroup

records:
	for _, record := range expired {
		select {
		case <-runCtx.Done():
			agg.markPartial()
			break records
		case sem <- struct{}{}:
		}

		if runCtx.Err() != nil {
			<-sem
			agg.markPartial()
			break
		}

		wg.Add(1)
		go func(record domain.MintRecord) {
			defer wg.Done()
			defer func() { <-sem }()

			s.processRecord(work, userID, record, contacts, agg)
		}(record)
	}

	wg.Wait()
}

func (s *Service) processRecord(ctx context.Context, userID string, record domain.MintRecord, contacts []string, agg *aggregator) {
	tokenID := record.TokenID
	ref := domain.SummaryError{UserID: userID, TokenID: &tokenID}

	if err := state.Transition(state.Of(record), state.StateNotifying); err != nil {
		agg.fail(ref, err)
		return
	}

	outcome, err := s.dispatcher.Dispatch(ctx, userID, record, contacts)
	if err != nil {
		s.release(userID, tokenID)
		agg.fail(ref, err)
		return
	}
	agg.addOutcome(ref, outcome)

	// The run holding the receipts deactivates the record once its sends finish.
	if len(outcome.InProgress) > 0 {
		s.release(userID, tokenID)
		agg.addInProgress()
		s.log.Info("record left to the run delivering it",
			slog.String("user_id", userID),
			slog.Int64("token_id", tokenID),
			slog.Int("in_progress", len(outcome.InProgress)),
		)
		return
	}

	result, err := s.updater.Commit(ctx, userID, tokenID, s.now())
	if err != nil {
		agg.fail(ref, err)
		return
	}
	agg.addUpdate(result)
}

// release returns a record to active after a dispatch that did not finish it.
func (s *Service) release(userID string, tokenID int64) {
	if err := state.Transition(state.StateNotifying, state.StateActive); err != nil {
		s.log.Error("unexpected lifecycle transition",
			slog.String("user_id", userID),
			slog.Int64("token_id", tokenID),
			slog.Any("error", err),
		)
	}
}

func storeError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.NewDatabaseError(err)
}

// aggregator collects counts from concurrent workers.
type aggregator struct {
	mu      sync.Mutex
	summary domain.Summary
}

func (a *aggregator) addScan(checked, expired, inactive int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.summary.Users++
	a.summary.Checked += checked
	a.summary.Expired += expired
	a.summary.AlreadyProcessed += inactive
}

func (a *aggregator) addOutcome(ref domain.SummaryError, outcome notify.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.summary.Notified += len(outcome.Delivered)
	a.summary.Skipped += len(outcome.Skipped) + len(outcome.InProgress)
	a.summary.Failed += len(outcome.Failed)

	for _, f := range outcome.Failed {
		entry := ref
		entry.Contact = logger.MaskPhone(f.Contact)
		entry.Code = f.Code
		entry.Message = f.Reason
		a.appendErrorLocked(entry)
	}
}

func (a *aggregator) addUpdate(result UpdateResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if result == UpdateApplied {
		a.summary.Updated++
	} else {
		a.summary.AlreadyProcessed++
	}
}

func (a *aggregator) addInProgress() {
	a.mu.Lock()
	a.summary.InProgress++
	a.mu.Unlock()
}

func (a *aggregator) fail(ref domain.SummaryError, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.summary.Failed++
	ref.Code = apperrors.CodeOf(err)
	ref.Message = err.Error()
	a.appendErrorLocked(ref)
}

func (a *aggregator) markPartial() {
	a.mu.Lock()
	a.summary.Partial = true
	a.mu.Unlock()
}

func (a *aggregator) appendErrorLocked(entry domain.SummaryError) {
	if len(a.summary.Errors) < maxSummaryErrors {
		a.summary.Errors = append(a.summary.Errors, entry)
	}
}

func (a *aggregator) result() domain.Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := a.summary
	out.Errors = append([]domain.SummaryError(nil), a.summary.Errors...)
	return out
}
