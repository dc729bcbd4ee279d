package notify

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Proton-105/mintwatch/internal/domain"
	apperrors "github.com/Proton-105/mintwatch/internal/errors"
	"github.com/Proton-105/mintwatch/internal/i18n"
	"github.com/Proton-105/mintwatch/internal/idempotency"
	"github.com/Proton-105/mintwatch/pkg/logger"
	"github.com/Proton-105/mintwatch/pkg/metrics"
)

// MessageKey is the catalog entry rendered into every expiration SMS.
const MessageKey = "sms.mint_expired"

const (
	defaultMaxParallel = 8
	defaultReceiptTTL  = 72 * time.Hour
)

// Failure is a contact that could not be reached.
type Failure struct {
	Contact string `json:"contact"`
	Code    string `json:"code"`
	Reason  string `json:"reason"`
}

// Outcome partitions the contacts of one dispatch.
type Outcome struct {
	Delivered []string  `json:"delivered"`
	Failed    []Failure `json:"failed"`

	// Skipped contacts already received this notice in an earlier run.
	Skipped []string `json:"skipped"`

	// InProgress contacts are being messaged by a concurrent run holding their receipts.
	InProgress []string `json:"inProgress"`
}

// Options configures a Dispatcher.
type Options struct {
	Provider    string
	MaxParallel int
	ReceiptTTL  time.Duration
	Retry       apperrors.RetryPolicy
	Breaker     apperrors.BreakerSettings
}

// Dispatcher fans an expiration notice out to every contact, isolating per-contact failures.
type Dispatcher struct {
	sender     Sender
	receipts   idempotency.Manager
	translator i18n.Translator
	breaker    *apperrors.CircuitBreaker
	opts       Options
	log        *slog.Logger
}

// NewDispatcher builds a Dispatcher. receipts may be nil, in which case every
// dispatch sends to every contact.
func NewDispatcher(sender Sender, receipts idempotency.Manager, translator i18n.Translator, opts Options, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = defaultMaxParallel
	}
	if opts.ReceiptTTL <= 0 {
		opts.ReceiptTTL = defaultReceiptTTL
	}

	return &Dispatcher{
		sender:     sender,
		receipts:   receipts,
		translator: translator,
		breaker:    apperrors.NewCircuitBreaker(opts.Breaker),
		opts:       opts,
		log:        log.With(slog.String("component", "notify"), slog.String("provider", opts.Provider)),
	}
}

// Dispatch notifies contacts that record expired. Only structurally invalid input is an
// error; delivery problems are reported per contact in the Outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, record domain.MintRecord, contacts []string) (Outcome, error) {
	if err := validate(userID, record); err != nil {
		return Outcome{}, err
	}

	contacts = NormalizeContacts(contacts)
	if len(contacts) == 0 {
		return Outcome{}, nil
	}

	body := d.render(record)

	type result struct {
		status string
		err    error
	}

	results := make([]result, len(contacts))
	sem := make(chan struct{}, d.opts.MaxParallel)
	var wg sync.WaitGroup

	for i, contact := range contacts {
		wg.Add(1)
		go func(i int, contact string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			status, err := d.deliver(ctx, userID, record.TokenID, contact, body)
			results[i] = result{status: status, err: err}
		}(i, contact)
	}

	wg.Wait()

	var out Outcome
	for i, contact := range contacts {
		switch results[i].status {
		case statusDelivered:
			out.Delivered = append(out.Delivered, contact)
		case statusSkipped:
			out.Skipped = append(out.Skipped, contact)
		case statusInProgress:
			out.InProgress = append(out.InProgress, contact)
		default:
			out.Failed = append(out.Failed, Failure{
				Contact: contact,
				Code:    apperrors.CodeOf(results[i].err),
				Reason:  results[i].err.Error(),
			})
		}
	}

	return out, nil
}

const (
	statusDelivered  = "delivered"
	statusSkipped    = "skipped"
	statusInProgress = "in_progress"
	statusFailed     = "failed"
)

type deliveryReceipt struct {
	SentAt time.Time `json:"sentAt"`
}

func (d *Dispatcher) deliver(ctx context.Context, userID string, tokenID int64, contact, body string) (string, error) {
	start := time.Now()
	log := d.log.With(slog.String("user_id", userID), slog.Int64("token_id", tokenID), slog.String("contact", logger.MaskPhone(contact)))

	status, err := d.deliverOnce(ctx, log, userID, tokenID, contact, body)

	metrics.RecordDelivery(d.opts.Provider, status, time.Since(start))
	if err != nil {
		log.Warn("sms delivery failed", slog.Any("error", err))
	}

	return status, err
}

func (d *Dispatcher) deliverOnce(ctx context.Context, log *slog.Logger, userID string, tokenID int64, contact, body string) (string, error) {
	if d.receipts == nil {
		if err := d.send(ctx, contact, body); err != nil {
			return statusFailed, err
		}
		return statusDelivered, nil
	}

	var (
		ran     bool
		sendErr error
	)

	key := idempotency.GenerateKey("sms", userID, tokenID, contact)
	res, err := d.receipts.Execute(ctx, key, d.opts.ReceiptTTL, func(ctx context.Context) (interface{}, error) {
		ran = true
		if sendErr = d.send(ctx, contact, body); sendErr != nil {
			return nil, sendErr
		}
		return deliveryReceipt{SentAt: time.Now().UTC()}, nil
	})

	switch {
	case ran && sendErr != nil:
		return statusFailed, sendErr
	case errors.Is(err, idempotency.ErrRequestInProgress):
		log.Info("sms delivery owned by another run")
		return statusInProgress, nil
	case err != nil:
		// receipts unavailable: deliver without the duplicate guard
		log.Warn("delivery receipts unavailable, sending without receipt", slog.Any("error", err))
		if err := d.send(ctx, contact, body); err != nil {
			return statusFailed, err
		}
		return statusDelivered, nil
	case res != nil && res.FromCache:
		log.Info("sms already delivered for this expiration")
		return statusSkipped, nil
	default:
		return statusDelivered, nil
	}
}

func (d *Dispatcher) send(ctx context.Context, contact, body string) error {
	return apperrors.WithRetry(ctx, d.opts.Retry, func(ctx context.Context) error {
		err := d.breaker.Call(func() error {
			return d.sender.Send(ctx, contact, body)
		})
		if errors.Is(err, apperrors.ErrCircuitOpen) {
			return apperrors.NewDeliveryError(d.opts.Provider, err, false)
		}
		if err != nil && !isAppError(err) {
			return apperrors.NewDeliveryError(d.opts.Provider, err, !errors.Is(err, context.Canceled))
		}
		return err
	})
}

func (d *Dispatcher) render(record domain.MintRecord) string {
	vars := map[string]string{
		"token_id": strconv.FormatInt(record.TokenID, 10),
		"payload":  record.Payload,
		"wallet":   record.WalletAddress,
	}

	if d.translator == nil {
		return "Minted thought #" + vars["token_id"] + " has expired: " + record.Payload
	}

	return d.translator.Render(MessageKey, vars)
}

func validate(userID string, record domain.MintRecord) error {
	switch {
	case strings.TrimSpace(userID) == "":
		return apperrors.NewValidationError("user id is required")
	case record.TokenID < 0:
		return apperrors.NewValidationError("token id must not be negative")
	case record.ExpiresAt.IsZero():
		return apperrors.NewValidationError("record has no expiry time")
	}
	return nil
}

// NormalizeContacts trims contacts, drops empties and removes duplicates, keeping first-seen order.
func NormalizeContacts(contacts []string) []string {
	seen := make(map[string]struct{}, len(contacts))
	out := make([]string, 0, len(contacts))

	for _, c := range contacts {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}

	return out
}

func isAppError(err error) bool {
	var appErr *apperrors.AppError
	return errors.As(err, &appErr)
}
