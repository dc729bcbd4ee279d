package errors

import (
	"context"
	"errors"
	"math"
	"time"
)

// RetryPolicy bounds how often and how long a retryable operation is attempted.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// AttemptTimeout caps each individual attempt; zero means no per-attempt deadline.
	AttemptTimeout time.Duration
}

// WithRetry runs fn until it succeeds, returns a non-retryable error, attempts are
// exhausted or ctx is done. Each attempt gets its own context bounded by AttemptTimeout.
func WithRetry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}

		err = runAttempt(ctx, policy.AttemptTimeout, fn)
		if err == nil {
			return nil
		}

		if !IsRetryable(err) || attempt == attempts {
			return err
		}

		timer := time.NewTimer(policy.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}

	return err
}

func runAttempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(attemptCtx)
	if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		// a timed-out attempt is worth another try while the caller still has time
		return &AppError{
			Code:        CodeDeliveryFailure,
			Message:     "attempt timed out: " + err.Error(),
			UserMessage: "Notification could not be delivered",
			Severity:    SeverityMedium,
			Retryable:   true,
			cause:       err,
		}
	}

	return err
}

func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Retryable
	}

	return false
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delay := float64(p.InitialBackoff) * math.Pow(multiplier, float64(attempt-1))
	backoff := time.Duration(delay)
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		return p.MaxBackoff
	}

	return backoff
}
