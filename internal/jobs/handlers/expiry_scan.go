package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/mintwatch/internal/domain"
	apperrors "github.com/Proton-105/mintwatch/internal/errors"
	"github.com/Proton-105/mintwatch/internal/expiry"
	"github.com/Proton-105/mintwatch/internal/jobs"
)

// Runner executes one expiry run.
type Runner interface {
	Run(ctx context.Context, scope expiry.Scope) (domain.Summary, error)
}

type ExpiryScanHandler struct {
	runner Runner
	log    *slog.Logger
}

func NewExpiryScanHandler(runner Runner, log *slog.Logger) *ExpiryScanHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ExpiryScanHandler{runner: runner, log: log}
}

// ProcessTask runs the scan. Failures inside the run are reported in its summary and do not
// fail the task; a malformed payload or scope is not retried.
func (h *ExpiryScanHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := jobs.DecodeExpiryScan(t)
	if err != nil {
		h.log.ErrorContext(ctx, "expiry scan: failed to decode payload", slog.String("task_type", t.Type()), slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	trigger := payload.Trigger
	if trigger == "" {
		trigger = expiry.TriggerTask
	}

	summary, err := h.runner.Run(ctx, expiry.Scope{UserID: payload.UserID, All: payload.All, Trigger: trigger})
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeInvalidInput) {
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return err
	}

	if taskID, ok := asynq.GetTaskID(ctx); ok {
		h.log.InfoContext(ctx, "expiry scan task done",
			slog.String("task_id", taskID),
			slog.Int("expired", summary.Expired),
			slog.Int("failed", summary.Failed),
		)
	}

	return nil
}
