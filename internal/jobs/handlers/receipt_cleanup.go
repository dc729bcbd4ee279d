package handlers

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Cleaner removes delivery receipts that outlived their retention.
type Cleaner interface {
	Cleanup(ctx context.Context) int
}

type ReceiptCleanupHandler struct {
	cleaner Cleaner
	log     *slog.Logger
}

func NewReceiptCleanupHandler(cleaner Cleaner, log *slog.Logger) *ReceiptCleanupHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ReceiptCleanupHandler{cleaner: cleaner, log: log}
}

func (h *ReceiptCleanupHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	removed := h.cleaner.Cleanup(ctx)
	h.log.InfoContext(ctx, "receipt cleanup done", slog.String("task_type", t.Type()), slog.Int("removed", removed))
	return nil
}
