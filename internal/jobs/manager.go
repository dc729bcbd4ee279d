package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Manager describes the minimal queue operations needed by the application.
type Manager interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	EnqueueExpiryScan(ctx context.Context, payload ExpiryScanPayload) (string, error)
	Close() error
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type manager struct {
	client enqueuer
	log    *slog.Logger
}

// NewManager builds a Manager backed by an asynq client.
func NewManager(redisOpt asynq.RedisConnOpt, log *slog.Logger) Manager {
	return newManager(asynq.NewClient(redisOpt), log)
}

func newManager(client enqueuer, log *slog.Logger) *manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		client: client,
		log:    log,
	}
}

func (m *manager) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return m.client.EnqueueContext(ctx, task, opts...)
}

// EnqueueExpiryScan queues an on-demand scan and returns its task id.
func (m *manager) EnqueueExpiryScan(ctx context.Context, payload ExpiryScanPayload) (string, error) {
	task, err := NewExpiryScanTask(payload)
	if err != nil {
		return "", err
	}

	info, err := m.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", TaskTypeExpiryScan, err)
	}

	m.log.InfoContext(ctx, "expiry scan enqueued",
		slog.String("task_id", info.ID),
		slog.String("queue", info.Queue),
		slog.String("user_id", payload.UserID),
		slog.Bool("all", payload.All),
	)

	return info.ID, nil
}

func (m *manager) Close() error {
	return m.client.Close()
}
