package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

type Scheduler interface {
	RegisterTasks() error
	Run() error
	Shutdown()
}

type registrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
	Start() error
	Shutdown()
}

type scheduler struct {
	asynqScheduler  registrar
	expiryCron      string
	cleanupInterval time.Duration
	log             *slog.Logger
}

// NewScheduler registers the periodic scan-all task on expiryCron and, when cleanupInterval
// is positive, a receipt cleanup on that interval.
func NewScheduler(redisOpt asynq.RedisConnOpt, expiryCron string, cleanupInterval time.Duration, log *slog.Logger) Scheduler {
	return &scheduler{
		asynqScheduler:  asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC}),
		expiryCron:      expiryCron,
		cleanupInterval: cleanupInterval,
		log:             log,
	}
}

func (s *scheduler) RegisterTasks() error {
	task, err := NewExpiryScanTask(ExpiryScanPayload{All: true, Trigger: "schedule"})
	if err != nil {
		return err
	}

	if _, err := s.asynqScheduler.Register(s.expiryCron, task); err != nil {
		return fmt.Errorf("register %s on %q: %w", TaskTypeExpiryScan, s.expiryCron, err)
	}

	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: registered expiry scan", slog.String("cron", s.expiryCron))
	}

	if s.cleanupInterval <= 0 {
		return nil
	}

	cleanup, err := NewReceiptCleanupTask()
	if err != nil {
		return err
	}

	spec := "@every " + s.cleanupInterval.String()
	if _, err := s.asynqScheduler.Register(spec, cleanup); err != nil {
		return fmt.Errorf("register %s: %w", TaskTypeReceiptCleanup, err)
	}

	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: registered receipt cleanup", slog.String("every", s.cleanupInterval.String()))
	}

	return nil
}

// Run starts the scheduler in the background; signal handling stays with the caller.
func (s *scheduler) Run() error {
	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: starting")
	}

	return s.asynqScheduler.Start()
}

func (s *scheduler) Shutdown() {
	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: shutting down")
	}

	s.asynqScheduler.Shutdown()
}
