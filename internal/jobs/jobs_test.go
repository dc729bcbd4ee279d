package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClient struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueCritical}, nil
}

func (f *fakeClient) Close() error { return nil }

type fakeRegistrar struct {
	specs []string
	types []string
	err   error
}

func (f *fakeRegistrar) Register(cronspec string, task *asynq.Task, _ ...asynq.Option) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.specs = append(f.specs, cronspec)
	f.types = append(f.types, task.Type())
	return "entry", nil
}

func (f *fakeRegistrar) Start() error { return nil }
func (f *fakeRegistrar) Shutdown()    {}

func TestExpiryScanTask_RoundTrip(t *testing.T) {
	task, err := NewExpiryScanTask(ExpiryScanPayload{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, TaskTypeExpiryScan, task.Type())
	assert.JSONEq(t, `{"user_id":"u1"}`, string(task.Payload()))

	payload, err := DecodeExpiryScan(task)
	require.NoError(t, err)
	assert.Equal(t, ExpiryScanPayload{UserID: "u1"}, payload)
}

func TestDecodeExpiryScan_Malformed(t *testing.T) {
	_, err := DecodeExpiryScan(asynq.NewTask(TaskTypeExpiryScan, []byte("{")))
	assert.Error(t, err)
}

func TestManager_EnqueueExpiryScan(t *testing.T) {
	client := &fakeClient{}
	m := newManager(client, testLogger())

	id, err := m.EnqueueExpiryScan(context.Background(), ExpiryScanPayload{All: true})
	require.NoError(t, err)
	assert.Equal(t, "task-1", id)
	require.Len(t, client.tasks, 1)
	assert.Equal(t, TaskTypeExpiryScan, client.tasks[0].Type())

	client.err = errors.New("redis down")
	_, err = m.EnqueueExpiryScan(context.Background(), ExpiryScanPayload{All: true})
	assert.ErrorContains(t, err, "redis down")
}

func TestScheduler_RegisterTasks(t *testing.T) {
	reg := &fakeRegistrar{}
	s := &scheduler{asynqScheduler: reg, expiryCron: "*/5 * * * *", cleanupInterval: 0, log: testLogger()}

	require.NoError(t, s.RegisterTasks())
	assert.Equal(t, []string{"*/5 * * * *"}, reg.specs)
	assert.Equal(t, []string{TaskTypeExpiryScan}, reg.types)

	reg = &fakeRegistrar{}
	s = &scheduler{asynqScheduler: reg, expiryCron: "*/5 * * * *", cleanupInterval: time.Hour, log: testLogger()}
	require.NoError(t, s.RegisterTasks())
	assert.Equal(t, []string{"*/5 * * * *", "@every 1h0m0s"}, reg.specs)
	assert.Equal(t, []string{TaskTypeExpiryScan, TaskTypeReceiptCleanup}, reg.types)
}

func TestScheduler_RegisterError(t *testing.T) {
	s := &scheduler{asynqScheduler: &fakeRegistrar{err: errors.New("bad cron")}, expiryCron: "nope"}
	assert.ErrorContains(t, s.RegisterTasks(), "bad cron")
}
