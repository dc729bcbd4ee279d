package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/mintwatch/internal/domain"
	"github.com/Proton-105/mintwatch/internal/expiry"
	"github.com/Proton-105/mintwatch/internal/jobs"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRunner struct {
	scopes []expiry.Scope
	err    error
}

func (f *fakeRunner) Run(_ context.Context, scope expiry.Scope) (domain.Summary, error) {
	f.scopes = append(f.scopes, scope)
	if f.err != nil {
		return domain.Summary{}, f.err
	}
	if err := scope.Validate(); err != nil {
		return domain.Summary{}, err
	}
	return domain.Summary{Failed: 2}, nil
}

type countingCleaner struct{ calls int }

func (c *countingCleaner) Cleanup(context.Context) int {
	c.calls++
	return 3
}

func TestExpiryScanHandler_RunsScope(t *testing.T) {
	runner := &fakeRunner{}
	h := NewExpiryScanHandler(runner, testLogger())

	task, err := jobs.NewExpiryScanTask(jobs.ExpiryScanPayload{All: true, Trigger: expiry.TriggerSchedule})
	require.NoError(t, err)

	// failures inside the run do not fail the task
	require.NoError(t, h.ProcessTask(context.Background(), task))
	require.Len(t, runner.scopes, 1)
	assert.Equal(t, expiry.Scope{All: true, Trigger: expiry.TriggerSchedule}, runner.scopes[0])

	task, err = jobs.NewExpiryScanTask(jobs.ExpiryScanPayload{UserID: "u1"})
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))
	assert.Equal(t, expiry.TriggerTask, runner.scopes[1].Trigger)
}

func TestExpiryScanHandler_SkipsRetryForBadInput(t *testing.T) {
	h := NewExpiryScanHandler(&fakeRunner{}, testLogger())

	err := h.ProcessTask(context.Background(), asynq.NewTask(jobs.TaskTypeExpiryScan, []byte("not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	task, err := jobs.NewExpiryScanTask(jobs.ExpiryScanPayload{})
	require.NoError(t, err)
	assert.ErrorIs(t, h.ProcessTask(context.Background(), task), asynq.SkipRetry)
}

func TestExpiryScanHandler_PropagatesOtherErrors(t *testing.T) {
	h := NewExpiryScanHandler(&fakeRunner{err: errors.New("boom")}, testLogger())

	task, err := jobs.NewExpiryScanTask(jobs.ExpiryScanPayload{All: true})
	require.NoError(t, err)

	err = h.ProcessTask(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestReceiptCleanupHandler(t *testing.T) {
	cleaner := &countingCleaner{}
	h := NewReceiptCleanupHandler(cleaner, testLogger())

	task, err := jobs.NewReceiptCleanupTask()
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))
	assert.Equal(t, 1, cleaner.calls)
}
