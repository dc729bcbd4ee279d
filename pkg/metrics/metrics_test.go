package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/mintwatch/internal/domain"
	"github.com/Proton-105/mintwatch/internal/repository"
	"github.com/Proton-105/mintwatch/internal/state"
)

type stubCounter struct {
	counts repository.RecordCounts
	err    error
}

func (s stubCounter) CountRecords(context.Context, time.Time) (repository.RecordCounts, error) {
	return s.counts, s.err
}

func TestRecordCollector_Collect(t *testing.T) {
	c := NewRecordCollector(stubCounter{counts: repository.RecordCounts{Active: 3, Expired: 1, Inactive: 7}}, nil, 0)

	require.NoError(t, c.Collect(context.Background()))

	assert.Equal(t, float64(3), testutil.ToFloat64(mintRecords.WithLabelValues("active")))
	assert.Equal(t, float64(1), testutil.ToFloat64(mintRecords.WithLabelValues("expired_pending")))
	assert.Equal(t, float64(7), testutil.ToFloat64(mintRecords.WithLabelValues("inactive")))
}

func TestRecordCollector_CollectError(t *testing.T) {
	c := NewRecordCollector(stubCounter{err: errors.New("db down")}, nil, time.Second)
	assert.Error(t, c.Collect(context.Background()))
}

func TestObserveRun(t *testing.T) {
	before := testutil.ToFloat64(expiryRunsTotal.WithLabelValues("test", "partial"))
	notifiedBefore := testutil.ToFloat64(expiryRecordsTotal.WithLabelValues("notified"))

	ObserveRun("test", domain.Summary{Checked: 2, Expired: 2, Notified: 3, Partial: true}, time.Second)

	assert.Equal(t, before+1, testutil.ToFloat64(expiryRunsTotal.WithLabelValues("test", "partial")))
	assert.Equal(t, notifiedBefore+3, testutil.ToFloat64(expiryRecordsTotal.WithLabelValues("notified")))
}

func TestStateTransitionsAreRecorded(t *testing.T) {
	before := testutil.ToFloat64(recordTransitionsTotal.WithLabelValues("active", "notifying"))

	require.NoError(t, state.Transition(state.StateActive, state.StateNotifying))

	assert.Equal(t, before+1, testutil.ToFloat64(recordTransitionsTotal.WithLabelValues("active", "notifying")))
}
