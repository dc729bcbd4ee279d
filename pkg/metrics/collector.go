package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/Proton-105/mintwatch/internal/repository"
)

const defaultCollectInterval = 30 * time.Second

// RecordCounter is the part of the record store the collector needs.
type RecordCounter interface {
	CountRecords(ctx context.Context, now time.Time) (repository.RecordCounts, error)
}

// RecordCollector periodically gathers mint record counts and emits gauge metrics.
type RecordCollector struct {
	counter  RecordCounter
	log      *slog.Logger
	interval time.Duration
}

func NewRecordCollector(counter RecordCounter, log *slog.Logger, interval time.Duration) *RecordCollector {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = defaultCollectInterval
	}

	return &RecordCollector{counter: counter, log: log, interval: interval}
}

// Run polls the store until ctx is cancelled.
func (c *RecordCollector) Run(ctx context.Context) {
	if c == nil || c.counter == nil {
		return
	}

	for {
		if err := c.Collect(ctx); err != nil && ctx.Err() == nil {
			c.log.Warn("record metrics collection failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.interval):
		}
	}
}

// Collect refreshes the gauges once.
func (c *RecordCollector) Collect(ctx context.Context) error {
	counts, err := c.counter.CountRecords(ctx, time.Now())
	if err != nil {
		return err
	}

	mintRecords.WithLabelValues("active").Set(float64(counts.Active))
	mintRecords.WithLabelValues("expired_pending").Set(float64(counts.Expired))
	mintRecords.WithLabelValues("inactive").Set(float64(counts.Inactive))

	return nil
}
