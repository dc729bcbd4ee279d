package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/Proton-105/mintwatch/internal/health"
)

// ErrDraining is reported by Readiness once shutdown has begun.
var ErrDraining = errors.New("service is shutting down")

// HealthChecker exposes liveness and readiness probes.
type HealthChecker interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) error
}

// Probes answers liveness from the process itself and readiness from the dependency checks.
type Probes struct {
	checker  *health.Checker
	draining atomic.Bool
	log      *slog.Logger
}

var _ HealthChecker = (*Probes)(nil)

func NewProbes(checker *health.Checker, log *slog.Logger) *Probes {
	if log == nil {
		log = slog.Default()
	}
	return &Probes{checker: checker, log: log}
}

// Liveness succeeds while the process can serve requests at all.
func (p *Probes) Liveness(context.Context) error {
	return nil
}

// Readiness fails while draining or when any dependency check fails.
func (p *Probes) Readiness(ctx context.Context) error {
	if p.draining.Load() {
		return ErrDraining
	}
	if p.checker == nil {
		return nil
	}

	report := p.checker.Check(ctx)
	if report.Healthy {
		return nil
	}

	failed := make([]string, 0, len(report.Components))
	for name, status := range report.Components {
		if status != "OK" {
			failed = append(failed, fmt.Sprintf("%s: %s", name, status))
		}
	}
	sort.Strings(failed)

	p.log.Debug("readiness probe failed", slog.Any("components", failed))
	return errors.New(strings.Join(failed, "; "))
}

// Report returns the per-component detail behind Readiness.
func (p *Probes) Report(ctx context.Context) health.Report {
	if p.checker == nil {
		return health.Report{Healthy: !p.draining.Load(), Components: map[string]string{}}
	}

	report := p.checker.Check(ctx)
	if p.draining.Load() {
		report.Healthy = false
	}
	return report
}

// Drain marks the service as not ready so load balancers stop routing to it.
func (p *Probes) Drain() {
	if !p.draining.Swap(true) {
		p.log.Info("readiness withdrawn for shutdown")
	}
}
