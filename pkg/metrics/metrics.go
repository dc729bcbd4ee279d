package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Proton-105/mintwatch/internal/domain"
	"github.com/Proton-105/mintwatch/internal/state"
)

var (
	expiryRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expiry_runs_total",
			Help: "Total number of expiry runs labeled by trigger and result",
		},
		[]string{"trigger", "result"},
	)
	expiryRunDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "expiry_run_duration_seconds",
			Help:    "Duration of expiry runs in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"trigger"},
	)
	expiryRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expiry_records_total",
			Help: "Records seen by expiry runs split by outcome",
		},
		[]string{"outcome"},
	)
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_deliveries_total",
			Help: "Total number of SMS deliveries labeled by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
	deliveryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sms_delivery_duration_seconds",
			Help:    "Duration of SMS deliveries including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
	recordTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "record_transitions_total",
			Help: "Total number of mint record lifecycle transitions",
		},
		[]string{"from", "to"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by code and severity",
		},
		[]string{"code", "severity"},
	)
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	mintRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mint_records",
			Help: "Number of mint records per lifecycle bucket",
		},
		[]string{"bucket"},
	)
	rateLimitChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_checks_total",
			Help: "Total number of rate limit checks by backend and result",
		},
		[]string{"backend", "result"},
	)
	rateLimitBackendErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratelimit_backend_errors_total",
			Help: "Total number of primary limiter failures that fell back to memory",
		},
	)
)

func init() {
	state.RegisterTransitionRecorder(RecordStateTransition)
}

// ObserveRun records the outcome of one expiry run.
func ObserveRun(trigger string, summary domain.Summary, duration time.Duration) {
	if trigger == "" {
		trigger = "unknown"
	}

	result := "ok"
	switch {
	case summary.Partial:
		result = "partial"
	case summary.Failed > 0:
		result = "failed"
	}

	expiryRunsTotal.WithLabelValues(trigger, result).Inc()
	expiryRunDurationSeconds.WithLabelValues(trigger).Observe(duration.Seconds())

	expiryRecordsTotal.WithLabelValues("checked").Add(float64(summary.Checked))
	expiryRecordsTotal.WithLabelValues("expired").Add(float64(summary.Expired))
	expiryRecordsTotal.WithLabelValues("notified").Add(float64(summary.Notified))
	expiryRecordsTotal.WithLabelValues("failed").Add(float64(summary.Failed))
	expiryRecordsTotal.WithLabelValues("updated").Add(float64(summary.Updated))
	expiryRecordsTotal.WithLabelValues("already_processed").Add(float64(summary.AlreadyProcessed))
	expiryRecordsTotal.WithLabelValues("in_progress").Add(float64(summary.InProgress))
	expiryRecordsTotal.WithLabelValues("skipped").Add(float64(summary.Skipped))
}

// RecordDelivery tracks a single contact delivery.
func RecordDelivery(provider, outcome string, duration time.Duration) {
	if provider == "" {
		provider = "unknown"
	}

	deliveriesTotal.WithLabelValues(provider, outcome).Inc()
	if duration > 0 {
		deliveryDurationSeconds.WithLabelValues(provider).Observe(duration.Seconds())
	}
}

// RecordStateTransition tracks lifecycle transitions.
func RecordStateTransition(from, to string) {
	if from == "" {
		from = "unknown"
	}
	if to == "" {
		to = "unknown"
	}

	recordTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(code, severity string) {
	if code == "" {
		code = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(code, severity).Inc()
}

// RecordHTTPRequest tracks a served request. route is the mux pattern, never the raw path.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}

	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRateLimit counts a limiter decision.
func RecordRateLimit(backend string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "rejected"
	}
	rateLimitChecksTotal.WithLabelValues(backend, result).Inc()
}

func RecordRateLimitBackendError() {
	rateLimitBackendErrorsTotal.Inc()
}
