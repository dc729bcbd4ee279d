package middleware

import (
	"net/http"
	"time"

	"github.com/Proton-105/mintwatch/pkg/metrics"
)

// Metrics reports request counts and latency labeled by the matched route pattern.
// It must sit between the correlation middleware and the mux without copying the request,
// so the pattern the mux stores on r is visible after the call.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := record(w)

		next.ServeHTTP(rec, r)

		metrics.RecordHTTPRequest(r.Method, r.Pattern, rec.code(), time.Since(start))
	})
}
