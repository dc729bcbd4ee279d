// Package httpapi is the HTTP surface: the expiry check trigger, the user API and probes.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Proton-105/mintwatch/internal/domain"
	apperrors "github.com/Proton-105/mintwatch/internal/errors"
	"github.com/Proton-105/mintwatch/internal/expiry"
	"github.com/Proton-105/mintwatch/internal/health"
	"github.com/Proton-105/mintwatch/internal/jobs"
	"github.com/Proton-105/mintwatch/internal/middleware"
	"github.com/Proton-105/mintwatch/internal/ratelimit"
	"github.com/Proton-105/mintwatch/internal/user"
	"github.com/Proton-105/mintwatch/pkg/logger"
)

// ExpiryRunner runs an expiry check synchronously.
type ExpiryRunner interface {
	Run(ctx context.Context, scope expiry.Scope) (domain.Summary, error)
}

// ScanEnqueuer queues an expiry check for the background worker.
type ScanEnqueuer interface {
	EnqueueExpiryScan(ctx context.Context, payload jobs.ExpiryScanPayload) (string, error)
}

// Probes backs the liveness and readiness endpoints.
type Probes interface {
	Liveness(ctx context.Context) error
	Report(ctx context.Context) health.Report
}

// Deps are the collaborators of the router. Jobs, Limiter and Probes may be nil.
type Deps struct {
	Expiry  ExpiryRunner
	Jobs    ScanEnqueuer
	Users   *user.Service
	Probes  Probes
	Limiter ratelimit.Limiter
	Rules   *ratelimit.Rules
	Secret  string
	Errors  *apperrors.Handler
	Log     *slog.Logger
}

// NewRouter mounts every route and wraps the mux in the shared middleware chain.
func NewRouter(deps Deps) http.Handler {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}

	api := &api{deps: deps, log: deps.Log.With(slog.String("component", "httpapi"))}

	auth := middleware.BearerAuth(deps.Secret, deps.Errors)
	limit := middleware.RateLimit(deps.Limiter, deps.Rules, deps.Errors, deps.Log)
	protect := func(h http.HandlerFunc) http.Handler {
		return auth(limit(h))
	}

	mux := http.NewServeMux()

	mux.Handle("GET /check-expired-nfts", protect(api.checkExpired))

	mux.Handle("GET /api/users/{id}/session", protect(api.session))
	mux.Handle("POST /api/users/{id}", protect(api.getOrCreateUser))
	mux.Handle("GET /api/users/{id}/friends", protect(api.friends))
	mux.Handle("PUT /api/users/{id}/friends", protect(api.saveFriends))
	mux.Handle("POST /api/users/{id}/tutorial", protect(api.completeTutorial))
	mux.Handle("PUT /api/users/{id}/wallet", protect(api.saveWallet))
	mux.Handle("POST /api/users/{id}/mints", protect(api.recordMint))
	mux.Handle("GET /api/users/{id}/mints", protect(api.history))

	mux.HandleFunc("GET /healthz", api.liveness)
	mux.HandleFunc("GET /readyz", api.readiness)
	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	handler = middleware.Metrics(handler)
	handler = middleware.Logging(deps.Log)(handler)
	handler = logger.Middleware(handler)
	handler = middleware.Recovery(deps.Log, deps.Errors)(handler)

	return handler
}

type api struct {
	deps Deps
	log  *slog.Logger
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	middleware.WriteError(w, r, a.deps.Errors, err)
}

func (a *api) liveness(w http.ResponseWriter, r *http.Request) {
	if a.deps.Probes != nil {
		if err := a.deps.Probes.Liveness(r.Context()); err != nil {
			middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": err.Error()})
			return
		}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) readiness(w http.ResponseWriter, r *http.Request) {
	report := health.Report{Healthy: true, Components: map[string]string{}}
	if a.deps.Probes != nil {
		report = a.deps.Probes.Report(r.Context())
	}

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	middleware.WriteJSON(w, status, report)
}
