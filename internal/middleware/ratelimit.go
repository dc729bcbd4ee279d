package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Proton-105/mintwatch/internal/errors"
	"github.com/Proton-105/mintwatch/internal/ratelimit"
)

// RateLimit enforces the per-user limit. The user is the {id} path value or the userId
// query parameter; requests naming no user share the "all" key. Limiter failures let
// the request through.
func RateLimit(limiter ratelimit.Limiter, rules *ratelimit.Rules, h *apperrors.Handler, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		if limiter == nil || rules == nil {
			return next
		}

		rule, err := rules.PerUser()
		if err != nil {
			log.Error("per-user rate limit disabled", slog.Any("error", err))
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := subject(r)
			if userID != "" && rules.IsWhitelisted(userID) {
				next.ServeHTTP(w, r)
				return
			}

			key := "all"
			if userID != "" {
				key = "user:" + userID
			}

			decision, err := limiter.Allow(r.Context(), key, rule)
			switch {
			case errors.Is(err, ratelimit.ErrLimitExceeded):
				retryAfter := decision.RetryAfter(time.Now())
				log.Warn("rate limit exceeded", slog.String("key", key), slog.Int("retry_after", retryAfter))
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				WriteError(w, r, h, apperrors.NewRateLimitError(retryAfter))
				return
			case err != nil:
				log.Warn("rate limiter error", slog.String("key", key), slog.Any("error", err))
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}

func subject(r *http.Request) string {
	if id := strings.TrimSpace(r.PathValue("id")); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("userId"))
}
