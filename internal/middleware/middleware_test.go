package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Proton-105/mintwatch/internal/errors"
	"github.com/Proton-105/mintwatch/internal/ratelimit"
	"github.com/Proton-105/mintwatch/pkg/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorBody {
	t.Helper()

	var body ErrorBody
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*called = true
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestBearerAuth(t *testing.T) {
	h := apperrors.NewHandler(testLogger(), false)

	testCases := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer nope-nope", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic s3cret-value", want: http.StatusUnauthorized},
		{name: "prefix of secret", header: "Bearer s3cret", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer s3cret-value", want: http.StatusNoContent},
		{name: "case-insensitive scheme", header: "bearer s3cret-value", want: http.StatusNoContent},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			called := false
			handler := BearerAuth("s3cret-value", h)(okHandler(&called))

			req := httptest.NewRequest(http.MethodGet, "/check-expired-nfts?userId=u1", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tc.want, rr.Code)
			assert.Equal(t, tc.want == http.StatusNoContent, called)
			if tc.want == http.StatusUnauthorized {
				body := decodeError(t, rr)
				assert.Equal(t, apperrors.CodeUnauthorized, body.Code)
				assert.Equal(t, "Unauthorized", body.Error)
			}
		})
	}
}

func TestBearerAuth_EmptySecretRejectsAll(t *testing.T) {
	called := false
	handler := BearerAuth("", nil)(okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer ")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.False(t, called)
}

func TestWriteError_StatusMapping(t *testing.T) {
	testCases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{name: "validation", err: apperrors.NewValidationError("userId parameter required"), status: http.StatusBadRequest, message: "userId parameter required"},
		{name: "conflict", err: apperrors.NewStateError("token already recorded"), status: http.StatusConflict, message: "token already recorded"},
		{name: "not found", err: apperrors.NewNotFoundError("user"), status: http.StatusNotFound, message: "user not found"},
		{name: "store", err: apperrors.NewDatabaseError(errors.New("dial tcp: refused")), status: http.StatusServiceUnavailable, message: "Record store is temporarily unavailable"},
		{name: "foreign", err: errors.New("boom"), status: http.StatusInternalServerError, message: "Internal error, try again later"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteError(rr, httptest.NewRequest(http.MethodGet, "/", nil), apperrors.NewHandler(testLogger(), false), tc.err)

			assert.Equal(t, tc.status, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			body := decodeError(t, rr)
			assert.Equal(t, tc.message, body.Error)
			assert.Equal(t, apperrors.CodeOf(tc.err), body.Code)
		})
	}
}

func TestRecovery(t *testing.T) {
	handler := Recovery(testLogger(), nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, apperrors.CodeInternal, decodeError(t, rr).Code)
}

func TestLoggingAndMetrics_SeeRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	var pattern string
	mux.HandleFunc("GET /api/users/{id}/mints", func(w http.ResponseWriter, r *http.Request) {
		pattern = r.Pattern
		w.WriteHeader(http.StatusAccepted)
	})

	handler := Logging(testLogger())(Metrics(mux))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/users/u1/mints", nil))

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "GET /api/users/{id}/mints", pattern)
}

func TestStatusRecorder_DefaultsToOK(t *testing.T) {
	rec := record(httptest.NewRecorder())
	_, err := rec.Write([]byte("hi"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.code())
	assert.Equal(t, 2, rec.bytes)
	assert.Same(t, rec, record(rec))
}

type fakeLimiter struct {
	keys     []string
	decision ratelimit.Decision
	err      error
}

func (f *fakeLimiter) Allow(_ context.Context, key string, _ ratelimit.Rule) (ratelimit.Decision, error) {
	f.keys = append(f.keys, key)
	return f.decision, f.err
}

func TestRateLimit(t *testing.T) {
	rules := ratelimit.NewRules(config.RateLimitConfig{
		PerUser:   config.RateLimitRule{Limit: 1, Window: "1m"},
		Whitelist: []string{"vip"},
	})

	t.Run("rejects with retry-after", func(t *testing.T) {
		limiter := &fakeLimiter{
			decision: ratelimit.Decision{ResetAt: time.Now().Add(30 * time.Second)},
			err:      ratelimit.ErrLimitExceeded,
		}
		called := false
		handler := RateLimit(limiter, rules, nil, testLogger())(okHandler(&called))

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/check-expired-nfts?userId=u1", nil))

		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
		assert.NotEmpty(t, rr.Header().Get("Retry-After"))
		assert.Equal(t, apperrors.CodeRateLimited, decodeError(t, rr).Code)
		assert.False(t, called)
		assert.Equal(t, []string{"user:u1"}, limiter.keys)
	})

	t.Run("whitelisted user bypasses limiter", func(t *testing.T) {
		limiter := &fakeLimiter{err: ratelimit.ErrLimitExceeded}
		called := false
		handler := RateLimit(limiter, rules, nil, testLogger())(okHandler(&called))

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/check-expired-nfts?userId=vip", nil))

		assert.True(t, called)
		assert.Empty(t, limiter.keys)
	})

	t.Run("limiter failure lets request through", func(t *testing.T) {
		limiter := &fakeLimiter{err: errors.New("redis down")}
		called := false
		handler := RateLimit(limiter, rules, nil, testLogger())(okHandler(&called))

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/check-expired-nfts?scope=all", nil))

		assert.True(t, called)
		assert.Equal(t, []string{"all"}, limiter.keys)
	})

	t.Run("path value names the user", func(t *testing.T) {
		limiter := &fakeLimiter{decision: ratelimit.Decision{Allowed: true, Remaining: 3}}
		called := false

		mux := http.NewServeMux()
		mux.Handle("GET /api/users/{id}/mints", RateLimit(limiter, rules, nil, testLogger())(okHandler(&called)))

		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/users/u9/mints", nil))

		assert.True(t, called)
		assert.Equal(t, []string{"user:u9"}, limiter.keys)
		assert.Equal(t, "3", rr.Header().Get("X-RateLimit-Remaining"))
	})
}
