package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskingHandler_MasksSecretsAndPhones(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewMaskingHandler(slog.NewJSONHandler(&buf, nil)))

	log.Info("delivery",
		slog.String("authorization", "Bearer super-secret"),
		slog.String("contact", "+15551234567"),
		slog.String("user_id", "u-1"),
	)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "***", entry["authorization"])
	assert.Equal(t, "********4567", entry["contact"])
	assert.Equal(t, "u-1", entry["user_id"])
}

func TestMaskingHandler_MasksWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewMaskingHandler(slog.NewJSONHandler(&buf, nil))).With(slog.String("secret", "abc"))

	log.Info("hello")

	assert.NotContains(t, buf.String(), "abc")
	assert.Contains(t, buf.String(), `"secret":"***"`)
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "***", MaskPhone("123"))
	assert.Equal(t, "**3456", MaskPhone("123456"))
}

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { SetLevel("info") })

	SetLevel("debug")
	assert.Equal(t, slog.LevelDebug, level.Level())

	SetLevel("WARN")
	assert.Equal(t, slog.LevelWarn, level.Level())

	SetLevel("bogus")
	assert.Equal(t, slog.LevelInfo, level.Level())
}

func TestMiddleware_CorrelationID(t *testing.T) {
	var seen string
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get(CorrelationIDHeader))

	supplied := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, supplied)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, supplied, seen)
}

func TestCorrelationIDFromContext_Empty(t *testing.T) {
	assert.Empty(t, CorrelationIDFromContext(context.Background()))
}
