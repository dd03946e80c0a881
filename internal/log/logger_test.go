package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONIncludesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "json", Component: "test", Output: &buf})

	logger.Info("hello", "key", "value")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "test", line[FieldComponent])
	assert.Equal(t, "value", line["key"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Output: &buf})

	logger.Info("dropped")
	logger.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestWithComponent(t *testing.T) {
	logger := Discard().WithComponent(ComponentStorage)
	assert.Equal(t, ComponentStorage, logger.Component())
	assert.Equal(t, ComponentStorage, logger.With("k", "v").Component())
}

func TestFromContext(t *testing.T) {
	logger := Discard()
	ctx := WithContext(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))

	fallback := FromContext(context.Background())
	require.NotNil(t, fallback)
	assert.Equal(t, "unknown", fallback.Component())
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "json", Output: &buf})

	var fromHandler *Logger
	handler := middleware.RequestID(Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromHandler = FromContext(r.Context())
		w.WriteHeader(http.StatusNotFound)
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	require.NotNil(t, fromHandler)
	assert.Equal(t, ComponentHTTP, fromHandler.Component())

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, ComponentHTTP, line[FieldComponent])
	assert.Equal(t, "/missing", line[FieldPath])
	assert.EqualValues(t, 404, line[FieldStatusCode])
	assert.NotEmpty(t, line[FieldRequestID])
}
