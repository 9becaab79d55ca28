package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry), buf.String())
	return entry
}

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
}

func TestRequestID_IncomingHeader(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		kept     bool
	}{
		{"token", "req-42.a:b_c", true},
		{"spaces", "two words", false},
		{"newline", "id\nforged", false},
		{"too long", strings.Repeat("a", 129), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequestID(okHandler())
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(RequestIDHeader, tt.incoming)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			got := w.Header().Get(RequestIDHeader)
			assert.NotEmpty(t, got)
			assert.Equal(t, tt.kept, got == tt.incoming)
		})
	}
}

func TestAccessLog_WritesThroughLogger(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(AccessLog(jsonLogger(&buf)))
	r.Get("/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("gone"))
	})

	req := httptest.NewRequest(http.MethodGet, "/documents/abc", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	r.ServeHTTP(httptest.NewRecorder(), req)

	entry := decodeLogLine(t, &buf)
	assert.Equal(t, "http request", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "/documents/abc", entry["path"])
	assert.Equal(t, "/documents/{id}", entry["route"])
	assert.EqualValues(t, 404, entry["status"])
	assert.EqualValues(t, 4, entry["bytes"])
	assert.Equal(t, "10.0.0.1", entry["remote_addr"])
}

func TestAccessLog_Levels(t *testing.T) {
	tests := []struct {
		path   string
		status int
		level  string
	}{
		{"/ask", http.StatusOK, "INFO"},
		{"/health", http.StatusOK, "DEBUG"},
		{"/ask", http.StatusServiceUnavailable, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			handler := AccessLog(jsonLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			entry := decodeLogLine(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.NotContains(t, entry, "request_id")
		})
	}
}

func TestMaxBodyBytes(t *testing.T) {
	var readErr error
	handler := MaxBodyBytes(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	t.Run("declared length over limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), "exceeds 8 bytes")
	})

	t.Run("undeclared length over limit", func(t *testing.T) {
		readErr = nil
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789"))
		req.ContentLength = -1
		handler.ServeHTTP(httptest.NewRecorder(), req)

		var maxErr *http.MaxBytesError
		assert.True(t, errors.As(readErr, &maxErr))
	})

	t.Run("within limit", func(t *testing.T) {
		readErr = nil
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("short")))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, readErr)
	})
}

func TestSentryMiddleware_PassesThroughWithoutClient(t *testing.T) {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(SentryMiddleware)
	r.Get("/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.NotNil(t, sentry.GetHubFromContext(r.Context()))
		w.WriteHeader(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/abc", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestHTTPStatusToSpanStatus(t *testing.T) {
	tests := map[int]sentry.SpanStatus{
		200: sentry.SpanStatusOK,
		204: sentry.SpanStatusOK,
		400: sentry.SpanStatusInvalidArgument,
		401: sentry.SpanStatusUnauthenticated,
		404: sentry.SpanStatusNotFound,
		413: sentry.SpanStatusOutOfRange,
		422: sentry.SpanStatusInvalidArgument,
		500: sentry.SpanStatusInternalError,
		502: sentry.SpanStatusInternalError,
		503: sentry.SpanStatusUnavailable,
	}

	for status, want := range tests {
		assert.Equal(t, want, httpStatusToSpanStatus(status), "status %d", status)
	}
}
