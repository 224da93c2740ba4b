package logkafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu   sync.Mutex
	msgs [][]byte
	err  error
}

func (s *memSink) Write(_ context.Context, msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMiddlewareShipsEntry(t *testing.T) {
	sink := &memSink{}
	l := New(sink, "test", discard())

	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Annotate(r.Context(), "user_id", "u-1")
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/menu", nil)
	req.Header.Set("X-Trace-ID", "trace-1")
	req.Header.Set("X-Forwarded-For", "10.0.0.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "trace-1", rec.Header().Get("X-Trace-ID"))
	require.Len(t, sink.msgs, 1)

	var entry LogEntry
	require.NoError(t, json.Unmarshal(sink.msgs[0], &entry))
	assert.Equal(t, "warn", entry.Level)
	assert.Equal(t, "trace-1", entry.TraceID)
	assert.Equal(t, "test", entry.Env)
	assert.Equal(t, "418", entry.Extra["status"])
	assert.Equal(t, "/api/menu", entry.Extra["path"])
	assert.Equal(t, "10.0.0.7", entry.Extra["ip"])
	assert.Equal(t, "u-1", entry.Extra["user_id"])
}

func TestMiddlewareGeneratesTraceID(t *testing.T) {
	sink := &memSink{}
	h := New(sink, "", discard()).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, rec.Header().Get("X-Trace-ID"), 36)

	var entry LogEntry
	require.NoError(t, json.Unmarshal(sink.msgs[0], &entry))
	assert.Equal(t, "anonymous", entry.Extra["user_id"])
	assert.Equal(t, "info", entry.Level)
}

func TestFallbackToSlog(t *testing.T) {
	var buf bytes.Buffer
	fallback := slog.New(slog.NewTextHandler(&buf, nil))

	New(nil, "dev", fallback).Log(context.Background(), "info", "http", "request completed", "t-1", map[string]string{"path": "/x"})
	assert.Contains(t, buf.String(), "trace_id=t-1")
	assert.Contains(t, buf.String(), "path=/x")

	buf.Reset()
	New(&memSink{err: errors.New("broker down")}, "dev", fallback).Log(context.Background(), "info", "http", "request completed", "t-2", nil)
	assert.Contains(t, buf.String(), "failed to ship request log")
	assert.Contains(t, buf.String(), "trace_id=t-2")
}

func TestAnnotateOutsideMiddleware(t *testing.T) {
	assert.NotPanics(t, func() { Annotate(context.Background(), "k", "v") })
}
