// Package logkafka records one structured entry per HTTP request and ships it
// to Kafka, where the log pusher indexes it into Elasticsearch.
package logkafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LogEntry is the document shape shared with the log pusher.
type LogEntry struct {
	Level     string            `json:"level"`
	Module    string            `json:"module"`
	Message   string            `json:"message"`
	TraceID   string            `json:"trace_id"`
	Env       string            `json:"env"`
	Timestamp time.Time         `json:"timestamp"`
	Extra     map[string]string `json:"extra"`
}

// RequestLogger writes request entries to a Sink. With a nil sink entries go
// to the fallback slog logger instead.
type RequestLogger struct {
	sink     Sink
	env      string
	fallback *slog.Logger
	now      func() time.Time
}

func New(sink Sink, env string, fallback *slog.Logger) *RequestLogger {
	return &RequestLogger{sink: sink, env: env, fallback: fallback, now: time.Now}
}

func (l *RequestLogger) Log(ctx context.Context, level, module, message, traceID string, extra map[string]string) {
	entry := LogEntry{
		Level:     level,
		Module:    module,
		Message:   message,
		TraceID:   traceID,
		Env:       l.env,
		Timestamp: l.now(),
		Extra:     extra,
	}
	if l.sink != nil {
		b, err := json.Marshal(entry)
		if err == nil {
			err = l.sink.Write(ctx, b)
		}
		if err == nil {
			return
		}
		l.fallback.Warn("failed to ship request log", "error", err)
	}

	attrs := []any{"module", module, "trace_id", traceID}
	for k, v := range extra {
		attrs = append(attrs, k, v)
	}
	l.fallback.Info(message, attrs...)
}

type annotations struct {
	mu     sync.Mutex
	values map[string]string
}

type annotationsKey struct{}

// Annotate attaches a field to the entry logged for the current request. It
// is a no-op outside the middleware.
func Annotate(ctx context.Context, key, value string) {
	a, ok := ctx.Value(annotationsKey{}).(*annotations)
	if !ok {
		return
	}
	a.mu.Lock()
	a.values[key] = value
	a.mu.Unlock()
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// Middleware logs method, path, status and duration of every request under a
// trace id taken from X-Trace-ID or generated. The trace id is echoed back.
func (l *RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := l.now()

		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.New().String()
		}
		w.Header().Set("X-Trace-ID", traceID)

		a := &annotations{values: map[string]string{}}
		ctx := context.WithValue(r.Context(), annotationsKey{}, a)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r.WithContext(ctx))
		duration := l.now().Sub(start)

		extra := map[string]string{
			"user_id":     "anonymous",
			"ip":          clientIP(r),
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      strconv.Itoa(rw.statusCode),
			"duration_ms": strconv.FormatInt(duration.Milliseconds(), 10),
			"user_agent":  r.UserAgent(),
		}
		a.mu.Lock()
		for k, v := range a.values {
			extra[k] = v
		}
		a.mu.Unlock()

		level := "info"
		switch {
		case rw.statusCode >= 500:
			level = "error"
		case rw.statusCode >= 400:
			level = "warn"
		}
		l.Log(context.WithoutCancel(r.Context()), level, "http", "request completed", traceID, extra)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
