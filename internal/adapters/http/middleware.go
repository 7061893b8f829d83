package httpadapter

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-Id"
	maxRequestIDLen = 64
)

type requestInfoContextKey struct{}

// requestInfo is filled in while the request travels through the mux and
// handlers, and read back by the access log once the response is written.
type requestInfo struct {
	id string

	mu        sync.Mutex
	route     string
	errorKind string
}

func requestInfoFromContext(ctx context.Context) *requestInfo {
	if ctx == nil {
		return nil
	}
	info, _ := ctx.Value(requestInfoContextKey{}).(*requestInfo)
	return info
}

func requestIDFromContext(ctx context.Context) string {
	if info := requestInfoFromContext(ctx); info != nil {
		return info.id
	}
	return ""
}

func noteRoute(ctx context.Context, pattern string) {
	if info := requestInfoFromContext(ctx); info != nil {
		info.mu.Lock()
		info.route = pattern
		info.mu.Unlock()
	}
}

func noteErrorKind(ctx context.Context, kind string) {
	if info := requestInfoFromContext(ctx); info != nil {
		info.mu.Lock()
		info.errorKind = kind
		info.mu.Unlock()
	}
}

func (i *requestInfo) snapshot() (route, errorKind string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.route, i.errorKind
}

// validRequestID accepts gateway ids made of letters, digits, dots, dashes and underscores.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestInfoContextKey{}, &requestInfo{id: requestID})
		w.Header().Set(requestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withRoute records the matched mux pattern, which is only visible below the mux.
func withRoute(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		noteRoute(r.Context(), r.Pattern)
		handler(w, r)
	}
}

// accessLogMiddleware logs one http_request event per request. Client errors
// that are part of normal portal use (a closed deadline, a stale status)
// stay at info; malformed or unauthenticated calls are warnings.
func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(recorder, r)

		remoteAddr := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			remoteAddr = host
		}

		var route, errorKind string
		if info := requestInfoFromContext(r.Context()); info != nil {
			route, errorKind = info.snapshot()
		}

		logAttrs := []any{
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", recorder.statusCode,
			"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
			"bytes", recorder.bytesWritten,
			"remote_addr", remoteAddr,
			"user_id", r.Header.Get(userIDHeader),
			"user_role", r.Header.Get(userRoleHeader),
		}
		if errorKind != "" {
			logAttrs = append(logAttrs, "error_kind", errorKind)
		}

		slog.Log(r.Context(), accessLogLevel(recorder.statusCode), "http_request", logAttrs...)
	})
}

func accessLogLevel(status int) slog.Level {
	switch status {
	case http.StatusForbidden, http.StatusNotFound, http.StatusConflict:
		return slog.LevelInfo
	}
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (w *responseRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach flush and deadline controls of the wrapped writer.
func (w *responseRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
