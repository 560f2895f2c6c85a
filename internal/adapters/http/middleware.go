package httpadapter

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	requestIDHeader    = "X-Request-Id"
	maxRequestIDLength = 64
)

// requestLog collects what handlers learn about a request (job id, kind,
// error kind) so that it ends up on the single access log line.
type requestLog struct {
	id string

	mu    sync.Mutex
	attrs []any
}

type requestLogKey struct{}

func requestLogFrom(ctx context.Context) *requestLog {
	entry, _ := ctx.Value(requestLogKey{}).(*requestLog)
	return entry
}

// annotate adds key/value pairs to the access log line of the request.
func annotate(ctx context.Context, attrs ...any) {
	entry := requestLogFrom(ctx)
	if entry == nil {
		return
	}
	entry.mu.Lock()
	entry.attrs = append(entry.attrs, attrs...)
	entry.mu.Unlock()
}

// requestID keeps a caller supplied id when it is short and printable,
// otherwise a fresh one is generated.
func requestID(r *http.Request) string {
	id := r.Header.Get(requestIDHeader)
	if id == "" || len(id) > maxRequestIDLength {
		return uuid.NewString()
	}
	for _, c := range id {
		if !(c == '-' || c == '_' || c == '.' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return uuid.NewString()
		}
	}
	return id
}

func accessLogMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		entry := &requestLog{id: requestID(r)}
		w.Header().Set(requestIDHeader, entry.id)
		r = r.WithContext(context.WithValue(r.Context(), requestLogKey{}, entry))

		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(recorder, r)

		remoteAddr := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			remoteAddr = host
		}

		attrs := []any{
			"request_id", entry.id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.statusCode,
			"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
			"bytes", recorder.bytesWritten,
			"remote_addr", remoteAddr,
		}
		entry.mu.Lock()
		attrs = append(attrs, entry.attrs...)
		entry.mu.Unlock()

		switch {
		case recorder.statusCode >= 500:
			logger.Error("job_api_request", attrs...)
		case recorder.statusCode >= 400 && recorder.statusCode != http.StatusNotFound:
			logger.Warn("job_api_request", attrs...)
		case r.URL.Path == "/healthz" || r.URL.Path == "/metrics":
			logger.Debug("job_api_request", attrs...)
		default:
			logger.Info("job_api_request", attrs...)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += n
	return n, err
}
