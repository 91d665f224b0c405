package logging

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// RequestHeaderRequestID carries the request id in and out.
const RequestHeaderRequestID = "X-Request-ID"

// HTTPMiddleware writes one record per request.
type HTTPMiddleware struct {
	logger  *slog.Logger
	headers bool
}

// MiddlewareOption configures an HTTPMiddleware.
type MiddlewareOption func(*HTTPMiddleware)

// LogHeaders adds the request headers to each record, masking credentials.
func LogHeaders() MiddlewareOption {
	return func(m *HTTPMiddleware) { m.headers = true }
}

func NewHTTPMiddleware(logger *slog.Logger, opts ...MiddlewareOption) *HTTPMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	m := &HTTPMiddleware{logger: logger.With("component", "http")}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handler reuses an incoming X-Request-ID or generates one, echoes it on the
// response and logs at warn for 4xx and error for 5xx.
func (m *HTTPMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(RequestHeaderRequestID)
		if id == "" {
			id = NewRequestID()
		}
		w.Header().Set(RequestHeaderRequestID, id)
		ctx := WithRequestID(r.Context(), id)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("user_agent", r.UserAgent()),
			slog.Int64("response_bytes", sw.n),
		}
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			attrs = append(attrs, slog.String("route", rc.RoutePattern()))
		}
		if r.ContentLength > 0 {
			attrs = append(attrs, slog.Int64("request_bytes", r.ContentLength))
		}
		if m.headers {
			attrs = append(attrs, slog.Any("request_headers", maskHeaders(r.Header)))
		}

		m.logger.LogAttrs(ctx, levelFor(sw.status), "http request", attrs...)
	})
}

func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

func maskHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) == 0 {
			continue
		}
		if defaultRedactor.SensitiveKey(k) {
			out[k] = RedactedValue
		} else {
			out[k] = v[0]
		}
	}
	return out
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	n           int64
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(b)
	w.n += int64(n)
	return n, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
