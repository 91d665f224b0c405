package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UnmatchedRoute is the path label used for requests outside the relay's routes,
// so scanners probing random URLs cannot grow the label set.
const UnmatchedRoute = "unmatched"

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// ObserveRequest records one finished HTTP request. Negative sizes are not observed.
func (r *Registry) ObserveRequest(method, route string, status int, elapsed time.Duration, reqBytes, respBytes int64) {
	r.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
	if reqBytes >= 0 {
		r.httpRequestSize.WithLabelValues(method, route).Observe(float64(reqBytes))
	}
	if respBytes >= 0 {
		r.httpResponseSize.WithLabelValues(method, route).Observe(float64(respBytes))
	}
}

// MiddlewareOptions configures HTTPMiddlewareWithOptions.
type MiddlewareOptions struct {
	// Route maps a request path to its metric label. Defaults to RouteLabel.
	Route func(path string) string

	// SkipPaths are raw request paths that are never recorded.
	SkipPaths []string
}

// HTTPMiddleware records every request with the default route labels.
func HTTPMiddleware(reg *Registry) func(http.Handler) http.Handler {
	return HTTPMiddlewareWithOptions(reg, MiddlewareOptions{})
}

// HTTPMiddlewareWithOptions records request count, latency, sizes and in-flight
// requests per method and route.
func HTTPMiddlewareWithOptions(reg *Registry, opts MiddlewareOptions) func(http.Handler) http.Handler {
	route := opts.Route
	if route == nil {
		route = RouteLabel
	}
	skip := make(map[string]struct{}, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if _, ok := skip[req.URL.Path]; ok {
				next.ServeHTTP(w, req)
				return
			}

			label := route(req.URL.Path)
			inflight := reg.httpActiveRequests.WithLabelValues(req.Method, label)
			inflight.Inc()
			defer inflight.Dec()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, req)

			reqBytes := req.ContentLength
			if reqBytes < 0 {
				reqBytes = 0
			}
			reg.ObserveRequest(req.Method, label, rec.status, time.Since(start), reqBytes, rec.written)
		})
	}
}

// RouteLabel collapses a request path to the route template it was served by.
// Endpoint names are operator-defined and become {name}; anything the relay
// does not serve becomes UnmatchedRoute.
func RouteLabel(path string) string {
	path = strings.TrimSuffix(path, "/")
	switch path {
	case "", "/metrics", "/health", "/health/live", "/health/ready",
		"/api/assessment/score", "/api/assessment/analyze", "/api/assessment/complete",
		"/api/webhooks/endpoints", "/api/webhooks/queue", "/api/webhooks/queue/drain",
		"/api/webhooks/connectivity":
		if path == "" {
			return "/"
		}
		return path
	}

	rest, ok := strings.CutPrefix(path, "/api/webhooks/endpoints/")
	if !ok || rest == "" {
		return UnmatchedRoute
	}
	name, tail, _ := strings.Cut(rest, "/")
	switch {
	case name == "":
		return UnmatchedRoute
	case tail == "":
		return "/api/webhooks/endpoints/{name}"
	case tail == "test":
		return "/api/webhooks/endpoints/{name}/test"
	default:
		return UnmatchedRoute
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	written     int64
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	n, err := s.ResponseWriter.Write(b)
	s.written += int64(n)
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
