package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "leadrelay", cfg.Namespace)
	assert.True(t, cfg.EnableProcessMetrics)
	assert.True(t, cfg.EnableRuntimeMetrics)
	assert.NotEmpty(t, cfg.HistogramBuckets.DeliveryDuration)
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry(Config{})

	assert.NotNil(t, reg.PrometheusRegistry())
	assert.Equal(t, "leadrelay", reg.Config().Namespace)
	assert.NotEmpty(t, reg.Config().HistogramBuckets.HTTPDuration)
}

func TestObserveRequest(t *testing.T) {
	reg := newTestRegistry()

	reg.ObserveRequest("POST", "/api/assessment/score", 200, 100*time.Millisecond, 100, 500)
	reg.ObserveRequest("POST", "/api/assessment/score", 200, 50*time.Millisecond, -1, -1)

	counter, err := getCounterValue(reg.httpRequestsTotal, "POST", "/api/assessment/score", "200")
	require.NoError(t, err)
	assert.Equal(t, float64(2), counter)
}

func TestHTTPMiddleware(t *testing.T) {
	reg := newTestRegistry()

	var inflight float64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inflight, _ = getGaugeValue(reg.httpActiveRequests, "POST", "/api/assessment/complete")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"status":"accepted"}`))
	})

	wrapped := HTTPMiddleware(reg)(handler)

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest("POST", "/api/assessment/complete", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, float64(1), inflight)

	counter, err := getCounterValue(reg.httpRequestsTotal, "POST", "/api/assessment/complete", "202")
	require.NoError(t, err)
	assert.Equal(t, float64(1), counter)

	after, err := getGaugeValue(reg.httpActiveRequests, "POST", "/api/assessment/complete")
	require.NoError(t, err)
	assert.Zero(t, after)
}

func TestHTTPMiddlewareWithSkipPaths(t *testing.T) {
	reg := newTestRegistry()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	wrapped := HTTPMiddlewareWithOptions(reg, MiddlewareOptions{
		SkipPaths: []string{"/metrics"},
	})(handler)

	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/metrics", nil))
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))

	counter, err := getCounterValue(reg.httpRequestsTotal, "GET", "/metrics", "200")
	require.NoError(t, err)
	assert.Equal(t, float64(0), counter)

	counter, err = getCounterValue(reg.httpRequestsTotal, "GET", "/health", "200")
	require.NoError(t, err)
	assert.Equal(t, float64(1), counter)
}

func TestHTTPMiddlewareCustomRoute(t *testing.T) {
	reg := newTestRegistry()

	wrapped := HTTPMiddlewareWithOptions(reg, MiddlewareOptions{
		Route: func(string) string { return "fixed" },
	})(http.NotFoundHandler())

	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/anything", nil))

	counter, err := getCounterValue(reg.httpRequestsTotal, "GET", "fixed", "404")
	require.NoError(t, err)
	assert.Equal(t, float64(1), counter)
}

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/api/webhooks/endpoints/zapier", "/api/webhooks/endpoints/{name}"},
		{"/api/webhooks/endpoints/my-crm/test", "/api/webhooks/endpoints/{name}/test"},
		{"/api/webhooks/endpoints", "/api/webhooks/endpoints"},
		{"/api/webhooks/endpoints/", "/api/webhooks/endpoints"},
		{"/api/webhooks/endpoints/zapier/other", UnmatchedRoute},
		{"/api/assessment/score", "/api/assessment/score"},
		{"/api/assessment/score/", "/api/assessment/score"},
		{"/health/ready", "/health/ready"},
		{"/", "/"},
		{"/wp-login.php", UnmatchedRoute},
		{"/items/123", UnmatchedRoute},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, RouteLabel(tt.input))
		})
	}
}

func TestWebhookMetrics(t *testing.T) {
	reg := newTestRegistry()
	wh := reg.Webhook()

	wh.RecordAttempt("zapier", 200, 120*time.Millisecond, nil)
	wh.RecordAttempt("zapier", 500, 80*time.Millisecond, errors.New("HTTP 500: Internal Server Error"))
	wh.RecordAttempt("zapier", 0, 10*time.Second, context.DeadlineExceeded)
	wh.RecordDelivery("zapier", OutcomeQueued)

	ok, err := getCounterValue(reg.webhookAttemptsTotal, "zapier", "200")
	require.NoError(t, err)
	assert.Equal(t, float64(1), ok)

	none, err := getCounterValue(reg.webhookAttemptsTotal, "zapier", "none")
	require.NoError(t, err)
	assert.Equal(t, float64(1), none)

	serverErrs, err := getCounterValue(reg.webhookErrors, "zapier", ErrorTypeServerError)
	require.NoError(t, err)
	assert.Equal(t, float64(1), serverErrs)

	timeouts, err := getCounterValue(reg.webhookErrors, "zapier", ErrorTypeTimeout)
	require.NoError(t, err)
	assert.Equal(t, float64(1), timeouts)

	queued, err := getCounterValue(reg.webhookDeliveriesTotal, "zapier", OutcomeQueued)
	require.NoError(t, err)
	assert.Equal(t, float64(1), queued)
}

func TestQueueMetrics(t *testing.T) {
	reg := newTestRegistry()
	q := reg.Queue()

	q.SetDepth(3)
	assert.Equal(t, float64(3), getSimpleGaugeValue(reg.queueDepth))
	q.SetDepth(0)
	assert.Equal(t, float64(0), getSimpleGaugeValue(reg.queueDepth))

	q.RecordEnqueued("pipedrive")
	q.RecordDropped("pipedrive")
	q.RecordDrainPass("completed", 2*time.Second)
	q.RecordDrainPass("offline", 0)

	enq, err := getCounterValue(reg.queueEnqueuedTotal, "pipedrive")
	require.NoError(t, err)
	assert.Equal(t, float64(1), enq)

	dropped, err := getCounterValue(reg.queueDroppedTotal, "pipedrive")
	require.NoError(t, err)
	assert.Equal(t, float64(1), dropped)

	offline, err := getCounterValue(reg.queueDrainPasses, "offline")
	require.NoError(t, err)
	assert.Equal(t, float64(1), offline)

	var m dto.Metric
	require.NoError(t, reg.queueDrainDuration.Write(&m))
	assert.Equal(t, uint64(1), m.GetHistogram().GetSampleCount())
}

func TestClassifyHTTPError(t *testing.T) {
	assert.Equal(t, ErrorTypeClientError, ClassifyHTTPError(400))
	assert.Equal(t, ErrorTypeRateLimit, ClassifyHTTPError(429))
	assert.Equal(t, ErrorTypeServerError, ClassifyHTTPError(503))
	assert.Equal(t, ErrorTypeUnknown, ClassifyHTTPError(200))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{nil, ""},
		{fmt.Errorf("attempt 1: %w", context.DeadlineExceeded), ErrorTypeTimeout},
		{context.Canceled, ErrorTypeCanceled},
		{errors.New("dial tcp: connection refused"), ErrorTypeConnection},
		{errors.New("lookup hooks.zapier.com: no such host"), ErrorTypeConnection},
		{errors.New("request timed out"), ErrorTypeTimeout},
		{errors.New("random error"), ErrorTypeUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ClassifyError(tt.err), "%v", tt.err)
	}
}

func TestHandler(t *testing.T) {
	reg := newTestRegistry()
	reg.ObserveRequest("GET", "/health", 200, 100*time.Millisecond, 0, 20)
	reg.Webhook().RecordDelivery("zapier", OutcomeDelivered)
	reg.Queue().SetDepth(2)

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	out := string(body)
	assert.Contains(t, out, "leadrelay_http_requests_total")
	assert.Contains(t, out, "leadrelay_http_request_duration_seconds_bucket")
	assert.Contains(t, out, `leadrelay_webhook_deliveries_total{endpoint="zapier",outcome="delivered"} 1`)
	assert.Contains(t, out, "leadrelay_queue_depth 2")
}

func TestStatusRecorder(t *testing.T) {
	t.Run("ImplicitOK", func(t *testing.T) {
		rec := httptest.NewRecorder()
		sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}
		sr.Write([]byte("test"))

		assert.Equal(t, http.StatusOK, sr.status)
		assert.Equal(t, int64(4), sr.written)
	})

	t.Run("FirstHeaderWins", func(t *testing.T) {
		rec := httptest.NewRecorder()
		sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}
		sr.WriteHeader(http.StatusNotFound)
		sr.WriteHeader(http.StatusInternalServerError)
		sr.Write([]byte("not found"))

		assert.Equal(t, http.StatusNotFound, sr.status)
		assert.Equal(t, int64(9), sr.written)
	})

	t.Run("Unwrap", func(t *testing.T) {
		rec := httptest.NewRecorder()
		sr := &statusRecorder{ResponseWriter: rec}
		assert.Equal(t, rec, sr.Unwrap())
	})
}

// Helper functions for testing

func newTestRegistry() *Registry {
	cfg := DefaultConfig()
	cfg.EnableProcessMetrics = false
	cfg.EnableRuntimeMetrics = false
	return NewRegistry(cfg)
}

func getCounterValue(cv *prometheus.CounterVec, labels ...string) (float64, error) {
	counter, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0, err
	}

	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		return 0, err
	}

	return metric.GetCounter().GetValue(), nil
}

func getGaugeValue(gv *prometheus.GaugeVec, labels ...string) (float64, error) {
	gauge, err := gv.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0, err
	}

	var metric dto.Metric
	if err := gauge.Write(&metric); err != nil {
		return 0, err
	}

	return metric.GetGauge().GetValue(), nil
}

func getSimpleGaugeValue(g prometheus.Gauge) float64 {
	var metric dto.Metric
	g.Write(&metric)
	return metric.GetGauge().GetValue()
}
