package subscriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bargom/leadrelay/internal/webhook/dispatcher"
	"github.com/bargom/leadrelay/internal/webhook/endpoint"
	"github.com/bargom/leadrelay/internal/webhook/processor"
	"github.com/bargom/leadrelay/internal/webhook/queue"
	"github.com/bargom/leadrelay/pkg/integration/webhook"
	"github.com/bargom/leadrelay/pkg/metrics"
)

func newRegistry() *metrics.Registry {
	cfg := metrics.DefaultConfig()
	cfg.EnableProcessMetrics = false
	cfg.EnableRuntimeMetrics = false
	return metrics.NewRegistry(cfg)
}

// metricValue gathers the registry and returns the value of the series
// matching name and labels, or -1 when it is absent.
func metricValue(t *testing.T, reg *metrics.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.PrometheusRegistry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			if labelsMatch(m, labels) {
				return value(m)
			}
		}
	}
	return -1
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	if len(m.GetLabel()) != len(labels) {
		return false
	}
	for _, lp := range m.GetLabel() {
		if labels[lp.GetName()] != lp.GetValue() {
			return false
		}
	}
	return true
}

func value(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.GetCounter().GetValue()
	case m.Gauge != nil:
		return m.GetGauge().GetValue()
	case m.Histogram != nil:
		return float64(m.GetHistogram().GetSampleCount())
	}
	return -1
}

func failure(queued bool) dispatcher.Event {
	return dispatcher.Event{
		Endpoint: endpoint.Endpoint{Name: endpoint.Zapier, URL: "http://z", Priority: 1},
		Err: &webhook.DeliveryError{
			Endpoint: endpoint.Zapier,
			Attempts: 3,
			Err:      &webhook.AttemptError{Attempt: 3, StatusCode: 503, Status: "Service Unavailable"},
		},
		Queued: queued,
		At:     time.Now(),
	}
}

func TestMetrics_DispatchOutcomes(t *testing.T) {
	reg := newRegistry()
	m := NewMetrics(reg)
	ctx := context.Background()

	m.OnSuccess(ctx, dispatcher.Event{
		Endpoint: endpoint.Endpoint{Name: endpoint.Email},
		Result:   &webhook.Result{Endpoint: endpoint.Email, StatusCode: 200, Attempts: 1},
	})
	m.OnFailure(ctx, failure(true))
	m.OnFailure(ctx, failure(false))

	assert.Equal(t, float64(1), metricValue(t, reg, "leadrelay_webhook_deliveries_total",
		map[string]string{"endpoint": "email", "outcome": "delivered"}))
	assert.Equal(t, float64(1), metricValue(t, reg, "leadrelay_webhook_deliveries_total",
		map[string]string{"endpoint": "zapier", "outcome": "queued"}))
	assert.Equal(t, float64(1), metricValue(t, reg, "leadrelay_webhook_deliveries_total",
		map[string]string{"endpoint": "zapier", "outcome": "failed"}))
	assert.Equal(t, float64(1), metricValue(t, reg, "leadrelay_queue_enqueued_total",
		map[string]string{"endpoint": "zapier"}))
}

func TestMetrics_AttemptAndDepth(t *testing.T) {
	reg := newRegistry()
	m := NewMetrics(reg)

	var observer webhook.AttemptObserver = m.Attempt
	observer("pipedrive", 1, 502, 40*time.Millisecond, errors.New("HTTP 502: Bad Gateway"))
	observer("pipedrive", 2, 200, 30*time.Millisecond, nil)
	m.Depth(4)

	assert.Equal(t, float64(1), metricValue(t, reg, "leadrelay_webhook_attempts_total",
		map[string]string{"endpoint": "pipedrive", "status_code": "502"}))
	assert.Equal(t, float64(1), metricValue(t, reg, "leadrelay_webhook_errors_total",
		map[string]string{"endpoint": "pipedrive", "error_type": "server_error"}))
	assert.Equal(t, float64(2), metricValue(t, reg, "leadrelay_webhook_delivery_duration_seconds",
		map[string]string{"endpoint": "pipedrive"}))
	assert.Equal(t, float64(4), metricValue(t, reg, "leadrelay_queue_depth", map[string]string{}))
}

func TestMetrics_ProcessorHooks(t *testing.T) {
	reg := newRegistry()
	hooks := NewMetrics(reg).ProcessorHooks()

	item := queue.Item{ID: "q1", EndpointName: endpoint.Pipedrive}
	hooks.OnDelivered(item, &webhook.Result{StatusCode: 200})
	hooks.OnDropped(item, errors.New("HTTP 500"))
	hooks.OnPass(processor.PassResult{Processed: 2, Delivered: 1, Dropped: 1, Duration: time.Second})
	hooks.OnPass(processor.PassResult{Skipped: processor.SkipOffline})

	assert.Equal(t, float64(1), metricValue(t, reg, "leadrelay_webhook_deliveries_total",
		map[string]string{"endpoint": "pipedrive", "outcome": "delivered"}))
	assert.Equal(t, float64(1), metricValue(t, reg, "leadrelay_queue_dropped_total",
		map[string]string{"endpoint": "pipedrive"}))
	assert.Equal(t, float64(1), metricValue(t, reg, "leadrelay_queue_drain_passes_total",
		map[string]string{"result": "completed"}))
	assert.Equal(t, float64(1), metricValue(t, reg, "leadrelay_queue_drain_passes_total",
		map[string]string{"result": "offline"}))
	assert.Nil(t, hooks.OnFailed)
}

func TestAuditLog(t *testing.T) {
	var buf bytes.Buffer
	audit := NewAuditLog(slog.New(slog.NewJSONHandler(&buf, nil)))
	ctx := context.Background()

	audit.OnSuccess(ctx, dispatcher.Event{
		Endpoint: endpoint.Endpoint{Name: endpoint.Email},
		Payload:  json.RawMessage(`{"a":1}`),
		Result:   &webhook.Result{StatusCode: 201, Attempts: 2},
	})
	audit.OnFailure(ctx, failure(true))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var ok, failed map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ok))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &failed))

	assert.Equal(t, "delivered", ok["outcome"])
	assert.Equal(t, float64(201), ok["status"])
	assert.Equal(t, float64(2), ok["attempts"])
	assert.Equal(t, float64(7), ok["bytes"])

	assert.Equal(t, "queued", failed["outcome"])
	assert.Equal(t, float64(503), failed["status"])
	assert.Equal(t, "WARN", failed["level"])
}
