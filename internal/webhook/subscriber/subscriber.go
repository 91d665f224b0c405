// Package subscriber provides observers that turn webhook delivery events into
// audit logs and Prometheus metrics.
package subscriber

import (
	"context"
	"log/slog"
	"time"

	"github.com/bargom/leadrelay/internal/webhook/dispatcher"
	"github.com/bargom/leadrelay/internal/webhook/processor"
	"github.com/bargom/leadrelay/internal/webhook/queue"
	"github.com/bargom/leadrelay/pkg/integration/webhook"
	"github.com/bargom/leadrelay/pkg/metrics"
)

// Logger defines the logging interface for the subscriber.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// AuditLog records one line per dispatch outcome under the "audit" module.
type AuditLog struct {
	logger Logger
}

// NewAuditLog creates an AuditLog. A nil logger uses slog.Default.
func NewAuditLog(logger Logger) *AuditLog {
	if logger == nil {
		logger = slog.Default().With("module", "audit")
	}
	return &AuditLog{logger: logger}
}

// OnSuccess implements dispatcher.Observer.
func (a *AuditLog) OnSuccess(_ context.Context, e dispatcher.Event) {
	a.logger.Info("dispatch outcome",
		"endpoint", e.Endpoint.Name,
		"outcome", metrics.OutcomeDelivered,
		"status", e.Result.StatusCode,
		"attempts", e.Result.Attempts,
		"duration", e.Result.Duration,
		"bytes", len(e.Payload),
	)
}

// OnFailure implements dispatcher.Observer.
func (a *AuditLog) OnFailure(_ context.Context, e dispatcher.Event) {
	outcome := metrics.OutcomeFailed
	if e.Queued {
		outcome = metrics.OutcomeQueued
	}
	a.logger.Warn("dispatch outcome",
		"endpoint", e.Endpoint.Name,
		"outcome", outcome,
		"priority", e.Endpoint.Priority,
		"status", webhook.StatusCode(e.Err),
		"error", e.Err,
	)
}

// Metrics feeds dispatcher, processor and queue activity into a metrics.Registry.
type Metrics struct {
	registry *metrics.Registry
}

// NewMetrics creates a Metrics subscriber.
func NewMetrics(reg *metrics.Registry) *Metrics {
	return &Metrics{registry: reg}
}

// OnSuccess implements dispatcher.Observer.
func (m *Metrics) OnSuccess(_ context.Context, e dispatcher.Event) {
	m.registry.Webhook().RecordDelivery(e.Endpoint.Name, metrics.OutcomeDelivered)
}

// OnFailure implements dispatcher.Observer.
func (m *Metrics) OnFailure(_ context.Context, e dispatcher.Event) {
	if e.Queued {
		m.registry.Webhook().RecordDelivery(e.Endpoint.Name, metrics.OutcomeQueued)
		m.registry.Queue().RecordEnqueued(e.Endpoint.Name)
		return
	}
	m.registry.Webhook().RecordDelivery(e.Endpoint.Name, metrics.OutcomeFailed)
}

// Attempt records every HTTP attempt. Pass it to webhook.WithAttemptObserver.
func (m *Metrics) Attempt(endpoint string, _ int, statusCode int, elapsed time.Duration, err error) {
	m.registry.Webhook().RecordAttempt(endpoint, statusCode, elapsed, err)
}

// Depth tracks the offline queue length. Pass it to queue.WithDepthObserver.
func (m *Metrics) Depth(n int) {
	m.registry.Queue().SetDepth(n)
}

// ProcessorHooks returns hooks recording replay outcomes and drain passes.
func (m *Metrics) ProcessorHooks() processor.Hooks {
	return processor.Hooks{
		OnDelivered: func(item queue.Item, _ *webhook.Result) {
			m.registry.Webhook().RecordDelivery(item.EndpointName, metrics.OutcomeDelivered)
		},
		OnDropped: func(item queue.Item, _ error) {
			m.registry.Queue().RecordDropped(item.EndpointName)
		},
		OnPass: func(res processor.PassResult) {
			result := res.Skipped
			if result == "" {
				result = "completed"
			}
			m.registry.Queue().RecordDrainPass(result, res.Duration)
		},
	}
}

var (
	_ dispatcher.Observer = (*AuditLog)(nil)
	_ dispatcher.Observer = (*Metrics)(nil)
)
