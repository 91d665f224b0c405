package metrics

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"
)

// Delivery outcomes recorded on the deliveries counter.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeQueued    = "queued"
	OutcomeSkipped   = "skipped"
)

// Error types for webhook attempt errors.
const (
	ErrorTypeTimeout     = "timeout"
	ErrorTypeConnection  = "connection"
	ErrorTypeServerError = "server_error"
	ErrorTypeClientError = "client_error"
	ErrorTypeRateLimit   = "rate_limit"
	ErrorTypeCanceled    = "canceled"
	ErrorTypeUnknown     = "unknown"
)

// WebhookMetrics provides methods to record webhook delivery metrics.
type WebhookMetrics struct {
	registry *Registry
}

// Webhook returns the webhook metrics interface for the registry.
func (r *Registry) Webhook() *WebhookMetrics {
	return &WebhookMetrics{registry: r}
}

// RecordAttempt records a single HTTP attempt against an endpoint.
// A zero status code means no response was received.
func (w *WebhookMetrics) RecordAttempt(endpoint string, statusCode int, duration time.Duration, err error) {
	status := "none"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	w.registry.webhookAttemptsTotal.WithLabelValues(endpoint, status).Inc()
	w.registry.webhookAttemptDuration.WithLabelValues(endpoint).Observe(duration.Seconds())

	if err != nil {
		errType := ClassifyHTTPError(statusCode)
		if statusCode == 0 {
			errType = ClassifyError(err)
		}
		w.registry.webhookErrors.WithLabelValues(endpoint, errType).Inc()
	}
}

// RecordDelivery records the final outcome of a delivery.
func (w *WebhookMetrics) RecordDelivery(endpoint, outcome string) {
	w.registry.webhookDeliveriesTotal.WithLabelValues(endpoint, outcome).Inc()
}

// ClassifyError determines the error type from an error.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrorTypeCanceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return ErrorTypeTimeout
	case strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host"):
		return ErrorTypeConnection
	default:
		return ErrorTypeUnknown
	}
}

// ClassifyHTTPError determines the error type from an HTTP status code.
func ClassifyHTTPError(statusCode int) string {
	switch {
	case statusCode == 429:
		return ErrorTypeRateLimit
	case statusCode >= 400 && statusCode < 500:
		return ErrorTypeClientError
	case statusCode >= 500:
		return ErrorTypeServerError
	default:
		return ErrorTypeUnknown
	}
}
