// Package health reports liveness and readiness of the relay and its backends.
package health

import (
	"context"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded means the relay still accepts leads but delivery is impaired.
	StatusDegraded Status = "degraded"
)

// Severity decides whether a failing check affects readiness.
type Severity string

const (
	// SeverityCritical failures make /health/ready return 503.
	SeverityCritical Severity = "critical"
	// SeverityWarning failures only degrade the overall status.
	SeverityWarning Severity = "warning"
)

// Response is the JSON body of every health endpoint.
type Response struct {
	Status    Status                 `json:"status"`
	Service   string                 `json:"service,omitempty"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime,omitempty"`
	Endpoints []string               `json:"endpoints,omitempty"`
	Webhooks  map[string]bool        `json:"webhooks,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult represents the result of an individual health check.
type CheckResult struct {
	Status   Status         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Duration time.Duration  `json:"duration,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// Checker is implemented by every health check.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
	Severity() Severity
}
