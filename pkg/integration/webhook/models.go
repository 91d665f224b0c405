// Package webhook provides the HTTP delivery client used to push lead payloads to external endpoints.
package webhook

import (
	"encoding/json"
	"time"
)

// Request is one payload bound for one endpoint URL.
type Request struct {
	Endpoint string            `json:"endpoint"`
	URL      string            `json:"url"`
	Payload  json.RawMessage   `json:"payload"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// Result is the outcome of a successful delivery.
type Result struct {
	Endpoint    string        `json:"endpoint"`
	StatusCode  int           `json:"status_code"`
	Response    any           `json:"response,omitempty"`
	Attempts    int           `json:"attempts"`
	Duration    time.Duration `json:"-"`
	DeliveredAt time.Time     `json:"delivered_at"`
}

// RetryPolicy bounds the retries of a single Send call.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
}

// DefaultRetryPolicy returns three attempts with a one second base delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
	}
}

// Backoff returns the wait after the given failed attempt: BaseDelay * 2^(attempt-1).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return p.BaseDelay
	}
	return p.BaseDelay << uint(attempt-1)
}
