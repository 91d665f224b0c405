package types

import (
	"errors"
	"time"

	"github.com/bargom/leadrelay/internal/webhook/endpoint"
	"github.com/bargom/leadrelay/internal/webhook/processor"
	"github.com/bargom/leadrelay/pkg/integration/webhook"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Success            bool              `json:"success"`
	Error              string            `json:"error"`
	Details            map[string]string `json:"details,omitempty"`
	AvailableEndpoints []string          `json:"available_endpoints,omitempty"`
}

// ScoreResponse is returned by the score endpoint.
type ScoreResponse struct {
	Success bool   `json:"success"`
	Score   any    `json:"score"`
	Message string `json:"message"`
}

// DataResponse wraps a result document.
type DataResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

// CompleteResponse acknowledges an accepted assessment.
type CompleteResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// EndpointResponse describes one delivery endpoint. The URL is never echoed
// because webhook URLs embed credentials.
type EndpointResponse struct {
	Name       string `json:"name"`
	Priority   int    `json:"priority"`
	Configured bool   `json:"configured"`
	Critical   bool   `json:"critical"`
}

// EndpointFrom converts an endpoint to its response form.
func EndpointFrom(ep endpoint.Endpoint) EndpointResponse {
	return EndpointResponse{
		Name:       ep.Name,
		Priority:   ep.Priority,
		Configured: ep.Configured(),
		Critical:   ep.Critical(),
	}
}

// EndpointsFrom converts a slice of endpoints.
func EndpointsFrom(eps []endpoint.Endpoint) []EndpointResponse {
	out := make([]EndpointResponse, len(eps))
	for i, ep := range eps {
		out[i] = EndpointFrom(ep)
	}
	return out
}

// DeliveryResponse reports the outcome of an endpoint test.
type DeliveryResponse struct {
	Endpoint    string    `json:"endpoint"`
	Success     bool      `json:"success"`
	StatusCode  int       `json:"status_code,omitempty"`
	Attempts    int       `json:"attempts"`
	DurationMs  int64     `json:"duration_ms"`
	DeliveredAt time.Time `json:"delivered_at,omitzero"`
	Response    any       `json:"response,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// DeliveryFrom converts a delivery result or error.
func DeliveryFrom(name string, res *webhook.Result, err error) DeliveryResponse {
	out := DeliveryResponse{Endpoint: name, Success: err == nil}
	if res != nil {
		out.StatusCode = res.StatusCode
		out.Attempts = res.Attempts
		out.DurationMs = res.Duration.Milliseconds()
		out.DeliveredAt = res.DeliveredAt
		out.Response = res.Response
	}
	if err != nil {
		out.Error = err.Error()
		out.StatusCode = webhook.StatusCode(err)
		var de *webhook.DeliveryError
		if errors.As(err, &de) {
			out.Attempts = de.Attempts
		}
	}
	return out
}

// DrainResponse reports one queue pass.
type DrainResponse struct {
	Skipped    string    `json:"skipped,omitempty"`
	Processed  int       `json:"processed"`
	Delivered  int       `json:"delivered"`
	Failed     int       `json:"failed"`
	Dropped    int       `json:"dropped"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	DurationMs int64     `json:"duration_ms"`
}

// DrainFrom converts a processor pass result.
func DrainFrom(r processor.PassResult) DrainResponse {
	return DrainResponse{
		Skipped:    r.Skipped,
		Processed:  r.Processed,
		Delivered:  r.Delivered,
		Failed:     r.Failed,
		Dropped:    r.Dropped,
		StartedAt:  r.StartedAt,
		DurationMs: r.Duration.Milliseconds(),
	}
}
