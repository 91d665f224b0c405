// Package types defines API request and response types.
package types

import "github.com/bargom/leadrelay/internal/analysis"

// ScoreRequest is the body of POST /api/assessment/score.
type ScoreRequest struct {
	AssessmentData map[string]any `json:"assessment_data"`
}

// AnalyzeRequest is the body of POST /api/assessment/analyze.
type AnalyzeRequest struct {
	Bedrijfsnaam   string         `json:"bedrijfsnaam" validate:"max=255"`
	Naam           string         `json:"naam" validate:"required,max=255"`
	Email          string         `json:"email" validate:"required,email"`
	Telefoon       string         `json:"telefoon" validate:"max=64"`
	AssessmentData map[string]any `json:"assessment_data"`
}

// Participant returns the contact block passed to the analyzer.
func (r AnalyzeRequest) Participant() analysis.Participant {
	return analysis.Participant{
		Bedrijfsnaam: r.Bedrijfsnaam,
		Naam:         r.Naam,
		Email:        r.Email,
		Telefoon:     r.Telefoon,
	}
}

// SetEndpointRequest is the body of PUT /api/webhooks/endpoints/{name}.
// An empty URL disables the endpoint.
type SetEndpointRequest struct {
	URL string `json:"url" validate:"omitempty,url"`
}

// ConnectivityRequest is the body of POST /api/webhooks/connectivity.
type ConnectivityRequest struct {
	Online *bool `json:"online" validate:"required"`
}
