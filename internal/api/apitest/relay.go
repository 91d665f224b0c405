// Package apitest provides fakes and helpers for exercising the HTTP API.
package apitest

import (
	"context"
	"sync"
	"time"

	"github.com/bargom/leadrelay/internal/analysis"
	"github.com/bargom/leadrelay/internal/assessment"
	"github.com/bargom/leadrelay/internal/webhook/endpoint"
	"github.com/bargom/leadrelay/internal/webhook/processor"
	"github.com/bargom/leadrelay/internal/webhook/service"
	"github.com/bargom/leadrelay/pkg/integration/webhook"
)

// Relay is an in-memory stand-in for service.Relay. Error fields are
// returned by the corresponding methods when set.
type Relay struct {
	mu sync.Mutex

	Set       *endpoint.Set
	Queued    int
	IsOnline  bool
	Completed []assessment.Data
	Analyzed  []analysis.Participant

	CompleteErr     error
	TestResult      *webhook.Result
	TestErr         error
	DrainResult     processor.PassResult
	DrainErr        error
	ClearErr        error
	ConnectivityErr error
}

// NewRelay returns a Relay with the default endpoints and the given URLs.
func NewRelay(urls map[string]string) *Relay {
	return &Relay{Set: endpoint.NewSet(endpoint.Defaults(urls)...), IsOnline: true}
}

func (r *Relay) CompleteAssessment(_ context.Context, d assessment.Data) (assessment.Payload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CompleteErr != nil {
		return assessment.Payload{}, r.CompleteErr
	}
	r.Completed = append(r.Completed, d)
	var p assessment.Payload
	p.Bedrijf.Naam = d.Bedrijfsnaam
	p.Marketing.SessionID = "assessment_test"
	return p, nil
}

func (r *Relay) AnalyzeAssessment(_ context.Context, answers map[string]any, p analysis.Participant) service.AnalysisResult {
	r.mu.Lock()
	r.Analyzed = append(r.Analyzed, p)
	r.mu.Unlock()
	score := assessment.ScoreMaturity(answers)
	return service.AnalysisResult{
		Score:       score,
		Analysis:    analysis.Fallback(score),
		Participant: p,
		Timestamp:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC).Format(assessment.TimestampFormat),
	}
}

func (r *Relay) Endpoints() []endpoint.Endpoint {
	return r.Set.List()
}

func (r *Relay) SetEndpoint(name, url string) (endpoint.Endpoint, error) {
	return r.Set.SetURL(name, url)
}

func (r *Relay) QueueStatus() service.QueueStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return service.QueueStatus{QueueLength: r.Queued, IsOnline: r.IsOnline}
}

func (r *Relay) ClearQueue(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ClearErr != nil {
		return r.ClearErr
	}
	r.Queued = 0
	return nil
}

func (r *Relay) TestEndpoint(_ context.Context, name string) (*webhook.Result, error) {
	ep, ok := r.Set.Get(name)
	if !ok || !ep.Configured() {
		return nil, webhook.ErrNotConfigured
	}
	return r.TestResult, r.TestErr
}

func (r *Relay) Drain(context.Context) (processor.PassResult, error) {
	return r.DrainResult, r.DrainErr
}

func (r *Relay) SetOnline(online bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ConnectivityErr != nil {
		return r.ConnectivityErr
	}
	r.IsOnline = online
	return nil
}
