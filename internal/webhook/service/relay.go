// Package service provides the lead relay business logic layer.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bargom/leadrelay/internal/analysis"
	"github.com/bargom/leadrelay/internal/assessment"
	"github.com/bargom/leadrelay/internal/webhook/dispatcher"
	"github.com/bargom/leadrelay/internal/webhook/endpoint"
	"github.com/bargom/leadrelay/internal/webhook/processor"
	"github.com/bargom/leadrelay/pkg/integration/webhook"
)

var (
	// ErrClosed is returned once Shutdown has been called.
	ErrClosed = errors.New("relay: shut down")
	// ErrNoProcessor is returned by Drain when no queue processor is wired.
	ErrNoProcessor = errors.New("relay: no queue processor configured")
	// ErrNoConnectivity is returned by SetOnline when no monitor is wired.
	ErrNoConnectivity = errors.New("relay: no connectivity monitor configured")
)

// BackendSource tags analysis records forwarded to the Zapier endpoint.
const BackendSource = "FlowMaster Pro Backend"

// Logger defines the logging interface for the relay.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Dispatcher fans a payload out to endpoints.
type Dispatcher interface {
	DispatchAll(ctx context.Context, payload json.RawMessage, eps []endpoint.Endpoint) dispatcher.ResultSet
}

// Sender delivers a single request.
type Sender interface {
	Send(ctx context.Context, req webhook.Request) (*webhook.Result, error)
}

// Queue is the read and clear side of the offline queue.
type Queue interface {
	Len() int
	Oldest() (time.Time, bool)
	Clear(ctx context.Context) error
}

// Drainer runs one queue pass on demand.
type Drainer interface {
	Drain(ctx context.Context) processor.PassResult
}

// Connectivity is the shared online flag.
type Connectivity interface {
	Online() bool
	Set(online bool)
}

// Analyzer produces the narrative maturity report.
type Analyzer interface {
	Analyze(ctx context.Context, answers map[string]any, score assessment.MaturityScore, p analysis.Participant) *analysis.Analysis
}

// Option configures the Relay.
type Option func(*Relay)

// WithLogger sets the logger for the relay.
func WithLogger(logger Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// WithBuilder replaces the payload builder.
func WithBuilder(b *assessment.Builder) Option {
	return func(r *Relay) {
		r.builder = b
	}
}

// WithDrainer wires the queue processor for on-demand drains.
func WithDrainer(d Drainer) Option {
	return func(r *Relay) {
		r.drainer = d
	}
}

// WithConnectivity wires the connectivity monitor.
func WithConnectivity(c Connectivity) Option {
	return func(r *Relay) {
		r.conn = c
	}
}

// WithAnalyzer wires the AI analysis client.
func WithAnalyzer(a Analyzer) Option {
	return func(r *Relay) {
		r.analyzer = a
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		r.now = now
	}
}

// Relay is the entry point used by the HTTP API and the CLI.
type Relay struct {
	endpoints  *endpoint.Set
	dispatcher Dispatcher
	sender     Sender
	queue      Queue
	drainer    Drainer
	conn       Connectivity
	analyzer   Analyzer
	builder    *assessment.Builder
	logger     Logger
	now        func() time.Time

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// New creates a Relay.
func New(eps *endpoint.Set, d Dispatcher, sender Sender, q Queue, opts ...Option) *Relay {
	r := &Relay{
		endpoints:  eps,
		dispatcher: d,
		sender:     sender,
		queue:      q,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.builder == nil {
		r.builder = assessment.NewBuilder(assessment.WithClock(r.now))
	}
	return r
}

// CompleteAssessment builds the lead payload and hands it to the dispatcher
// in the background. The returned payload carries the session id; webhook
// outcomes never reach the caller.
func (r *Relay) CompleteAssessment(ctx context.Context, d assessment.Data) (assessment.Payload, error) {
	p := r.builder.Build(d)
	body, err := json.Marshal(p)
	if err != nil {
		return p, fmt.Errorf("relay: marshal payload: %w", err)
	}

	if err := r.goDispatch(ctx, p.Marketing.SessionID, body, r.endpoints.List()); err != nil {
		return p, err
	}
	return p, nil
}

func (r *Relay) goDispatch(ctx context.Context, sessionID string, body json.RawMessage, eps []endpoint.Endpoint) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.inflight.Add(1)
	r.mu.Unlock()

	// The dispatch outlives the request that triggered it.
	bctx := context.WithoutCancel(ctx)
	go func() {
		defer r.inflight.Done()
		rs := r.dispatcher.DispatchAll(bctx, body, eps)
		r.logger.Info("lead dispatched",
			"session_id", sessionID,
			"succeeded", rs.Succeeded(),
			"endpoints", len(rs),
		)
	}()
	return nil
}

// AnalysisResult is the outcome of an analyzed assessment.
type AnalysisResult struct {
	Score       assessment.MaturityScore `json:"score"`
	Analysis    *analysis.Analysis       `json:"analysis"`
	Participant analysis.Participant     `json:"participant"`
	Timestamp   string                   `json:"timestamp"`
}

// AnalyzeAssessment scores the maturity answers, obtains the narrative
// report and forwards the flattened result to the Zapier endpoint. Forwarding
// failures are logged only.
func (r *Relay) AnalyzeAssessment(ctx context.Context, answers map[string]any, p analysis.Participant) AnalysisResult {
	score := assessment.ScoreMaturity(answers)

	var report *analysis.Analysis
	if r.analyzer != nil {
		report = r.analyzer.Analyze(ctx, answers, score, p)
	} else {
		report = analysis.Fallback(score)
	}

	res := AnalysisResult{
		Score:       score,
		Analysis:    report,
		Participant: p,
		Timestamp:   r.now().UTC().Format(assessment.TimestampFormat),
	}
	r.ForwardAnalysis(ctx, res)
	return res
}

// ZapierRecord is the flat shape the Zapier flow expects for analyses.
type ZapierRecord struct {
	Bedrijfsnaam   string `json:"bedrijfsnaam"`
	Naam           string `json:"naam"`
	Email          string `json:"email"`
	Telefoon       string `json:"telefoon"`
	TotaalScore    int    `json:"totaal_score"`
	Niveau         string `json:"niveau"`
	RawScore       int    `json:"raw_score"`
	MaxScore       int    `json:"max_score"`
	Samenvatting   string `json:"samenvatting"`
	SterkePunten   string `json:"sterke_punten"`
	Verbeterpunten string `json:"verbeterpunten"`
	Timestamp      string `json:"timestamp"`
	Source         string `json:"source"`
}

// NewZapierRecord flattens an analysis result.
func NewZapierRecord(res AnalysisResult) ZapierRecord {
	rec := ZapierRecord{
		Bedrijfsnaam: res.Participant.Bedrijfsnaam,
		Naam:         res.Participant.Naam,
		Email:        res.Participant.Email,
		Telefoon:     res.Participant.Telefoon,
		TotaalScore:  res.Score.Percentage,
		Niveau:       res.Score.Level,
		RawScore:     res.Score.RawScore,
		MaxScore:     res.Score.MaxScore,
		Timestamp:    res.Timestamp,
		Source:       BackendSource,
	}
	if res.Analysis != nil {
		rec.Samenvatting = res.Analysis.Samenvatting
		rec.SterkePunten = strings.Join(res.Analysis.SterkePunten, ", ")
		rec.Verbeterpunten = strings.Join(res.Analysis.Verbeterpunten, ", ")
	}
	return rec
}

// ForwardAnalysis delivers the flattened result to the Zapier endpoint and
// waits for the outcome. It returns nil when Zapier has no URL.
func (r *Relay) ForwardAnalysis(ctx context.Context, res AnalysisResult) dispatcher.ResultSet {
	ep, ok := r.endpoints.Get(endpoint.Zapier)
	if !ok || !ep.Configured() {
		r.logger.Warn("zapier endpoint not configured, analysis not forwarded")
		return nil
	}

	body, err := json.Marshal(NewZapierRecord(res))
	if err != nil {
		r.logger.Error("marshal analysis record", "error", err)
		return nil
	}

	rs := r.dispatcher.DispatchAll(ctx, body, []endpoint.Endpoint{ep})
	if out := rs[ep.Name]; !out.Success {
		r.logger.Error("failed to forward analysis", "endpoint", ep.Name, "error", out.Error, "queued", out.Queued)
	}
	return rs
}

// Endpoints returns the configured endpoints in configuration order.
func (r *Relay) Endpoints() []endpoint.Endpoint {
	return r.endpoints.List()
}

// SetEndpoint changes the URL of a named endpoint. Unknown names are added
// with the lowest priority.
func (r *Relay) SetEndpoint(name, url string) (endpoint.Endpoint, error) {
	ep, err := r.endpoints.SetURL(name, url)
	if err != nil {
		return ep, err
	}
	r.logger.Info("endpoint updated", "endpoint", ep.Name, "configured", ep.Configured())
	return ep, nil
}

// QueueStatus is a snapshot of the offline queue.
type QueueStatus struct {
	QueueLength int        `json:"queue_length"`
	IsOnline    bool       `json:"is_online"`
	OldestItem  *time.Time `json:"oldest_item"`
}

// QueueStatus reports the queue length, the online flag and the enqueue
// time of the oldest item (nil when empty).
func (r *Relay) QueueStatus() QueueStatus {
	st := QueueStatus{
		QueueLength: r.queue.Len(),
		IsOnline:    r.Online(),
	}
	if t, ok := r.queue.Oldest(); ok {
		st.OldestItem = &t
	}
	return st
}

// ClearQueue drops every queued item.
func (r *Relay) ClearQueue(ctx context.Context) error {
	n := r.queue.Len()
	if err := r.queue.Clear(ctx); err != nil {
		return fmt.Errorf("relay: clear queue: %w", err)
	}
	r.logger.Warn("offline queue cleared", "items", n)
	return nil
}

// TestEndpoint sends a probe payload {test, timestamp, endpoint} to one endpoint.
func (r *Relay) TestEndpoint(ctx context.Context, name string) (*webhook.Result, error) {
	ep, ok := r.endpoints.Get(name)
	if !ok || !ep.Configured() {
		return nil, fmt.Errorf("endpoint %q: %w", name, webhook.ErrNotConfigured)
	}

	body, err := json.Marshal(map[string]any{
		"test":      true,
		"timestamp": r.now().UTC().Format(assessment.TimestampFormat),
		"endpoint":  ep.Name,
	})
	if err != nil {
		return nil, err
	}
	return r.sender.Send(ctx, webhook.Request{Endpoint: ep.Name, URL: ep.URL, Payload: body})
}

// Drain runs a queue pass now.
func (r *Relay) Drain(ctx context.Context) (processor.PassResult, error) {
	if r.drainer == nil {
		return processor.PassResult{}, ErrNoProcessor
	}
	return r.drainer.Drain(ctx), nil
}

// Online reports the connectivity flag; without a monitor the relay is online.
func (r *Relay) Online() bool {
	if r.conn == nil {
		return true
	}
	return r.conn.Online()
}

// SetOnline updates the connectivity flag.
func (r *Relay) SetOnline(online bool) error {
	if r.conn == nil {
		return ErrNoConnectivity
	}
	r.conn.Set(online)
	return nil
}

// Shutdown stops accepting assessments and waits for background dispatches.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("relay: waiting for dispatches: %w", ctx.Err())
	}
}
