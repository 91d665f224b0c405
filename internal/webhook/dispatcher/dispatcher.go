// Package dispatcher fans one payload out to every configured endpoint.
package dispatcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bargom/leadrelay/internal/webhook/endpoint"
	"github.com/bargom/leadrelay/internal/webhook/queue"
	"github.com/bargom/leadrelay/pkg/integration/webhook"
)

// Logger defines the logging interface for the dispatcher.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Sender delivers one request with its own retry budget.
type Sender interface {
	Send(ctx context.Context, req webhook.Request) (*webhook.Result, error)
}

// Queuer stores failed deliveries for later replay.
type Queuer interface {
	Enqueue(ctx context.Context, endpointName, url string, payload json.RawMessage) (queue.Item, error)
}

// Outcome is the per-endpoint entry of a ResultSet.
type Outcome struct {
	Success bool            `json:"success"`
	Result  *webhook.Result `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Queued  bool            `json:"queued,omitempty"`
	Err     error           `json:"-"`
}

// ResultSet maps endpoint names to their outcome. Endpoints without a URL are absent.
type ResultSet map[string]Outcome

// Succeeded returns how many endpoints accepted the payload.
func (rs ResultSet) Succeeded() int {
	n := 0
	for _, o := range rs {
		if o.Success {
			n++
		}
	}
	return n
}

// Event describes one endpoint outcome for observers.
type Event struct {
	Endpoint endpoint.Endpoint
	Payload  json.RawMessage
	Result   *webhook.Result
	Err      error
	Queued   bool
	At       time.Time
}

// Observer is notified of every endpoint outcome.
type Observer interface {
	OnSuccess(ctx context.Context, e Event)
	OnFailure(ctx context.Context, e Event)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithObserver subscribes o to dispatch outcomes.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		d.observers = append(d.observers, o)
	}
}

// WithConcurrency limits how many endpoints are delivered to at once.
// A limit of 1 delivers sequentially in configuration order.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		d.concurrency = n
	}
}

// Dispatcher delivers payloads to endpoints and queues failures of critical ones.
type Dispatcher struct {
	sender      Sender
	queue       Queuer
	observers   []Observer
	logger      Logger
	concurrency int
	now         func() time.Time
}

// New creates a Dispatcher. q may be nil, in which case nothing is queued.
func New(sender Sender, q Queuer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender: sender,
		queue:  q,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DispatchAll sends payload to every endpoint that has a URL. Each endpoint is
// independent: one endpoint's failure or latency never changes another's
// outcome. Terminal failures of critical endpoints are queued. DispatchAll
// never fails; errors are reported in the result set.
func (d *Dispatcher) DispatchAll(ctx context.Context, payload json.RawMessage, eps []endpoint.Endpoint) ResultSet {
	results := make(ResultSet, len(eps))
	var mu sync.Mutex

	var g errgroup.Group
	if d.concurrency > 0 {
		g.SetLimit(d.concurrency)
	}

	for _, ep := range eps {
		if !ep.Configured() {
			d.logger.Debug("skipping unconfigured endpoint", "endpoint", ep.Name)
			continue
		}
		g.Go(func() error {
			out := d.deliver(ctx, payload, ep)
			mu.Lock()
			results[ep.Name] = out
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (d *Dispatcher) deliver(ctx context.Context, payload json.RawMessage, ep endpoint.Endpoint) Outcome {
	res, err := d.sender.Send(ctx, webhook.Request{Endpoint: ep.Name, URL: ep.URL, Payload: payload})
	if err == nil {
		d.logger.Info("webhook delivered", "endpoint", ep.Name, "attempts", res.Attempts, "status", res.StatusCode)
		d.emit(ctx, Event{Endpoint: ep, Payload: payload, Result: res, At: d.now()})
		return Outcome{Success: true, Result: res}
	}

	out := Outcome{Error: err.Error(), Err: err}
	d.logger.Error("webhook delivery failed", "endpoint", ep.Name, "priority", ep.Priority, "error", err)

	if ep.Critical() && d.queue != nil {
		// Queue writes use a context that outlives a cancelled dispatch.
		qctx := context.WithoutCancel(ctx)
		if _, qerr := d.queue.Enqueue(qctx, ep.Name, ep.URL, payload); qerr != nil {
			d.logger.Error("queueing failed webhook", "endpoint", ep.Name, "error", qerr)
		} else {
			out.Queued = true
		}
	}

	d.emit(ctx, Event{Endpoint: ep, Payload: payload, Err: err, Queued: out.Queued, At: d.now()})
	return out
}

func (d *Dispatcher) emit(ctx context.Context, e Event) {
	for _, o := range d.observers {
		if e.Err == nil {
			o.OnSuccess(ctx, e)
		} else {
			o.OnFailure(ctx, e)
		}
	}
}
