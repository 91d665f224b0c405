// Package processor replays the offline queue in the background.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bargom/leadrelay/internal/webhook/queue"
	"github.com/bargom/leadrelay/pkg/integration/webhook"
)

// Logger defines the logging interface for the processor.
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

// Queue is the part of the offline queue the processor needs.
type Queue interface {
	All() []queue.Item
	Commit(ctx context.Context, u queue.Update) (int, error)
}

// Connectivity reports whether the network is believed to be up.
type Connectivity interface {
	Online() bool
}

// Skip reasons reported in PassResult.
const (
	SkipEmpty   = "empty"
	SkipOffline = "offline"
	SkipBusy    = "busy"
)

// Config holds configuration for the queue processor.
type Config struct {
	// Interval between scheduled drain passes.
	Interval time.Duration
	// MaxAttempts is the cumulative number of failed passes after which an item is dropped.
	MaxAttempts int
}

// DefaultConfig returns a 30 second interval and three attempts.
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		MaxAttempts: 3,
	}
}

// PassResult summarises one drain pass.
type PassResult struct {
	Skipped   string        `json:"skipped,omitempty"`
	Processed int           `json:"processed"`
	Delivered int           `json:"delivered"`
	Failed    int           `json:"failed"`
	Dropped   int           `json:"dropped"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"-"`
}

// Hooks receive per-item and per-pass notifications.
type Hooks struct {
	OnDelivered func(item queue.Item, res *webhook.Result)
	OnFailed    func(item queue.Item, attempts int, err error)
	OnDropped   func(item queue.Item, err error)
	OnPass      func(PassResult)
}

// Option configures the Processor.
type Option func(*Processor)

// WithLogger sets the logger for the processor.
func WithLogger(logger Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithConfig sets the configuration for the processor.
func WithConfig(cfg Config) Option {
	return func(p *Processor) {
		p.config = cfg
	}
}

// WithConnectivity makes passes skip while c reports offline.
func WithConnectivity(c Connectivity) Option {
	return func(p *Processor) {
		p.conn = c
	}
}

// WithHooks registers notification hooks.
func WithHooks(h Hooks) Option {
	return func(p *Processor) {
		p.hooks = h
	}
}

// Processor drains the offline queue on a schedule, on connectivity restore
// and on demand. At most one pass runs at a time; triggers arriving during a
// pass are dropped rather than queued.
type Processor struct {
	sender   Sender
	queue    Queue
	conn     Connectivity
	config   Config
	logger   Logger
	hooks    Hooks
	now      func() time.Time
	draining atomic.Bool

	mu      sync.RWMutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a queue processor.
func New(sender Sender, q Queue, opts ...Option) *Processor {
	p := &Processor{
		sender: sender,
		queue:  q,
		config: DefaultConfig(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.config.Interval <= 0 {
		p.config.Interval = DefaultConfig().Interval
	}
	if p.config.MaxAttempts <= 0 {
		p.config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	return p
}

// Start schedules periodic drain passes.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.cron = cron.New()
	if _, err := p.cron.AddFunc(fmt.Sprintf("@every %s", p.config.Interval), p.scheduled); err != nil {
		p.cancel()
		return fmt.Errorf("processor: scheduling drain: %w", err)
	}
	p.cron.Start()
	p.running = true

	p.logger.Info("queue processor started", "interval", p.config.Interval, "maxAttempts", p.config.MaxAttempts)
	return nil
}

// Stop cancels scheduled passes and waits for an active pass to finish.
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	c := p.cron
	p.mu.Unlock()

	stopped := c.Stop()
	p.cancel()

	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("queue processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning returns whether the processor is scheduled.
func (p *Processor) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// IsDraining reports whether a pass is in progress.
func (p *Processor) IsDraining() bool {
	return p.draining.Load()
}

// TriggerNow starts a pass in the background. It is a no-op while stopped or
// while another pass is running.
func (p *Processor) TriggerNow() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return
	}

	ctx := p.ctx
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.Drain(ctx)
	}()
}

// ConnectivityRestored is the callback for the connectivity monitor.
func (p *Processor) ConnectivityRestored() {
	p.logger.Info("connection restored, processing offline queue")
	p.TriggerNow()
}

func (p *Processor) scheduled() {
	p.mu.RLock()
	ctx := p.ctx
	p.mu.RUnlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	p.Drain(ctx)
}

// Drain runs one pass over a snapshot of the queue taken when the pass
// starts. Items appended meanwhile wait for the next pass.
func (p *Processor) Drain(ctx context.Context) PassResult {
	start := p.now()
	res := PassResult{StartedAt: start}

	if !p.draining.CompareAndSwap(false, true) {
		res.Skipped = SkipBusy
		return res
	}
	defer p.draining.Store(false)

	items := p.queue.All()
	switch {
	case len(items) == 0:
		res.Skipped = SkipEmpty
		return p.report(res)
	case p.conn != nil && !p.conn.Online():
		res.Skipped = SkipOffline
		p.logger.Debug("offline, skipping queue drain", "items", len(items))
		return p.report(res)
	}

	p.logger.Info("processing queued webhooks", "count", len(items))

	update := queue.Update{Attempts: make(map[string]int)}
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		res.Processed++

		result, err := p.deliver(ctx, item)
		if err == nil {
			res.Delivered++
			update.Remove = append(update.Remove, item.ID)
			p.logger.Info("processed queued webhook", "endpoint", item.EndpointName, "id", item.ID)
			if p.hooks.OnDelivered != nil {
				p.hooks.OnDelivered(item, result)
			}
			continue
		}
		if ctx.Err() != nil {
			// Cancelled mid-attempt; the item keeps its counter.
			res.Processed--
			break
		}

		attempts := item.Attempts + 1
		if attempts >= p.config.MaxAttempts {
			res.Dropped++
			update.Remove = append(update.Remove, item.ID)
			p.logger.Error("dropping queued webhook",
				"endpoint", item.EndpointName,
				"id", item.ID,
				"attempts", attempts,
				"enqueuedAt", item.EnqueuedAt,
				"error", err,
			)
			if p.hooks.OnDropped != nil {
				p.hooks.OnDropped(item, err)
			}
			continue
		}

		res.Failed++
		update.Attempts[item.ID] = attempts
		p.logger.Warn("queued webhook failed",
			"endpoint", item.EndpointName,
			"id", item.ID,
			"attempts", attempts,
			"error", err,
		)
		if p.hooks.OnFailed != nil {
			p.hooks.OnFailed(item, attempts, err)
		}
	}

	if _, err := p.queue.Commit(context.WithoutCancel(ctx), update); err != nil {
		p.logger.Error("saving drain results failed", "error", err)
	}

	res.Duration = p.now().Sub(start)
	p.logger.Info("queue drain completed",
		"delivered", res.Delivered,
		"failed", res.Failed,
		"dropped", res.Dropped,
	)
	return p.report(res)
}

func (p *Processor) report(res PassResult) PassResult {
	if p.hooks.OnPass != nil {
		p.hooks.OnPass(res)
	}
	return res
}

// deliver isolates one item so a panic cannot abort the pass.
func (p *Processor) deliver(ctx context.Context, item queue.Item) (res *webhook.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor: panic delivering %s: %v", item.ID, r)
		}
	}()
	return p.sender.Send(ctx, webhook.Request{
		Endpoint: item.EndpointName,
		URL:      item.URL,
		Payload:  item.Payload,
	})
}
