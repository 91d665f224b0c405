// Package connectivity tracks whether outbound delivery is currently possible.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Monitor holds the online state and notifies subscribers when it is restored.
type Monitor struct {
	mu        sync.RWMutex
	online    bool
	changedAt time.Time
	restore   []func()
	logger    *slog.Logger
}

// NewMonitor returns a Monitor with the given initial state.
func NewMonitor(online bool, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		online:    online,
		changedAt: time.Now(),
		logger:    logger.With(slog.String("component", "connectivity")),
	}
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// ChangedAt returns when the state last changed.
func (m *Monitor) ChangedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.changedAt
}

// OnRestore registers fn to run on every offline to online transition.
func (m *Monitor) OnRestore(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restore = append(m.restore, fn)
}

// Set records the state. Subscribers run synchronously after the lock is released.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	m.changedAt = time.Now()
	subs := append([]func(){}, m.restore...)
	m.mu.Unlock()

	if !online {
		m.logger.Warn("connection lost, queuing requests offline")
		return
	}

	m.logger.Info("connection restored")
	for _, fn := range subs {
		fn()
	}
}

// Pinger checks reachability of a URL.
type Pinger interface {
	Ping(ctx context.Context, url string) error
}

// Prober periodically pings a URL and feeds the result into a Monitor.
type Prober struct {
	monitor  *Monitor
	pinger   Pinger
	url      string
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewProber creates a Prober. interval defaults to 15 seconds.
func NewProber(m *Monitor, p Pinger, url string, interval time.Duration) *Prober {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Prober{
		monitor:  m,
		pinger:   p,
		url:      url,
		interval: interval,
		logger:   m.logger,
	}
}

// Check pings once and updates the monitor.
func (p *Prober) Check(ctx context.Context) bool {
	err := p.pinger.Ping(ctx, p.url)
	if err != nil {
		p.logger.Debug("connectivity probe failed", "url", p.url, "error", err)
	}
	p.monitor.Set(err == nil)
	return err == nil
}

// Start probes immediately and then on every interval.
func (p *Prober) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.running = true
	p.wg.Add(1)
	go p.run(ctx)
}

func (p *Prober) run(ctx context.Context) {
	defer p.wg.Done()

	p.Check(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// Stop ends probing and waits for the loop to exit.
func (p *Prober) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
}
