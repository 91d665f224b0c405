package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrOverallTimeout is recorded when hooks are skipped because the overall
// deadline passed.
var ErrOverallTimeout = errors.New("overall shutdown timeout exceeded")

// Config bounds the shutdown. Zero values take the defaults of DefaultConfig.
type Config struct {
	OverallTimeout    time.Duration
	PerHookTimeout    time.Duration
	SlowHookThreshold time.Duration
}

// DefaultConfig allows 30s overall, 10s per hook and warns about hooks
// slower than 5s.
func DefaultConfig() Config {
	return Config{
		OverallTimeout:    30 * time.Second,
		PerHookTimeout:    10 * time.Second,
		SlowHookThreshold: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.OverallTimeout <= 0 {
		c.OverallTimeout = d.OverallTimeout
	}
	if c.PerHookTimeout <= 0 {
		c.PerHookTimeout = d.PerHookTimeout
	}
	if c.SlowHookThreshold <= 0 {
		c.SlowHookThreshold = d.SlowHookThreshold
	}
	return c
}

// State is the lifecycle of a Manager.
type State int32

const (
	StateRunning State = iota
	StateShuttingDown
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateShutdown:
		return "shutdown"
	}
	return "unknown"
}

// Manager runs registered hooks once, stage by stage.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	hooks []Hook
	errs  []error

	state atomic.Int32
	once  sync.Once
	done  chan struct{}
}

func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg.withDefaults(),
		logger: logger.With("component", "shutdown"),
		done:   make(chan struct{}),
	}
}

func (m *Manager) Register(name string, priority int, fn HookFunc) {
	m.RegisterHook(Hook{Name: name, Priority: priority, Fn: fn})
}

func (m *Manager) RegisterHook(h Hook) {
	m.mu.Lock()
	m.hooks = append(m.hooks, h)
	m.mu.Unlock()
	m.logger.Debug("registered shutdown hook", "name", h.Name, "priority", h.Priority)
}

// ListenForSignals calls Shutdown on SIGTERM, SIGINT or SIGQUIT (or the given
// signals) or when ctx ends. The returned channel is Done.
func (m *Manager) ListenForSignals(ctx context.Context, signals ...os.Signal) <-chan struct{} {
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT}
	}
	sigCtx, stop := signal.NotifyContext(ctx, signals...)
	go func() {
		defer stop()
		select {
		case <-sigCtx.Done():
			m.logger.Info("received shutdown signal", "cause", context.Cause(sigCtx))
			_ = m.Shutdown(context.Background())
		case <-m.done:
		}
	}()
	return m.done
}

// Shutdown runs every hook under OverallTimeout. Only the first call does
// work; every call returns the joined hook errors.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.once.Do(func() {
		m.state.Store(int32(StateShuttingDown))
		m.mu.Lock()
		plan := stages(m.hooks)
		m.mu.Unlock()
		m.logger.Info("starting graceful shutdown", "timeout", m.cfg.OverallTimeout, "stages", len(plan))

		ctx, cancel := context.WithTimeout(ctx, m.cfg.OverallTimeout)
		defer cancel()
		for i, stage := range plan {
			if ctx.Err() != nil {
				m.logger.Warn("shutdown timeout exceeded, remaining hooks skipped", "remaining_stages", len(plan)-i)
				m.record(ErrOverallTimeout)
				break
			}
			var g errgroup.Group
			for _, h := range stage {
				g.Go(func() error {
					m.runHook(ctx, h)
					return nil
				})
			}
			_ = g.Wait()
		}

		m.state.Store(int32(StateShutdown))
		m.logger.Info("graceful shutdown complete", "errors", len(m.Errors()))
		close(m.done)
	})
	return errors.Join(m.Errors()...)
}

func (m *Manager) runHook(ctx context.Context, h Hook) {
	start := time.Now()
	err := h.run(ctx, m.cfg.PerHookTimeout)
	elapsed := time.Since(start)

	if elapsed > m.cfg.SlowHookThreshold {
		m.logger.Warn("slow shutdown hook", "name", h.Name, "duration", elapsed, "threshold", m.cfg.SlowHookThreshold)
	}
	if err != nil {
		m.logger.Error("shutdown hook failed", "name", h.Name, "error", err, "duration", elapsed)
		m.record(fmt.Errorf("hook %s: %w", h.Name, err))
		return
	}
	m.logger.Info("shutdown hook completed", "name", h.Name, "duration", elapsed)
}

func (m *Manager) record(err error) {
	m.mu.Lock()
	m.errs = append(m.errs, err)
	m.mu.Unlock()
}

// Errors returns the hook failures recorded so far.
func (m *Manager) Errors() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]error(nil), m.errs...)
}

func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) IsShuttingDown() bool {
	return m.State() == StateShuttingDown
}

// Done is closed once every hook has run or been skipped.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) HookCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hooks)
}
