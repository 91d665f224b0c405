package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultCheckTimeout bounds one round of checks.
const DefaultCheckTimeout = 5 * time.Second

// Option configures a Registry.
type Option func(*Registry)

// WithService sets the service name reported in responses.
func WithService(name string) Option {
	return func(r *Registry) { r.service = name }
}

// WithEndpoints lists the public routes reported by /health.
func WithEndpoints(routes ...string) Option {
	return func(r *Registry) { r.routes = append([]string(nil), routes...) }
}

// WithWebhooks reports which delivery endpoints have a URL configured.
func WithWebhooks(fn func() map[string]bool) Option {
	return func(r *Registry) { r.webhooks = fn }
}

// WithCheckTimeout overrides DefaultCheckTimeout.
func WithCheckTimeout(d time.Duration) Option {
	return func(r *Registry) { r.timeout = d }
}

// Registry manages health checkers and executes checks.
type Registry struct {
	mu        sync.RWMutex
	checkers  []Checker
	startTime time.Time
	version   string
	service   string
	timeout   time.Duration
	routes    []string
	webhooks  func() map[string]bool
}

// NewRegistry creates a new health check registry.
func NewRegistry(version string, opts ...Option) *Registry {
	r := &Registry{
		startTime: time.Now(),
		version:   version,
		timeout:   DefaultCheckTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a health checker to the registry.
func (r *Registry) Register(checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers = append(r.checkers, checker)
}

// Checkers returns a copy of the registered checkers.
func (r *Registry) Checkers() []Checker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Checker(nil), r.checkers...)
}

// Liveness reports the process as healthy without running checks.
func (r *Registry) Liveness(context.Context) Response {
	return r.base(StatusHealthy)
}

// Readiness runs only critical checks.
func (r *Registry) Readiness(ctx context.Context) Response {
	return r.runChecks(ctx, true)
}

// Health runs every check and includes the endpoint summary.
func (r *Registry) Health(ctx context.Context) Response {
	resp := r.runChecks(ctx, false)
	resp.Endpoints = r.routes
	if r.webhooks != nil {
		resp.Webhooks = r.webhooks()
	}
	return resp
}

func (r *Registry) runChecks(ctx context.Context, criticalOnly bool) Response {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		overall = StatusHealthy
		results = make(map[string]CheckResult)
		g       errgroup.Group
	)
	for _, c := range r.Checkers() {
		if criticalOnly && c.Severity() != SeverityCritical {
			continue
		}
		g.Go(func() error {
			start := time.Now()
			res := c.Check(ctx)
			res.Duration = time.Since(start)

			mu.Lock()
			defer mu.Unlock()
			results[c.Name()] = res
			overall = combine(overall, res.Status, c.Severity())
			return nil
		})
	}
	_ = g.Wait()

	resp := r.base(overall)
	resp.Checks = results
	return resp
}

// combine folds one check result into the overall status. Warning-level
// failures never make the relay unhealthy.
func combine(overall, s Status, sev Severity) Status {
	switch {
	case s == StatusUnhealthy && sev == SeverityCritical:
		return StatusUnhealthy
	case s == StatusHealthy, overall == StatusUnhealthy:
		return overall
	default:
		return StatusDegraded
	}
}

func (r *Registry) base(s Status) Response {
	return Response{
		Status:    s,
		Service:   r.service,
		Version:   r.version,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(r.startTime).Truncate(time.Second).String(),
	}
}

// StartTime returns when the registry was created.
func (r *Registry) StartTime() time.Time {
	return r.startTime
}

// Version returns the version string.
func (r *Registry) Version() string {
	return r.version
}
