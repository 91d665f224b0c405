package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/bargom/leadrelay/internal/api"
	"github.com/bargom/leadrelay/internal/api/middleware"
	"github.com/bargom/leadrelay/internal/auth"
	"github.com/bargom/leadrelay/internal/health"
	"github.com/bargom/leadrelay/internal/health/checks"
	"github.com/bargom/leadrelay/internal/shutdown"
	"github.com/bargom/leadrelay/internal/shutdown/hooks"
	"github.com/bargom/leadrelay/internal/webhook/service"
	"github.com/bargom/leadrelay/pkg/integration"
	"github.com/bargom/leadrelay/pkg/logging"
)

// queueDepthWarning marks the health report degraded above this backlog.
const queueDepthWarning = 100

var serverAddr string

func newServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Server management commands",
	}
	cmd.AddCommand(newServerStartCmd())
	return cmd
}

func newServerStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the HTTP API server",
		Long: `Start the lead relay HTTP API.

The server accepts assessments, delivers them to the configured webhook
endpoints and replays the offline queue in the background. It shuts down
gracefully on SIGINT or SIGTERM.`,
		Example: `  leadrelay server start
  leadrelay server start --addr :8080
  leadrelay server start --env-file prod.env`,
		Args: cobra.NoArgs,
		RunE: runServerStart,
	}
	cmd.Flags().StringVar(&serverAddr, "addr", "", "listen address (default from LEADRELAY_HTTP_ADDR or PORT)")
	return cmd
}

func runServerStart(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if serverAddr != "" {
		cfg.HTTP.Addr = serverAddr
	}
	logger, logCloser, err := newLogger(cmd, cfg.Log)
	if err != nil {
		return err
	}
	logger.SetDefault()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, logger.Logger)
	if err != nil {
		return err
	}

	handler, err := buildHandler(a)
	if err != nil {
		_ = a.close(ctx)
		return err
	}
	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		_ = a.close(ctx)
		return fmt.Errorf("listening on %s: %w", cfg.HTTP.Addr, err)
	}
	return serve(ctx, a, handler, ln, logCloser)
}

// buildHandler assembles the health registry, admin auth and router for a.
func buildHandler(a *app) (http.Handler, error) {
	reg := health.NewRegistry(Version,
		health.WithService(service.BackendSource),
		health.WithEndpoints(api.PublicEndpoints...),
		health.WithWebhooks(func() map[string]bool {
			out := make(map[string]bool)
			for _, ep := range a.endpoints.List() {
				out[ep.Name] = ep.Configured()
			}
			return out
		}),
	)
	reg.Register(checks.NewStorageChecker(a.store, a.cfg.Queue.Backend, 0))
	reg.Register(checks.NewConnectivityChecker(a.monitor))
	reg.Register(checks.NewQueueChecker(a.queue, queueDepthWarning))
	reg.Register(checks.NewFuncChecker("analysis", a.analysisHealth))

	rc := api.RouterConfig{
		Relay:          a.relay,
		Health:         health.NewHandler(reg),
		Logger:         a.logger,
		Metrics:        a.metrics,
		AllowedOrigins: a.cfg.CORS.AllowedOrigins,
		MaxBodyBytes:   a.cfg.HTTP.MaxBodyBytes,
		RequestTimeout: a.cfg.HTTP.WriteTimeout,
		LogHeaders:     logging.ParseLevel(a.cfg.Log.Level) == slog.LevelDebug,
	}
	if a.cfg.RateLimit.RPS > 0 {
		rc.RateLimiter = middleware.NewRateLimiter(a.cfg.RateLimit.RPS, a.cfg.RateLimit.Burst)
	}
	if a.cfg.Admin.JWTSecret != "" {
		v, err := auth.NewValidator(auth.Config{Secret: a.cfg.Admin.JWTSecret, Issuer: a.cfg.Admin.JWTIssuer}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("admin auth: %w", err)
		}
		rc.Auth = auth.NewMiddleware(v)
	} else {
		a.logger.Warn("ADMIN_JWT_SECRET not set, admin routes disabled")
	}
	return api.NewRouter(rc), nil
}

// serve runs the workers and the HTTP server on ln until a shutdown signal
// arrives, ctx is canceled or the server fails.
func serve(ctx context.Context, a *app, handler http.Handler, ln net.Listener, logCloser io.Closer) error {
	srv := api.NewServer(handler, api.ServerConfig{
		Addr:         ln.Addr().String(),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
	})

	if err := a.processor.Start(ctx); err != nil {
		_ = ln.Close()
		_ = a.close(ctx)
		return err
	}
	if a.prober != nil {
		a.prober.Start(ctx)
	}
	if a.queue.Len() > 0 {
		a.processor.TriggerNow()
	}

	mgr := shutdown.NewManager(shutdown.Config{OverallTimeout: a.cfg.HTTP.ShutdownTimeout}, a.logger)
	mgr.RegisterHook(hooks.HTTPServerShutdown(srv))
	mgr.RegisterHook(hooks.Worker("queue-processor", a.processor))
	mgr.RegisterHook(hooks.Worker("relay", hooks.StopperFunc(a.relay.Shutdown)))
	if a.prober != nil {
		mgr.RegisterHook(hooks.Worker("connectivity-prober", hooks.StopperFunc(func(context.Context) error {
			a.prober.Stop()
			return nil
		})))
	}
	mgr.RegisterHook(hooks.QueueFlush(a.queue, a.store))
	if logCloser != nil {
		mgr.RegisterHook(hooks.Closer("log-output", shutdown.PriorityTelemetry, logCloser))
	}

	done := mgr.ListenForSignals(ctx)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	a.logger.Info("server listening",
		"addr", ln.Addr().String(),
		"backend", a.cfg.Queue.Backend,
		"queued", a.queue.Len(),
		slog.Group("endpoints", endpointAttrs(a)...),
	)

	select {
	case <-done:
		return joinShutdown(mgr, <-errCh)
	case err := <-errCh:
		if err == nil {
			<-done
			return joinShutdown(mgr, nil)
		}
		a.logger.Error("server failed", "error", err)
		_ = mgr.Shutdown(context.WithoutCancel(ctx))
		return fmt.Errorf("server error: %w", err)
	}
}

func joinShutdown(mgr *shutdown.Manager, serveErr error) error {
	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	if errs := mgr.Errors(); len(errs) > 0 {
		return fmt.Errorf("shutdown finished with %d errors: %w", len(errs), errs[0])
	}
	return nil
}

func endpointAttrs(a *app) []any {
	var attrs []any
	for _, ep := range a.endpoints.List() {
		attrs = append(attrs, slog.Bool(ep.Name, ep.Configured()))
	}
	return attrs
}

// analysisHealth reports degraded while the AI circuit is not closed. Leads are
// still answered with the fallback analysis in that state.
func (a *app) analysisHealth(context.Context) health.CheckResult {
	if a.cfg.Analysis.APIKey == "" {
		return health.CheckResult{Status: health.StatusHealthy, Message: "no API key, fallback analysis only"}
	}
	st := a.breaker.Stats()
	if st.State == integration.StateClosed {
		return health.CheckResult{Status: health.StatusHealthy}
	}
	return health.CheckResult{
		Status:  health.StatusDegraded,
		Message: "circuit " + st.State.String(),
		Details: map[string]any{"failures": st.Failures, "opened_at": st.OpenedAt},
	}
}
