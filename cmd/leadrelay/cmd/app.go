package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bargom/leadrelay/internal/analysis"
	"github.com/bargom/leadrelay/internal/config"
	"github.com/bargom/leadrelay/internal/storage"
	"github.com/bargom/leadrelay/internal/webhook/connectivity"
	"github.com/bargom/leadrelay/internal/webhook/dispatcher"
	"github.com/bargom/leadrelay/internal/webhook/endpoint"
	"github.com/bargom/leadrelay/internal/webhook/processor"
	"github.com/bargom/leadrelay/internal/webhook/queue"
	"github.com/bargom/leadrelay/internal/webhook/service"
	"github.com/bargom/leadrelay/internal/webhook/subscriber"
	"github.com/bargom/leadrelay/pkg/integration"
	"github.com/bargom/leadrelay/pkg/integration/webhook"
	"github.com/bargom/leadrelay/pkg/logging"
	"github.com/bargom/leadrelay/pkg/metrics"
)

// loadConfig reads the env files named by --env-file and the environment.
// The bootstrap logger only reports env file problems.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	boot := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg, err := config.Load(boot, envFiles...)
	if err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger. The standard streams map to the
// command's writers. The returned closer is non-nil when logs go to a file.
func newLogger(cmd *cobra.Command, cfg logging.Config) (*logging.Logger, io.Closer, error) {
	switch cfg.Output {
	case "", "stdout":
		return logging.NewWithWriter(cfg, cmd.OutOrStdout()), nil, nil
	case "stderr":
		return logging.NewWithWriter(cfg, cmd.ErrOrStderr()), nil, nil
	}
	return logging.New(cfg)
}

// app holds the wired relay components shared by the server and the
// queue and endpoint commands.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	store     storage.Store
	queue     *queue.Store
	client    *webhook.Client
	endpoints *endpoint.Set
	metrics   *metrics.Registry
	monitor   *connectivity.Monitor
	prober    *connectivity.Prober
	processor *processor.Processor
	relay     *service.Relay
	breaker   *integration.CircuitBreaker
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	store, err := storage.New(ctx, cfg.StorageConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", cfg.Queue.Backend, err)
	}

	a := &app{cfg: cfg, logger: logger, store: store}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewRegistry(metrics.DefaultConfig())
	}

	queueOpts := []queue.Option{queue.WithLogger(logger), queue.WithKey(cfg.Queue.Key)}
	clientOpts := []webhook.Option{}
	dispatchOpts := []dispatcher.Option{
		dispatcher.WithLogger(logger),
		dispatcher.WithObserver(subscriber.NewAuditLog(logger)),
		dispatcher.WithConcurrency(cfg.Webhook.Concurrency),
	}
	procOpts := []processor.Option{
		processor.WithLogger(logger),
		processor.WithConfig(processor.Config{Interval: cfg.Queue.DrainInterval, MaxAttempts: cfg.Queue.MaxAttempts}),
	}
	if a.metrics != nil {
		m := subscriber.NewMetrics(a.metrics)
		queueOpts = append(queueOpts, queue.WithDepthObserver(m.Depth))
		clientOpts = append(clientOpts, webhook.WithAttemptObserver(m.Attempt))
		dispatchOpts = append(dispatchOpts, dispatcher.WithObserver(m))
		procOpts = append(procOpts, processor.WithHooks(m.ProcessorHooks()))
	}

	a.queue, err = queue.Open(ctx, store, queueOpts...)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("opening offline queue: %w", err)
	}

	wcfg := webhook.DefaultConfig()
	wcfg.Timeout = cfg.Webhook.Timeout
	wcfg.Retry = webhook.RetryPolicy{MaxAttempts: cfg.Webhook.RetryAttempts, BaseDelay: cfg.Webhook.RetryDelay}
	wcfg.Secret = cfg.Webhook.Secret
	a.client = webhook.NewClient(wcfg, clientOpts...)

	a.monitor = connectivity.NewMonitor(true, logger)
	procOpts = append(procOpts, processor.WithConnectivity(a.monitor))
	a.processor = processor.New(a.client, a.queue, procOpts...)
	a.monitor.OnRestore(a.processor.ConnectivityRestored)
	if cfg.Connectivity.ProbeURL != "" {
		a.prober = connectivity.NewProber(a.monitor, a.client, cfg.Connectivity.ProbeURL, cfg.Connectivity.ProbeInterval)
	}

	a.breaker = integration.NewCircuitBreaker("analysis",
		integration.DefaultCircuitBreakerConfig(), integration.WithBreakerLogger(logger))
	analyzer := analysis.New(
		analysis.Config{APIKey: cfg.Analysis.APIKey, BaseURL: cfg.Analysis.APIURL, Model: cfg.Analysis.Model},
		analysis.WithLogger(logger),
		analysis.WithCircuitBreaker(a.breaker),
	)

	a.endpoints = endpoint.NewSet(endpoint.Defaults(cfg.Endpoints)...)
	disp := dispatcher.New(a.client, a.queue, dispatchOpts...)
	a.relay = service.New(a.endpoints, disp, a.client, a.queue,
		service.WithLogger(logger),
		service.WithDrainer(a.processor),
		service.WithConnectivity(a.monitor),
		service.WithAnalyzer(analyzer),
	)
	return a, nil
}

// close persists the queue and releases the storage backend.
func (a *app) close(ctx context.Context) error {
	return errors.Join(a.queue.Flush(ctx), a.store.Close())
}

// withApp loads the configuration, runs fn against a wired app and closes it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, logCloser, err := newLogger(cmd, cfg.Log)
	if err != nil {
		return err
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, logger.Logger)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	if err := a.close(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("closing storage failed", "error", err)
	}
	return runErr
}
