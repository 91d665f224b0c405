// Package config loads leadrelay settings from the environment and .env files.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/bargom/leadrelay/internal/storage"
	"github.com/bargom/leadrelay/internal/webhook/endpoint"
	"github.com/bargom/leadrelay/internal/webhook/queue"
	"github.com/bargom/leadrelay/pkg/logging"
)

// Config is the complete process configuration.
type Config struct {
	HTTP         HTTPConfig
	Endpoints    map[string]string
	Webhook      WebhookConfig
	Queue        QueueConfig
	Connectivity ConnectivityConfig
	Analysis     AnalysisConfig
	Admin        AdminConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Metrics      MetricsConfig
	Log          logging.Config
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64
}

// WebhookConfig configures the delivery client.
type WebhookConfig struct {
	RetryAttempts int
	RetryDelay    time.Duration
	Timeout       time.Duration
	Secret        string
	Concurrency   int
}

// QueueConfig configures the offline queue and its processor.
type QueueConfig struct {
	Backend       string
	DSN           string
	Key           string
	DrainInterval time.Duration
	// MaxAttempts defaults to the webhook retry attempts.
	MaxAttempts int
}

// ConnectivityConfig configures the optional reachability probe.
type ConnectivityConfig struct {
	ProbeURL      string
	ProbeInterval time.Duration
}

// AnalysisConfig configures the AI analysis client.
type AnalysisConfig struct {
	APIKey string
	APIURL string
	Model  string
}

// AdminConfig configures JWT protection of the admin routes.
type AdminConfig struct {
	JWTSecret string
	JWTIssuer string
}

// RateLimitConfig configures the per-client token bucket on assessment routes.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string
}

// DefaultAllowedOrigins are the assessment frontends.
var DefaultAllowedOrigins = []string{
	"http://localhost:5500",
	"http://127.0.0.1:5500",
	"http://localhost:3001",
	"https://celebrated-nasturtium-1d0567.netlify.app",
	"https://recruitmentapk.nl",
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":3001",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    10 << 20,
		},
		Endpoints: map[string]string{},
		Webhook: WebhookConfig{
			RetryAttempts: 3,
			RetryDelay:    time.Second,
			Timeout:       10 * time.Second,
		},
		Queue: QueueConfig{
			Backend:       storage.BackendFile,
			DSN:           "data",
			Key:           queue.DefaultKey,
			DrainInterval: 30 * time.Second,
		},
		Connectivity: ConnectivityConfig{
			ProbeInterval: 15 * time.Second,
		},
		// 20 assessments per 15 minutes per client.
		RateLimit: RateLimitConfig{
			RPS:   20.0 / (15 * 60),
			Burst: 20,
		},
		CORS:    CORSConfig{AllowedOrigins: append([]string(nil), DefaultAllowedOrigins...)},
		Metrics: MetricsConfig{Enabled: true},
		Log:     logging.DefaultConfig(),
	}
}

// LoadEnvFiles loads .env files into the process environment without
// overriding variables that are already set. Missing files are reported as
// a warning only.
func LoadEnvFiles(logger *slog.Logger, files ...string) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			logger.Warn("no .env file loaded, continuing with environment variables", "file", f, "error", err)
		}
	}
}

// FromEnv builds a Config from defaults overridden by environment variables.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

// Load reads the given .env files (".env" when none) and then the environment.
func Load(logger *slog.Logger, files ...string) (Config, error) {
	LoadEnvFiles(logger, files...)
	cfg, err := FromEnv()
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	p := parser{lookup: lookup}

	p.str("LEADRELAY_HTTP_ADDR", &cfg.HTTP.Addr)
	if port, ok := lookup("PORT"); ok && port != "" {
		if _, set := lookup("LEADRELAY_HTTP_ADDR"); !set {
			cfg.HTTP.Addr = ":" + port
		}
	}
	p.duration("LEADRELAY_READ_TIMEOUT", &cfg.HTTP.ReadTimeout)
	p.duration("LEADRELAY_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout)
	p.duration("LEADRELAY_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout)
	p.int64("LEADRELAY_MAX_BODY_BYTES", &cfg.HTTP.MaxBodyBytes)

	for name, key := range map[string]string{
		endpoint.Zapier:    "ZAPIER_WEBHOOK_URL",
		endpoint.Pipedrive: "PIPEDRIVE_WEBHOOK_URL",
		endpoint.Email:     "EMAIL_WEBHOOK_URL",
		endpoint.Backup:    "BACKUP_WEBHOOK_URL",
	} {
		if v, ok := lookup(key); ok {
			cfg.Endpoints[name] = strings.TrimSpace(v)
		}
	}

	p.integer("WEBHOOK_RETRY_ATTEMPTS", &cfg.Webhook.RetryAttempts)
	p.duration("WEBHOOK_RETRY_DELAY", &cfg.Webhook.RetryDelay)
	p.duration("WEBHOOK_TIMEOUT", &cfg.Webhook.Timeout)
	p.str("WEBHOOK_SECRET", &cfg.Webhook.Secret)
	p.integer("WEBHOOK_CONCURRENCY", &cfg.Webhook.Concurrency)

	p.str("QUEUE_BACKEND", &cfg.Queue.Backend)
	cfg.Queue.Backend = strings.ToLower(cfg.Queue.Backend)
	p.str("QUEUE_DSN", &cfg.Queue.DSN)
	p.str("QUEUE_KEY", &cfg.Queue.Key)
	p.duration("QUEUE_DRAIN_INTERVAL", &cfg.Queue.DrainInterval)
	cfg.Queue.MaxAttempts = cfg.Webhook.RetryAttempts
	p.integer("QUEUE_MAX_ATTEMPTS", &cfg.Queue.MaxAttempts)

	p.str("CONNECTIVITY_PROBE_URL", &cfg.Connectivity.ProbeURL)
	p.duration("CONNECTIVITY_PROBE_INTERVAL", &cfg.Connectivity.ProbeInterval)

	p.str("CLAUDE_API_KEY", &cfg.Analysis.APIKey)
	p.str("CLAUDE_API_URL", &cfg.Analysis.APIURL)
	p.str("CLAUDE_MODEL", &cfg.Analysis.Model)

	p.str("ADMIN_JWT_SECRET", &cfg.Admin.JWTSecret)
	p.str("ADMIN_JWT_ISSUER", &cfg.Admin.JWTIssuer)

	p.float("RATE_LIMIT_RPS", &cfg.RateLimit.RPS)
	p.integer("RATE_LIMIT_BURST", &cfg.RateLimit.Burst)

	if v, ok := p.get("CORS_ALLOWED_ORIGINS"); ok {
		cfg.CORS.AllowedOrigins = splitList(v)
	}

	p.boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)

	p.str("LOG_LEVEL", &cfg.Log.Level)
	p.str("LOG_FORMAT", &cfg.Log.Format)
	p.str("LOG_OUTPUT", &cfg.Log.Output)
	p.boolean("LOG_ADD_SOURCE", &cfg.Log.AddSource)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	return cfg, errors.Join(p.errs...)
}

// Validate rejects settings the relay cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.Webhook.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("WEBHOOK_RETRY_ATTEMPTS must be at least 1, got %d", c.Webhook.RetryAttempts))
	}
	if c.Webhook.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("WEBHOOK_RETRY_DELAY must not be negative, got %s", c.Webhook.RetryDelay))
	}
	if c.Webhook.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("WEBHOOK_TIMEOUT must be positive, got %s", c.Webhook.Timeout))
	}
	if c.Queue.DrainInterval <= 0 {
		errs = append(errs, fmt.Errorf("QUEUE_DRAIN_INTERVAL must be positive, got %s", c.Queue.DrainInterval))
	}
	if c.Queue.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("QUEUE_MAX_ATTEMPTS must be at least 1, got %d", c.Queue.MaxAttempts))
	}
	if strings.TrimSpace(c.Queue.Key) == "" {
		errs = append(errs, errors.New("QUEUE_KEY must not be empty"))
	}
	if !knownBackend(c.Queue.Backend) {
		errs = append(errs, fmt.Errorf("QUEUE_BACKEND %q is not one of %v", c.Queue.Backend, storage.Backends()))
	}
	if c.Connectivity.ProbeURL != "" && c.Connectivity.ProbeInterval <= 0 {
		errs = append(errs, fmt.Errorf("CONNECTIVITY_PROBE_INTERVAL must be positive, got %s", c.Connectivity.ProbeInterval))
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("LEADRELAY_MAX_BODY_BYTES must be positive, got %d", c.HTTP.MaxBodyBytes))
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative"))
	}

	return errors.Join(errs...)
}

// StorageConfig maps the queue settings onto a storage backend config.
func (c Config) StorageConfig() storage.Config {
	sc := storage.DefaultConfig()
	sc.Backend = c.Queue.Backend
	if c.Queue.DSN != "" {
		sc.DSN = c.Queue.DSN
	}
	return sc
}

func knownBackend(b string) bool {
	for _, known := range storage.Backends() {
		if known == b {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) get(key string) (string, bool) {
	v, ok := p.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (p *parser) str(key string, dst *string) {
	if v, ok := p.get(key); ok {
		*dst = v
	}
}

func (p *parser) integer(key string, dst *int) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return
	}
	*dst = n
}

func (p *parser) int64(key string, dst *int64) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return
	}
	*dst = n
}

func (p *parser) float(key string, dst *float64) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a number", key, v))
		return
	}
	*dst = f
}

func (p *parser) boolean(key string, dst *bool) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return
	}
	*dst = b
}

// duration accepts Go durations ("1.5s") and bare integers as milliseconds.
func (p *parser) duration(key string, dst *time.Duration) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		*dst = time.Duration(ms) * time.Millisecond
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return
	}
	*dst = d
}
