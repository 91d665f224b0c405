package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultUserAgent is sent with every delivery.
const DefaultUserAgent = "FlowMaster-Pro-V4/1.0"

// Config holds configuration for the webhook client.
type Config struct {
	// Timeout bounds each attempt, not the whole Send call.
	Timeout          time.Duration
	Retry            RetryPolicy
	UserAgent        string
	Secret           string
	MaxConcurrent    int
	MaxResponseBytes int64
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:          10 * time.Second,
		Retry:            DefaultRetryPolicy(),
		UserAgent:        DefaultUserAgent,
		MaxConcurrent:    50,
		MaxResponseBytes: 64 * 1024,
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// AttemptObserver is called after every HTTP attempt. err is nil for a 2xx response.
type AttemptObserver func(endpoint string, attempt, statusCode int, elapsed time.Duration, err error)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithSleeper replaces the backoff wait, mostly for tests.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		c.sleep = s
	}
}

// WithAttemptObserver registers an observer for individual attempts.
func WithAttemptObserver(o AttemptObserver) Option {
	return func(c *Client) {
		c.observers = append(c.observers, o)
	}
}

// Client sends webhooks to external endpoints with retry logic.
type Client struct {
	httpClient *http.Client
	config     Config
	semaphore  chan struct{}
	sleep      Sleeper
	observers  []AttemptObserver
	now        func() time.Time
}

// NewClient creates a new webhook client with the given configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = defaults.Retry.MaxAttempts
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = defaults.Retry.BaseDelay
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaults.MaxConcurrent
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = defaults.MaxResponseBytes
	}

	c := &Client{
		httpClient: &http.Client{},
		config:     cfg,
		semaphore:  make(chan struct{}, cfg.MaxConcurrent),
		sleep:      sleepContext,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.config
}

// MaxAttempts returns the retry cap of a single Send call.
func (c *Client) MaxAttempts() int {
	return c.config.Retry.MaxAttempts
}

// SendJSON marshals payload and delivers it to url.
func (c *Client) SendJSON(ctx context.Context, endpoint, url string, payload any) (*Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshalling payload: %w", err)
	}
	return c.Send(ctx, Request{Endpoint: endpoint, URL: url, Payload: body})
}

// Send posts req.Payload to req.URL. Every non-2xx status, transport error or
// timeout is retried until the attempt cap, waiting BaseDelay * 2^(n-1) after
// failed attempt n. The first 2xx response ends the loop.
func (c *Client) Send(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, ErrNotConfigured
	}

	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, &DeliveryError{Endpoint: req.Endpoint, Err: ctx.Err()}
	}

	maxAttempts := c.config.Retry.MaxAttempts
	start := c.now()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptStart := c.now()
		status, body, err := c.doSend(ctx, req, attempt)
		c.notify(req.Endpoint, attempt, status, c.now().Sub(attemptStart), err)

		if err == nil {
			return &Result{
				Endpoint:    req.Endpoint,
				StatusCode:  status,
				Response:    decodeResponse(body),
				Attempts:    attempt,
				Duration:    c.now().Sub(start),
				DeliveredAt: c.now(),
			}, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		if serr := c.sleep(ctx, c.config.Retry.Backoff(attempt)); serr != nil {
			return nil, &DeliveryError{Endpoint: req.Endpoint, Attempts: attempt, Err: serr}
		}
	}

	return nil, &DeliveryError{Endpoint: req.Endpoint, Attempts: maxAttempts, Err: lastErr}
}

// Ping checks whether url answers at all. Any status below 500 counts as reachable.
func (c *Client) Ping(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("endpoint returned server error: %d", resp.StatusCode)
	}
	return nil
}

// doSend performs one HTTP attempt bounded by the per-attempt timeout.
func (c *Client) doSend(ctx context.Context, r Request, attempt int) (int, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, r.URL, bytes.NewReader(r.Payload))
	if err != nil {
		return 0, nil, &AttemptError{Attempt: attempt, Err: fmt.Errorf("creating request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}
	if c.config.Secret != "" {
		addSignature(req.Header, c.config.Secret, r.Payload)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		return 0, nil, &AttemptError{Attempt: attempt, Timeout: timedOut, Err: fmt.Errorf("sending request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseBytes))
	if err != nil {
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		return resp.StatusCode, nil, &AttemptError{Attempt: attempt, StatusCode: resp.StatusCode, Timeout: timedOut, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, body, &AttemptError{
			Attempt:    attempt,
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Err:        fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}

	return resp.StatusCode, body, nil
}

func (c *Client) notify(endpoint string, attempt, status int, elapsed time.Duration, err error) {
	for _, o := range c.observers {
		o(endpoint, attempt, status, elapsed, err)
	}
}

// decodeResponse parses a JSON body, falling back to the raw text.
func decodeResponse(body []byte) any {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return string(body)
	}
	return v
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
