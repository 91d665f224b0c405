package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bargom/leadrelay/internal/assessment"
	"github.com/bargom/leadrelay/pkg/integration"
)

const (
	DefaultBaseURL    = "https://api.anthropic.com/v1/messages"
	DefaultModel      = "claude-3-sonnet-20240229"
	DefaultAPIVersion = "2023-06-01"
	DefaultMaxTokens  = 3000
	defaultTimeout    = 60 * time.Second
	maxResponseBytes  = 1 << 20
)

// ErrNoAPIKey is returned by Complete when no API key is configured.
var ErrNoAPIKey = errors.New("analysis: API key is required")

// Config holds the configuration for the analysis client.
type Config struct {
	APIKey    string
	BaseURL   string // Optional, defaults to the public messages endpoint
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Analyzer) {
		a.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// WithCircuitBreaker guards model calls. While the circuit is open the
// fallback report is returned without calling the API.
func WithCircuitBreaker(cb *integration.CircuitBreaker) Option {
	return func(a *Analyzer) {
		a.breaker = cb
	}
}

// Analyzer asks the model for a maturity analysis.
type Analyzer struct {
	httpClient *http.Client
	config     Config
	breaker    *integration.CircuitBreaker
	logger     *slog.Logger
}

// New creates an Analyzer. An empty API key is allowed; Analyze then always
// returns the fallback report.
func New(cfg Config, opts ...Option) *Analyzer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	a := &Analyzer{
		config: cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.httpClient == nil {
		a.httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return a
}

// Configured reports whether an API key is set.
func (a *Analyzer) Configured() bool {
	return a.config.APIKey != ""
}

// Analyze never fails: transport, status and parse errors are logged and
// replaced by the fallback report for score.
func (a *Analyzer) Analyze(ctx context.Context, answers map[string]any, score assessment.MaturityScore, p Participant) *Analysis {
	if !a.Configured() {
		return Fallback(score)
	}

	var text string
	call := func(ctx context.Context) error {
		var err error
		text, err = a.Complete(ctx, BuildPrompt(answers, score, p))
		return err
	}

	var err error
	if a.breaker != nil {
		err = a.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		a.logger.Error("AI analysis failed", "error", err)
		return Fallback(score)
	}

	res, err := parseAnalysis(text)
	if err != nil {
		a.logger.Error("failed to parse AI response", "error", err)
		return Fallback(score)
	}
	return res
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete sends a single user message and returns the first text block.
func (a *Analyzer) Complete(ctx context.Context, prompt string) (string, error) {
	if !a.Configured() {
		return "", ErrNoAPIKey
	}

	body, err := json.Marshal(messagesRequest{
		Model:     a.config.Model,
		MaxTokens: a.config.MaxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("analysis: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("analysis: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", DefaultAPIVersion)
	req.Header.Set("x-api-key", a.config.APIKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("analysis: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("analysis: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("analysis: Claude API error: %d", resp.StatusCode)
	}

	var out messagesResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("analysis: decode response: %w", err)
	}
	for _, c := range out.Content {
		if c.Type == "" || c.Type == "text" {
			return c.Text, nil
		}
	}
	return "", errors.New("analysis: response contained no text")
}

func parseAnalysis(text string) (*Analysis, error) {
	var a Analysis
	if err := json.Unmarshal([]byte(stripFence(text)), &a); err != nil {
		return nil, err
	}
	return &a, nil
}
