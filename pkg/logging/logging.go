// Package logging builds the relay's slog loggers: JSON or text output,
// request-scoped attributes and masking of lead contact details.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects level, format and destination of log output.
type Config struct {
	Level     string // debug, info, warn, error
	Format    string // json or text
	Output    string // stdout, stderr or a file path
	AddSource bool

	// DisableRedaction writes contact details and credentials unmasked.
	DisableRedaction bool
	// SensitiveFields are masked in addition to the built-in keys.
	SensitiveFields []string
}

// DefaultConfig logs JSON at info level to stdout.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: "stdout"}
}

// ParseLevel maps a level name to a slog.Level. Unknown names mean info.
func ParseLevel(s string) slog.Level {
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Open resolves Output. The closer is nil for the standard streams.
func (c Config) Open() (io.Writer, io.Closer, error) {
	switch c.Output {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}
	f, err := os.OpenFile(c.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: open %s: %w", c.Output, err)
	}
	return f, f, nil
}

// Logger is the process *slog.Logger built from a Config.
type Logger struct {
	*slog.Logger
}

// New opens cfg.Output and builds a logger on it. The caller closes the
// returned closer, if any, after the last record is written.
func New(cfg Config) (*Logger, io.Closer, error) {
	w, closer, err := cfg.Open()
	if err != nil {
		return nil, nil, err
	}
	return NewWithWriter(cfg, w), closer, nil
}

// NewWithWriter builds a logger writing to w.
func NewWithWriter(cfg Config, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level), AddSource: cfg.AddSource}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	if !cfg.DisableRedaction {
		h = &redactHandler{Handler: h, r: NewRedactor(cfg.SensitiveFields...)}
	}
	return &Logger{Logger: slog.New(contextHandler{h})}
}

// SetDefault installs l as the process-wide slog logger.
func (l *Logger) SetDefault() {
	slog.SetDefault(l.Logger)
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// contextHandler copies the request id and admin subject from the context
// onto each record.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := RequestID(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	if sub := Subject(ctx); sub != "" {
		r.AddAttrs(slog.String("subject", sub))
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}
