package logging

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// RedactedValue replaces masked keys and matched fragments.
const RedactedValue = "[REDACTED]"

// Keys whose values are always masked, compared case-insensitively.
var sensitiveKeys = []string{
	"email", "telefoon", "phone",
	"password", "secret", "token", "access_token",
	"api_key", "apikey", "x-api-key",
	"authorization", "cookie", "x-webhook-signature",
}

// Value fragments masked wherever they appear in strings.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
	regexp.MustCompile(`(?:\+31|0031|\b0)[ -]?6[ -]?\d{2}[ -]?\d{2}[ -]?\d{2}[ -]?\d{2}\b`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-_.]+`),
	regexp.MustCompile(`eyJ[a-zA-Z0-9\-_]+\.eyJ[a-zA-Z0-9\-_]+\.[a-zA-Z0-9\-_]+`),
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-_]+`),
	regexp.MustCompile(`(?i)(api[_-]?key|secret)["']?\s*[:=]\s*["']?[^\s"',}]+`),
}

var defaultRedactor = NewRedactor()

// Redactor masks contact details and credentials. Configure it with AddPattern
// before sharing it between goroutines.
type Redactor struct {
	keys     map[string]struct{}
	patterns []*regexp.Regexp
}

// NewRedactor returns a redactor for the built-in keys plus extraKeys.
func NewRedactor(extraKeys ...string) *Redactor {
	r := &Redactor{
		keys:     make(map[string]struct{}, len(sensitiveKeys)+len(extraKeys)),
		patterns: append([]*regexp.Regexp(nil), sensitivePatterns...),
	}
	for _, k := range append(sensitiveKeys, extraKeys...) {
		r.keys[strings.ToLower(k)] = struct{}{}
	}
	return r
}

// AddPattern masks every match of expr.
func (r *Redactor) AddPattern(expr string) error {
	re, err := regexp.Compile(expr)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// SensitiveKey reports whether values under key are always masked.
func (r *Redactor) SensitiveKey(key string) bool {
	_, ok := r.keys[strings.ToLower(key)]
	return ok
}

// String masks every sensitive fragment of s.
func (r *Redactor) String(s string) string {
	for _, re := range r.patterns {
		s = re.ReplaceAllString(s, RedactedValue)
	}
	return s
}

// Map returns a masked deep copy of m. Nested maps and slices are walked.
func (r *Redactor) Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if r.SensitiveKey(k) {
			out[k] = RedactedValue
			continue
		}
		out[k] = r.value(v)
	}
	return out
}

func (r *Redactor) value(v any) any {
	switch val := v.(type) {
	case string:
		return r.String(val)
	case map[string]any:
		return r.Map(val)
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = r.value(val[i])
		}
		return out
	}
	return v
}

func (r *Redactor) attr(a slog.Attr) slog.Attr {
	if r.SensitiveKey(a.Key) {
		return slog.String(a.Key, RedactedValue)
	}
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.String(v.String()))
	case slog.KindGroup:
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(r.attrs(v.Group())...)}
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			return slog.String(a.Key, r.String(x.Error()))
		case map[string]any:
			return slog.Any(a.Key, r.Map(x))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

func (r *Redactor) attrs(in []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, len(in))
	for i, a := range in {
		out[i] = r.attr(a)
	}
	return out
}

type redactHandler struct {
	slog.Handler
	r *Redactor
}

func (h *redactHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, h.r.String(rec.Message), rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.r.attr(a))
		return true
	})
	return h.Handler.Handle(ctx, out)
}

func (h *redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &redactHandler{Handler: h.Handler.WithAttrs(h.r.attrs(attrs)), r: h.r}
}

func (h *redactHandler) WithGroup(name string) slog.Handler {
	return &redactHandler{Handler: h.Handler.WithGroup(name), r: h.r}
}
