// Package shutdown runs the relay's shutdown hooks in priority order.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Hook priorities. Higher runs first; equal priorities run concurrently.
const (
	// PriorityHTTPServer stops accepting leads.
	PriorityHTTPServer = 90
	// PriorityWorkers stops the queue processor and the connectivity prober
	// and waits for background dispatches.
	PriorityWorkers = 80
	// PriorityQueue flushes the offline queue and closes its storage backend.
	PriorityQueue = 70
	// PriorityTelemetry closes log outputs.
	PriorityTelemetry = 50
)

// HookFunc performs one shutdown step. ctx ends when the hook times out.
type HookFunc func(ctx context.Context) error

// Hook is a named shutdown step.
type Hook struct {
	Name     string
	Priority int
	Fn       HookFunc
}

// TimeoutError reports a hook that outlived its per-hook timeout.
type TimeoutError struct {
	Hook    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("shutdown hook %q timed out after %v", e.Hook, e.Timeout)
}

// PanicError reports a hook that panicked.
type PanicError struct {
	Hook  string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("shutdown hook %q panicked: %v", e.Hook, e.Value)
}

func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}

// stages orders hooks into groups of equal priority, highest first.
// Registration order is kept inside a group.
func stages(hooks []Hook) [][]Hook {
	hooks = slices.Clone(hooks)
	slices.SortStableFunc(hooks, func(a, b Hook) int { return b.Priority - a.Priority })

	var out [][]Hook
	for _, h := range hooks {
		if n := len(out); n > 0 && out[n-1][0].Priority == h.Priority {
			out[n-1] = append(out[n-1], h)
		} else {
			out = append(out, []Hook{h})
		}
	}
	return out
}

// run calls h.Fn under timeout. A hook that ignores ctx is abandoned when the
// timeout fires; a panic becomes a PanicError.
func (h Hook) run(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				result <- &PanicError{Hook: h.Name, Value: v}
			}
		}()
		result <- h.Fn(ctx)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &TimeoutError{Hook: h.Name, Timeout: timeout}
		}
		return ctx.Err()
	}
}
