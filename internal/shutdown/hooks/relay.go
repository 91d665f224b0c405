package hooks

import (
	"context"
	"io"

	"github.com/bargom/leadrelay/internal/shutdown"
)

// Stopper is a background worker stopped with a deadline, such as the queue
// processor or the relay service.
type Stopper interface {
	Stop(ctx context.Context) error
}

// StopperFunc adapts a function to Stopper.
type StopperFunc func(ctx context.Context) error

// Stop calls f.
func (f StopperFunc) Stop(ctx context.Context) error { return f(ctx) }

// Worker stops s at PriorityWorkers.
func Worker(name string, s Stopper) shutdown.Hook {
	return shutdown.Hook{Name: name, Priority: shutdown.PriorityWorkers, Fn: s.Stop}
}

// Flusher persists buffered state.
type Flusher interface {
	Flush(ctx context.Context) error
}

// QueueFlush writes the in-memory queue back to storage and then closes the
// backend. Close still runs when the flush fails.
func QueueFlush(q Flusher, store io.Closer) shutdown.Hook {
	return shutdown.Hook{
		Name:     "offline-queue",
		Priority: shutdown.PriorityQueue,
		Fn: func(ctx context.Context) error {
			flushErr := q.Flush(ctx)
			if store == nil {
				return flushErr
			}
			if err := store.Close(); err != nil && flushErr == nil {
				return err
			}
			return flushErr
		},
	}
}

// Closer closes c at priority.
func Closer(name string, priority int, c io.Closer) shutdown.Hook {
	return shutdown.Hook{
		Name:     name,
		Priority: priority,
		Fn:       func(context.Context) error { return c.Close() },
	}
}
