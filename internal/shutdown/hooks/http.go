// Package hooks adapts relay components into shutdown hooks.
package hooks

import (
	"context"
	"errors"
	"net/http"

	"github.com/bargom/leadrelay/internal/shutdown"
)

// HTTPServer is the part of *http.Server used during shutdown.
type HTTPServer interface {
	Shutdown(ctx context.Context) error
	SetKeepAlivesEnabled(v bool)
}

// HTTPServerShutdown stops accepting connections and waits for in-flight
// requests until the hook context expires.
func HTTPServerShutdown(server HTTPServer) shutdown.Hook {
	return shutdown.Hook{
		Name:     "http-server",
		Priority: shutdown.PriorityHTTPServer,
		Fn: func(ctx context.Context) error {
			server.SetKeepAlivesEnabled(false)
			if err := server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}
