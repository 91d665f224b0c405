package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/bargom/leadrelay/internal/health"
)

// Pinger is implemented by every storage backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StorageChecker pings the queue backend. It is critical: without it
// undelivered leads cannot be persisted.
type StorageChecker struct {
	store   Pinger
	backend string
	timeout time.Duration
}

// NewStorageChecker creates a checker for store. timeout defaults to 2s.
func NewStorageChecker(store Pinger, backend string, timeout time.Duration) *StorageChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &StorageChecker{store: store, backend: backend, timeout: timeout}
}

func (c *StorageChecker) Name() string { return "storage" }

func (c *StorageChecker) Severity() health.Severity { return health.SeverityCritical }

// Check performs the ping.
func (c *StorageChecker) Check(ctx context.Context) health.CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	details := map[string]any{"backend": c.backend}
	if err := c.store.Ping(ctx); err != nil {
		return health.CheckResult{
			Status:  health.StatusUnhealthy,
			Message: fmt.Sprintf("storage ping failed: %v", err),
			Details: details,
		}
	}
	return health.CheckResult{Status: health.StatusHealthy, Details: details}
}
