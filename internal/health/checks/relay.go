package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/bargom/leadrelay/internal/health"
)

// Connectivity reports the outbound delivery state.
type Connectivity interface {
	Online() bool
}

// ConnectivityChecker reports degraded while delivery is offline.
type ConnectivityChecker struct {
	conn Connectivity
}

// NewConnectivityChecker creates a connectivity checker.
func NewConnectivityChecker(conn Connectivity) *ConnectivityChecker {
	return &ConnectivityChecker{conn: conn}
}

func (c *ConnectivityChecker) Name() string { return "connectivity" }

func (c *ConnectivityChecker) Severity() health.Severity { return health.SeverityWarning }

func (c *ConnectivityChecker) Check(context.Context) health.CheckResult {
	if c.conn.Online() {
		return health.CheckResult{Status: health.StatusHealthy}
	}
	return health.CheckResult{Status: health.StatusDegraded, Message: "offline, deliveries are queued"}
}

// QueueStats is the read side of the offline queue.
type QueueStats interface {
	Len() int
	Oldest() (time.Time, bool)
}

// QueueChecker reports degraded when the backlog exceeds maxDepth.
type QueueChecker struct {
	queue    QueueStats
	maxDepth int
	now      func() time.Time
}

// NewQueueChecker creates a queue checker. maxDepth <= 0 disables the threshold.
func NewQueueChecker(q QueueStats, maxDepth int) *QueueChecker {
	return &QueueChecker{queue: q, maxDepth: maxDepth, now: time.Now}
}

func (c *QueueChecker) Name() string { return "queue" }

func (c *QueueChecker) Severity() health.Severity { return health.SeverityWarning }

func (c *QueueChecker) Check(context.Context) health.CheckResult {
	n := c.queue.Len()
	details := map[string]any{"depth": n}
	if oldest, ok := c.queue.Oldest(); ok {
		details["oldest_age"] = c.now().Sub(oldest).Truncate(time.Second).String()
	}
	if c.maxDepth > 0 && n > c.maxDepth {
		return health.CheckResult{
			Status:  health.StatusDegraded,
			Message: fmt.Sprintf("%d queued deliveries exceed threshold %d", n, c.maxDepth),
			Details: details,
		}
	}
	return health.CheckResult{Status: health.StatusHealthy, Details: details}
}
