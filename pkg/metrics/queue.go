package metrics

import "time"

// QueueMetrics provides methods to record offline queue metrics.
type QueueMetrics struct {
	registry *Registry
}

// Queue returns the offline queue metrics interface for the registry.
func (r *Registry) Queue() *QueueMetrics {
	return &QueueMetrics{registry: r}
}

// SetDepth sets the current number of queued webhooks.
func (q *QueueMetrics) SetDepth(n int) {
	q.registry.queueDepth.Set(float64(n))
}

// RecordEnqueued records a failed delivery moved to the queue.
func (q *QueueMetrics) RecordEnqueued(endpoint string) {
	q.registry.queueEnqueuedTotal.WithLabelValues(endpoint).Inc()
}

// RecordDropped records a queued webhook dropped after its final attempt.
func (q *QueueMetrics) RecordDropped(endpoint string) {
	q.registry.queueDroppedTotal.WithLabelValues(endpoint).Inc()
}

// RecordDrainPass records a drain pass. result is "completed" or the
// skip reason; duration is observed only for completed passes.
func (q *QueueMetrics) RecordDrainPass(result string, duration time.Duration) {
	q.registry.queueDrainPasses.WithLabelValues(result).Inc()
	if result == "completed" {
		q.registry.queueDrainDuration.Observe(duration.Seconds())
	}
}
