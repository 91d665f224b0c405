package health

import (
	"encoding/json"
	"net/http"
)

// Handler serves the health endpoints.
type Handler struct {
	registry *Registry
}

// NewHandler creates a new health check handler.
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// HealthHandler handles GET /health.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, h.registry.Health(r.Context()))
}

// LivenessHandler handles GET /health/live. It always returns 200.
func (h *Handler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, h.registry.Liveness(r.Context()))
}

// ReadinessHandler handles GET /health/ready. It returns 503 when a critical
// check (the queue backend) is failing.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, h.registry.Readiness(r.Context()))
}

// Router is the subset of chi.Router used to mount the endpoints.
type Router interface {
	Get(pattern string, h http.HandlerFunc)
}

// RegisterRoutes mounts /health, /health/live and /health/ready.
func (h *Handler) RegisterRoutes(r Router) {
	r.Get("/health", h.HealthHandler)
	r.Get("/health/live", h.LivenessHandler)
	r.Get("/health/ready", h.ReadinessHandler)
}

func writeResponse(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	status := http.StatusOK
	if resp.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
