package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bargom/leadrelay/internal/api/types"
	"github.com/bargom/leadrelay/internal/webhook/endpoint"
	"github.com/bargom/leadrelay/internal/webhook/service"
	"github.com/bargom/leadrelay/pkg/integration/webhook"
)

// ListEndpoints handles GET /api/webhooks/endpoints.
func (h *Handler) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, types.DataResponse{
		Success: true,
		Data:    types.EndpointsFrom(h.relay.Endpoints()),
	})
}

// SetEndpoint handles PUT /api/webhooks/endpoints/{name}.
func (h *Handler) SetEndpoint(w http.ResponseWriter, r *http.Request) {
	var req types.SetEndpointRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.respondDecodeError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondValidationError(w, err)
		return
	}

	ep, err := h.relay.SetEndpoint(chi.URLParam(r, "name"), req.URL)
	if err != nil {
		if errors.Is(err, endpoint.ErrInvalidName) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.respondError(w, http.StatusInternalServerError, "failed to update endpoint")
		return
	}
	h.respondJSON(w, http.StatusOK, types.DataResponse{
		Success: true,
		Data:    types.EndpointFrom(ep),
		Message: "Endpoint updated",
	})
}

// TestEndpoint handles POST /api/webhooks/endpoints/{name}/test.
func (h *Handler) TestEndpoint(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	res, err := h.relay.TestEndpoint(r.Context(), name)
	if errors.Is(err, webhook.ErrNotConfigured) {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}

	out := types.DeliveryFrom(name, res, err)
	if err != nil {
		h.logger.WarnContext(r.Context(), "endpoint test failed", "endpoint", name, "error", err)
		h.respondJSON(w, http.StatusBadGateway, types.DataResponse{Success: false, Data: out, Message: "Endpoint test failed"})
		return
	}
	h.respondJSON(w, http.StatusOK, types.DataResponse{Success: true, Data: out, Message: "Endpoint test succeeded"})
}

// QueueStatus handles GET /api/webhooks/queue.
func (h *Handler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, types.DataResponse{Success: true, Data: h.relay.QueueStatus()})
}

// DrainQueue handles POST /api/webhooks/queue/drain.
func (h *Handler) DrainQueue(w http.ResponseWriter, r *http.Request) {
	res, err := h.relay.Drain(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrNoProcessor) {
			h.respondError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.respondError(w, http.StatusInternalServerError, "drain failed")
		return
	}

	out := types.DrainFrom(res)
	msg := "Queue drained"
	if out.Skipped != "" {
		msg = "Drain skipped: " + out.Skipped
	}
	h.respondJSON(w, http.StatusOK, types.DataResponse{Success: true, Data: out, Message: msg})
}

// ClearQueue handles DELETE /api/webhooks/queue.
func (h *Handler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	if err := h.relay.ClearQueue(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "clear queue failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to clear queue")
		return
	}
	h.respondJSON(w, http.StatusOK, types.DataResponse{Success: true, Data: h.relay.QueueStatus(), Message: "Queue cleared"})
}

// SetConnectivity handles POST /api/webhooks/connectivity.
func (h *Handler) SetConnectivity(w http.ResponseWriter, r *http.Request) {
	var req types.ConnectivityRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.respondDecodeError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondValidationError(w, err)
		return
	}

	if err := h.relay.SetOnline(*req.Online); err != nil {
		if errors.Is(err, service.ErrNoConnectivity) {
			h.respondError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.respondError(w, http.StatusInternalServerError, "failed to update connectivity")
		return
	}
	h.respondJSON(w, http.StatusOK, types.DataResponse{Success: true, Data: h.relay.QueueStatus()})
}
