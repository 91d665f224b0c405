package handlers

import (
	"errors"
	"net/http"

	"github.com/bargom/leadrelay/internal/api/types"
	"github.com/bargom/leadrelay/internal/assessment"
	"github.com/bargom/leadrelay/internal/webhook/service"
)

// Score handles POST /api/assessment/score.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	var req types.ScoreRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.respondDecodeError(w, err)
		return
	}
	if req.AssessmentData == nil {
		h.respondError(w, http.StatusBadRequest, "Assessment data required")
		return
	}

	h.respondJSON(w, http.StatusOK, types.ScoreResponse{
		Success: true,
		Score:   assessment.ScoreMaturity(req.AssessmentData),
		Message: "Score calculated successfully",
	})
}

// Analyze handles POST /api/assessment/analyze. The AI call falls back to a
// canned report, so the only failures are bad input.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req types.AnalyzeRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.respondDecodeError(w, err)
		return
	}
	if req.AssessmentData == nil {
		h.respondError(w, http.StatusBadRequest, "Assessment data is verplicht")
		return
	}
	if req.Naam == "" || req.Email == "" {
		h.respondError(w, http.StatusBadRequest, "Naam en email zijn verplicht")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondValidationError(w, err)
		return
	}

	res := h.relay.AnalyzeAssessment(r.Context(), req.AssessmentData, req.Participant())
	h.respondJSON(w, http.StatusOK, types.DataResponse{
		Success: true,
		Data:    res,
		Message: "Assessment succesvol geanalyseerd",
	})
}

// Complete handles POST /api/assessment/complete. Delivery happens in the
// background; the response only confirms acceptance.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	var data assessment.Data
	if err := h.decodeJSON(r, &data); err != nil {
		h.respondDecodeError(w, err)
		return
	}

	p, err := h.relay.CompleteAssessment(r.Context(), data)
	if err != nil {
		if errors.Is(err, service.ErrClosed) {
			h.respondError(w, http.StatusServiceUnavailable, "service is shutting down")
			return
		}
		h.logger.ErrorContext(r.Context(), "complete assessment failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "Er ging iets mis bij het verwerken van het assessment.")
		return
	}

	h.respondJSON(w, http.StatusAccepted, types.CompleteResponse{
		Success:   true,
		SessionID: p.Marketing.SessionID,
		Message:   "Assessment ontvangen",
	})
}
