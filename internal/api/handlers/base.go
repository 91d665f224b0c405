// Package handlers contains HTTP request handlers for the API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/bargom/leadrelay/internal/analysis"
	"github.com/bargom/leadrelay/internal/api/types"
	"github.com/bargom/leadrelay/internal/assessment"
	"github.com/bargom/leadrelay/internal/webhook/endpoint"
	"github.com/bargom/leadrelay/internal/webhook/processor"
	"github.com/bargom/leadrelay/internal/webhook/service"
	"github.com/bargom/leadrelay/pkg/integration/webhook"
)

// Relay is the service surface used by the handlers.
type Relay interface {
	CompleteAssessment(ctx context.Context, d assessment.Data) (assessment.Payload, error)
	AnalyzeAssessment(ctx context.Context, answers map[string]any, p analysis.Participant) service.AnalysisResult
	Endpoints() []endpoint.Endpoint
	SetEndpoint(name, url string) (endpoint.Endpoint, error)
	QueueStatus() service.QueueStatus
	ClearQueue(ctx context.Context) error
	TestEndpoint(ctx context.Context, name string) (*webhook.Result, error)
	Drain(ctx context.Context) (processor.PassResult, error)
	SetOnline(online bool) error
}

var errEmptyBody = errors.New("request body is required")

// Handler provides HTTP handlers for the API.
type Handler struct {
	relay    Relay
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(relay Relay, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		relay:    relay,
		validate: validator.New(),
		logger:   logger.With("component", "api"),
	}
}

// respondJSON writes a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Debug("write response failed", "error", err)
	}
}

// respondError writes a JSON error response with the given status code.
func (h *Handler) respondError(w http.ResponseWriter, code int, message string) {
	h.respondJSON(w, code, types.ErrorResponse{Error: message})
}

// respondDecodeError maps body decoding failures to 400 or 413.
func (h *Handler) respondDecodeError(w http.ResponseWriter, err error) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		h.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if errors.Is(err, errEmptyBody) {
		h.respondError(w, http.StatusBadRequest, errEmptyBody.Error())
		return
	}
	h.respondError(w, http.StatusBadRequest, "invalid JSON body")
}

// respondValidationError writes a JSON validation error response.
func (h *Handler) respondValidationError(w http.ResponseWriter, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		details := make(map[string]string, len(validationErrs))
		for _, e := range validationErrs {
			details[e.Field()] = formatValidationError(e)
		}
		h.respondJSON(w, http.StatusBadRequest, types.ErrorResponse{
			Error:   "validation failed",
			Details: details,
		})
		return
	}
	h.respondError(w, http.StatusBadRequest, "invalid input")
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + e.Param() + " characters"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	default:
		return "is invalid"
	}
}

// decodeJSON decodes a JSON request body into v.
func (h *Handler) decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errEmptyBody
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return errEmptyBody
	}
	return err
}

// NotFound answers unknown routes with the list of public endpoints.
func NotFound(available []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, types.ErrorResponse{
			Error:              "Endpoint not found",
			AvailableEndpoints: available,
		})
	}
}

// MethodNotAllowed answers known routes called with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, types.ErrorResponse{Error: "Method not allowed"})
}

func writeError(w http.ResponseWriter, code int, body types.ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
