package logging

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func jsonLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func TestHTTPMiddleware_LogsRequest(t *testing.T) {
	var buf bytes.Buffer

	var seenID string
	handler := NewHTTPMiddleware(jsonLogger(&buf)).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestID(r.Context())
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"status":"accepted"}`))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/assessment/complete", nil))

	assert.NotEmpty(t, seenID)
	assert.Equal(t, seenID, rec.Header().Get(RequestHeaderRequestID))

	entry := decodeLine(t, &buf)
	assert.Equal(t, "POST", entry["method"])
	assert.Equal(t, "/api/assessment/complete", entry["path"])
	assert.Equal(t, float64(http.StatusAccepted), entry["status"])
	assert.Equal(t, "http", entry["component"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, float64(21), entry["response_bytes"])
	assert.NotContains(t, entry, "request_headers")
}

func TestHTTPMiddleware_ReusesIncomingRequestID(t *testing.T) {
	handler := NewHTTPMiddleware(jsonLogger(&bytes.Buffer{})).Handler(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "abc-123", RequestID(r.Context()))
		}))

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set(RequestHeaderRequestID, "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestHeaderRequestID))
}

func TestHTTPMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusBadGateway, "ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		handler := NewHTTPMiddleware(jsonLogger(&buf)).Handler(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/x", nil))
		assert.Equal(t, tt.level, decodeLine(t, &buf)["level"])
	}
}

func TestHTTPMiddleware_LogHeadersMasksCredentials(t *testing.T) {
	var buf bytes.Buffer
	mw := NewHTTPMiddleware(jsonLogger(&buf), LogHeaders())
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/api/webhooks/queue", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("Accept", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	headers := decodeLine(t, &buf)["request_headers"].(map[string]any)
	assert.Equal(t, RedactedValue, headers["Authorization"])
	assert.Equal(t, "application/json", headers["Accept"])
}

func TestHTTPMiddleware_RoutePattern(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(NewHTTPMiddleware(jsonLogger(&buf)).Handler)
	r.Put("/api/webhooks/endpoints/{name}", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("PUT", "/api/webhooks/endpoints/zapier", nil))

	entry := decodeLine(t, &buf)
	assert.Equal(t, "/api/webhooks/endpoints/{name}", entry["route"])
	assert.Equal(t, "/api/webhooks/endpoints/zapier", entry["path"])
}
