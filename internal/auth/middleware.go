package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bargom/leadrelay/pkg/logging"
)

type contextKey string

const userContextKey contextKey = "auth_user"

// UserFromContext retrieves the authenticated user, or nil.
func UserFromContext(ctx context.Context) *User {
	if user, ok := ctx.Value(userContextKey).(*User); ok {
		return user
	}
	return nil
}

// ContextWithUser returns a new context with the user attached.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// Middleware validates bearer tokens and attaches the user to the request.
type Middleware struct {
	validator *Validator
}

// NewMiddleware creates a new authentication middleware with the given validator.
func NewMiddleware(validator *Validator) *Middleware {
	return &Middleware{validator: validator}
}

// RequireAuth rejects requests without a valid token with 401.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.validator.ValidateToken(r.Context(), ExtractToken(r))
		if err != nil {
			message := "invalid token"
			switch {
			case errors.Is(err, ErrMissingToken):
				message = "authentication required"
			case errors.Is(err, ErrExpiredToken):
				message = "token has expired"
			case errors.Is(err, ErrInvalidIssuer):
				message = "invalid token issuer"
			}
			writeJSONError(w, http.StatusUnauthorized, message)
			return
		}

		ctx := ContextWithUser(r.Context(), user)
		ctx = logging.WithSubject(ctx, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole returns middleware that checks for a specific role.
// Must be used after RequireAuth.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromContext(r.Context())
			if user == nil {
				writeJSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !user.HasRole(role) {
				writeJSONError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ExtractToken returns the bearer token from the Authorization header.
func ExtractToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}
