package auth

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin grants access to the webhook administration routes.
const RoleAdmin = "admin"

// User is the operator identified by a validated token.
type User struct {
	ID        string
	Roles     []string
	ExpiresAt time.Time
}

// HasRole checks if the user has the specified role.
func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// Config holds token settings. Only HS256 is accepted.
type Config struct {
	Secret string
	Issuer string
	// RolesClaim defaults to "roles".
	RolesClaim string
}

// Validator validates admin tokens.
type Validator struct {
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// NewValidator creates a validator. A blank secret is rejected so that
// admin routes can never be served unauthenticated by accident.
func NewValidator(config Config, logger *slog.Logger) (*Validator, error) {
	if strings.TrimSpace(config.Secret) == "" {
		return nil, ErrNoSecretConfigured
	}
	if config.RolesClaim == "" {
		config.RolesClaim = "roles"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		config: config,
		logger: logger.With("component", "jwt-validator"),
		now:    time.Now,
	}, nil
}

// ValidateToken validates a JWT string and returns the extracted user.
func (v *Validator) ValidateToken(_ context.Context, tokenStr string) (*User, error) {
	if tokenStr == "" {
		return nil, ErrMissingToken
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return []byte(v.config.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		v.logger.Debug("token validation failed", "error", err)
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if v.config.Issuer != "" {
		iss, _ := claims.GetIssuer()
		if iss != v.config.Issuer {
			return nil, ErrInvalidIssuer
		}
	}

	user := &User{Roles: stringList(claims[v.config.RolesClaim])}
	user.ID, _ = claims.GetSubject()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		user.ExpiresAt = exp.Time
	}
	return user, nil
}

// Issue signs a token for subject carrying roles, valid for ttl.
func (v *Validator) Issue(subject string, ttl time.Duration, roles ...string) (string, error) {
	now := v.now()
	claims := jwt.MapClaims{
		"sub":               subject,
		"iat":               now.Unix(),
		"exp":               now.Add(ttl).Unix(),
		v.config.RolesClaim: roles,
	}
	if v.config.Issuer != "" {
		claims["iss"] = v.config.Issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(v.config.Secret))
}

// stringList accepts JSON arrays and space-separated strings.
func stringList(raw any) []string {
	switch v := raw.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		return strings.Fields(v)
	}
	return nil
}
