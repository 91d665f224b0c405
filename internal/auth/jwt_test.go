package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "admin-test-secret"

func newTestValidator(t *testing.T, issuer string) *Validator {
	t.Helper()
	v, err := NewValidator(Config{Secret: testSecret, Issuer: issuer}, nil)
	require.NoError(t, err)
	return v
}

func TestNewValidator_RequiresSecret(t *testing.T) {
	_, err := NewValidator(Config{Secret: "  "}, nil)
	assert.ErrorIs(t, err, ErrNoSecretConfigured)
}

func TestValidator_IssueAndValidate(t *testing.T) {
	v := newTestValidator(t, "leadrelay")

	token, err := v.Issue("ops", time.Hour, RoleAdmin)
	require.NoError(t, err)

	user, err := v.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "ops", user.ID)
	assert.True(t, user.HasRole(RoleAdmin))
	assert.False(t, user.HasRole("viewer"))
	assert.WithinDuration(t, time.Now().Add(time.Hour), user.ExpiresAt, 5*time.Second)
}

func TestValidator_Expired(t *testing.T) {
	v := newTestValidator(t, "")
	v.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := v.Issue("ops", time.Hour, RoleAdmin)
	require.NoError(t, err)

	v.now = time.Now
	_, err = v.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidator_WrongIssuer(t *testing.T) {
	issuer := newTestValidator(t, "someone-else")
	token, err := issuer.Issue("ops", time.Hour, RoleAdmin)
	require.NoError(t, err)

	_, err = newTestValidator(t, "leadrelay").ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidIssuer)
}

func TestValidator_WrongSecret(t *testing.T) {
	other, err := NewValidator(Config{Secret: "different"}, nil)
	require.NoError(t, err)
	token, err := other.Issue("ops", time.Hour, RoleAdmin)
	require.NoError(t, err)

	_, err = newTestValidator(t, "").ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidator_RejectsOtherAlgorithms(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "ops",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = newTestValidator(t, "").ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidator_Empty(t *testing.T) {
	_, err := newTestValidator(t, "").ValidateToken(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestStringList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, stringList([]any{"a", 1, "b"}))
	assert.Equal(t, []string{"a", "b"}, stringList("a b"))
	assert.Equal(t, []string{"x"}, stringList([]string{"x"}))
	assert.Nil(t, stringList(42))
}
