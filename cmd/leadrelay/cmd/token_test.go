package cmd

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clitest "github.com/bargom/leadrelay/cmd/leadrelay/testing"
	"github.com/bargom/leadrelay/internal/auth"
)

func TestTokenCommand(t *testing.T) {
	t.Run("requires a secret", func(t *testing.T) {
		clitest.IsolateEnv(t)
		t.Setenv("ADMIN_JWT_SECRET", "")

		_, _, err := clitest.ExecuteCommandWithErr(NewRootCmd(), "token")
		assert.ErrorIs(t, err, auth.ErrNoSecretConfigured)
	})

	t.Run("issues an admin token", func(t *testing.T) {
		clitest.IsolateEnv(t)
		t.Setenv("ADMIN_JWT_SECRET", "cli-secret")
		t.Setenv("ADMIN_JWT_ISSUER", "leadrelay")

		stdout, _, err := clitest.ExecuteCommandWithErr(NewRootCmd(), "token", "--subject", "ops", "--ttl", "5m")
		require.NoError(t, err)

		v, err := auth.NewValidator(auth.Config{Secret: "cli-secret", Issuer: "leadrelay"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
		require.NoError(t, err)
		user, err := v.ValidateToken(context.Background(), strings.TrimSpace(stdout))
		require.NoError(t, err)
		assert.Equal(t, "ops", user.ID)
		assert.True(t, user.HasRole(auth.RoleAdmin))
	})
}
