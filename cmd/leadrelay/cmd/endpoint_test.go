package cmd

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clitest "github.com/bargom/leadrelay/cmd/leadrelay/testing"
	"github.com/bargom/leadrelay/internal/api/types"
)

func TestEndpointListCommand(t *testing.T) {
	clitest.IsolateEnv(t)
	t.Setenv("ZAPIER_WEBHOOK_URL", "https://hooks.zapier.com/secret")

	stdout, _, err := clitest.ExecuteCommandWithErr(NewRootCmd(), "endpoint", "list", "-o", "json")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "hooks.zapier.com")

	var eps []types.EndpointResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &eps))
	require.Len(t, eps, 4)
	assert.Equal(t, types.EndpointResponse{Name: "zapier", Priority: 1, Configured: true, Critical: true}, eps[0])
	assert.False(t, eps[1].Configured)
}

func TestEndpointTestCommand(t *testing.T) {
	clitest.IsolateEnv(t)
	srv, hits := countingServer(t, http.StatusOK)
	t.Setenv("PIPEDRIVE_WEBHOOK_URL", srv.URL)

	t.Run("configured", func(t *testing.T) {
		stdout, _, err := clitest.ExecuteCommandWithErr(NewRootCmd(), "endpoint", "test", "pipedrive")

		require.NoError(t, err)
		assert.Contains(t, stdout, "pipedrive: HTTP 200 after 1 attempts")
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("not configured", func(t *testing.T) {
		stdout, _, err := clitest.ExecuteCommandWithErr(NewRootCmd(), "endpoint", "test", "backup")

		assert.ErrorContains(t, err, "not configured")
		assert.Contains(t, stdout, "backup: failed")
	})

	t.Run("requires a name", func(t *testing.T) {
		_, _, err := clitest.ExecuteCommandWithErr(NewRootCmd(), "endpoint", "test")
		assert.Error(t, err)
	})
}
