package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, Execute())
	assert.Equal(t, "dwiju "+Version+"\n", out.String())
}

func TestCleanupCommandOnMemoryBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("JWT_SECRET", "cli-test-secret")
	t.Setenv("REDIS_URL", "")
	t.Setenv("RATE_LIMIT_STORE", "memory")
	t.Setenv("VAULT_ENABLED", "false")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("TRACING_ENABLED", "false")
	t.Setenv("LOG_FILE", "")
	t.Setenv("AI_PROVIDER", "openai")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"cleanup", "--days", "7"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, Execute())
	assert.Equal(t, "Deactivated 0 idle session(s) older than 7 day(s)\n", out.String())
}
