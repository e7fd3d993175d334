package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	assert.Empty(t, cfg.NATS.URL)
	assert.Equal(t, "thalassa.events", cfg.NATS.Subject)
	assert.Equal(t, "opencode acp", cfg.Projects.AgentCommand)
	assert.Equal(t, 8080, cfg.Gateway.Port)
	assert.Equal(t, 0, cfg.Bridge.CallTimeout)
	assert.False(t, cfg.Bridge.SingleFlight)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
projects:
  root: /srv/projects
  agentCommand: my-agent --stdio
bridge:
  callTimeout: 120
  singleFlight: true
gateway:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	cfg, err := LoadWithPath(dir)
	require.NoError(t, err)

	assert.Equal(t, "/srv/projects", cfg.Projects.Root)
	assert.Equal(t, "my-agent --stdio", cfg.Projects.AgentCommand)
	assert.Equal(t, 120, cfg.Bridge.CallTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Bridge.CallTimeoutDuration())
	assert.True(t, cfg.Bridge.SingleFlight)
	assert.Equal(t, 9090, cfg.Gateway.Port)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("THALASSA_PROJECTS_AGENT_COMMAND", "env-agent")
	t.Setenv("THALASSA_BRIDGE_SINGLE_FLIGHT", "true")
	t.Setenv("THALASSA_GATEWAY_PORT", "7070")

	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "env-agent", cfg.Projects.AgentCommand)
	assert.True(t, cfg.Bridge.SingleFlight)
	assert.Equal(t, 7070, cfg.Gateway.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	content := `
gateway:
  port: -1
bridge:
  callTimeout: -5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	_, err := LoadWithPath(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway.port")
	assert.Contains(t, err.Error(), "callTimeout")
}
