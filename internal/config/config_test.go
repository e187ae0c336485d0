package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
webhook:
  secret_key: abc123
`))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "ses-sns-webhook", cfg.Webhook.EndpointSlug)
	assert.Equal(t, 300, cfg.Webhook.MaxRequestsPerMinute)
	assert.Equal(t, 3000, cfg.Webhook.MaxRequestsPerHour)
	assert.Equal(t, 10, cfg.Webhook.HTTPTimeoutSeconds)
	assert.True(t, cfg.Webhook.AWSIPValidationEnabled(), "IP validation defaults to enabled")
	assert.Equal(t, "abc123", cfg.Webhook.SecretKey)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "ses-sns-webhook", cfg.Webhook.EndpointSlug)
}

func TestLoadExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  port: 9090
webhook:
  secret_key: s
  endpoint_slug: custom-hook
  validate_aws_ip: false
  max_requests_per_minute: 10
api:
  allowed_origins:
    - https://reports.example.org
`))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "custom-hook", cfg.Webhook.EndpointSlug)
	assert.False(t, cfg.Webhook.AWSIPValidationEnabled())
	assert.Equal(t, 10, cfg.Webhook.MaxRequestsPerMinute)
	assert.Equal(t, []string{"https://reports.example.org"}, cfg.API.AllowedOrigins)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env-host/events")
	t.Setenv("SNS_SECRET_KEY", "env-secret")
	t.Setenv("VALIDATE_AWS_IP", "false")

	cfg, err := LoadFromEnv(writeConfig(t, `
database:
  url: postgres://file-host/events
webhook:
  secret_key: file-secret
`))
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-host/events", cfg.Database.URL)
	assert.Equal(t, "env-secret", cfg.Webhook.SecretKey)
	assert.False(t, cfg.Webhook.AWSIPValidationEnabled())
}

func TestServerAddr(t *testing.T) {
	cfg := ServerConfig{Host: "localhost", Port: 8080}
	assert.Equal(t, "localhost:8080", cfg.Addr())
}
