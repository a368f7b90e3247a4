package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MCP_BRIDGE_SERVER_URL", "https://mcp.example/v1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://mcp.example/v1", cfg.ServerURL)
	assert.Equal(t, "http://127.0.0.1:3334/callback", cfg.RedirectURI)
	assert.Equal(t, 5*time.Minute, cfg.CallbackTimeout)
	assert.Equal(t, "streamable-http", cfg.Transport)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.AllowHTTP)
}

func TestLoadScopesAndHeaders(t *testing.T) {
	t.Setenv("MCP_BRIDGE_SERVER_URL", "https://mcp.example")
	t.Setenv("MCP_BRIDGE_SCOPES", "read write")
	t.Setenv("MCP_BRIDGE_HEADERS", "X-Tenant:acme,X-Env:prod")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"read", "write"}, cfg.Scopes)
	assert.Equal(t, map[string]string{"X-Tenant": "acme", "X-Env": "prod"}, cfg.Headers)
}

func TestValidateOK(t *testing.T) {
	cfg := &Config{
		ServerURL:       "https://mcp.example",
		RedirectURI:     "http://127.0.0.1:3334/callback",
		CallbackTimeout: time.Minute,
		Transport:       "sse",
		LogLevel:        "debug",
	}
	assert.NoError(t, cfg.Validate())
}

func TestValidateEnumeratesAllProblems(t *testing.T) {
	cfg := &Config{
		ServerURL:       "",
		RedirectURI:     "not a url",
		Transport:       "carrier-pigeon",
		CallbackTimeout: 0,
		LogLevel:        "loud",
		ClientSecret:    "secret-without-id",
	}

	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "server URL is required")
	assert.Contains(t, msg, "redirect URI")
	assert.Contains(t, msg, "transport")
	assert.Contains(t, msg, "callback timeout")
	assert.Contains(t, msg, "log level")
	assert.Contains(t, msg, "client secret")
}

func TestValidateHTTPSEnforcement(t *testing.T) {
	cfg := &Config{
		ServerURL:       "http://mcp.example",
		RedirectURI:     "http://127.0.0.1:3334/callback",
		CallbackTimeout: time.Minute,
		Transport:       "streamable-http",
		LogLevel:        "info",
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not HTTPS")

	cfg.AllowHTTP = true
	assert.NoError(t, cfg.Validate())
}

func TestValidateLoopbackHTTPAllowed(t *testing.T) {
	cfg := &Config{
		ServerURL:       "http://localhost:8080/mcp",
		RedirectURI:     "http://127.0.0.1:3334/callback",
		CallbackTimeout: time.Minute,
		Transport:       "streamable-http",
		LogLevel:        "info",
	}
	assert.NoError(t, cfg.Validate())
}
