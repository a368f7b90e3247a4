// Package config loads the bridge's configuration from environment
// variables, with an optional .env file for local development.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every startup parameter. Command-line flags may
// overwrite individual fields after Load.
type Config struct {
	// ServerURL is the remote MCP server to bridge to. Required.
	ServerURL string `env:"MCP_BRIDGE_SERVER_URL"`

	// Static OAuth client credentials. When ClientID is empty the
	// bridge registers a client dynamically.
	ClientID     string `env:"MCP_BRIDGE_CLIENT_ID"`
	ClientSecret string `env:"MCP_BRIDGE_CLIENT_SECRET"`

	// RedirectURI receives the OAuth callback; its port must be free.
	RedirectURI string `env:"MCP_BRIDGE_REDIRECT_URI" envDefault:"http://127.0.0.1:3334/callback"`

	// Scopes requested at authorization. Empty means the scopes
	// advertised by the resource server.
	Scopes []string `env:"MCP_BRIDGE_SCOPES" envSeparator:" "`

	// CallbackTimeout bounds the wait for the browser redirect.
	CallbackTimeout time.Duration `env:"MCP_BRIDGE_CALLBACK_TIMEOUT" envDefault:"5m"`

	// Transport selects the upstream wire protocol: streamable-http
	// or sse.
	Transport string `env:"MCP_BRIDGE_TRANSPORT" envDefault:"streamable-http"`

	// AllowHTTP permits a plain-http server URL outside localhost.
	// Bearer tokens over cleartext are a credential leak, so this is
	// off by default.
	AllowHTTP bool `env:"MCP_BRIDGE_ALLOW_HTTP" envDefault:"false"`

	// Headers are extra HTTP headers for every upstream request, as
	// Name:Value pairs.
	Headers map[string]string `env:"MCP_BRIDGE_HEADERS" envSeparator:","`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"MCP_BRIDGE_LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from the environment, after loading a .env
// file when one is present. Validation runs separately so flag
// overrides can apply in between.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Validate checks every field and reports all problems at once, so a
// misconfigured startup names everything that needs fixing.
func (c *Config) Validate() error {
	var problems []string

	if c.ServerURL == "" {
		problems = append(problems, "server URL is required (MCP_BRIDGE_SERVER_URL or --server-url)")
	} else if u, err := url.Parse(c.ServerURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("server URL %q is not a valid absolute URL", c.ServerURL))
	} else if u.Scheme != "https" && !c.AllowHTTP && !isLoopback(u.Hostname()) {
		problems = append(problems, fmt.Sprintf("server URL %q is not HTTPS; set MCP_BRIDGE_ALLOW_HTTP=true to override", c.ServerURL))
	}

	if u, err := url.Parse(c.RedirectURI); err != nil || u.Host == "" {
		problems = append(problems, fmt.Sprintf("redirect URI %q is not a valid absolute URL", c.RedirectURI))
	}

	switch c.Transport {
	case "streamable-http", "sse":
	default:
		problems = append(problems, fmt.Sprintf("transport %q is not supported (streamable-http, sse)", c.Transport))
	}

	if c.CallbackTimeout <= 0 {
		problems = append(problems, "callback timeout must be positive")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log level %q is not supported (debug, info, warn, error)", c.LogLevel))
	}

	if c.ClientSecret != "" && c.ClientID == "" {
		problems = append(problems, "client secret set without a client ID")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func isLoopback(hostname string) bool {
	return hostname == "localhost" || hostname == "127.0.0.1" || hostname == "::1"
}
