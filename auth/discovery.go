package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/remotemcp/mcp-bridge/internal/httpclient"
)

const (
	wellKnownProtectedResource   = "/.well-known/oauth-protected-resource"
	wellKnownAuthorizationServer = "/.well-known/oauth-authorization-server"
	wellKnownOpenIDConfiguration = "/.well-known/openid-configuration"
)

// Discoverer resolves protected-resource and authorization-server
// metadata from their well-known endpoints.
type Discoverer struct {
	client *httpclient.Client
	logger *slog.Logger
}

// NewDiscoverer creates a Discoverer. A nil client gets a default.
func NewDiscoverer(client *httpclient.Client, logger *slog.Logger) *Discoverer {
	if client == nil {
		client = httpclient.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{client: client, logger: logger}
}

// ProtectedResource fetches the RFC 9728 protected-resource metadata
// for the given resource URL. A nil result with a nil error means the
// resource server publishes no such document; callers fall back to
// treating the resource's own origin as the authorization server.
func (d *Discoverer) ProtectedResource(ctx context.Context, resourceURL string) (*ProtectedResourceMetadata, error) {
	origin, err := originOf(resourceURL)
	if err != nil {
		return nil, wrapError(KindDiscovery, err, "invalid resource URL")
	}

	endpoint := origin + wellKnownProtectedResource
	d.logger.Debug("fetching protected resource metadata", "url", endpoint)

	resp, err := d.client.Get(ctx, endpoint, map[string]string{"Accept": "application/json"})
	if err != nil {
		d.logger.Debug("protected resource metadata unavailable", "error", err)
		return nil, nil
	}
	if !resp.OK() {
		d.logger.Debug("protected resource metadata unavailable", "status", resp.StatusCode)
		return nil, nil
	}

	var metadata ProtectedResourceMetadata
	if err := resp.JSON(&metadata); err != nil {
		d.logger.Debug("protected resource metadata malformed", "error", err)
		return nil, nil
	}

	if len(metadata.AuthorizationServers) == 0 {
		d.logger.Debug("protected resource metadata lists no authorization servers")
		return nil, nil
	}

	d.logger.Debug("discovered protected resource metadata",
		"authorization_servers", metadata.AuthorizationServers,
		"scopes", metadata.ScopesSupported)
	return &metadata, nil
}

// ServerMetadata fetches the authorization server's metadata, trying
// the RFC 8414 OAuth document first and the OpenID Connect discovery
// document second. The first response that parses as JSON with a 2xx
// status and carries both an authorization and a token endpoint wins.
func (d *Discoverer) ServerMetadata(ctx context.Context, serverURL string) (*ServerMetadata, error) {
	candidates, err := metadataCandidates(serverURL)
	if err != nil {
		return nil, wrapError(KindDiscovery, err, "invalid authorization server URL")
	}

	var lastErr error
	for _, endpoint := range candidates {
		d.logger.Debug("fetching authorization server metadata", "url", endpoint)

		resp, err := d.client.Get(ctx, endpoint, map[string]string{"Accept": "application/json"})
		if err != nil {
			lastErr = err
			continue
		}
		if !resp.OK() {
			lastErr = fmt.Errorf("HTTP %d from %s", resp.StatusCode, endpoint)
			continue
		}

		var metadata ServerMetadata
		if err := resp.JSON(&metadata); err != nil {
			lastErr = fmt.Errorf("malformed metadata from %s: %w", endpoint, err)
			continue
		}
		if !metadata.Complete() {
			lastErr = fmt.Errorf("metadata from %s lacks authorization or token endpoint", endpoint)
			continue
		}

		d.logger.Debug("discovered authorization server metadata",
			"issuer", metadata.Issuer,
			"authorization_endpoint", metadata.AuthorizationEndpoint,
			"token_endpoint", metadata.TokenEndpoint,
			"registration_endpoint", metadata.RegistrationEndpoint)
		return &metadata, nil
	}

	return nil, wrapError(KindDiscovery, lastErr,
		fmt.Sprintf("no usable metadata for authorization server %s", serverURL))
}

// metadataCandidates builds the well-known URLs to probe for a server
// base URL. When the base carries a path (a tenant-scoped issuer), the
// RFC 8414 form inserts the well-known segment between origin and path;
// the OpenID form also tries the legacy path-appended variant.
func metadataCandidates(serverURL string) ([]string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("authorization server URL %q has no scheme or host", serverURL)
	}

	origin := u.Scheme + "://" + u.Host
	path := strings.TrimSuffix(u.Path, "/")

	candidates := []string{
		origin + wellKnownAuthorizationServer + path,
		origin + wellKnownOpenIDConfiguration + path,
	}
	if path != "" {
		candidates = append(candidates, origin+path+wellKnownOpenIDConfiguration)
	}
	return candidates, nil
}

// originOf returns scheme://host for a URL string.
func originOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("URL %q has no scheme or host", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}
