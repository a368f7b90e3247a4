package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/remotemcp/mcp-bridge/internal/httpclient"
	"golang.org/x/sync/singleflight"
)

// State is the Flow's position in the authorization lifecycle.
type State int

const (
	StateIdle State = iota
	StateDiscovering
	StateRegistering
	StateAwaitingRedirect
	StateExchanging
	StateAuthorized
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateDiscovering:
		return "DISCOVERING"
	case StateRegistering:
		return "REGISTERING"
	case StateAwaitingRedirect:
		return "AWAITING_REDIRECT"
	case StateExchanging:
		return "EXCHANGING"
	case StateAuthorized:
		return "AUTHORIZED"
	case StateRefreshing:
		return "REFRESHING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// FlowConfig parameterizes one Flow.
type FlowConfig struct {
	// ServerURL is the protected resource to authorize against.
	ServerURL string

	// Scopes requested at authorization. When empty, the scopes
	// advertised by protected-resource discovery are used instead.
	Scopes []string

	// CallbackTimeout bounds the wait for the browser redirect.
	// Zero means DefaultCallbackTimeout.
	CallbackTimeout time.Duration
}

// Flow drives the Authorization Code + PKCE exchange: discovery,
// registration, the browser round trip, the token exchange, and the
// refresh-token shortcut. One Flow serves one upstream resource.
type Flow struct {
	config     FlowConfig
	provider   ClientProvider
	discoverer *Discoverer
	registrar  *Registrar
	httpClient *httpclient.Client
	logger     *slog.Logger

	mu       sync.Mutex
	state    State
	metadata *ServerMetadata

	// refreshGroup collapses concurrent refresh triggers into one
	// token-endpoint call; latecomers share its outcome.
	refreshGroup singleflight.Group
}

// NewFlow creates a Flow. Nil discoverer, registrar, or httpClient get
// defaults built on the given logger.
func NewFlow(config FlowConfig, provider ClientProvider, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	client := httpclient.New(nil)
	return &Flow{
		config:     config,
		provider:   provider,
		discoverer: NewDiscoverer(client, logger),
		registrar:  NewRegistrar(client, logger),
		httpClient: client,
		logger:     logger,
	}
}

// State returns the current lifecycle state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) setState(s State) {
	f.mu.Lock()
	prev := f.state
	f.state = s
	f.mu.Unlock()
	f.logger.Debug("authorization state changed", "from", prev.String(), "to", s.String())
}

// Authorize runs the flow to completion. A held refresh token is tried
// first; if that grant fails the full interactive flow runs instead.
// On return with nil error the provider holds a usable token set.
func (f *Flow) Authorize(ctx context.Context) error {
	attemptID := uuid.NewString()
	logger := f.logger.With("attempt", attemptID)

	if tokens := f.provider.Tokens(); tokens != nil && tokens.RefreshToken != "" {
		f.setState(StateRefreshing)
		err := f.refreshTokens(ctx, logger)
		if err == nil {
			f.setState(StateAuthorized)
			logger.Info("authorized via refresh token")
			return nil
		}
		logger.Info("refresh token rejected, starting full authorization", "error", err)
	}

	metadata, scope, err := f.discover(ctx, logger)
	if err != nil {
		f.setState(StateIdle)
		return err
	}

	if err := f.ensureClient(ctx, metadata, scope); err != nil {
		f.setState(StateIdle)
		return err
	}

	result, err := f.awaitRedirect(ctx, metadata, scope, logger)
	if err != nil {
		f.setState(StateIdle)
		f.provider.ClearAttempt()
		return err
	}

	if err := f.exchange(ctx, metadata, result, logger); err != nil {
		f.setState(StateIdle)
		f.provider.ClearAttempt()
		return err
	}

	f.setState(StateAuthorized)
	logger.Info("authorization complete")
	return nil
}

// discover resolves the authorization server's metadata and the scope
// to request, caching the metadata for later refresh grants.
func (f *Flow) discover(ctx context.Context, logger *slog.Logger) (*ServerMetadata, string, error) {
	f.setState(StateDiscovering)

	serverURL := ""
	scope := strings.Join(f.config.Scopes, " ")

	prm, err := f.discoverer.ProtectedResource(ctx, f.config.ServerURL)
	if err != nil {
		return nil, "", err
	}
	if prm != nil {
		serverURL = prm.AuthorizationServers[0]
		if scope == "" {
			scope = strings.Join(prm.ScopesSupported, " ")
		}
	} else {
		// No protected-resource metadata: the resource's own origin
		// doubles as the authorization server.
		origin, err := originOf(f.config.ServerURL)
		if err != nil {
			return nil, "", wrapError(KindDiscovery, err, "invalid server URL")
		}
		serverURL = origin
		logger.Debug("no protected resource metadata, probing resource origin", "origin", origin)
	}

	metadata, err := f.discoverer.ServerMetadata(ctx, serverURL)
	if err != nil {
		return nil, "", err
	}
	if !metadata.SupportsS256() {
		logger.Warn("authorization server does not advertise S256, attempting anyway")
	}

	f.mu.Lock()
	f.metadata = metadata
	f.mu.Unlock()

	return metadata, scope, nil
}

// ensureClient guarantees client credentials exist, registering a
// dynamic client when none were configured.
func (f *Flow) ensureClient(ctx context.Context, metadata *ServerMetadata, scope string) error {
	if f.provider.ClientInformation() != nil {
		return nil
	}

	f.setState(StateRegistering)
	info, err := f.registrar.Register(ctx, metadata, f.provider.RedirectURL(), scope)
	if err != nil {
		return err
	}
	f.provider.SaveClientInformation(info)
	return nil
}

// awaitRedirect runs the interactive leg: PKCE generation, the browser
// redirect, and the one-shot callback capture. The returned result has
// a validated state and a non-empty code.
func (f *Flow) awaitRedirect(ctx context.Context, metadata *ServerMetadata, scope string, logger *slog.Logger) (*CallbackResult, error) {
	pkce, err := GeneratePKCE()
	if err != nil {
		return nil, wrapError(KindAuthorizationDenied, err, "failed to generate PKCE material")
	}
	f.provider.SaveCodeVerifier(pkce.Verifier)
	f.provider.SaveState(pkce.State)

	authURL, err := f.buildAuthorizationURL(metadata, pkce, scope)
	if err != nil {
		return nil, err
	}

	callback, err := NewCallbackServer(f.provider.RedirectURL(), logger)
	if err != nil {
		return nil, wrapError(KindAuthorizationDenied, err, "invalid redirect URI")
	}
	if err := callback.Start(); err != nil {
		return nil, wrapError(KindAuthorizationDenied, err, "failed to start callback listener")
	}
	defer callback.Close()

	if err := f.provider.RedirectToAuthorization(authURL); err != nil {
		return nil, wrapError(KindAuthorizationDenied, err, "failed to redirect to authorization URL")
	}

	f.setState(StateAwaitingRedirect)
	result, err := callback.Wait(ctx, f.config.CallbackTimeout)
	if err != nil {
		return nil, err
	}

	if result.Error != "" {
		return nil, newError(KindAuthorizationDenied,
			fmt.Sprintf("authorization server returned %q: %s", result.Error, result.ErrorDescription))
	}
	if result.Code == "" {
		return nil, newError(KindAuthorizationDenied, "callback carried no authorization code")
	}

	// State check happens before the code is ever used.
	if result.State != f.provider.State() {
		return nil, newError(KindInvalidState, "callback state does not match the stored state")
	}

	return result, nil
}

// buildAuthorizationURL assembles the authorize request. When the
// advertised endpoint's origin disagrees with the server's own origin,
// the URL is rewritten to a normalized /authorize path under the
// server origin, keeping the query. Some servers publish endpoints
// under stale version-suffixed bases.
func (f *Flow) buildAuthorizationURL(metadata *ServerMetadata, pkce *PKCE, scope string) (*url.URL, error) {
	endpoint, err := url.Parse(metadata.AuthorizationEndpoint)
	if err != nil {
		return nil, wrapError(KindDiscovery, err, "invalid authorization endpoint")
	}

	info := f.provider.ClientInformation()

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", info.ClientID)
	q.Set("redirect_uri", f.provider.RedirectURL())
	q.Set("state", pkce.State)
	q.Set("code_challenge", pkce.Challenge)
	q.Set("code_challenge_method", "S256")
	if scope != "" {
		q.Set("scope", scope)
	}
	endpoint.RawQuery = q.Encode()

	if metadata.Issuer != "" {
		if issuerOrigin, err := originOf(metadata.Issuer); err == nil {
			endpointOrigin := endpoint.Scheme + "://" + endpoint.Host
			if endpointOrigin != issuerOrigin {
				f.logger.Warn("authorization endpoint origin differs from issuer, normalizing",
					"endpoint", metadata.AuthorizationEndpoint, "issuer", metadata.Issuer)
				normalized, err := url.Parse(issuerOrigin + "/authorize")
				if err != nil {
					return nil, wrapError(KindDiscovery, err, "failed to normalize authorization URL")
				}
				normalized.RawQuery = endpoint.RawQuery
				return normalized, nil
			}
		}
	}

	return endpoint, nil
}

// exchange trades the authorization code for tokens.
func (f *Flow) exchange(ctx context.Context, metadata *ServerMetadata, result *CallbackResult, logger *slog.Logger) error {
	f.setState(StateExchanging)

	info := f.provider.ClientInformation()

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", result.Code)
	form.Set("redirect_uri", f.provider.RedirectURL())
	form.Set("client_id", info.ClientID)
	form.Set("code_verifier", f.provider.CodeVerifier())
	if !info.IsPublic() {
		form.Set("client_secret", info.ClientSecret)
	}

	tokens, err := f.tokenRequest(ctx, metadata.TokenEndpoint, form, KindTokenExchange)
	if err != nil {
		return err
	}

	f.provider.SaveTokens(tokens)
	f.provider.ClearAttempt()
	logger.Debug("token exchange succeeded", "has_refresh_token", tokens.RefreshToken != "")
	return nil
}

// Refresh runs a refresh-token grant against the token endpoint,
// replacing the stored token set. Concurrent callers share a single
// in-flight grant. Failure means the refresh token is no longer good;
// callers fall back to Authorize.
func (f *Flow) Refresh(ctx context.Context) error {
	_, err, _ := f.refreshGroup.Do("refresh", func() (interface{}, error) {
		return nil, f.refreshTokens(ctx, f.logger)
	})
	return err
}

func (f *Flow) refreshTokens(ctx context.Context, logger *slog.Logger) error {
	tokens := f.provider.Tokens()
	if tokens == nil || tokens.RefreshToken == "" {
		return newError(KindTokenRefresh, "no refresh token held")
	}

	info := f.provider.ClientInformation()
	if info == nil {
		return newError(KindTokenRefresh, "no client credentials held")
	}

	endpoint, err := f.tokenEndpoint(ctx)
	if err != nil {
		return wrapError(KindTokenRefresh, err, "cannot resolve token endpoint")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", tokens.RefreshToken)
	form.Set("client_id", info.ClientID)
	if !info.IsPublic() {
		form.Set("client_secret", info.ClientSecret)
	}

	refreshed, err := f.tokenRequest(ctx, endpoint, form, KindTokenRefresh)
	if err != nil {
		return err
	}

	// Servers may rotate or omit the refresh token; keep the old one
	// when no replacement arrives.
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = tokens.RefreshToken
	}

	f.provider.SaveTokens(refreshed)
	logger.Debug("token refresh succeeded")
	return nil
}

// tokenEndpoint returns the cached endpoint from the last discovery,
// rediscovering when none is cached yet.
func (f *Flow) tokenEndpoint(ctx context.Context) (string, error) {
	f.mu.Lock()
	metadata := f.metadata
	f.mu.Unlock()

	if metadata.Complete() {
		return metadata.TokenEndpoint, nil
	}

	discovered, _, err := f.discover(ctx, f.logger)
	if err != nil {
		return "", err
	}
	return discovered.TokenEndpoint, nil
}

// tokenRequest posts a grant to the token endpoint and decodes the
// token set, tagging failures with the given kind.
func (f *Flow) tokenRequest(ctx context.Context, endpoint string, form url.Values, kind Kind) (*Tokens, error) {
	resp, err := f.httpClient.PostForm(ctx, endpoint, form)
	if err != nil {
		return nil, wrapError(kind, err, "token endpoint request failed")
	}
	if !resp.OK() {
		return nil, newError(kind,
			fmt.Sprintf("token endpoint returned status %d: %s", resp.StatusCode, resp.String()))
	}

	var tokens Tokens
	if err := resp.JSON(&tokens); err != nil {
		return nil, wrapError(kind, err, "malformed token response")
	}
	if tokens.AccessToken == "" {
		return nil, newError(kind, "token response carries no access_token")
	}

	tokens.SetExpiry(time.Now())
	return &tokens, nil
}
