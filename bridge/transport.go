package bridge

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
)

// TokenSource yields the current access token, nil when none is held.
// The auth Store satisfies it.
type TokenSource interface {
	AccessToken() *oauth2.Token
}

// Refresher runs a refresh-token grant, replacing the stored token set.
// The auth Flow satisfies it and serializes concurrent calls.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// AuthTransport is an http.RoundTripper that injects the current
// bearer token into every upstream request. An expired token is
// refreshed before the request goes out; an upstream 401 triggers one
// refresh-and-retry. Concurrent 401s collapse into a single refresh
// through the Refresher.
type AuthTransport struct {
	base      http.RoundTripper
	tokens    TokenSource
	refresher Refresher
	logger    *slog.Logger
}

// NewAuthTransport wraps base with bearer injection. A nil base uses
// http.DefaultTransport.
func NewAuthTransport(base http.RoundTripper, tokens TokenSource, refresher Refresher, logger *slog.Logger) *AuthTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthTransport{
		base:      base,
		tokens:    tokens,
		refresher: refresher,
		logger:    logger,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token := t.tokens.AccessToken()

	// Proactive leg: a token past its expiry hint is refreshed before
	// wasting a round trip on a guaranteed 401.
	if token != nil && !token.Valid() && token.RefreshToken != "" && t.refresher != nil {
		t.logger.Debug("access token expired, refreshing before request")
		if err := t.refresher.Refresh(req.Context()); err != nil {
			t.logger.Warn("proactive token refresh failed", "error", err)
		} else {
			token = t.tokens.AccessToken()
		}
	}

	out := req.Clone(req.Context())
	if token != nil && token.AccessToken != "" {
		token.SetAuthHeader(out)
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || t.refresher == nil {
		return resp, nil
	}

	// Reactive leg: the server rejected the token. Refresh once and
	// retry, provided the body can be replayed.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	t.logger.Debug("upstream returned 401, refreshing token and retrying")
	if refreshErr := t.refresher.Refresh(req.Context()); refreshErr != nil {
		t.logger.Warn("reactive token refresh failed", "error", refreshErr)
		return resp, nil
	}

	drainAndClose(resp)

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	if token := t.tokens.AccessToken(); token != nil {
		token.SetAuthHeader(retry)
	}

	return t.base.RoundTrip(retry)
}

func drainAndClose(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
