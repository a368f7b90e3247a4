package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remotemcp/mcp-bridge/auth"
)

// tokenServer is a minimal authorization server good enough for the
// refresh-token grant: metadata discovery plus a token endpoint.
func tokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 server.URL,
			"authorization_endpoint": server.URL + "/authorize",
			"token_endpoint":         server.URL + "/token",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "fresh",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestBridgeRunHappyPath(t *testing.T) {
	idp := tokenServer(t)

	store := auth.NewStore("http://127.0.0.1:3334/callback", &auth.ClientInformation{ClientID: "c"}, testLogger())
	store.SaveTokens(&auth.Tokens{AccessToken: "stale", RefreshToken: "rt"})

	flow := auth.NewFlow(auth.FlowConfig{ServerURL: idp.URL}, store, testLogger())

	input := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}` + "\n" +
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo"}}` + "\n"
	out := &syncBuffer{}

	upstream := &fakeUpstream{}
	b := New(Config{ServerURL: idp.URL}, flow, store, strings.NewReader(input), out, testLogger())
	b.dial = func(ctx context.Context, cfg UpstreamConfig, logger *slog.Logger) (Upstream, error) {
		require.Equal(t, idp.URL, cfg.ServerURL)
		require.NotNil(t, cfg.HTTPClient)
		return upstream, nil
	}

	require.NoError(t, b.Run(context.Background()))

	// Both requests were answered; the tool call may have landed
	// before or after the gate opened, but it got a response.
	lines := waitForLines(t, out, 2)
	assert.Len(t, lines, 2)
}

func TestBridgeRunAuthorizationFailureIsFatal(t *testing.T) {
	// Nothing listens here: discovery cannot succeed.
	store := auth.NewStore("http://127.0.0.1:3334/callback", nil, testLogger())
	flow := auth.NewFlow(auth.FlowConfig{ServerURL: "http://127.0.0.1:1"}, store, testLogger())

	b := New(Config{ServerURL: "http://127.0.0.1:1"}, flow, store, strings.NewReader(""), &syncBuffer{}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := b.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authorization failed")
	assert.False(t, b.gate.IsOpen())
}

func TestBridgeRunUpstreamFailureIsFatal(t *testing.T) {
	idp := tokenServer(t)

	store := auth.NewStore("http://127.0.0.1:3334/callback", &auth.ClientInformation{ClientID: "c"}, testLogger())
	store.SaveTokens(&auth.Tokens{AccessToken: "stale", RefreshToken: "rt"})
	flow := auth.NewFlow(auth.FlowConfig{ServerURL: idp.URL}, store, testLogger())

	b := New(Config{ServerURL: idp.URL}, flow, store, strings.NewReader(""), &syncBuffer{}, testLogger())
	b.dial = func(ctx context.Context, cfg UpstreamConfig, logger *slog.Logger) (Upstream, error) {
		return nil, assert.AnError
	}

	err := b.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream connection failed")
	assert.False(t, b.gate.IsOpen())
}
