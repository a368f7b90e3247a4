package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/register", r.URL.Path)

		var req ClientMetadata
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"http://127.0.0.1:3334/callback"}, req.RedirectURIs)
		assert.Equal(t, "none", req.TokenEndpointAuthMethod)
		assert.Equal(t, []string{"authorization_code", "refresh_token"}, req.GrantTypes)
		assert.Equal(t, []string{"code"}, req.ResponseTypes)
		assert.NotEmpty(t, req.SoftwareID)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(ClientInformation{ClientID: "generated-client"})
	}))
	defer server.Close()

	r := NewRegistrar(nil, testLogger())
	metadata := &ServerMetadata{RegistrationEndpoint: server.URL + "/register"}

	info, err := r.Register(context.Background(), metadata, "http://127.0.0.1:3334/callback", "read write")
	require.NoError(t, err)
	assert.Equal(t, "generated-client", info.ClientID)
	assert.True(t, info.IsPublic())
}

func TestRegisterUnsupported(t *testing.T) {
	r := NewRegistrar(nil, testLogger())
	_, err := r.Register(context.Background(), &ServerMetadata{}, "http://127.0.0.1:3334/callback", "")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindRegistration))
}

func TestRegisterRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_redirect_uri"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	r := NewRegistrar(nil, testLogger())
	metadata := &ServerMetadata{RegistrationEndpoint: server.URL}

	_, err := r.Register(context.Background(), metadata, "http://127.0.0.1:3334/callback", "")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindRegistration))
	assert.Contains(t, err.Error(), "invalid_redirect_uri")
}

func TestRegisterMissingClientID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"client_name": "mcp-bridge"})
	}))
	defer server.Close()

	r := NewRegistrar(nil, testLogger())
	metadata := &ServerMetadata{RegistrationEndpoint: server.URL}

	_, err := r.Register(context.Background(), metadata, "http://127.0.0.1:3334/callback", "")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindRegistration))
}
