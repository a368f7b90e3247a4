package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/remotemcp/mcp-bridge/internal/httpclient"
)

const (
	clientName      = "mcp-bridge"
	softwareVersion = "0.1.0"
)

// Registrar obtains OAuth client credentials: statically configured
// ones pass through unchanged, otherwise it registers a fresh client
// against the authorization server (RFC 7591).
type Registrar struct {
	client *httpclient.Client
	logger *slog.Logger
}

// NewRegistrar creates a Registrar. A nil client gets a default.
func NewRegistrar(client *httpclient.Client, logger *slog.Logger) *Registrar {
	if client == nil {
		client = httpclient.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{client: client, logger: logger}
}

// Register performs dynamic client registration for the given redirect
// URI and scope. The server must advertise a registration endpoint;
// otherwise the attempt fails with a registration error, since there is
// no unauthenticated fallback.
func (r *Registrar) Register(ctx context.Context, metadata *ServerMetadata, redirectURI, scope string) (*ClientInformation, error) {
	if metadata.RegistrationEndpoint == "" {
		return nil, newError(KindRegistration,
			"authorization server does not support dynamic client registration; configure a client ID")
	}

	request := ClientMetadata{
		RedirectURIs:            []string{redirectURI},
		TokenEndpointAuthMethod: "none",
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		ClientName:              clientName,
		Scope:                   scope,
		SoftwareID:              uuid.NewString(),
		SoftwareVersion:         softwareVersion,
	}

	r.logger.Debug("registering OAuth client", "endpoint", metadata.RegistrationEndpoint)

	resp, err := r.client.PostJSON(ctx, metadata.RegistrationEndpoint, request, map[string]string{
		"Accept": "application/json",
	})
	if err != nil {
		return nil, wrapError(KindRegistration, err, "registration request failed")
	}
	if !resp.OK() {
		return nil, newError(KindRegistration,
			fmt.Sprintf("registration rejected with status %d: %s", resp.StatusCode, resp.String()))
	}

	var info ClientInformation
	if err := resp.JSON(&info); err != nil {
		return nil, wrapError(KindRegistration, err, "malformed registration response")
	}
	if info.ClientID == "" {
		return nil, newError(KindRegistration, "registration response carries no client_id")
	}

	r.logger.Info("registered OAuth client", "client_id", info.ClientID)
	return &info, nil
}
