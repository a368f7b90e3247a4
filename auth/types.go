package auth

import (
	"time"

	"golang.org/x/oauth2"
)

// expiryMargin is subtracted from token lifetimes when computing the
// expiry timestamp, to absorb clock skew and network latency.
const expiryMargin = 30 * time.Second

// ProtectedResourceMetadata holds RFC 9728 Protected Resource Metadata,
// published by the resource server to name its authorization server(s)
// and the scopes it understands.
type ProtectedResourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
	ScopesSupported      []string `json:"scopes_supported,omitempty"`
}

// ServerMetadata holds RFC 8414 Authorization Server Metadata. The same
// shape covers an OpenID Connect discovery document, which is a superset.
type ServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	JwksURI                           string   `json:"jwks_uri,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
}

// Complete reports whether the metadata carries the two endpoints the
// authorization flow cannot run without.
func (m *ServerMetadata) Complete() bool {
	return m != nil && m.AuthorizationEndpoint != "" && m.TokenEndpoint != ""
}

// SupportsS256 reports whether the server advertises the S256 PKCE
// method. An empty list is treated as support, per OAuth 2.1 which
// makes S256 mandatory.
func (m *ServerMetadata) SupportsS256() bool {
	if len(m.CodeChallengeMethodsSupported) == 0 {
		return true
	}
	for _, method := range m.CodeChallengeMethodsSupported {
		if method == "S256" {
			return true
		}
	}
	return false
}

// ClientInformation identifies this bridge as an OAuth client, either
// configured statically or returned by dynamic registration (RFC 7591).
type ClientInformation struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at,omitempty"`
	ClientSecretExpiresAt   int64    `json:"client_secret_expires_at,omitempty"`
	RedirectURIs            []string `json:"redirect_uris,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	ClientName              string   `json:"client_name,omitempty"`
	SoftwareID              string   `json:"software_id,omitempty"`
	SoftwareVersion         string   `json:"software_version,omitempty"`
}

// IsPublic reports whether the client has no secret and therefore
// authenticates with token_endpoint_auth_method "none".
func (c *ClientInformation) IsPublic() bool {
	return c.ClientSecret == ""
}

// AuthMethod returns the token endpoint auth method derived from the
// presence of a client secret.
func (c *ClientInformation) AuthMethod() string {
	if c.IsPublic() {
		return "none"
	}
	return "client_secret_post"
}

// ClientMetadata is the registration request body for dynamic client
// registration (RFC 7591).
type ClientMetadata struct {
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	ClientName              string   `json:"client_name"`
	Scope                   string   `json:"scope,omitempty"`
	SoftwareID              string   `json:"software_id,omitempty"`
	SoftwareVersion         string   `json:"software_version,omitempty"`
}

// Tokens holds the access credential produced by a token exchange or
// refresh. ExpiresAt is computed locally from expires_in when the
// response carries one.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresIn    int       `json:"expires_in,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"-"`
}

// SetExpiry computes ExpiresAt from ExpiresIn, with a safety margin.
func (t *Tokens) SetExpiry(now time.Time) {
	if t.ExpiresIn > 0 {
		t.ExpiresAt = now.Add(time.Duration(t.ExpiresIn)*time.Second - expiryMargin)
	}
}

// ToOAuth2Token converts to the x/oauth2 representation used by the
// outbound transport; oauth2.Token.Valid handles the expiry check.
func (t *Tokens) ToOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
}
