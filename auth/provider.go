package auth

import "net/url"

// ClientProvider is the capability surface the authorization flow needs
// from its caller: credential and token storage, PKCE material, and the
// user-facing redirect. The in-memory Store satisfies it; tests install
// fakes.
type ClientProvider interface {
	// ClientInformation returns the stored client credentials, or nil
	// when none have been configured or registered yet.
	ClientInformation() *ClientInformation

	// SaveClientInformation stores client credentials for the rest of
	// the process lifetime.
	SaveClientInformation(info *ClientInformation)

	// Tokens returns the current token set, or nil before the first
	// successful exchange.
	Tokens() *Tokens

	// SaveTokens replaces the token set wholesale.
	SaveTokens(tokens *Tokens)

	// CodeVerifier returns the PKCE verifier saved for the in-flight
	// attempt, empty when none.
	CodeVerifier() string

	// SaveCodeVerifier stores the PKCE verifier for the in-flight attempt.
	SaveCodeVerifier(verifier string)

	// State returns the CSRF state saved for the in-flight attempt.
	State() string

	// SaveState stores the CSRF state for the in-flight attempt.
	SaveState(state string)

	// ClearAttempt discards the PKCE verifier and CSRF state so they
	// can never be reused by a later attempt.
	ClearAttempt()

	// RedirectURL returns the redirect URI registered for this client.
	RedirectURL() string

	// RedirectToAuthorization sends the user to the authorization URL,
	// typically by opening the default browser.
	RedirectToAuthorization(authURL *url.URL) error
}
