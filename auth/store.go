package auth

import (
	"log/slog"
	"net/url"
	"sync"

	"github.com/pkg/browser"
	"golang.org/x/oauth2"
)

// Store is the in-memory token store. It owns the client credentials,
// token set, and per-attempt PKCE material for the process's single
// upstream connection, and doubles as the ClientProvider handed to the
// Flow and as the bearer-token source for the outbound transport.
//
// Tokens live only for the process lifetime; nothing is persisted.
type Store struct {
	mu          sync.RWMutex
	clientInfo  *ClientInformation
	tokens      *Tokens
	verifier    string
	state       string
	redirectURL string

	logger *slog.Logger

	// openURL is swapped out in tests; defaults to the system browser.
	openURL func(string) error
}

// NewStore creates a Store for the given redirect URI. If static client
// credentials are supplied they are seeded read-only; otherwise dynamic
// registration fills them in later.
func NewStore(redirectURL string, static *ClientInformation, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		clientInfo:  static,
		redirectURL: redirectURL,
		logger:      logger,
		openURL:     browser.OpenURL,
	}
}

func (s *Store) ClientInformation() *ClientInformation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientInfo
}

func (s *Store) SaveClientInformation(info *ClientInformation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientInfo = info
}

func (s *Store) Tokens() *Tokens {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens
}

func (s *Store) SaveTokens(tokens *Tokens) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = tokens
}

// AccessToken returns the current token in x/oauth2 form for the
// outbound transport, or nil when unauthenticated.
func (s *Store) AccessToken() *oauth2.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tokens == nil {
		return nil
	}
	return s.tokens.ToOAuth2Token()
}

func (s *Store) CodeVerifier() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verifier
}

func (s *Store) SaveCodeVerifier(verifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifier = verifier
}

func (s *Store) State() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) SaveState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Store) ClearAttempt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifier = ""
	s.state = ""
}

func (s *Store) RedirectURL() string {
	return s.redirectURL
}

// RedirectToAuthorization opens the authorization URL in the user's
// default browser. A failed launch is not fatal: the URL is logged so
// the user can open it by hand.
func (s *Store) RedirectToAuthorization(authURL *url.URL) error {
	s.logger.Info("please authorize this client in your browser", "url", authURL.String())

	if err := s.openURL(authURL.String()); err != nil {
		s.logger.Warn("could not open browser automatically, open the URL manually", "error", err)
	}
	return nil
}
