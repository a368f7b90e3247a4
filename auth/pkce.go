package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// verifierBytes is the entropy of the PKCE code verifier. 32 bytes
	// encode to 43 base64url characters, the RFC 7636 minimum length.
	verifierBytes = 32

	// stateBytes is the entropy of the CSRF state parameter.
	stateBytes = 32
)

// PKCE holds the proof-of-possession material for one authorization
// attempt. Verifier and State are generated together and never reused
// across attempts.
type PKCE struct {
	Verifier  string
	Challenge string
	State     string
}

// GeneratePKCE produces a fresh verifier, its S256 challenge, and a
// CSRF state, all from crypto/rand.
func GeneratePKCE() (*PKCE, error) {
	verifier, err := randomURLSafe(verifierBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	state, err := randomURLSafe(stateBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	return &PKCE{
		Verifier:  verifier,
		Challenge: ComputeChallenge(verifier),
		State:     state,
	}, nil
}

// ComputeChallenge derives the S256 code challenge from a verifier
// per RFC 7636 section 4.2: BASE64URL(SHA256(verifier)).
func ComputeChallenge(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}

func randomURLSafe(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
