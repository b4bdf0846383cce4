// Package auth verifies the shared bearer token presented to the layout
// backend.
//
// The backend is configured with either the token itself or a bcrypt hash of
// it. With a hash, the config file never holds the secret; devices still
// present the plaintext token.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrTokenMissing is returned when auth is enabled and no token was sent.
	ErrTokenMissing = errors.New("auth: missing token")

	// ErrTokenInvalid is returned when the token does not match.
	ErrTokenInvalid = errors.New("auth: invalid token")
)

// Verifier checks bearer tokens. The zero value accepts everything.
type Verifier struct {
	token []byte
	hash  []byte

	// Digest of the last token that matched hash; repeat requests skip bcrypt.
	mu       sync.Mutex
	accepted *[sha256.Size]byte
}

// NewVerifier returns a Verifier for a plaintext token or a bcrypt hash.
// Both empty disables authentication. Setting both is an error.
func NewVerifier(token, tokenHash string) (*Verifier, error) {
	if token != "" && tokenHash != "" {
		return nil, errors.New("auth: set either a token or a token hash, not both")
	}
	v := &Verifier{}
	if token != "" {
		v.token = []byte(token)
	}
	if tokenHash != "" {
		if _, err := bcrypt.Cost([]byte(tokenHash)); err != nil {
			return nil, fmt.Errorf("auth: token hash is not a bcrypt hash: %w", err)
		}
		v.hash = []byte(tokenHash)
	}
	return v, nil
}

// Enabled reports whether a token is required.
func (v *Verifier) Enabled() bool {
	return v != nil && (v.token != nil || v.hash != nil)
}

// Verify returns nil when token is acceptable.
func (v *Verifier) Verify(token string) error {
	if !v.Enabled() {
		return nil
	}
	if token == "" {
		return ErrTokenMissing
	}

	if v.token != nil {
		if subtle.ConstantTimeCompare([]byte(token), v.token) != 1 {
			return ErrTokenInvalid
		}
		return nil
	}

	digest := sha256.Sum256([]byte(token))
	v.mu.Lock()
	accepted := v.accepted
	v.mu.Unlock()
	if accepted != nil && subtle.ConstantTimeCompare(digest[:], accepted[:]) == 1 {
		return nil
	}

	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(token)); err != nil {
		return ErrTokenInvalid
	}
	v.mu.Lock()
	v.accepted = &digest
	v.mu.Unlock()
	log.Printf("auth: token accepted against configured hash")
	return nil
}

// HashToken returns the bcrypt hash to configure as auth_token_hash.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", errors.New("auth: cannot hash an empty token")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash token: %w", err)
	}
	return string(hash), nil
}
