package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidOAuthState = errors.New("invalid OAuth state")

// OAuthStateClaims is the payload of the state parameter sent to the provider
type OAuthStateClaims struct {
	Provider string `json:"provider"`
	Nonce    string `json:"nonce"`
	jwt.RegisteredClaims
}

// OAuthStateSigner issues and verifies HMAC-signed OAuth state values.
// The nonce is also kept in a short-lived cookie so a state can't be replayed
// from another browser.
type OAuthStateSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewOAuthStateSigner creates a signer; states expire after ttl
func NewOAuthStateSigner(secret string, ttl time.Duration) *OAuthStateSigner {
	return &OAuthStateSigner{secret: []byte(secret), ttl: ttl}
}

// Sign returns a state token bound to provider and nonce
func (s *OAuthStateSigner) Sign(provider, nonce string) (string, error) {
	now := time.Now()
	claims := OAuthStateClaims{
		Provider: provider,
		Nonce:    nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign oauth state: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, expiry, provider and nonce of state
func (s *OAuthStateSigner) Verify(state, provider, nonce string) error {
	claims := &OAuthStateClaims{}
	_, err := jwt.ParseWithClaims(state, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOAuthState, err)
	}
	if claims.Provider != provider || nonce == "" || claims.Nonce != nonce {
		return ErrInvalidOAuthState
	}
	return nil
}
