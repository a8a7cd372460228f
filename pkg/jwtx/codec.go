package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken covers malformed, badly signed and expired tokens.
	// Callers that need to distinguish wrong-type tokens should inspect the
	// returned claims; the signature/expiry failure modes are deliberately
	// collapsed into one error.
	ErrInvalidToken = errors.New("jwtx: invalid token")
)

// Codec signs and verifies compact, URL-safe HS256 tokens.
type Codec struct {
	secret []byte
	issuer string
}

// NewCodec creates a codec for the given symmetric key. The key should carry
// at least 256 bits of entropy.
func NewCodec(secret []byte, issuer string) (*Codec, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwtx: secret must be at least 32 bytes, got %d", len(secret))
	}
	return &Codec{secret: secret, issuer: issuer}, nil
}

// Issuer returns the issuer claim the codec stamps and requires.
func (c *Codec) Issuer() string { return c.issuer }

// Sign produces the compact serialization of the claims.
func (c *Codec) Sign(claims Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a compact token, returning its claims.
// Any failure (bad signature, malformed, expired, wrong issuer) maps to
// ErrInvalidToken.
func (c *Codec) Verify(raw string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return c.secret, nil
	},
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
