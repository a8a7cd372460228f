package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType discriminates what a signed token asserts about its subject.
// Only TypeAccess satisfies protected-operation guards; the other types are
// stepping stones (pending second factor, email verification, refresh).
type TokenType string

const (
	TypePending      TokenType = "pending"
	TypeAccess       TokenType = "access"
	TypeVerification TokenType = "verification"
	TypeRefresh      TokenType = "refresh"
)

// Default TTLs per token type. There is no revocation list, so validity is
// entirely time-and-signature bound.
const (
	DefaultPendingTTL      = 5 * time.Minute
	DefaultAccessTTL       = 60 * time.Minute
	DefaultVerificationTTL = 60 * time.Minute
	DefaultRefreshTTL      = 7 * 24 * time.Hour
)

// Claims are the claims carried by every gatehouse token:
// {sub: email, type, iat, exp} plus the registered issuer.
type Claims struct {
	jwt.RegisteredClaims

	// Type is the token type claim ("type").
	Type TokenType `json:"type"`
}

// NewClaims builds claims for a subject (the account email) and type.
func NewClaims(subject string, typ TokenType, ttl time.Duration, issuer string, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type: typ,
	}
}

func (c Claims) IsPending() bool      { return c.Type == TypePending }
func (c Claims) IsAccess() bool       { return c.Type == TypeAccess }
func (c Claims) IsRefresh() bool      { return c.Type == TypeRefresh }
func (c Claims) IsVerification() bool { return c.Type == TypeVerification }
