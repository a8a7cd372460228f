package service

import (
	"time"

	"github.com/sydsec/gatehouse/pkg/jwtx"
)

// TokenService mints and validates the typed tokens that carry
// authentication state between requests. Tokens are stateless: validity is
// entirely signature-and-expiry bound, there is no revocation list.
type TokenService struct {
	Codec *jwtx.Codec

	// TTL overrides; zero values fall back to the jwtx defaults.
	PendingTTL      time.Duration
	AccessTTL       time.Duration
	VerificationTTL time.Duration
	RefreshTTL      time.Duration
}

func (s *TokenService) IssuePending(email string) (string, error) {
	return s.issue(email, jwtx.TypePending, s.PendingTTL, jwtx.DefaultPendingTTL)
}

func (s *TokenService) IssueAccess(email string) (string, error) {
	return s.issue(email, jwtx.TypeAccess, s.AccessTTL, jwtx.DefaultAccessTTL)
}

func (s *TokenService) IssueVerification(email string) (string, error) {
	return s.issue(email, jwtx.TypeVerification, s.VerificationTTL, jwtx.DefaultVerificationTTL)
}

func (s *TokenService) IssueRefresh(email string) (string, error) {
	return s.issue(email, jwtx.TypeRefresh, s.RefreshTTL, jwtx.DefaultRefreshTTL)
}

func (s *TokenService) issue(email string, typ jwtx.TokenType, ttl, fallback time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = fallback
	}
	return s.Codec.Sign(jwtx.NewClaims(email, typ, ttl, s.Codec.Issuer(), time.Now()))
}

// Validate parses and verifies a token of any type. Callers check the type
// themselves; only access tokens satisfy protected-operation guards.
func (s *TokenService) Validate(raw string) (jwtx.Claims, error) {
	return s.Codec.Verify(raw)
}

// ValidateTyped verifies the token and requires a specific type claim,
// mapping a type mismatch to ErrInvalidToken as well.
func (s *TokenService) ValidateTyped(raw string, typ jwtx.TokenType) (jwtx.Claims, error) {
	claims, err := s.Codec.Verify(raw)
	if err != nil {
		return jwtx.Claims{}, err
	}
	if claims.Type != typ {
		return jwtx.Claims{}, jwtx.ErrInvalidToken
	}
	return claims, nil
}
