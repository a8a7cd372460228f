package domain

import "time"

// ChallengeTTL bounds how long stored ceremony options stay redeemable.
const ChallengeTTL = 300 * time.Second

// Challenge is a stored WebAuthn ceremony state blob. The key is the account
// email for registration ceremonies, or the base64url challenge value itself
// for assertion ceremonies. At most one challenge exists per key; storing a
// new one supersedes the previous.
type Challenge struct {
	Key       string
	Payload   []byte // serialized webauthn session data
	ExpiresAt time.Time
}

// Expired reports whether the challenge is past its TTL at the given instant.
func (c Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
