package domain

import "time"

// PushSessionMaxAge is how long an unverified push-auth session survives
// before the sweeper reclaims it.
const PushSessionMaxAge = 2 * time.Minute

// PushSession is a one-shot push-login attempt. Exactly one session exists
// per RequestID; creating another for the same id supersedes the first.
// The session is destroyed on verification (success or failure) or by sweep.
type PushSession struct {
	ID        string
	RequestID string // caller-supplied correlation key
	OTP       string // fixed-width numeric one-time password
	AccountID string
	CreatedAt time.Time
}

// PushEvent is delivered over a live notification channel when a push-login
// attempt is approved.
type PushEvent struct {
	Name  string `json:"-"`     // SSE event name
	Token string `json:"token"` // freshly minted access token
}
