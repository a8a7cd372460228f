package store

import (
	"context"
	"errors"
	"time"

	"github.com/sydsec/gatehouse/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrChallengeExpired is returned by Challenges.Get when the stored
	// challenge outlived its TTL; the implementation evicts it on the way out.
	ErrChallengeExpired = errors.New("store: challenge expired")
)

// Store is the root data access interface. Concrete drivers (sqlite, and
// redis for the challenge slot) implement this. Sub-repositories keep
// concerns tidy and independently mockable.
type Store interface {
	Accounts() Accounts
	Credentials() Credentials
	Challenges() Challenges
	PushSessions() PushSessions
	BackupCodes() BackupCodes

	ApplyMigrations() error

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped Store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Accounts interface {
	// Create inserts a new account (id and user handle provided by the app).
	Create(ctx context.Context, a domain.Account) error

	// GetByID returns an account with its credential set populated.
	GetByID(ctx context.Context, id string) (domain.Account, error)

	// GetByEmail returns an account with its credential set populated.
	GetByEmail(ctx context.Context, email string) (domain.Account, error)

	// GetByUserHandle resolves an account from its WebAuthn user handle.
	GetByUserHandle(ctx context.Context, handle []byte) (domain.Account, error)

	// GetByCredentialID resolves the account owning a raw credential id.
	GetByCredentialID(ctx context.Context, credentialID []byte) (domain.Account, error)

	// UpdateTOTP sets the TOTP secret (nil clears) and enabled flag.
	UpdateTOTP(ctx context.Context, accountID string, secret *string, enabled bool) error

	// SetVerified stamps the email-verification time.
	SetVerified(ctx context.Context, accountID string, at time.Time) error
}

type Credentials interface {
	// Create persists a newly registered WebAuthn credential.
	Create(ctx context.Context, c domain.Credential) error

	// ListByAccount returns all credentials owned by an account.
	ListByAccount(ctx context.Context, accountID string) ([]domain.Credential, error)

	// UpdateSignCount stores the collaborator-reported signature counter.
	UpdateSignCount(ctx context.Context, credentialID []byte, count uint32) error

	// Delete removes a credential by its row id, scoped to the owning account.
	Delete(ctx context.Context, accountID, id string) error
}

// Challenges is a TTL-bounded single-slot store of serialized ceremony state.
type Challenges interface {
	// Put stores a challenge, superseding any existing one for the same key.
	Put(ctx context.Context, c domain.Challenge) error

	// Get returns the stored challenge. ErrChallengeExpired (with eviction)
	// when past TTL, ErrNotFound when absent.
	Get(ctx context.Context, key string) (domain.Challenge, error)

	// Delete removes a challenge; deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// DeleteExpired evicts everything past TTL (sweeper hook).
	DeleteExpired(ctx context.Context, now time.Time) error
}

type PushSessions interface {
	// Create stores a session after removing any prior session with the
	// same request id (last writer wins).
	Create(ctx context.Context, s domain.PushSession) error

	// GetByRequestID returns the session for a request id.
	GetByRequestID(ctx context.Context, requestID string) (domain.PushSession, error)

	// DeleteByRequestID removes a session; absent ids are a no-op.
	DeleteByRequestID(ctx context.Context, requestID string) error

	// ListByAccount returns sessions belonging to an account.
	ListByAccount(ctx context.Context, accountID string) ([]domain.PushSession, error)

	// DeleteOlderThan removes sessions created before the cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) error
}

type BackupCodes interface {
	// Create stores a backup code fingerprint for an account.
	Create(ctx context.Context, accountID, codeHash string) error

	// Consume deletes the code if present and reports whether it existed.
	// Codes are strictly one-time.
	Consume(ctx context.Context, accountID, codeHash string) (bool, error)

	// DeleteAll removes every backup code for an account.
	DeleteAll(ctx context.Context, accountID string) error
}
